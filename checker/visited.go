package checker

import (
	"sync"

	"github.com/blockberries/votorberry/model"
)

const visitedShards = 64

// visitedSet deduplicates explored states. Sharded by fingerprint so
// parallel workers rarely contend on one lock; membership itself is
// decided by the full canonical encoding, so fingerprint collisions
// cannot merge distinct states.
type visitedSet struct {
	shards [visitedShards]visitedShard
}

type visitedShard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newVisitedSet() *visitedSet {
	v := &visitedSet{}
	for i := range v.shards {
		v.shards[i].seen = make(map[string]struct{})
	}
	return v
}

// insert adds the state and reports whether it was new.
func (v *visitedSet) insert(s *model.WorldState) bool {
	shard := &v.shards[s.Fingerprint()%visitedShards]
	key := string(s.Encoding())
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.seen[key]; ok {
		return false
	}
	shard.seen[key] = struct{}{}
	return true
}
