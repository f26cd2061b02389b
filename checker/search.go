package checker

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blockberries/votorberry/model"
)

type options struct {
	logger      *zap.Logger
	workers     int
	maxStates   uint64
	haltOnFirst bool
	properties  []Property
}

// Option configures RunExhaustive.
type Option func(*options)

// WithLogger injects a structured logger. Default is a nop logger; the
// checker never prints on its own.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWorkers sets the number of search workers. Values below one are
// treated as one. The discovered state set and violated properties are
// independent of the worker count.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithMaxStates bounds the number of evaluated states. A run stopped by
// the bound reports Complete=false.
func WithMaxStates(n uint64) Option {
	return func(o *options) { o.maxStates = n }
}

// WithHaltOnFirstViolation stops the search as soon as any invariant is
// falsified. The resulting report is incomplete.
func WithHaltOnFirstViolation() Option {
	return func(o *options) { o.haltOnFirst = true }
}

// WithProperties replaces the default property set.
func WithProperties(props []Property) Option {
	return func(o *options) { o.properties = props }
}

// RunExhaustive explores every state reachable from genesis under cfg
// and evaluates the property set in each.
func RunExhaustive(cfg *model.Config, opts ...Option) (*VerificationReport, error) {
	o := &options{logger: zap.NewNop(), workers: 1}
	for _, fn := range opts {
		fn(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}

	m, err := model.New(cfg)
	if err != nil {
		return nil, err
	}
	props := o.properties
	if props == nil {
		props = DefaultProperties(m)
	}

	s := &searcher{
		m:       m,
		props:   props,
		coll:    newCollector(),
		visited: newVisitedSet(),
		queue:   newWorkQueue(),
		opts:    o,
	}

	root := &node{state: m.InitialState()}
	s.visited.insert(root.state)
	s.states.Add(1)
	s.evaluate(root)
	s.queue.push(root)

	g := new(errgroup.Group)
	for i := 0; i < o.workers; i++ {
		g.Go(s.worker)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	complete := !s.incomplete.Load() && !s.halted.Load()
	report := &VerificationReport{
		StatesExplored:      s.states.Load(),
		TransitionsExplored: s.transitions.Load(),
		Complete:            complete,
		Violations:          s.coll.assemble(props, complete),
	}
	o.logger.Info("exhaustive search finished",
		zap.Uint64("states", report.StatesExplored),
		zap.Uint64("transitions", report.TransitionsExplored),
		zap.Bool("complete", report.Complete),
		zap.Int("violations", len(report.Violations)),
	)
	return report, nil
}

// node links a discovered state back to its parent so counterexample
// paths are reconstructed on demand instead of copied per state.
type node struct {
	state  *model.WorldState
	action model.Action
	parent *node
}

func pathTo(n *node) []model.Action {
	var rev []model.Action
	for cur := n; cur.parent != nil; cur = cur.parent {
		rev = append(rev, cur.action)
	}
	path := make([]model.Action, len(rev))
	for i, a := range rev {
		path[len(rev)-1-i] = a
	}
	return path
}

type searcher struct {
	m       *model.Model
	props   []Property
	coll    *collector
	visited *visitedSet
	queue   *workQueue
	opts    *options

	states      atomic.Uint64
	transitions atomic.Uint64
	incomplete  atomic.Bool
	halted      atomic.Bool
}

func (s *searcher) worker() error {
	for {
		n, ok := s.queue.pop()
		if !ok {
			return nil
		}
		s.expand(n)
		// The state is only needed for expansion; the counterexample
		// path reads actions, not states. Dropping it keeps memory
		// proportional to the frontier instead of the visited set.
		n.state = nil
		s.queue.done()
	}
}

func (s *searcher) expand(n *node) {
	for _, a := range s.m.Actions(n.state) {
		if s.halted.Load() {
			return
		}
		// The bound caps evaluated states, not just queued ones, so it
		// is checked before the next successor is counted.
		if s.opts.maxStates > 0 && s.states.Load() >= s.opts.maxStates {
			s.incomplete.Store(true)
			s.queue.close()
			return
		}
		s.transitions.Add(1)
		ns, ok := s.m.Apply(n.state, a)
		if !ok {
			continue
		}
		if !s.visited.insert(ns) {
			continue
		}
		s.states.Add(1)
		child := &node{state: ns, action: a, parent: n}
		s.evaluate(child)
		s.queue.push(child)
	}
}

func (s *searcher) evaluate(n *node) {
	for i := range s.props {
		p := &s.props[i]
		switch p.Kind {
		case Invariant:
			if p.Check(s.m, n.state) {
				continue
			}
			if s.coll.hasViolation(p.Name) {
				continue
			}
			v := &Violation{
				Property:    p.Name,
				Kind:        Invariant,
				Path:        pathTo(n),
				Fingerprint: n.state.Fingerprint(),
			}
			if s.coll.record(v) {
				s.opts.logger.Warn("invariant violated",
					zap.String("property", p.Name),
					zap.Int("depth", len(v.Path)),
					zap.Uint64("fingerprint", v.Fingerprint),
				)
				if s.opts.haltOnFirst {
					s.halted.Store(true)
					s.queue.close()
				}
			}
		case Reachability:
			if !s.coll.isSatisfied(p.Name) && p.Check(s.m, n.state) {
				s.coll.markSatisfied(p.Name)
			}
		}
	}
}

// workQueue is a LIFO frontier shared by the workers. pop blocks while
// the queue is empty but some worker may still push; it returns false
// once the queue is closed or globally drained.
type workQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	stack    []*node
	inFlight int
	closed   bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *workQueue) push(n *node) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.stack = append(q.stack, n)
	q.cond.Signal()
}

func (q *workQueue) pop() (*node, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.stack) == 0 && q.inFlight > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.stack) == 0 {
		q.closed = true
		q.cond.Broadcast()
		return nil, false
	}
	n := q.stack[len(q.stack)-1]
	q.stack = q.stack[:len(q.stack)-1]
	q.inFlight++
	return n, true
}

func (q *workQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	if q.inFlight == 0 && len(q.stack) == 0 {
		q.closed = true
		q.cond.Broadcast()
	} else {
		q.cond.Signal()
	}
}

func (q *workQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
