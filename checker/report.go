package checker

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/blockberries/votorberry/model"
)

// Violation records one falsified property. For invariants, Path is the
// action sequence from the initial state to the witnessing state. For an
// unreached reachability property Path is empty: no reachable state
// satisfies it.
type Violation struct {
	Property    string
	Kind        PropertyKind
	Path        []model.Action
	Fingerprint uint64
}

// VerificationReport summarizes one exhaustive run.
type VerificationReport struct {
	// StatesExplored counts distinct states evaluated, including the
	// initial state.
	StatesExplored uint64

	// TransitionsExplored counts attempted (state, action) pairs,
	// stale actions included.
	TransitionsExplored uint64

	// Complete is false when a state bound stopped the search before
	// the frontier drained. An incomplete run proves nothing about
	// unexplored states.
	Complete bool

	// Violations holds at most one entry per property. Invariant
	// violations come first, in discovery order; unreached reachability
	// properties follow in declaration order.
	Violations []Violation
}

// OK reports whether the run completed with no violations.
func (r *VerificationReport) OK() bool {
	return r.Complete && len(r.Violations) == 0
}

// ViolationFor returns the recorded violation for a property name.
func (r *VerificationReport) ViolationFor(name string) (Violation, bool) {
	for _, v := range r.Violations {
		if v.Property == name {
			return v, true
		}
	}
	return Violation{}, false
}

// collector accumulates property outcomes across workers. Violations
// keep the first witness per property; later witnesses are dropped.
type collector struct {
	mu         sync.Mutex
	violations *orderedmap.OrderedMap[string, *Violation]
	satisfied  map[string]bool
}

func newCollector() *collector {
	return &collector{
		violations: orderedmap.NewOrderedMap[string, *Violation](),
		satisfied:  make(map[string]bool),
	}
}

// record stores the first witness for the property, reporting whether
// this call was the one that recorded it.
func (c *collector) record(v *Violation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.violations.Get(v.Property); ok {
		return false
	}
	c.violations.Set(v.Property, v)
	return true
}

func (c *collector) hasViolation(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.violations.Get(name)
	return ok
}

func (c *collector) markSatisfied(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.satisfied[name] = true
}

func (c *collector) isSatisfied(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.satisfied[name]
}

// assemble produces the final violation list: invariant violations in
// the order their first witnesses were recorded, then reachability
// properties, which conclude violated only on complete coverage.
func (c *collector) assemble(props []Property, complete bool) []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Violation
	for el := c.violations.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value)
	}
	for _, p := range props {
		if p.Kind == Reachability && complete && !c.satisfied[p.Name] {
			out = append(out, Violation{Property: p.Name, Kind: Reachability})
		}
	}
	return out
}
