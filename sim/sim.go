package sim

import (
	"math/rand"
	"sort"

	"github.com/seehuhn/mt19937"
	"go.uber.org/zap"

	"github.com/blockberries/votorberry/model"
	"github.com/blockberries/votorberry/rotor"
	"github.com/blockberries/votorberry/types"
)

// Outcome summarizes one simulated execution.
type Outcome struct {
	// Finalized reports whether any slot past genesis finalized before
	// the tick bound.
	Finalized bool

	// Slot is the first finalized slot when Finalized is true.
	Slot types.Slot

	// Round is the finalization path taken: 1 fast, 2 slow.
	Round uint8

	// TicksElapsed is the tick on which the run ended.
	TicksElapsed uint64

	// Delivered counts consumed envelopes.
	Delivered uint64
}

type options struct {
	logger   *zap.Logger
	maxTicks uint64
}

// Option configures Run.
type Option func(*options)

// WithLogger injects a structured logger. Default is a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxTicks overrides the tick bound.
func WithMaxTicks(n uint64) Option {
	return func(o *options) { o.maxTicks = n }
}

// Run executes the model under cfg once, driven by the PRNG seed, until
// a slot finalizes, the system goes quiescent, or the tick bound is
// reached. Equal (cfg, seed) pairs produce equal outcomes.
func Run(cfg *model.Config, seed int64, opts ...Option) (*Outcome, error) {
	o := &options{logger: zap.NewNop()}
	for _, fn := range opts {
		fn(o)
	}

	m, err := model.New(cfg)
	if err != nil {
		return nil, err
	}
	if o.maxTicks == 0 {
		o.maxTicks = 20 + 10*cfg.MaxSlot
	}

	mt := mt19937.New()
	mt.Seed(seed)
	rng := rand.New(mt)

	var (
		sampler *rotor.Sampler
		tracker *rotor.ReachTracker
	)
	if cfg.Fanout > 0 {
		sampler, err = rotor.NewSampler(m.Ledger(), cfg.Fanout, rotor.DefaultMaxRetries, offlineMask(cfg))
		if err != nil {
			return nil, err
		}
		tracker = rotor.NewReachTracker(cfg.Fanout)
	}

	s := &scheduler{
		m:       m,
		cfg:     cfg,
		rng:     rng,
		logger:  o.logger,
		sampler: sampler,
		tracker: tracker,
		dueAt:   make(map[types.Envelope]uint64),
		state:   m.InitialState(),
	}
	return s.run(o.maxTicks), nil
}

type scheduler struct {
	m       *model.Model
	cfg     *model.Config
	rng     *rand.Rand
	logger  *zap.Logger
	sampler *rotor.Sampler
	tracker *rotor.ReachTracker

	state     *model.WorldState
	dueAt     map[types.Envelope]uint64
	delivered uint64
}

func (s *scheduler) run(maxTicks uint64) *Outcome {
	for tick := uint64(1); tick <= maxTicks; tick++ {
		if !s.step(tick) {
			// Quiescent: nothing in flight, nothing left to drive.
			return s.outcome(tick)
		}
		if out := s.finalizedOutcome(tick); out != nil {
			return out
		}
	}
	return s.outcome(maxTicks)
}

// step runs one tick: flush every due envelope, or drive progress when
// the network is idle. Returns false when there is nothing left to do.
func (s *scheduler) step(tick uint64) bool {
	due := s.dueEnvelopes(tick)
	if len(due) > 0 {
		s.rng.Shuffle(len(due), func(i, j int) { due[i], due[j] = due[j], due[i] })
		for _, env := range due {
			s.deliver(env, tick)
		}
		return true
	}

	slot := s.state.CurrentSlot()
	if slot < 1 {
		slot = 1
	}
	if _, ok := s.state.Proposal(slot); !ok && slot <= s.cfg.MaxSlot {
		return s.propose(slot, tick)
	}
	if s.state.CurrentSlot() < s.cfg.MaxSlot {
		ns, ok := s.m.Apply(s.state, model.Action{Kind: model.ActionAdvanceSlot})
		if ok {
			s.state = ns
			s.registerNew(tick)
			return true
		}
	}
	return false
}

func (s *scheduler) deliver(env types.Envelope, tick uint64) {
	if !s.state.HasEnvelope(env) {
		return
	}
	ns, ok := s.m.Apply(s.state, model.Action{Kind: model.ActionDeliver, Env: env})
	if !ok {
		return
	}
	s.state = ns
	s.delivered++
	delete(s.dueAt, env)
	if s.tracker != nil && env.Msg.Kind == types.KindBlockProposal {
		s.tracker.Record(env.Msg.Slot, env.Msg.Hash, env.Dst)
	}
	s.registerNew(tick)
}

func (s *scheduler) propose(slot types.Slot, tick uint64) bool {
	proposer, ok := s.pickProposer()
	if !ok {
		return false
	}
	ns, ok := s.m.Apply(s.state, model.Action{Kind: model.ActionPropose, Slot: slot, Validator: proposer})
	if !ok {
		return false
	}
	s.state = ns
	s.registerNew(tick)
	if s.sampler != nil {
		hash, _ := s.state.Proposal(slot)
		relays := s.sampler.Sample(slot, proposer)
		s.logger.Debug("relay set selected",
			zap.Uint64("slot", slot),
			zap.Uint64("hash", hash),
			zap.Int("proposer", proposer),
			zap.Ints("relays", relays),
		)
	}
	return true
}

// pickProposer draws a uniformly random responsive validator.
func (s *scheduler) pickProposer() (types.ValidatorID, bool) {
	var candidates []types.ValidatorID
	for id := 0; id < s.cfg.Validators; id++ {
		if s.cfg.IsResponsive(id) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[s.rng.Intn(len(candidates))], true
}

// registerNew schedules every envelope that just entered the network
// for the next tick.
func (s *scheduler) registerNew(tick uint64) {
	for _, env := range s.state.Envelopes() {
		if _, ok := s.dueAt[env]; !ok {
			s.dueAt[env] = tick + 1
		}
	}
}

func (s *scheduler) dueEnvelopes(tick uint64) []types.Envelope {
	var due []types.Envelope
	for _, env := range s.state.Envelopes() {
		if at, ok := s.dueAt[env]; ok && at <= tick {
			due = append(due, env)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Compare(due[j]) < 0 })
	return due
}

func (s *scheduler) finalizedOutcome(tick uint64) *Outcome {
	for _, slot := range s.state.FinalizedSlots() {
		if slot < 1 {
			continue
		}
		f, _ := s.state.FinalizationFor(slot)
		s.logger.Info("slot finalized",
			zap.Uint64("slot", slot),
			zap.Uint64("hash", f.Hash),
			zap.Uint8("round", f.Round),
			zap.Uint64("tick", tick),
		)
		return &Outcome{
			Finalized:    true,
			Slot:         slot,
			Round:        f.Round,
			TicksElapsed: tick,
			Delivered:    s.delivered,
		}
	}
	return nil
}

func (s *scheduler) outcome(tick uint64) *Outcome {
	return &Outcome{TicksElapsed: tick, Delivered: s.delivered}
}

func offlineMask(cfg *model.Config) types.ValidatorMask {
	var ids []types.ValidatorID
	for id := 0; id < cfg.Validators; id++ {
		if !cfg.IsResponsive(id) {
			ids = append(ids, id)
		}
	}
	return types.NewValidatorMask(ids...)
}
