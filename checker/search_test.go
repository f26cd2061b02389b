package checker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/votorberry/model"
)

func smallHonestConfig() *model.Config {
	return &model.Config{Validators: 3, MaxSlot: 1, WindowSize: 5}
}

func TestExhaustiveHonestRunVerifies(t *testing.T) {
	report, err := RunExhaustive(smallHonestConfig())
	require.NoError(t, err)

	require.True(t, report.Complete)
	require.Empty(t, report.Violations)
	require.True(t, report.OK())
	require.Greater(t, report.StatesExplored, uint64(1))
	require.Greater(t, report.TransitionsExplored, report.StatesExplored)
}

func TestExhaustiveWithByzantineVerifies(t *testing.T) {
	// One equivocator out of four cannot assemble a conflicting quorum;
	// every safety invariant must survive the full adversarial search.
	cfg := &model.Config{Validators: 4, Byzantine: 1, MaxSlot: 1, WindowSize: 5}
	report, err := RunExhaustive(cfg)
	require.NoError(t, err)

	require.True(t, report.Complete)
	require.Empty(t, report.Violations)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	_, err := RunExhaustive(&model.Config{Validators: 0, MaxSlot: 1, WindowSize: 5})
	require.ErrorIs(t, err, model.ErrInvalidValidatorCount)
}

func TestResultsIndependentOfWorkerCount(t *testing.T) {
	sequential, err := RunExhaustive(smallHonestConfig(), WithWorkers(1))
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 8} {
		parallel, err := RunExhaustive(smallHonestConfig(), WithWorkers(workers))
		require.NoError(t, err)

		require.Equal(t, sequential.StatesExplored, parallel.StatesExplored, "workers=%d", workers)
		require.Equal(t, sequential.TransitionsExplored, parallel.TransitionsExplored, "workers=%d", workers)
		require.Equal(t, violationNames(sequential), violationNames(parallel), "workers=%d", workers)
		require.Equal(t, sequential.Complete, parallel.Complete, "workers=%d", workers)
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	first, err := RunExhaustive(smallHonestConfig())
	require.NoError(t, err)
	second, err := RunExhaustive(smallHonestConfig())
	require.NoError(t, err)

	require.Equal(t, first.StatesExplored, second.StatesExplored)
	require.Equal(t, first.TransitionsExplored, second.TransitionsExplored)
	require.Equal(t, first.Violations, second.Violations)
}

func TestMaxStatesReportsIncomplete(t *testing.T) {
	report, err := RunExhaustive(smallHonestConfig(), WithMaxStates(10))
	require.NoError(t, err)

	require.False(t, report.Complete)
	require.False(t, report.OK())
	require.LessOrEqual(t, report.StatesExplored, uint64(10)+1)
	// An incomplete run must not conclude anything about reachability.
	_, found := report.ViolationFor(PropProgressGuarantee)
	require.False(t, found)
}

func TestInvariantViolationCarriesPath(t *testing.T) {
	// A deliberately false invariant: "nothing ever finalizes past
	// genesis". The first finalizing state falsifies it, and its action
	// path must replay to that state.
	neverFinalize := Property{
		Name: "never_finalize",
		Kind: Invariant,
		Check: func(_ *model.Model, s *model.WorldState) bool {
			for _, slot := range s.FinalizedSlots() {
				if slot >= 1 {
					return false
				}
			}
			return true
		},
	}
	cfg := smallHonestConfig()
	report, err := RunExhaustive(cfg, WithProperties([]Property{neverFinalize}))
	require.NoError(t, err)

	v, found := report.ViolationFor("never_finalize")
	require.True(t, found)
	require.Equal(t, Invariant, v.Kind)
	require.NotEmpty(t, v.Path)

	// Replay the counterexample.
	m, err := model.New(cfg)
	require.NoError(t, err)
	s := m.InitialState()
	for _, a := range v.Path {
		ns, ok := m.Apply(s, a)
		require.True(t, ok, "counterexample step %s must apply", a)
		s = ns
	}
	require.Equal(t, v.Fingerprint, s.Fingerprint())
	require.False(t, neverFinalize.Check(m, s))
}

func TestHaltOnFirstViolationStopsEarly(t *testing.T) {
	alwaysFalse := Property{
		Name:  "always_false",
		Kind:  Invariant,
		Check: func(_ *model.Model, _ *model.WorldState) bool { return false },
	}
	full, err := RunExhaustive(smallHonestConfig(), WithProperties([]Property{alwaysFalse}))
	require.NoError(t, err)
	require.True(t, full.Complete == false || full.StatesExplored > 1)

	halted, err := RunExhaustive(smallHonestConfig(),
		WithProperties([]Property{alwaysFalse}),
		WithHaltOnFirstViolation(),
	)
	require.NoError(t, err)
	require.False(t, halted.Complete)
	_, found := halted.ViolationFor("always_false")
	require.True(t, found)
	require.LessOrEqual(t, halted.StatesExplored, full.StatesExplored)
}

func TestViolationsListedInDiscoveryOrder(t *testing.T) {
	// "needs_step" only fails once something is in flight, so its first
	// witness is strictly deeper than the initial state; "fails_at_root"
	// is witnessed immediately. The report must order them by discovery,
	// not by declaration.
	needsStep := Property{
		Name: "needs_step",
		Kind: Invariant,
		Check: func(_ *model.Model, s *model.WorldState) bool {
			return len(s.Envelopes()) == 0
		},
	}
	failsAtRoot := Property{
		Name:  "fails_at_root",
		Kind:  Invariant,
		Check: func(_ *model.Model, _ *model.WorldState) bool { return false },
	}
	report, err := RunExhaustive(smallHonestConfig(),
		WithProperties([]Property{needsStep, failsAtRoot}))
	require.NoError(t, err)

	require.Equal(t, []string{"fails_at_root", "needs_step"}, violationNames(report))
}

func TestUnreachablePropertyReported(t *testing.T) {
	impossible := Property{
		Name:  "unreachable_marker",
		Kind:  Reachability,
		Check: func(_ *model.Model, _ *model.WorldState) bool { return false },
	}
	report, err := RunExhaustive(smallHonestConfig(), WithProperties([]Property{impossible}))
	require.NoError(t, err)

	require.True(t, report.Complete)
	v, found := report.ViolationFor("unreachable_marker")
	require.True(t, found)
	require.Equal(t, Reachability, v.Kind)
	require.Empty(t, v.Path)
}

func violationNames(r *VerificationReport) []string {
	names := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		names = append(names, v.Property)
	}
	return names
}
