package signal

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/reflection"
)

func testSignal(total, didnt int, failureRate float64, themes map[string]ThemeSignal) Signal {
	return Signal{
		Stats:        Stats{TotalReflections: total, DidntWorkCount: didnt, FailureRate: failureRate},
		ThemeSignals: themes,
	}
}

func TestEvaluate(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name             string
		sig              Signal
		wantEligible     bool
		wantSevere       bool
		wantConcentrated bool
		wantConc         float64
		wantTheme        string
	}{
		{
			name:             "all criteria hold",
			sig:              testSignal(6, 2, 0.3333, map[string]ThemeSignal{"timing": {Count: 2, FailureCount: 2}}),
			wantEligible:     true,
			wantSevere:       true,
			wantConcentrated: true,
			wantConc:         1,
			wantTheme:        "timing",
		},
		{
			name:         "not eligible",
			sig:          testSignal(4, 4, 1, nil),
			wantSevere:   true,
			wantConc:     0,
			wantEligible: false,
		},
		{
			name:             "boundaries are inclusive",
			sig:              testSignal(5, 5, 0.30, map[string]ThemeSignal{"a": {FailureCount: 2}, "b": {FailureCount: 1}}),
			wantEligible:     true,
			wantSevere:       true,
			wantConcentrated: true,
			wantConc:         0.4,
			wantTheme:        "a",
		},
		{
			name:         "below concentration",
			sig:          testSignal(10, 3, 0.3, map[string]ThemeSignal{"a": {FailureCount: 1}, "b": {FailureCount: 1}}),
			wantEligible: true,
			wantSevere:   true,
			wantConc:     0.3333,
			wantTheme:    "a", // ties go to the first name
		},
		{
			name:         "no failures",
			sig:          testSignal(10, 0, 0, map[string]ThemeSignal{"a": {Count: 3}}),
			wantEligible: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := Evaluate(tc.sig, th)
			assert.Equal(t, tc.wantEligible, e.Eligible)
			assert.Equal(t, tc.wantSevere, e.Severe)
			assert.Equal(t, tc.wantConcentrated, e.Concentrated)
			assert.Equal(t, tc.wantConc, e.Concentration)
			assert.Equal(t, tc.wantTheme, e.DominantTheme)
		})
	}
}

func TestEvaluation_Reasons(t *testing.T) {
	th := DefaultThresholds()

	e := Evaluate(testSignal(6, 2, 0.3333, map[string]ThemeSignal{"timing": {Count: 2, FailureCount: 2}}), th)
	assert.Equal(t, "totalReflections=6>=5; failureRate=0.3333>=0.30; theme timing concentration=1.0000>=0.40", e.Snapshot(th))
	assert.Empty(t, e.FailedCriteria(th))

	e = Evaluate(testSignal(3, 0, 0, nil), th)
	assert.Equal(t,
		"totalReflections=3<5; failureRate=0.0000<0.30; theme none concentration=0.0000<0.40",
		e.FailedCriteria(th))
}

func TestTransition(t *testing.T) {
	th := DefaultThresholds()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	flagging := Evaluate(testSignal(6, 2, 0.3333, map[string]ThemeSignal{"timing": {FailureCount: 2}}), th)
	passing := Evaluate(testSignal(10, 2, 0.2, map[string]ThemeSignal{"timing": {FailureCount: 2}}), th)

	// unflagged -> flagged
	state, change := Transition(FlagState{}, flagging, th, t0)
	assert.Equal(t, ChangeFlagged, change)
	assert.True(t, state.IsFlagged)
	assert.Equal(t, null.TimeFrom(t0), state.FlaggedAt)
	assert.Equal(t, 1, state.FlagHistory)

	// still flagged, same snapshot
	again, change := Transition(state, flagging, th, t1)
	assert.Equal(t, ChangeNone, change)
	assert.Equal(t, state, again)

	// still flagged, new snapshot
	worse := Evaluate(testSignal(7, 3, 0.4286, map[string]ThemeSignal{"timing": {FailureCount: 3}}), th)
	refreshed, change := Transition(state, worse, th, t1)
	assert.Equal(t, ChangeReason, change)
	assert.Equal(t, worse.Snapshot(th), refreshed.FlagReason)
	assert.Equal(t, null.TimeFrom(t0), refreshed.FlaggedAt)
	assert.Equal(t, 1, refreshed.FlagHistory)

	// flagged -> unflagged
	resolved, change := Transition(refreshed, passing, th, t1)
	assert.Equal(t, ChangeResolved, change)
	assert.False(t, resolved.IsFlagged)
	assert.Equal(t, null.TimeFrom(t1), resolved.ResolvedAt)
	assert.Equal(t, "failureRate=0.2000<0.30", resolved.ResolvedReason)
	assert.Equal(t, null.TimeFrom(t0), resolved.FlaggedAt)

	// still unflagged
	same, change := Transition(resolved, passing, th, t1.Add(time.Hour))
	assert.Equal(t, ChangeNone, change)
	assert.Equal(t, resolved, same)

	// re-flagged: flaggedAt kept, history incremented, resolution cleared
	reflagged, change := Transition(resolved, flagging, th, t1.Add(2*time.Hour))
	assert.Equal(t, ChangeFlagged, change)
	assert.Equal(t, null.TimeFrom(t0), reflagged.FlaggedAt)
	assert.Equal(t, 2, reflagged.FlagHistory)
	assert.False(t, reflagged.ResolvedAt.Valid)
	assert.Empty(t, reflagged.ResolvedReason)
}

type notifierMock struct {
	calls   int
	signals []Signal
}

func (n *notifierMock) NotifyFlagged(_ context.Context, signals []Signal) error {
	n.calls++
	n.signals = append(n.signals, signals...)
	return nil
}

type mailMock struct {
	messages []*core.EmailMessage
}

func (m *mailMock) SendMessages(messages ...*core.EmailMessage) {
	m.messages = append(m.messages, messages...)
}

// TestPipeline_FlagAndResolve walks the flag lifecycle of one context:
// 6 reflections with 2 timing failures get flagged, 4 more successes resolve it.
func TestPipeline_FlagAndResolve(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	logger := new(logMock)
	clk := newClock()
	notifier := new(notifierMock)
	pipeline := Pipeline{
		Aggregator: NewAggregator(store, store, logger, clk.now),
		Themes:     NewThemeExtractor(store, store, store, newReflectionDict(t), newCRPDict(t), logger, clk.now),
		Flagger:    NewFlagger(store, DefaultThresholds(), notifier, logger, clk.now),
	}
	key := Key{ContextKey: keyA, CardVersion: 1}
	flaggedAt := clk.now()

	store.addReflections(keyA, 1, reflection.OutcomeWorked, reflection.ReasonNone, "", 4)
	store.addReflections(keyA, 1, reflection.OutcomeDidntWork, reflection.ReasonTimingIssue, "", 2)

	res, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flag.Flagged)
	require.Len(t, res.Flag.NewlyFlagged, 1)
	assert.Equal(t, 1, notifier.calls)

	sig, err := store.GetSignalByKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, sig.IsFlagged)
	assert.Equal(t, 0.3333, sig.FailureRate)
	assert.Equal(t, ThemeSignal{Count: 2, FailureCount: 2}, sig.ThemeSignals["timing"])
	assert.Contains(t, sig.FlagReason, "failureRate=0.3333>=0.30")
	assert.Contains(t, sig.FlagReason, "theme timing concentration=1.0000>=0.40")
	assert.Equal(t, null.TimeFrom(flaggedAt), sig.FlaggedAt)
	assert.Equal(t, 1, sig.FlagHistory)

	// still flagged: nothing changes
	for i := 0; i < 3; i++ {
		clk.advance(time.Hour)
		res, err = pipeline.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Flag.Flagged)
	}
	sig, err = store.GetSignalByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, null.TimeFrom(flaggedAt), sig.FlaggedAt)
	assert.Equal(t, 1, sig.FlagHistory)
	assert.Equal(t, 1, notifier.calls)

	// failure rate drops to 0.20
	clk.advance(time.Hour)
	store.addReflections(keyA, 1, reflection.OutcomeWorked, reflection.ReasonNone, "", 4)
	res, err = pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flag.Resolved)

	sig, err = store.GetSignalByKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, sig.IsFlagged)
	assert.Equal(t, 0.2, sig.FailureRate)
	assert.Equal(t, "failureRate=0.2000<0.30", sig.ResolvedReason)
	assert.Equal(t, null.TimeFrom(clk.now()), sig.ResolvedAt)
	assert.Equal(t, null.TimeFrom(flaggedAt), sig.FlaggedAt)
	assert.Equal(t, 1, sig.FlagHistory)
}

func TestFlagger_Run_EvaluatesSignalsIndependently(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clk := newClock()
	th := DefaultThresholds()

	flagged := Stats{TotalReflections: 6, DidntWorkCount: 2, FailureRate: 0.3333}
	keyAv1 := Key{ContextKey: keyA, CardVersion: 1}
	keyBv1 := Key{ContextKey: keyB, CardVersion: 1}
	require.NoError(t, store.UpsertStats(ctx, keyAv1, flagged, clk.now()))
	require.NoError(t, store.UpsertStats(ctx, keyBv1, flagged, clk.now()))
	require.NoError(t, store.UpdateThemeSignals(ctx, keyAv1, map[string]ThemeSignal{"timing": {FailureCount: 2}}, clk.now()))
	require.NoError(t, store.UpdateThemeSignals(ctx, keyBv1, map[string]ThemeSignal{"timing": {FailureCount: 0}}, clk.now()))

	res, err := NewFlagger(store, th, nil, new(logMock), clk.now).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.Flagged)

	a, _ := store.GetSignalByKey(ctx, keyAv1)
	b, _ := store.GetSignalByKey(ctx, keyBv1)
	assert.True(t, a.IsFlagged)
	assert.False(t, b.IsFlagged)
	assert.Zero(t, b.FlagHistory)
}

func TestFlagger_Run_Empty(t *testing.T) {
	store := newMemStore()
	res, err := NewFlagger(store, DefaultThresholds(), nil, new(logMock), nil).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Zero(t, store.writes)
}

func TestEmailNotifier(t *testing.T) {
	mailSvc := new(mailMock)
	to := []mail.Address{{Name: "CRP", Address: "crp@example.com"}}

	require.NoError(t, NewEmailNotifier(mailSvc, nil).NotifyFlagged(context.Background(), []Signal{{}}))
	assert.Empty(t, mailSvc.messages)

	require.NoError(t, NewEmailNotifier(mailSvc, to).NotifyFlagged(context.Background(), []Signal{{}, {}}))
	require.Len(t, mailSvc.messages, 1)
	assert.Equal(t, to, mailSvc.messages[0].To)
	assert.Equal(t, flaggedTemplate, mailSvc.messages[0].TemplateName)
	assert.Equal(t, "2 prep card signal(s) flagged for review", mailSvc.messages[0].Subject)
}
