package signal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prepcards/core"
)

// Thresholds are the flagging criteria.
type Thresholds struct {
	MinReflections         int     // eligibility: totalReflections >= MinReflections
	FailureRate            float64 // severity: failureRate >= FailureRate
	ConcentrationThreshold float64 // concentration: max theme failureCount / didntWorkCount >= ConcentrationThreshold
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinReflections: 5, FailureRate: 0.30, ConcentrationThreshold: 0.40}
}

func ThresholdsFromConfig(conf core.FlaggingConfig) Thresholds {
	return Thresholds{
		MinReflections:         conf.MinReflections,
		FailureRate:            conf.FailureRateThreshold,
		ConcentrationThreshold: conf.ConcentrationThreshold,
	}
}

// Evaluation is the outcome of the flagging criteria for one signal.
type Evaluation struct {
	TotalReflections int
	FailureRate      float64
	Concentration    float64
	DominantTheme    string

	Eligible     bool
	Severe       bool
	Concentrated bool
}

// Change is a flag state transition.
type Change int

const (
	ChangeNone Change = iota
	ChangeFlagged
	ChangeResolved
	ChangeReason // still flagged, flagReason changed
)

func (c Change) String() string {
	switch c {
	case ChangeFlagged:
		return "flagged"
	case ChangeResolved:
		return "resolved"
	case ChangeReason:
		return "reason"
	default:
		return "none"
	}
}

// Evaluate applies the criteria to sig. It only depends on sig.
func Evaluate(sig Signal, th Thresholds) Evaluation {
	e := Evaluation{
		TotalReflections: sig.TotalReflections,
		FailureRate:      sig.FailureRate,
	}
	e.DominantTheme, e.Concentration = concentration(sig.ThemeSignals, sig.DidntWorkCount)

	e.Eligible = e.TotalReflections >= th.MinReflections
	e.Severe = e.FailureRate >= th.FailureRate
	e.Concentrated = e.Concentration >= th.ConcentrationThreshold
	return e
}

// concentration returns the theme with the most failures and its share of didntWorkCount.
// Ties go to the first theme name in lexical order. No failure yields ("", 0).
func concentration(themes map[string]ThemeSignal, didntWork int) (string, float64) {
	if didntWork <= 0 {
		return "", 0
	}
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)

	var dominant string
	var maxFailures int
	for _, name := range names {
		if fc := themes[name].FailureCount; fc > maxFailures {
			dominant, maxFailures = name, fc
		}
	}
	return dominant, core.Ratio(maxFailures, didntWork)
}

func (e Evaluation) ShouldFlag() bool {
	return e.Eligible && e.Severe && e.Concentrated
}

func (e Evaluation) eligibilityCriterion(th Thresholds) string {
	op := ">="
	if !e.Eligible {
		op = "<"
	}
	return fmt.Sprintf("totalReflections=%d%s%d", e.TotalReflections, op, th.MinReflections)
}

func (e Evaluation) severityCriterion(th Thresholds) string {
	op := ">="
	if !e.Severe {
		op = "<"
	}
	return fmt.Sprintf("failureRate=%.4f%s%.2f", e.FailureRate, op, th.FailureRate)
}

func (e Evaluation) concentrationCriterion(th Thresholds) string {
	op := ">="
	if !e.Concentrated {
		op = "<"
	}
	name := e.DominantTheme
	if name == "" {
		name = "none"
	}
	return fmt.Sprintf("theme %s concentration=%.4f%s%.2f", name, e.Concentration, op, th.ConcentrationThreshold)
}

// Snapshot cites every criterion with its current value.
func (e Evaluation) Snapshot(th Thresholds) string {
	return strings.Join([]string{e.eligibilityCriterion(th), e.severityCriterion(th), e.concentrationCriterion(th)}, "; ")
}

// FailedCriteria cites every criterion that does not hold.
func (e Evaluation) FailedCriteria(th Thresholds) string {
	var failed []string
	if !e.Eligible {
		failed = append(failed, e.eligibilityCriterion(th))
	}
	if !e.Severe {
		failed = append(failed, e.severityCriterion(th))
	}
	if !e.Concentrated {
		failed = append(failed, e.concentrationCriterion(th))
	}
	return strings.Join(failed, "; ")
}

// Transition computes the next flag state.
//   - unflagged -> flagged: flagReason set, flaggedAt set if never set, flagHistory+1, resolution cleared.
//   - flagged -> unflagged: resolvedAt and resolvedReason set, flaggedAt kept.
//   - still flagged: flagReason refreshed.
//   - still unflagged: unchanged.
func Transition(state FlagState, e Evaluation, th Thresholds, now time.Time) (FlagState, Change) {
	flag := e.ShouldFlag()
	switch {
	case flag && !state.IsFlagged:
		state.IsFlagged = true
		state.FlagReason = e.Snapshot(th)
		if !state.FlaggedAt.Valid {
			state.FlaggedAt = null.TimeFrom(now)
		}
		state.FlagHistory++
		state.ResolvedAt = null.Time{}
		state.ResolvedReason = ""
		return state, ChangeFlagged

	case !flag && state.IsFlagged:
		state.IsFlagged = false
		state.ResolvedAt = null.TimeFrom(now)
		state.ResolvedReason = e.FailedCriteria(th)
		return state, ChangeResolved

	case flag && state.IsFlagged:
		if reason := e.Snapshot(th); reason != state.FlagReason {
			state.FlagReason = reason
			return state, ChangeReason
		}
	}
	return state, ChangeNone
}

type (
	// FlagResult reports a flagging run. NewlyFlagged lists the signals flagged by this run.
	FlagResult struct {
		Empty        bool     `json:"empty"`
		Evaluated    int      `json:"evaluated"`
		Flagged      int      `json:"flagged"`
		Resolved     int      `json:"resolved"`
		Refreshed    int      `json:"refreshed"`
		NewlyFlagged []Signal `json:"newlyFlagged"`
	}

	// Notifier is told about newly flagged signals.
	Notifier interface {
		NotifyFlagged(ctx context.Context, signals []Signal) error
	}

	// Flagger applies the flag state machine to every signal.
	Flagger struct {
		signals    Repository
		thresholds Thresholds
		notifier   Notifier
		logger     core.Logger
		now        func() time.Time
	}
)

// NewFlagger returns a Flagger. notifier may be nil.
func NewFlagger(signals Repository, th Thresholds, notifier Notifier, logger core.Logger, now func() time.Time) *Flagger {
	vala.BeginValidation().Validate(
		vala.IsNotNil(signals, "signals"),
		vala.IsNotNil(logger, "logger"),
		vala.GreaterThan(th.MinReflections, 0, "th.MinReflections"),
	).CheckAndPanic()

	if now == nil {
		now = time.Now
	}
	return &Flagger{signals: signals, thresholds: th, notifier: notifier, logger: logger, now: now}
}

func (f *Flagger) Thresholds() Thresholds { return f.thresholds }

// Run evaluates every signal independently and writes the flag fields that changed.
func (f *Flagger) Run(ctx context.Context) (FlagResult, error) {
	sigs, err := f.signals.QuerySignals(ctx, nil, nil)
	if err != nil {
		return FlagResult{}, errors.Wrap(err, "querying signals")
	}
	if len(sigs) == 0 {
		f.logger.Info("flag: no signals to evaluate")
		return FlagResult{Empty: true, NewlyFlagged: []Signal{}}, nil
	}

	res := FlagResult{Evaluated: len(sigs), NewlyFlagged: []Signal{}}
	now := f.now().UTC()
	for _, sig := range sigs {
		if err = ctx.Err(); err != nil {
			return FlagResult{}, err
		}

		next, change := Transition(sig.FlagState, Evaluate(sig, f.thresholds), f.thresholds, now)
		if change == ChangeNone {
			continue
		}
		if err = f.signals.UpdateFlagState(ctx, sig.ID, next); err != nil {
			return FlagResult{}, errors.Wrapf(err, "updating flag state of %s", sig.Key)
		}

		switch change {
		case ChangeFlagged:
			res.Flagged++
			sig.FlagState = next
			res.NewlyFlagged = append(res.NewlyFlagged, sig)
		case ChangeResolved:
			res.Resolved++
		case ChangeReason:
			res.Refreshed++
		}
	}

	if f.notifier != nil && len(res.NewlyFlagged) > 0 {
		if err = f.notifier.NotifyFlagged(ctx, res.NewlyFlagged); err != nil {
			f.logger.Error(fmt.Sprintf("flag: notifying reviewers: %v", err), err)
		}
	}

	f.logger.Info(fmt.Sprintf("flag: %d evaluated, %d flagged, %d resolved", res.Evaluated, res.Flagged, res.Resolved))
	return res, nil
}
