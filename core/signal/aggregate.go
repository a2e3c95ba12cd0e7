package signal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/reflection"
)

type (
	// AggregateResult reports an aggregation run. Empty is set when there was no reflection to process.
	AggregateResult struct {
		Empty       bool `json:"empty"`
		Reflections int  `json:"reflections"`
		Signals     int  `json:"signals"`
	}

	// Aggregator recomputes the Stats of every signal from the full set of reflections.
	Aggregator struct {
		reflections reflection.Repository
		signals     Repository
		logger      core.Logger
		now         func() time.Time
	}

	group[T any] struct {
		key   Key
		items []T
	}
)

func NewAggregator(reflections reflection.Repository, signals Repository, logger core.Logger, now func() time.Time) *Aggregator {
	vala.BeginValidation().Validate(
		vala.IsNotNil(reflections, "reflections"),
		vala.IsNotNil(signals, "signals"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if now == nil {
		now = time.Now
	}
	return &Aggregator{reflections: reflections, signals: signals, logger: logger, now: now}
}

// Run groups all reflections by Key and upserts their Stats. It is idempotent.
func (a *Aggregator) Run(ctx context.Context) (AggregateResult, error) {
	refls, err := a.reflections.QueryReflections(ctx, nil)
	if err != nil {
		return AggregateResult{}, errors.Wrap(err, "querying reflections")
	}
	if len(refls) == 0 {
		a.logger.Info("aggregate: no reflections to process")
		return AggregateResult{Empty: true}, nil
	}

	now := a.now().UTC()
	groups := groupReflections(refls)
	for _, g := range groups {
		if err = ctx.Err(); err != nil {
			return AggregateResult{}, err
		}
		if err = a.signals.UpsertStats(ctx, g.key, ComputeStats(g.items), now); err != nil {
			return AggregateResult{}, errors.Wrapf(err, "upserting stats of %s", g.key)
		}
	}

	a.logger.Info(fmt.Sprintf("aggregate: %d reflections into %d signals", len(refls), len(groups)))
	return AggregateResult{Reflections: len(refls), Signals: len(groups)}, nil
}

// ComputeStats computes the Stats of one group of reflections.
func ComputeStats(refls []reflection.Reflection) Stats {
	stats := Stats{TotalReflections: len(refls)}
	reasons := make(map[string]int)
	for _, r := range refls {
		switch r.Outcome {
		case reflection.OutcomeWorked:
			stats.WorkedCount++
		case reflection.OutcomePartiallyWorked:
			stats.PartiallyWorkedCount++
		case reflection.OutcomeDidntWork:
			stats.DidntWorkCount++
		}
		if r.Reason != "" && r.Reason != reflection.ReasonNone {
			reasons[r.Reason]++
		}
	}

	stats.SuccessCount = stats.WorkedCount
	stats.SuccessRate = core.Ratio(stats.WorkedCount, stats.TotalReflections)
	stats.FailureRate = core.Ratio(stats.DidntWorkCount, stats.TotalReflections)
	stats.PartiallyWorkedRate = core.Ratio(stats.PartiallyWorkedCount, stats.TotalReflections)
	stats.ConfidenceScore = Confidence(stats.TotalReflections)
	stats.CommonReasons = sortReasons(reasons)
	return stats
}

// sortReasons orders the histogram by count desc, then reason asc.
func sortReasons(counts map[string]int) []ReasonCount {
	reasons := make([]ReasonCount, 0, len(counts))
	for r, c := range counts {
		reasons = append(reasons, ReasonCount{Reason: r, Count: c})
	}
	sort.Slice(reasons, func(i, j int) bool {
		if reasons[i].Count != reasons[j].Count {
			return reasons[i].Count > reasons[j].Count
		}
		return reasons[i].Reason < reasons[j].Reason
	})
	return reasons
}

// groupReflections groups reflections by Key, keeping the order in which keys are first seen.
func groupReflections(refls []reflection.Reflection) []*group[reflection.Reflection] {
	return groupBy(refls, func(r reflection.Reflection) Key {
		return Key{ContextKey: r.ContextKey, CardVersion: r.CardVersion}
	})
}

func groupReviews(revs []reflection.Review) []*group[reflection.Review] {
	return groupBy(revs, func(r reflection.Review) Key {
		return Key{ContextKey: r.ContextKey, CardVersion: r.CardVersion}
	})
}

func groupBy[T any](items []T, keyOf func(T) Key) []*group[T] {
	index := make(map[Key]*group[T])
	groups := make([]*group[T], 0)
	for _, it := range items {
		k := keyOf(it)
		g, ok := index[k]
		if !ok {
			g = &group[T]{key: k}
			index[k] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, it)
	}
	return groups
}
