package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prepcards/core/reflection"
	"github.com/trezcool/prepcards/core/textstats"
	"github.com/trezcool/prepcards/core/theme"
)

func newReflectionDict(t *testing.T) *theme.Dictionary {
	t.Helper()
	dict, err := theme.NewDictionary("reflection", 1, []theme.Theme{
		{Name: "timing", Keywords: []string{"time", "rushed"}, DirectReasons: []string{reflection.ReasonTimingIssue}},
		{Name: "confusion", Keywords: []string{"confus", "lost"}, DirectReasons: []string{reflection.ReasonStudentConfusion}},
		{Name: "resources", Keywords: []string{"projector"}},
	})
	require.NoError(t, err)
	return dict
}

func newCRPDict(t *testing.T) *theme.Dictionary {
	t.Helper()
	dict, err := theme.NewDictionary("crp", 1, []theme.Theme{
		{Name: "clarity", Keywords: []string{"unclear", "wording"}},
		{Name: "cultural", Keywords: []string{"local", "examples"}},
		{Name: "assessment", Keywords: []string{"quiz"}},
	})
	require.NoError(t, err)
	return dict
}

func TestReflectionThemes(t *testing.T) {
	refls := []reflection.Reflection{
		{ContextKey: keyA, CardVersion: 1, Outcome: reflection.OutcomeDidntWork, Reason: reflection.ReasonTimingIssue},
		{ContextKey: keyA, CardVersion: 1, Outcome: reflection.OutcomeWorked, Reason: reflection.ReasonNone, Notes: "students were lost and confused"},
		{ContextKey: keyA, CardVersion: 1, Outcome: reflection.OutcomeDidntWork, Reason: reflection.ReasonNone, Notes: "the projector broke"},
		{ContextKey: keyB, CardVersion: 1, Outcome: reflection.OutcomeWorked, Reason: reflection.ReasonNone},
	}
	docs := make([]string, 0, len(refls))
	for _, r := range refls {
		docs = append(docs, r.Notes)
	}

	themes := ReflectionThemes(refls, theme.NewDetector(newReflectionDict(t)), textstats.NewIndex(docs))

	assert.Equal(t, map[Key]map[string]ThemeSignal{
		{ContextKey: keyA, CardVersion: 1}: {
			"timing":    {Count: 1, FailureCount: 1, Score: 0},
			"confusion": {Count: 1, FailureCount: 0, Score: 0.5545},
			"resources": {Count: 1, FailureCount: 1, Score: 0.4621},
		},
		{ContextKey: keyB, CardVersion: 1}: {},
	}, themes)
}

func TestCRPThemes(t *testing.T) {
	revs := []reflection.Review{
		{ContextKey: keyA, CardVersion: 1, Action: reflection.ActionNeedsModification, Reasons: []string{"wording is unclear"}, Notes: "add local examples"},
		{ContextKey: keyA, CardVersion: 1, Action: reflection.ActionAddAlternate, Notes: "quiz at the end"},
		{ContextKey: keyB, CardVersion: 1, Action: reflection.ActionNoChange, Notes: "the wording is confusing"},
	}
	docs := make([]string, 0, len(revs))
	for _, r := range revs {
		docs = append(docs, r.Text())
	}

	themes := CRPThemes(revs, theme.NewDetector(newCRPDict(t)), textstats.NewIndex(docs))

	assert.Equal(t, map[Key]map[string]int{
		{ContextKey: keyA, CardVersion: 1}: {"clarity": 1, "cultural": 1, "assessment": 1},
		{ContextKey: keyB, CardVersion: 1}: {"clarity": 1},
	}, themes)
}

func TestThemeExtractor_RunReflectionThemes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.addReflections(keyA, 1, reflection.OutcomeDidntWork, reflection.ReasonTimingIssue, "", 2)
	store.addReflections(keyA, 1, reflection.OutcomeWorked, reflection.ReasonNone, "", 4)
	store.addReflections(keyB, 1, reflection.OutcomeWorked, reflection.ReasonNone, "we rushed", 1)
	logger := new(logMock)
	clk := newClock()

	// only keyA has been aggregated
	keyAv1 := Key{ContextKey: keyA, CardVersion: 1}
	stats := Stats{TotalReflections: 6, DidntWorkCount: 2, FailureRate: 0.3333, CommonReasons: []ReasonCount{}}
	require.NoError(t, store.UpsertStats(ctx, keyAv1, stats, clk.now()))

	x := NewThemeExtractor(store, store, store, newReflectionDict(t), newCRPDict(t), logger, clk.now)
	res, err := x.RunReflectionThemes(ctx)
	require.NoError(t, err)

	assert.Equal(t, 7, res.Documents)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Missing)
	assert.Equal(t, []Key{{ContextKey: keyB, CardVersion: 1}}, res.MissingKeys)
	assert.Len(t, logger.warns, 1)

	sig, err := store.GetSignalByKey(ctx, keyAv1)
	require.NoError(t, err)
	assert.Equal(t, map[string]ThemeSignal{"timing": {Count: 2, FailureCount: 2}}, sig.ThemeSignals)
	assert.Equal(t, stats, sig.Stats) // counts untouched
}

func TestThemeExtractor_RunCRPThemes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clk := newClock()
	x := NewThemeExtractor(store, store, store, newReflectionDict(t), newCRPDict(t), new(logMock), clk.now)

	res, err := x.RunCRPThemes(ctx)
	require.NoError(t, err)
	assert.True(t, res.Empty)

	keyAv1 := Key{ContextKey: keyA, CardVersion: 1}
	require.NoError(t, store.UpsertStats(ctx, keyAv1, Stats{TotalReflections: 3}, clk.now()))
	_, err = store.CreateReview(ctx, reflection.Review{ContextKey: keyA, CardVersion: 1, Action: reflection.ActionNeedsModification, Notes: "unclear wording"})
	require.NoError(t, err)
	_, err = store.CreateReview(ctx, reflection.Review{ContextKey: keyA, CardVersion: 1, Action: reflection.ActionNoChange, Notes: "fine as is"})
	require.NoError(t, err)

	res, err = x.RunCRPThemes(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeResult{Documents: 2, Updated: 1}, res)

	sig, err := store.GetSignalByKey(ctx, keyAv1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"clarity": 1}, sig.CRPThemeSignals)
	assert.Equal(t, 3, sig.TotalReflections)
}
