package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/reflection"
	"github.com/trezcool/prepcards/core/textstats"
	"github.com/trezcool/prepcards/core/theme"
)

type (
	// ThemeResult reports a theme extraction run.
	// Missing counts the groups whose signal did not exist; they are skipped.
	ThemeResult struct {
		Empty       bool  `json:"empty"`
		Documents   int   `json:"documents"`
		Updated     int   `json:"updated"`
		Missing     int   `json:"missing"`
		MissingKeys []Key `json:"missingKeys,omitempty"`
	}

	// ThemeExtractor writes the theme fields of signals, from reflections and from CRP reviews.
	ThemeExtractor struct {
		reflections reflection.Repository
		reviews     reflection.ReviewRepository
		signals     Repository
		reflThemes  *theme.Detector
		crpThemes   *theme.Detector
		logger      core.Logger
		now         func() time.Time
	}
)

func NewThemeExtractor(
	reflections reflection.Repository,
	reviews reflection.ReviewRepository,
	signals Repository,
	reflDict, crpDict *theme.Dictionary,
	logger core.Logger,
	now func() time.Time,
) *ThemeExtractor {
	vala.BeginValidation().Validate(
		vala.IsNotNil(reflections, "reflections"),
		vala.IsNotNil(reviews, "reviews"),
		vala.IsNotNil(signals, "signals"),
		vala.IsNotNil(reflDict, "reflDict"),
		vala.IsNotNil(crpDict, "crpDict"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if now == nil {
		now = time.Now
	}
	return &ThemeExtractor{
		reflections: reflections,
		reviews:     reviews,
		signals:     signals,
		reflThemes:  theme.NewDetector(reflDict),
		crpThemes:   theme.NewDetector(crpDict),
		logger:      logger,
		now:         now,
	}
}

// ReflectionThemes computes, per Key, the reflection themes of its reflections.
// A reflection counts for a theme if its reason maps to it or its notes detect it.
// The TF-IDF corpus is made of the notes of every reflection.
func ReflectionThemes(refls []reflection.Reflection, detector *theme.Detector, index *textstats.Index) map[Key]map[string]ThemeSignal {
	result := make(map[Key]map[string]ThemeSignal)
	for _, g := range groupReflections(refls) {
		themes := make(map[string]ThemeSignal)
		for _, r := range g.items {
			hits := make(map[string]bool)
			if th, ok := detector.DirectTheme(r.Reason); ok {
				hits[th] = true
			}
			var textScores map[string]float64
			if r.Notes != "" {
				scores := index.Score(r.Notes)
				for th := range detector.Detect(scores) {
					hits[th] = true
				}
				textScores = detector.Score(scores)
			}

			for th := range hits {
				ts := themes[th]
				ts.Count++
				if r.Outcome == reflection.OutcomeDidntWork {
					ts.FailureCount++
				}
				ts.Score += textScores[th]
				themes[th] = ts
			}
		}
		for th, ts := range themes {
			ts.Score = core.Round(ts.Score, 4)
			themes[th] = ts
		}
		result[g.key] = themes
	}
	return result
}

// CRPThemes counts, per Key, the reviews in which each CRP theme is detected.
// The TF-IDF corpus is made of the text of every review.
func CRPThemes(revs []reflection.Review, detector *theme.Detector, index *textstats.Index) map[Key]map[string]int {
	result := make(map[Key]map[string]int)
	for _, g := range groupReviews(revs) {
		counts := make(map[string]int)
		for _, r := range g.items {
			for th := range detector.Detect(index.Score(r.Text())) {
				counts[th]++
			}
		}
		result[g.key] = counts
	}
	return result
}

// RunReflectionThemes writes the themeSignals of every signal having reflections.
func (x *ThemeExtractor) RunReflectionThemes(ctx context.Context) (ThemeResult, error) {
	refls, err := x.reflections.QueryReflections(ctx, nil)
	if err != nil {
		return ThemeResult{}, errors.Wrap(err, "querying reflections")
	}
	if len(refls) == 0 {
		x.logger.Info("themes: no reflections to process")
		return ThemeResult{Empty: true}, nil
	}

	docs := make([]string, 0, len(refls))
	for _, r := range refls {
		docs = append(docs, r.Notes)
	}
	themes := ReflectionThemes(refls, x.reflThemes, textstats.NewIndex(docs))

	res := ThemeResult{Documents: len(refls)}
	now := x.now().UTC()
	for _, g := range groupReflections(refls) {
		err = x.signals.UpdateThemeSignals(ctx, g.key, themes[g.key], now)
		if err = x.trackUpdate(&res, g.key, err); err != nil {
			return ThemeResult{}, errors.Wrapf(err, "updating theme signals of %s", g.key)
		}
	}

	x.logger.Info(fmt.Sprintf("themes: %d signals updated, %d missing", res.Updated, res.Missing))
	return res, nil
}

// RunCRPThemes writes the crpThemeSignals of every signal having reviews.
func (x *ThemeExtractor) RunCRPThemes(ctx context.Context) (ThemeResult, error) {
	revs, err := x.reviews.QueryReviews(ctx, nil)
	if err != nil {
		return ThemeResult{}, errors.Wrap(err, "querying reviews")
	}
	if len(revs) == 0 {
		x.logger.Info("crp-themes: no reviews to process")
		return ThemeResult{Empty: true}, nil
	}

	docs := make([]string, 0, len(revs))
	for _, r := range revs {
		docs = append(docs, r.Text())
	}
	themes := CRPThemes(revs, x.crpThemes, textstats.NewIndex(docs))

	res := ThemeResult{Documents: len(revs)}
	now := x.now().UTC()
	for _, g := range groupReviews(revs) {
		err = x.signals.UpdateCRPThemeSignals(ctx, g.key, themes[g.key], now)
		if err = x.trackUpdate(&res, g.key, err); err != nil {
			return ThemeResult{}, errors.Wrapf(err, "updating crp theme signals of %s", g.key)
		}
	}

	x.logger.Info(fmt.Sprintf("crp-themes: %d signals updated, %d missing", res.Updated, res.Missing))
	return res, nil
}

// trackUpdate counts an update outcome. A missing signal is a warning, not an error.
func (x *ThemeExtractor) trackUpdate(res *ThemeResult, key Key, err error) error {
	switch errors.Cause(err) {
	case nil:
		res.Updated++
		return nil
	case ErrNotFound:
		res.Missing++
		res.MissingKeys = append(res.MissingKeys, key)
		x.logger.Warn(fmt.Sprintf("themes: no signal for %s, skipping", key))
		return nil
	default:
		return err
	}
}
