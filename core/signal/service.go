package signal

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &Service{repo: repo}
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Signal, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QuerySignals(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Signal, error) {
	return svc.repo.GetSignalByID(ctx, id)
}

type (
	PipelineResult struct {
		Aggregate AggregateResult `json:"aggregate"`
		Themes    ThemeResult     `json:"themes"`
		CRPThemes ThemeResult     `json:"crpThemes"`
		Flag      FlagResult      `json:"flag"`
	}

	// Pipeline runs every signal job in order: aggregate, themes, crp-themes, flag.
	Pipeline struct {
		Aggregator *Aggregator
		Themes     *ThemeExtractor
		Flagger    *Flagger
	}
)

func (p Pipeline) Run(ctx context.Context) (PipelineResult, error) {
	var (
		res PipelineResult
		err error
	)
	if res.Aggregate, err = p.Aggregator.Run(ctx); err != nil {
		return res, errors.Wrap(err, "aggregating")
	}
	if res.Themes, err = p.Themes.RunReflectionThemes(ctx); err != nil {
		return res, errors.Wrap(err, "extracting reflection themes")
	}
	if res.CRPThemes, err = p.Themes.RunCRPThemes(ctx); err != nil {
		return res, errors.Wrap(err, "extracting crp themes")
	}
	if res.Flag, err = p.Flagger.Run(ctx); err != nil {
		return res, errors.Wrap(err, "flagging")
	}
	return res, nil
}
