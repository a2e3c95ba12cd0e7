// Package jobs wires the signal jobs to their stores and runs them one at a time.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/signal"
	"github.com/trezcool/prepcards/core/theme"
	appfs "github.com/trezcool/prepcards/fs"
	"github.com/trezcool/prepcards/services/metrics"
	sqlxrepos "github.com/trezcool/prepcards/storage/database/sqlx"
)

// Job names
const (
	Aggregate = "aggregate"
	Themes    = "themes"
	CRPThemes = "crp-themes"
	Flag      = "flag"
	Pipeline  = "pipeline"
)

var (
	Names = []string{Aggregate, Themes, CRPThemes, Flag, Pipeline}

	ErrUnknownJob = errors.New("unknown job")
)

// LoadDictionaries loads the reflection and CRP theme dictionaries, honouring the configured overrides.
func LoadDictionaries(conf *core.Config) (reflDict, crpDict *theme.Dictionary, err error) {
	if reflDict, err = theme.LoadDictionary(appfs.FS, appfs.ReflectionDictionary, conf.Themes.ReflectionDictionary); err != nil {
		return nil, nil, errors.Wrap(err, "loading reflection dictionary")
	}
	if crpDict, err = theme.LoadDictionary(appfs.FS, appfs.CRPDictionary, conf.Themes.CRPDictionary); err != nil {
		return nil, nil, errors.Wrap(err, "loading crp dictionary")
	}
	return reflDict, crpDict, nil
}

// NewPipeline builds the signal jobs over the sqlx repositories of db.
// Newly flagged signals are emailed to conf.ReviewerEmails when mailSvc is set.
func NewPipeline(
	conf *core.Config,
	db core.DB,
	reflDict, crpDict *theme.Dictionary,
	mailSvc core.EmailService,
	logger core.Logger,
	now func() time.Time,
) signal.Pipeline {
	reflRepo := sqlxrepos.NewReflectionRepository(db)
	reviewRepo := sqlxrepos.NewReviewRepository(db)
	sigRepo := sqlxrepos.NewSignalRepository(db)

	var notifier signal.Notifier
	if mailSvc != nil && len(conf.ReviewerEmails) > 0 {
		notifier = signal.NewEmailNotifier(mailSvc, conf.ReviewerEmails)
	}

	return signal.Pipeline{
		Aggregator: signal.NewAggregator(reflRepo, sigRepo, logger, now),
		Themes:     signal.NewThemeExtractor(reflRepo, reviewRepo, sigRepo, reflDict, crpDict, logger, now),
		Flagger:    signal.NewFlagger(sigRepo, signal.ThresholdsFromConfig(conf.Flagging), notifier, logger, now),
	}
}

// Runner runs the signal jobs by name. Runs are serialized: one job at a time per process.
type Runner struct {
	mu       sync.Mutex
	pipeline signal.Pipeline
	metrics  *metrics.Metrics
	logger   core.Logger
}

// NewRunner returns a Runner. m may be nil.
func NewRunner(pipeline signal.Pipeline, m *metrics.Metrics, logger core.Logger) *Runner {
	vala.BeginValidation().Validate(
		vala.IsNotNil(pipeline.Aggregator, "pipeline.Aggregator"),
		vala.IsNotNil(pipeline.Themes, "pipeline.Themes"),
		vala.IsNotNil(pipeline.Flagger, "pipeline.Flagger"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &Runner{pipeline: pipeline, metrics: m, logger: logger}
}

// Run runs the job name and returns its result.
func (r *Runner) Run(ctx context.Context, name string) (res interface{}, err error) {
	run, ok := r.job(name)
	if !ok {
		return nil, errors.Wrap(ErrUnknownJob, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	res, err = run(ctx)
	if r.metrics != nil {
		r.metrics.ObserveJob(name, start, err)
		if err == nil {
			r.metrics.ObserveResult(name, res)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "running %s", name)
	}
	r.logger.Info(fmt.Sprintf("job %s done in %s", name, time.Since(start)))
	return res, nil
}

func (r *Runner) job(name string) (func(context.Context) (interface{}, error), bool) {
	p := r.pipeline
	switch name {
	case Aggregate:
		return func(ctx context.Context) (interface{}, error) { return p.Aggregator.Run(ctx) }, true
	case Themes:
		return func(ctx context.Context) (interface{}, error) { return p.Themes.RunReflectionThemes(ctx) }, true
	case CRPThemes:
		return func(ctx context.Context) (interface{}, error) { return p.Themes.RunCRPThemes(ctx) }, true
	case Flag:
		return func(ctx context.Context) (interface{}, error) { return p.Flagger.Run(ctx) }, true
	case Pipeline:
		return func(ctx context.Context) (interface{}, error) { return p.Run(ctx) }, true
	}
	return nil, false
}
