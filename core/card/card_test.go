package card_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/card"
	"github.com/trezcool/prepcards/core/reflection"
	"github.com/trezcool/prepcards/core/signal"
	sqlxrepos "github.com/trezcool/prepcards/storage/database/sqlx"
	testutil "github.com/trezcool/prepcards/tests"
)

var (
	ctx     = context.Background()
	fracKey = testutil.ContextKey("math", "4", "fractions", "number_line")
	now     = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
)

type nopLogger struct{}

func (*nopLogger) Debug(string, ...interface{}) {}
func (*nopLogger) Info(string, ...interface{})  {}
func (*nopLogger) Warn(string, ...interface{})  {}
func (*nopLogger) Error(string, ...interface{}) {}
func (*nopLogger) Fatal(string, ...interface{}) {}

type env struct {
	db        *sqlx.DB
	cards     card.Repository
	signals   signal.Repository
	reviews   reflection.ReviewRepository
	svc       *card.Service
	versioner *card.Versioner
}

func setup(t *testing.T) env {
	t.Helper()
	db := testutil.PrepareDB(t)
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	clock := func() time.Time { return now }

	e := env{
		db:      db,
		cards:   sqlxrepos.NewCardRepository(db),
		signals: sqlxrepos.NewSignalRepository(db),
		reviews: sqlxrepos.NewReviewRepository(db),
	}
	e.svc = card.NewService(e.cards, validate, clock)
	e.versioner = card.NewVersioner(db, e.cards, e.signals, e.reviews, validate, &nopLogger{}, clock)
	return e
}

func newCard(key core.ContextKey) card.NewCard {
	return card.NewCard{
		ContextKey:   key,
		Title:        " Fractions on a number line ",
		Explanation:  "Place unit fractions first.",
		WarningSigns: []string{"counting tick marks"},
		Remediation:  []string{"fold paper strips", " measure with rulers "},
	}
}
