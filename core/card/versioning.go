package card

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/reflection"
	"github.com/trezcool/prepcards/core/signal"
)

// Versioning preconditions
var (
	ErrCardNotFound       = ErrNotFound
	ErrCardArchived       = errors.New("card is archived")
	ErrSignalNotFound     = errors.New("card has no signal")
	ErrSignalNotFlagged   = errors.New("card signal is not flagged")
	ErrNoQualifyingReview = errors.New("no review asks for a modification or an alternate")

	preconditionCodes = map[error]string{
		ErrCardNotFound:       "card_not_found",
		ErrCardArchived:       "card_archived",
		ErrSignalNotFound:     "signal_not_found",
		ErrSignalNotFlagged:   "signal_not_flagged",
		ErrNoQualifyingReview: "no_qualifying_review",
	}
)

// PreconditionError reports a versioning precondition that does not hold.
// The caller must change state before retrying.
type PreconditionError struct {
	Err error
}

func (e *PreconditionError) Error() string {
	return "cannot create card version: " + e.Err.Error()
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Code is a stable identifier of the failed precondition.
func (e *PreconditionError) Code() string {
	return preconditionCodes[e.Err]
}

func precondition(err error) error {
	return &PreconditionError{Err: err}
}

type (
	VersionResult struct {
		Archived Card          `json:"archived"`
		Card     Card          `json:"card"`
		Signal   signal.Signal `json:"signal"`
	}

	// Versioner archives a flagged card and creates its next version.
	Versioner struct {
		db       core.DB
		cards    Repository
		signals  signal.Repository
		reviews  reflection.ReviewRepository
		validate *validator.Validate
		logger   core.Logger
		now      func() time.Time
	}
)

func NewVersioner(
	db core.DB,
	cards Repository,
	signals signal.Repository,
	reviews reflection.ReviewRepository,
	validate *validator.Validate,
	logger core.Logger,
	now func() time.Time,
) *Versioner {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(cards, "cards"),
		vala.IsNotNil(signals, "signals"),
		vala.IsNotNil(reviews, "reviews"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if now == nil {
		now = time.Now
	}
	return &Versioner{
		db:       db,
		cards:    cards,
		signals:  signals,
		reviews:  reviews,
		validate: validate,
		logger:   logger,
		now:      now,
	}
}

// Run creates version n+1 of card cardID, archives version n and starts a zeroed signal for n+1.
// Everything happens in one transaction. Failed preconditions are returned as *PreconditionError.
func (v *Versioner) Run(ctx context.Context, cardID string, rev Revision) (VersionResult, error) {
	rev.Clean()
	if err := rev.Validate(v.validate); err != nil {
		return VersionResult{}, err
	}

	var res VersionResult
	err := core.WithTransaction(ctx, v.db, func(tx core.DBExecutor) error {
		old, err := v.checkPreconditions(ctx, cardID, tx)
		if err != nil {
			return err
		}
		now := v.now().UTC()

		// archive first: a context has at most one active card
		if err = v.cards.ArchiveCard(ctx, old.ID, now, tx); err != nil {
			if errors.Cause(err) == ErrNotFound {
				// archived by a concurrent run since the checks
				return precondition(ErrCardArchived)
			}
			return errors.Wrap(err, "archiving card")
		}
		res.Archived = old
		res.Archived.IsActive = false
		res.Archived.IsArchived = true
		res.Archived.ArchivedAt = null.TimeFrom(now)

		next := rev.apply(old)
		next.ID = uuid.New().String()
		next.Version = old.Version + 1
		next.SuccessRate = 0
		next.Confidence = 0
		next.IsActive = true
		next.IsArchived = false
		next.ParentCardID = null.StringFrom(old.ID)
		next.SourceCardID = null.StringFrom(old.ID)
		if old.SourceCardID.Valid {
			next.SourceCardID = old.SourceCardID
		}
		next.CreatedAt = now
		next.ArchivedAt = null.Time{}
		if res.Card, err = v.cards.CreateCard(ctx, next, tx); err != nil {
			return errors.Wrap(err, "creating card")
		}

		sig := signal.NewSignal(signal.Key{ContextKey: next.ContextKey, CardVersion: next.Version}, now)
		sig.ContentCardID = null.StringFrom(res.Card.ID)
		if res.Signal, err = v.signals.CreateSignal(ctx, sig, tx); err != nil {
			return errors.Wrap(err, "creating signal")
		}
		return nil
	})
	if err != nil {
		return VersionResult{}, err
	}

	v.logger.Info("card " + res.Archived.ID + " superseded by " + res.Card.ID)
	return res, nil
}

func (v *Versioner) checkPreconditions(ctx context.Context, cardID string, tx core.DBExecutor) (Card, error) {
	old, err := v.cards.GetCardByID(ctx, cardID, tx)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Card{}, precondition(ErrCardNotFound)
		}
		return Card{}, errors.Wrap(err, "getting card")
	}
	if old.IsArchived {
		return Card{}, precondition(ErrCardArchived)
	}

	sig, err := v.signals.GetSignalByKey(ctx, signal.Key{ContextKey: old.ContextKey, CardVersion: old.Version}, tx)
	if err != nil {
		if errors.Cause(err) == signal.ErrNotFound {
			return Card{}, precondition(ErrSignalNotFound)
		}
		return Card{}, errors.Wrap(err, "getting signal")
	}
	if !sig.IsFlagged {
		return Card{}, precondition(ErrSignalNotFlagged)
	}

	ok, err := v.reviews.HasQualifyingReview(ctx, old.ContextKey, old.Version, tx)
	if err != nil {
		return Card{}, errors.Wrap(err, "checking reviews")
	}
	if !ok {
		return Card{}, precondition(ErrNoQualifyingReview)
	}
	return old, nil
}
