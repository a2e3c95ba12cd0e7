package reflection

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
)

type (
	Repository interface {
		CreateReflection(ctx context.Context, refl Reflection, exec ...core.DBExecutor) (Reflection, error)
		// QueryReflections returns the reflections matching filter (all if nil), ordered by createdAt then id.
		QueryReflections(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Reflection, error)
	}

	ReviewRepository interface {
		CreateReview(ctx context.Context, rev Review, exec ...core.DBExecutor) (Review, error)
		// QueryReviews returns the reviews matching filter (all if nil), ordered by createdAt then id.
		QueryReviews(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Review, error)
		// HasQualifyingReview reports whether card version cardVersion of key has a review with one of the QualifyingActions.
		HasQualifyingReview(ctx context.Context, key core.ContextKey, cardVersion int, exec ...core.DBExecutor) (bool, error)
	}

	// CardVersioner returns the version of the active card of a context, 1 if there is none.
	CardVersioner interface {
		ActiveVersion(ctx context.Context, key core.ContextKey) (int, error)
	}

	Service struct {
		repo       Repository
		reviewRepo ReviewRepository
		cards      CardVersioner
		validate   *validator.Validate
		now        func() time.Time
	}
)

func NewService(
	repo Repository,
	reviewRepo ReviewRepository,
	cards CardVersioner,
	validate *validator.Validate,
	now func() time.Time,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(reviewRepo, "reviewRepo"),
		vala.IsNotNil(cards, "cards"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:       repo,
		reviewRepo: reviewRepo,
		cards:      cards,
		validate:   validate,
		now:        now,
	}
}

// Submit records a reflection against the active card version of its context.
func (svc *Service) Submit(ctx context.Context, nr NewReflection) (Reflection, error) {
	nr.Clean()
	if err := nr.Validate(svc.validate); err != nil {
		return Reflection{}, err
	}

	version, err := svc.cards.ActiveVersion(ctx, nr.ContextKey)
	if err != nil {
		return Reflection{}, errors.Wrap(err, "getting active card version")
	}
	return svc.repo.CreateReflection(ctx, Reflection{
		ContextKey:  nr.ContextKey,
		CardVersion: version,
		Outcome:     nr.Outcome,
		Reason:      nr.Reason,
		Notes:       nr.Notes,
		CreatedAt:   svc.now().UTC(),
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Reflection, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryReflections(ctx, filter)
}

// SubmitReview records a CRP review against the active card version of its context.
func (svc *Service) SubmitReview(ctx context.Context, nr NewReview) (Review, error) {
	nr.Clean()
	if err := nr.Validate(svc.validate); err != nil {
		return Review{}, err
	}

	version, err := svc.cards.ActiveVersion(ctx, nr.ContextKey)
	if err != nil {
		return Review{}, errors.Wrap(err, "getting active card version")
	}
	return svc.reviewRepo.CreateReview(ctx, Review{
		ContextKey:  nr.ContextKey,
		CardVersion: version,
		Action:      nr.Action,
		Reasons:     nr.Reasons,
		Notes:       nr.Notes,
		CreatedAt:   svc.now().UTC(),
	})
}

func (svc *Service) QueryReviews(ctx context.Context, filter *QueryFilter) ([]Review, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.reviewRepo.QueryReviews(ctx, filter)
}
