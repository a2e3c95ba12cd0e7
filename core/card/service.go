package card

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
)

type (
	Service struct {
		repo     Repository
		validate *validator.Validate
		now      func() time.Time
	}

	SeedResult struct {
		Created int `json:"created"`
		Skipped int `json:"skipped"`
	}
)

func NewService(repo Repository, validate *validator.Validate, now func() time.Time) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, validate: validate, now: now}
}

// Create creates the first version of a context's card.
func (svc *Service) Create(ctx context.Context, nc NewCard) (Card, error) {
	nc.Clean()
	if err := nc.Validate(svc.validate); err != nil {
		return Card{}, err
	}

	_, err := svc.repo.GetActiveCard(ctx, nc.ContextKey)
	switch errors.Cause(err) {
	case nil:
		return Card{}, core.NewValidationError(ErrCardExists)
	case ErrNotFound:
	default:
		return Card{}, errors.Wrap(err, "getting active card")
	}

	return svc.repo.CreateCard(ctx, Card{
		ContextKey:   nc.ContextKey,
		Version:      1,
		Title:        nc.Title,
		Explanation:  nc.Explanation,
		WarningSigns: nc.WarningSigns,
		Remediation:  nc.Remediation,
		IsActive:     true,
		CreatedAt:    svc.now().UTC(),
	})
}

// Seed creates the cards whose context has no active card yet.
func (svc *Service) Seed(ctx context.Context, cards []NewCard) (SeedResult, error) {
	var res SeedResult
	for i, nc := range cards {
		_, err := svc.Create(ctx, nc)
		if err == nil {
			res.Created++
			continue
		}
		if vErr, ok := errors.Cause(err).(*core.ValidationError); ok && vErr.Err == ErrCardExists {
			res.Skipped++
			continue
		}
		return res, errors.Wrapf(err, "seeding card #%d", i+1)
	}
	return res, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Card, error) {
	return svc.repo.GetCardByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Card, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryCards(ctx, filter, ordering)
}

// ActiveVersion returns the version of the active card of key, 1 if there is none.
func (svc *Service) ActiveVersion(ctx context.Context, key core.ContextKey) (int, error) {
	c, err := svc.repo.GetActiveCard(ctx, key)
	switch errors.Cause(err) {
	case nil:
		return c.Version, nil
	case ErrNotFound:
		return 1, nil
	default:
		return 0, errors.Wrap(err, "getting active card")
	}
}
