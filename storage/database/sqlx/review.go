package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/reflection"
)

var reviewColumns = []string{
	"id", "subject", "grade", "topic_id", "situation", "card_version", "action", "reasons", "notes", "created_at",
}

type reviewRow struct {
	ID string `db:"id"`
	core.ContextKey
	CardVersion int                  `db:"card_version"`
	Action      string               `db:"action"`
	Reasons     jsonColumn[[]string] `db:"reasons"`
	Notes       string               `db:"notes"`
	CreatedAt   time.Time            `db:"created_at"`
}

func (row reviewRow) toReview() reflection.Review {
	reasons := row.Reasons.Val
	if reasons == nil {
		reasons = []string{}
	}
	return reflection.Review{
		ID:          row.ID,
		ContextKey:  row.ContextKey,
		CardVersion: row.CardVersion,
		Action:      row.Action,
		Reasons:     reasons,
		Notes:       row.Notes,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

type reviewRepository struct {
	repo
}

var _ reflection.ReviewRepository = (*reviewRepository)(nil)

func NewReviewRepository(db core.DB) reflection.ReviewRepository {
	return &reviewRepository{repo{exec: db}}
}

func (r *reviewRepository) CreateReview(
	ctx context.Context,
	rev reflection.Review,
	svcExec ...core.DBExecutor,
) (reflection.Review, error) {
	if rev.ID == "" {
		rev.ID = uuid.New().String()
	}
	if rev.Reasons == nil {
		rev.Reasons = []string{}
	}
	q := sq.Insert("reviews").
		Columns(reviewColumns...).
		Values(
			rev.ID, rev.Subject, rev.Grade, rev.TopicID, rev.Situation,
			rev.CardVersion, rev.Action, jsonColumn[[]string]{rev.Reasons}, rev.Notes, rev.CreatedAt,
		)
	if _, err := execute(ctx, r.getExec(svcExec), q); err != nil {
		return reflection.Review{}, errors.Wrap(err, "inserting review")
	}
	return rev, nil
}

func (r *reviewRepository) QueryReviews(
	ctx context.Context,
	filter *reflection.QueryFilter,
	svcExec ...core.DBExecutor,
) ([]reflection.Review, error) {
	q := sq.Select(reviewColumns...).From("reviews").OrderBy("created_at ASC", "id ASC")
	if filter != nil {
		q = q.Where(keyFilter(filter.Subject, filter.Grade, filter.TopicID, filter.Situation))
		if filter.CardVersion > 0 {
			q = q.Where(sq.Eq{"card_version": filter.CardVersion})
		}
		if filter.Action != "" {
			q = q.Where(sq.Eq{"action": filter.Action})
		}
	}

	var rows []reviewRow
	if err := selectAll(ctx, r.getExec(svcExec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting reviews")
	}
	revs := make([]reflection.Review, 0, len(rows))
	for _, row := range rows {
		revs = append(revs, row.toReview())
	}
	return revs, nil
}

func (r *reviewRepository) HasQualifyingReview(
	ctx context.Context,
	key core.ContextKey,
	cardVersion int,
	svcExec ...core.DBExecutor,
) (bool, error) {
	q := sq.Select("COUNT(*)").
		From("reviews").
		Where(keyEq(key)).
		Where(sq.Eq{"card_version": cardVersion}).
		Where(sq.Eq{"action": reflection.QualifyingActions})

	var count int
	if err := get(ctx, r.getExec(svcExec), &count, q); err != nil {
		return false, errors.Wrap(err, "counting qualifying reviews")
	}
	return count > 0, nil
}
