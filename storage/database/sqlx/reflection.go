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

var reflectionColumns = []string{
	"id", "subject", "grade", "topic_id", "situation", "card_version", "outcome", "reason", "notes", "created_at",
}

type reflectionRow struct {
	ID string `db:"id"`
	core.ContextKey
	CardVersion int       `db:"card_version"`
	Outcome     string    `db:"outcome"`
	Reason      string    `db:"reason"`
	Notes       string    `db:"notes"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row reflectionRow) toReflection() reflection.Reflection {
	return reflection.Reflection{
		ID:          row.ID,
		ContextKey:  row.ContextKey,
		CardVersion: row.CardVersion,
		Outcome:     row.Outcome,
		Reason:      row.Reason,
		Notes:       row.Notes,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

type reflectionRepository struct {
	repo
}

var _ reflection.Repository = (*reflectionRepository)(nil)

func NewReflectionRepository(db core.DB) reflection.Repository {
	return &reflectionRepository{repo{exec: db}}
}

func (r *reflectionRepository) CreateReflection(
	ctx context.Context,
	refl reflection.Reflection,
	svcExec ...core.DBExecutor,
) (reflection.Reflection, error) {
	if refl.ID == "" {
		refl.ID = uuid.New().String()
	}
	q := sq.Insert("reflections").
		Columns(reflectionColumns...).
		Values(
			refl.ID, refl.Subject, refl.Grade, refl.TopicID, refl.Situation,
			refl.CardVersion, refl.Outcome, refl.Reason, refl.Notes, refl.CreatedAt,
		)
	if _, err := execute(ctx, r.getExec(svcExec), q); err != nil {
		return reflection.Reflection{}, errors.Wrap(err, "inserting reflection")
	}
	return refl, nil
}

func (r *reflectionRepository) QueryReflections(
	ctx context.Context,
	filter *reflection.QueryFilter,
	svcExec ...core.DBExecutor,
) ([]reflection.Reflection, error) {
	q := sq.Select(reflectionColumns...).From("reflections").OrderBy("created_at ASC", "id ASC")
	if filter != nil {
		q = q.Where(keyFilter(filter.Subject, filter.Grade, filter.TopicID, filter.Situation))
		if filter.CardVersion > 0 {
			q = q.Where(sq.Eq{"card_version": filter.CardVersion})
		}
		if filter.Outcome != "" {
			q = q.Where(sq.Eq{"outcome": filter.Outcome})
		}
	}

	var rows []reflectionRow
	if err := selectAll(ctx, r.getExec(svcExec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting reflections")
	}
	refls := make([]reflection.Reflection, 0, len(rows))
	for _, row := range rows {
		refls = append(refls, row.toReflection())
	}
	return refls, nil
}
