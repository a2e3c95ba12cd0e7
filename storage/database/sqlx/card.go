package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/card"
)

var (
	cardColumns = []string{
		"id", "subject", "grade", "topic_id", "situation", "version", "title", "explanation",
		"warning_signs", "remediation", "success_rate", "confidence", "is_active", "is_archived",
		"parent_card_id", "source_card_id", "created_at", "archived_at",
	}

	cardOrderingColumns = map[string]string{
		"subject":    "subject",
		"grade":      "grade",
		"topicId":    "topic_id",
		"situation":  "situation",
		"version":    "version",
		"title":      "title",
		"createdAt":  "created_at",
		"archivedAt": "archived_at",
	}
)

type cardRow struct {
	ID string `db:"id"`
	core.ContextKey
	Version      int                  `db:"version"`
	Title        string               `db:"title"`
	Explanation  string               `db:"explanation"`
	WarningSigns jsonColumn[[]string] `db:"warning_signs"`
	Remediation  jsonColumn[[]string] `db:"remediation"`
	SuccessRate  float64              `db:"success_rate"`
	Confidence   float64              `db:"confidence"`
	IsActive     bool                 `db:"is_active"`
	IsArchived   bool                 `db:"is_archived"`
	ParentCardID null.String          `db:"parent_card_id"`
	SourceCardID null.String          `db:"source_card_id"`
	CreatedAt    time.Time            `db:"created_at"`
	ArchivedAt   null.Time            `db:"archived_at"`
}

func (row cardRow) toCard() card.Card {
	c := card.Card{
		ID:           row.ID,
		ContextKey:   row.ContextKey,
		Version:      row.Version,
		Title:        row.Title,
		Explanation:  row.Explanation,
		WarningSigns: row.WarningSigns.Val,
		Remediation:  row.Remediation.Val,
		SuccessRate:  row.SuccessRate,
		Confidence:   row.Confidence,
		IsActive:     row.IsActive,
		IsArchived:   row.IsArchived,
		ParentCardID: row.ParentCardID,
		SourceCardID: row.SourceCardID,
		CreatedAt:    row.CreatedAt.UTC(),
		ArchivedAt:   utcTime(row.ArchivedAt),
	}
	if c.WarningSigns == nil {
		c.WarningSigns = []string{}
	}
	if c.Remediation == nil {
		c.Remediation = []string{}
	}
	return c
}

type cardRepository struct {
	repo
}

var _ card.Repository = (*cardRepository)(nil)

func NewCardRepository(db core.DB) card.Repository {
	return &cardRepository{repo{exec: db}}
}

func (r *cardRepository) CreateCard(ctx context.Context, c card.Card, svcExec ...core.DBExecutor) (card.Card, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.WarningSigns == nil {
		c.WarningSigns = []string{}
	}
	if c.Remediation == nil {
		c.Remediation = []string{}
	}
	q := sq.Insert("content_cards").
		Columns(cardColumns...).
		Values(
			c.ID, c.Subject, c.Grade, c.TopicID, c.Situation, c.Version, c.Title, c.Explanation,
			jsonColumn[[]string]{c.WarningSigns}, jsonColumn[[]string]{c.Remediation},
			c.SuccessRate, c.Confidence, c.IsActive, c.IsArchived,
			c.ParentCardID, c.SourceCardID, c.CreatedAt, c.ArchivedAt,
		)
	if _, err := execute(ctx, r.getExec(svcExec), q); err != nil {
		return card.Card{}, errors.Wrap(err, "inserting card")
	}
	return c, nil
}

func (r *cardRepository) GetCardByID(ctx context.Context, id string, svcExec ...core.DBExecutor) (card.Card, error) {
	q := sq.Select(cardColumns...).From("content_cards").Where(sq.Eq{"id": id})
	return r.getCard(ctx, q, svcExec)
}

func (r *cardRepository) GetActiveCard(ctx context.Context, key core.ContextKey, svcExec ...core.DBExecutor) (card.Card, error) {
	q := sq.Select(cardColumns...).
		From("content_cards").
		Where(keyEq(key)).
		Where(sq.Eq{"is_active": true})
	return r.getCard(ctx, q, svcExec)
}

func (r *cardRepository) getCard(ctx context.Context, q sq.SelectBuilder, svcExec []core.DBExecutor) (card.Card, error) {
	var row cardRow
	if err := get(ctx, r.getExec(svcExec), &row, q); err != nil {
		return card.Card{}, trapNoRowsErr(err, card.ErrNotFound, "selecting card")
	}
	return row.toCard(), nil
}

func (r *cardRepository) QueryCards(
	ctx context.Context,
	filter *card.QueryFilter,
	ordering []core.DBOrdering,
	svcExec ...core.DBExecutor,
) ([]card.Card, error) {
	orderBys, err := orderBy(ordering, cardOrderingColumns, "id ASC")
	if err != nil {
		return nil, err
	}
	q := sq.Select(cardColumns...).From("content_cards").OrderBy(orderBys...)
	includeArchived := false
	if filter != nil {
		q = q.Where(keyFilter(filter.Subject, filter.Grade, filter.TopicID, filter.Situation))
		includeArchived = filter.IncludeArchived
	}
	if !includeArchived {
		q = q.Where(sq.Eq{"is_archived": false})
	}

	var rows []cardRow
	if err = selectAll(ctx, r.getExec(svcExec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting cards")
	}
	cards := make([]card.Card, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, row.toCard())
	}
	return cards, nil
}

// ArchiveCard deactivates an active card. It returns card.ErrNotFound if id is not an active card.
func (r *cardRepository) ArchiveCard(ctx context.Context, id string, at time.Time, svcExec ...core.DBExecutor) error {
	q := sq.Update("content_cards").
		SetMap(map[string]interface{}{
			"is_active":   false,
			"is_archived": true,
			"archived_at": at,
		}).
		Where(sq.Eq{"id": id, "is_active": true})

	res, err := execute(ctx, r.getExec(svcExec), q)
	if err != nil {
		return errors.Wrap(err, "archiving card")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "archiving card")
	}
	if n == 0 {
		return card.ErrNotFound
	}
	return nil
}
