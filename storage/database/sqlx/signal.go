package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/signal"
)

var (
	statsColumns = []string{
		"total_reflections", "worked_count", "partially_worked_count", "didnt_work_count", "success_count",
		"success_rate", "failure_rate", "partially_worked_rate", "confidence_score", "common_reasons",
	}

	signalColumns = append(append([]string{
		"id", "subject", "grade", "topic_id", "situation", "card_version", "content_card_id",
	}, statsColumns...),
		"theme_signals", "crp_theme_signals",
		"is_flagged", "flag_reason", "flagged_at", "resolved_at", "resolved_reason", "flag_history",
		"created_at", "last_updated",
	)

	signalOrderingColumns = map[string]string{
		"subject":          "subject",
		"grade":            "grade",
		"topicId":          "topic_id",
		"situation":        "situation",
		"cardVersion":      "card_version",
		"totalReflections": "total_reflections",
		"successRate":      "success_rate",
		"failureRate":      "failure_rate",
		"confidenceScore":  "confidence_score",
		"isFlagged":        "is_flagged",
		"flaggedAt":        "flagged_at",
		"flagHistory":      "flag_history",
		"createdAt":        "created_at",
		"lastUpdated":      "last_updated",
	}
)

type signalRow struct {
	ID string `db:"id"`
	signal.Key
	ContentCardID        null.String                               `db:"content_card_id"`
	TotalReflections     int                                       `db:"total_reflections"`
	WorkedCount          int                                       `db:"worked_count"`
	PartiallyWorkedCount int                                       `db:"partially_worked_count"`
	DidntWorkCount       int                                       `db:"didnt_work_count"`
	SuccessCount         int                                       `db:"success_count"`
	SuccessRate          float64                                   `db:"success_rate"`
	FailureRate          float64                                   `db:"failure_rate"`
	PartiallyWorkedRate  float64                                   `db:"partially_worked_rate"`
	ConfidenceScore      float64                                   `db:"confidence_score"`
	CommonReasons        jsonColumn[[]signal.ReasonCount]          `db:"common_reasons"`
	ThemeSignals         jsonColumn[map[string]signal.ThemeSignal] `db:"theme_signals"`
	CRPThemeSignals      jsonColumn[map[string]int]                `db:"crp_theme_signals"`
	IsFlagged            bool                                      `db:"is_flagged"`
	FlagReason           string                                    `db:"flag_reason"`
	FlaggedAt            null.Time                                 `db:"flagged_at"`
	ResolvedAt           null.Time                                 `db:"resolved_at"`
	ResolvedReason       string                                    `db:"resolved_reason"`
	FlagHistory          int                                       `db:"flag_history"`
	CreatedAt            time.Time                                 `db:"created_at"`
	LastUpdated          time.Time                                 `db:"last_updated"`
}

func (row signalRow) toSignal() signal.Signal {
	sig := signal.Signal{
		ID:            row.ID,
		Key:           row.Key,
		ContentCardID: row.ContentCardID,
		Stats: signal.Stats{
			TotalReflections:     row.TotalReflections,
			WorkedCount:          row.WorkedCount,
			PartiallyWorkedCount: row.PartiallyWorkedCount,
			DidntWorkCount:       row.DidntWorkCount,
			SuccessCount:         row.SuccessCount,
			SuccessRate:          row.SuccessRate,
			FailureRate:          row.FailureRate,
			PartiallyWorkedRate:  row.PartiallyWorkedRate,
			ConfidenceScore:      row.ConfidenceScore,
			CommonReasons:        row.CommonReasons.Val,
		},
		ThemeSignals:    row.ThemeSignals.Val,
		CRPThemeSignals: row.CRPThemeSignals.Val,
		FlagState: signal.FlagState{
			IsFlagged:      row.IsFlagged,
			FlagReason:     row.FlagReason,
			FlaggedAt:      utcTime(row.FlaggedAt),
			ResolvedAt:     utcTime(row.ResolvedAt),
			ResolvedReason: row.ResolvedReason,
			FlagHistory:    row.FlagHistory,
		},
		CreatedAt:   row.CreatedAt.UTC(),
		LastUpdated: row.LastUpdated.UTC(),
	}
	if sig.CommonReasons == nil {
		sig.CommonReasons = []signal.ReasonCount{}
	}
	if sig.ThemeSignals == nil {
		sig.ThemeSignals = map[string]signal.ThemeSignal{}
	}
	if sig.CRPThemeSignals == nil {
		sig.CRPThemeSignals = map[string]int{}
	}
	return sig
}

func utcTime(t null.Time) null.Time {
	if !t.Valid {
		return t
	}
	return null.TimeFrom(t.Time.UTC())
}

func statsValues(stats signal.Stats) []interface{} {
	reasons := stats.CommonReasons
	if reasons == nil {
		reasons = []signal.ReasonCount{}
	}
	return []interface{}{
		stats.TotalReflections, stats.WorkedCount, stats.PartiallyWorkedCount, stats.DidntWorkCount,
		stats.SuccessCount, stats.SuccessRate, stats.FailureRate, stats.PartiallyWorkedRate,
		stats.ConfidenceScore, jsonColumn[[]signal.ReasonCount]{reasons},
	}
}

type signalRepository struct {
	repo
}

var _ signal.Repository = (*signalRepository)(nil)

func NewSignalRepository(db core.DB) signal.Repository {
	return &signalRepository{repo{exec: db}}
}

func (r *signalRepository) CreateSignal(ctx context.Context, sig signal.Signal, svcExec ...core.DBExecutor) (signal.Signal, error) {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.CommonReasons == nil {
		sig.CommonReasons = []signal.ReasonCount{}
	}
	if sig.ThemeSignals == nil {
		sig.ThemeSignals = map[string]signal.ThemeSignal{}
	}
	if sig.CRPThemeSignals == nil {
		sig.CRPThemeSignals = map[string]int{}
	}

	values := []interface{}{sig.ID, sig.Subject, sig.Grade, sig.TopicID, sig.Situation, sig.CardVersion, sig.ContentCardID}
	values = append(values, statsValues(sig.Stats)...)
	values = append(values,
		jsonColumn[map[string]signal.ThemeSignal]{sig.ThemeSignals},
		jsonColumn[map[string]int]{sig.CRPThemeSignals},
		sig.IsFlagged, sig.FlagReason, sig.FlaggedAt, sig.ResolvedAt, sig.ResolvedReason, sig.FlagHistory,
		sig.CreatedAt, sig.LastUpdated,
	)

	q := sq.Insert("aggregated_signals").Columns(signalColumns...).Values(values...)
	if _, err := execute(ctx, r.getExec(svcExec), q); err != nil {
		return signal.Signal{}, errors.Wrap(err, "inserting signal")
	}
	return sig, nil
}

// UpsertStats links a newly created signal to the card of the same version, if any.
func (r *signalRepository) UpsertStats(
	ctx context.Context,
	key signal.Key,
	stats signal.Stats,
	now time.Time,
	svcExec ...core.DBExecutor,
) error {
	cardID := sq.Expr(
		"(SELECT id FROM content_cards WHERE subject = ? AND grade = ? AND topic_id = ? AND situation = ? AND version = ?)",
		key.Subject, key.Grade, key.TopicID, key.Situation, key.CardVersion,
	)

	columns := append([]string{"id", "subject", "grade", "topic_id", "situation", "card_version", "content_card_id"}, statsColumns...)
	columns = append(columns, "created_at", "last_updated")
	values := []interface{}{uuid.New().String(), key.Subject, key.Grade, key.TopicID, key.Situation, key.CardVersion, cardID}
	values = append(values, statsValues(stats)...)
	values = append(values, now, now)

	set := "last_updated = excluded.last_updated, " +
		"content_card_id = COALESCE(aggregated_signals.content_card_id, excluded.content_card_id)"
	for _, col := range statsColumns {
		set += ", " + col + " = excluded." + col
	}

	q := sq.Insert("aggregated_signals").
		Columns(columns...).
		Values(values...).
		Suffix("ON CONFLICT (subject, grade, topic_id, situation, card_version) DO UPDATE SET " + set)
	if _, err := execute(ctx, r.getExec(svcExec), q); err != nil {
		return errors.Wrap(err, "upserting signal stats")
	}
	return nil
}

func (r *signalRepository) UpdateThemeSignals(
	ctx context.Context,
	key signal.Key,
	themes map[string]signal.ThemeSignal,
	now time.Time,
	svcExec ...core.DBExecutor,
) error {
	if themes == nil {
		themes = map[string]signal.ThemeSignal{}
	}
	q := sq.Update("aggregated_signals").
		Set("theme_signals", jsonColumn[map[string]signal.ThemeSignal]{themes}).
		Set("last_updated", now).
		Where(keyEq(key.ContextKey)).
		Where(sq.Eq{"card_version": key.CardVersion})
	return r.updateOne(ctx, q, "updating theme signals", svcExec)
}

func (r *signalRepository) UpdateCRPThemeSignals(
	ctx context.Context,
	key signal.Key,
	themes map[string]int,
	now time.Time,
	svcExec ...core.DBExecutor,
) error {
	if themes == nil {
		themes = map[string]int{}
	}
	q := sq.Update("aggregated_signals").
		Set("crp_theme_signals", jsonColumn[map[string]int]{themes}).
		Set("last_updated", now).
		Where(keyEq(key.ContextKey)).
		Where(sq.Eq{"card_version": key.CardVersion})
	return r.updateOne(ctx, q, "updating crp theme signals", svcExec)
}

func (r *signalRepository) UpdateFlagState(ctx context.Context, id string, state signal.FlagState, svcExec ...core.DBExecutor) error {
	q := sq.Update("aggregated_signals").
		SetMap(map[string]interface{}{
			"is_flagged":      state.IsFlagged,
			"flag_reason":     state.FlagReason,
			"flagged_at":      state.FlaggedAt,
			"resolved_at":     state.ResolvedAt,
			"resolved_reason": state.ResolvedReason,
			"flag_history":    state.FlagHistory,
		}).
		Where(sq.Eq{"id": id})
	return r.updateOne(ctx, q, "updating flag state", svcExec)
}

func (r *signalRepository) updateOne(ctx context.Context, q sq.UpdateBuilder, msg string, svcExec []core.DBExecutor) error {
	res, err := execute(ctx, r.getExec(svcExec), q)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return signal.ErrNotFound
	}
	return nil
}

func (r *signalRepository) QuerySignals(
	ctx context.Context,
	filter *signal.QueryFilter,
	ordering []core.DBOrdering,
	svcExec ...core.DBExecutor,
) ([]signal.Signal, error) {
	orderBys, err := orderBy(ordering, signalOrderingColumns, "id ASC")
	if err != nil {
		return nil, err
	}
	q := sq.Select(signalColumns...).From("aggregated_signals").OrderBy(orderBys...)
	if filter != nil {
		q = q.Where(keyFilter(filter.Subject, filter.Grade, filter.TopicID, filter.Situation))
		if filter.CardVersion > 0 {
			q = q.Where(sq.Eq{"card_version": filter.CardVersion})
		}
		if filter.IsFlagged != nil {
			q = q.Where(sq.Eq{"is_flagged": *filter.IsFlagged})
		}
	}

	var rows []signalRow
	if err = selectAll(ctx, r.getExec(svcExec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting signals")
	}
	sigs := make([]signal.Signal, 0, len(rows))
	for _, row := range rows {
		sigs = append(sigs, row.toSignal())
	}
	return sigs, nil
}

func (r *signalRepository) GetSignalByID(ctx context.Context, id string, svcExec ...core.DBExecutor) (signal.Signal, error) {
	q := sq.Select(signalColumns...).From("aggregated_signals").Where(sq.Eq{"id": id})
	return r.getSignal(ctx, q, svcExec)
}

func (r *signalRepository) GetSignalByKey(ctx context.Context, key signal.Key, svcExec ...core.DBExecutor) (signal.Signal, error) {
	q := sq.Select(signalColumns...).
		From("aggregated_signals").
		Where(keyEq(key.ContextKey)).
		Where(sq.Eq{"card_version": key.CardVersion})
	return r.getSignal(ctx, q, svcExec)
}

func (r *signalRepository) getSignal(ctx context.Context, q sq.SelectBuilder, svcExec []core.DBExecutor) (signal.Signal, error) {
	var row signalRow
	if err := get(ctx, r.getExec(svcExec), &row, q); err != nil {
		return signal.Signal{}, trapNoRowsErr(err, signal.ErrNotFound, "selecting signal")
	}
	return row.toSignal(), nil
}
