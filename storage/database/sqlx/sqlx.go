// Package sqlxrepos implements the domain repositories with jmoiron/sqlx and Masterminds/squirrel.
// Queries are written with "?" placeholders and rebound for the executor's driver,
// so the same repositories serve postgres and sqlite.
package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
)

type repo struct {
	exec core.DBExecutor
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.exec
}

// trapNoRowsErr maps sql.ErrNoRows to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.GetContext(ctx, dest, exec.Rebind(query), args...)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.SelectContext(ctx, dest, exec.Rebind(query), args...)
}

func execute(ctx context.Context, exec core.DBExecutor, q sq.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return exec.ExecContext(ctx, exec.Rebind(query), args...)
}

// keyFilter returns the equality conditions of the non-empty context key parts.
func keyFilter(subject, grade, topicID, situation string) sq.Eq {
	eq := sq.Eq{}
	for col, val := range map[string]string{
		"subject":   subject,
		"grade":     grade,
		"topic_id":  topicID,
		"situation": situation,
	} {
		if val != "" {
			eq[col] = val
		}
	}
	return eq
}

func keyEq(key core.ContextKey) sq.Eq {
	return sq.Eq{
		"subject":   key.Subject,
		"grade":     key.Grade,
		"topic_id":  key.TopicID,
		"situation": key.Situation,
	}
}

// orderBy maps API field names to columns. Unknown fields are a validation error.
func orderBy(ordering []core.DBOrdering, columns map[string]string, defaults ...string) ([]string, error) {
	clauses := make([]string, 0, len(ordering)+len(defaults))
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			return nil, core.NewValidationError(
				errors.New("invalid ordering"),
				core.FieldError{Field: "ordering", Error: fmt.Sprintf("cannot order by %q", ord.Field)},
			)
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	return append(clauses, defaults...), nil
}

// jsonColumn stores a value as JSON text.
type jsonColumn[T any] struct {
	Val T
}

func (c *jsonColumn[T]) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("jsonColumn: unsupported type %T", src)
	}
	return json.Unmarshal(data, &c.Val)
}

func (c jsonColumn[T]) Value() (driver.Value, error) {
	data, err := json.Marshal(c.Val)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
