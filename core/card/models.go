package card

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prepcards/core"
)

var (
	ErrNotFound   = errors.New("card not found")
	ErrCardExists = errors.New("an active card already exists for this context")
)

type (
	// Card is the versioned guidance content shown to teachers for a context.
	Card struct {
		ID string `json:"id"`
		core.ContextKey
		Version      int         `json:"version"`
		Title        string      `json:"title"`
		Explanation  string      `json:"explanation"`
		WarningSigns []string    `json:"warningSigns"`
		Remediation  []string    `json:"remediation"`
		SuccessRate  float64     `json:"successRate"`
		Confidence   float64     `json:"confidence"`
		IsActive     bool        `json:"isActive"`
		IsArchived   bool        `json:"isArchived"`
		ParentCardID null.String `json:"parentCardId"`
		SourceCardID null.String `json:"sourceCardId"`
		CreatedAt    time.Time   `json:"createdAt"`
		ArchivedAt   null.Time   `json:"archivedAt"`
	}

	NewCard struct {
		core.ContextKey `yaml:",inline"`
		Title           string   `json:"title" yaml:"title" validate:"notblank,max=200"`
		Explanation     string   `json:"explanation" yaml:"explanation" validate:"notblank"`
		WarningSigns    []string `json:"warningSigns" yaml:"warningSigns" validate:"dive,notblank"`
		Remediation     []string `json:"remediation" yaml:"remediation" validate:"dive,notblank"`
	}

	// Revision is the content of a new card version. Unset fields are copied from the previous version.
	Revision struct {
		Title        string   `json:"title" validate:"max=200"`
		Explanation  string   `json:"explanation"`
		WarningSigns []string `json:"warningSigns" validate:"omitempty,dive,notblank"`
		Remediation  []string `json:"remediation" validate:"omitempty,dive,notblank"`
	}

	// QueryFilter applies AND operation on the set fields.
	QueryFilter struct {
		Subject         string `query:"subject"`
		Grade           string `query:"grade"`
		TopicID         string `query:"topicId"`
		Situation       string `query:"situation"`
		IncludeArchived bool   `query:"includeArchived"`
	}

	Repository interface {
		CreateCard(ctx context.Context, c Card, exec ...core.DBExecutor) (Card, error)
		GetCardByID(ctx context.Context, id string, exec ...core.DBExecutor) (Card, error)
		GetActiveCard(ctx context.Context, key core.ContextKey, exec ...core.DBExecutor) (Card, error)
		QueryCards(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Card, error)
		ArchiveCard(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error
	}
)

func (nc *NewCard) Clean() {
	nc.ContextKey = nc.ContextKey.Clean()
	nc.Title = core.CleanString(nc.Title)
	nc.Explanation = core.CleanString(nc.Explanation)
	nc.WarningSigns = cleanList(nc.WarningSigns)
	nc.Remediation = cleanList(nc.Remediation)
}

func (nc NewCard) Validate(validate *validator.Validate) error {
	return validate.Struct(nc)
}

func (rev *Revision) Clean() {
	rev.Title = core.CleanString(rev.Title)
	rev.Explanation = core.CleanString(rev.Explanation)
	if rev.WarningSigns != nil {
		rev.WarningSigns = cleanList(rev.WarningSigns)
	}
	if rev.Remediation != nil {
		rev.Remediation = cleanList(rev.Remediation)
	}
}

func (rev Revision) Validate(validate *validator.Validate) error {
	return validate.Struct(rev)
}

// apply returns the content of c overridden by the set fields of rev.
func (rev Revision) apply(c Card) Card {
	if rev.Title != "" {
		c.Title = rev.Title
	}
	if rev.Explanation != "" {
		c.Explanation = rev.Explanation
	}
	if rev.WarningSigns != nil {
		c.WarningSigns = rev.WarningSigns
	}
	if rev.Remediation != nil {
		c.Remediation = rev.Remediation
	}
	return c
}

func (f *QueryFilter) Clean() {
	f.Subject = core.CleanString(f.Subject)
	f.Grade = core.CleanString(f.Grade)
	f.TopicID = core.CleanString(f.TopicID)
	f.Situation = core.CleanString(f.Situation)
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, it := range items {
		cleaned = append(cleaned, core.CleanString(it))
	}
	return cleaned
}
