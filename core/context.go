package core

import (
	"strings"

	"github.com/pkg/errors"
)

// Roles
const (
	RoleTeacher = "teacher"
	RoleCRP     = "crp"
)

var (
	Roles = []string{RoleTeacher, RoleCRP}

	ErrInvalidContextKey = errors.New("invalid context key")
	ErrInvalidRole       = errors.New("invalid role")
)

// ContextKey identifies a teaching scenario.
type ContextKey struct {
	Subject   string `json:"subject" yaml:"subject" db:"subject" validate:"notblank"`
	Grade     string `json:"grade" yaml:"grade" db:"grade" validate:"notblank"`
	TopicID   string `json:"topicId" yaml:"topicId" db:"topic_id" validate:"notblank"`
	Situation string `json:"situation" yaml:"situation" db:"situation" validate:"notblank"`
}

func (k ContextKey) Clean() ContextKey {
	return ContextKey{
		Subject:   CleanString(k.Subject),
		Grade:     CleanString(k.Grade),
		TopicID:   CleanString(k.TopicID),
		Situation: CleanString(k.Situation),
	}
}

func (k ContextKey) String() string {
	return strings.Join([]string{k.Subject, k.Grade, k.TopicID, k.Situation}, "/")
}

// Validate checks that every component of the key is set.
func (k ContextKey) Validate() error {
	var flds []FieldError
	for _, f := range []struct{ name, val string }{
		{"subject", k.Subject},
		{"grade", k.Grade},
		{"topicId", k.TopicID},
		{"situation", k.Situation},
	} {
		if strings.TrimSpace(f.val) == "" {
			flds = append(flds, FieldError{Field: f.name, Error: requiredText})
		}
	}
	if flds != nil {
		return NewValidationError(ErrInvalidContextKey, flds...)
	}
	return nil
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	Subject string
	Role    string
}

func (p Principal) IsCRP() bool { return p.Role == RoleCRP }

func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}
