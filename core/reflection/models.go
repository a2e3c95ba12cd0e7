package reflection

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/prepcards/core"
)

// Outcomes
const (
	OutcomeWorked          = "worked"
	OutcomePartiallyWorked = "partially_worked"
	OutcomeDidntWork       = "didnt_work"
)

// Reasons
const (
	ReasonNone               = "none"
	ReasonTimingIssue        = "timing_issue"
	ReasonStudentConfusion   = "student_confusion"
	ReasonPrerequisiteGap    = "prerequisite_gap"
	ReasonEngagementLow      = "engagement_low"
	ReasonResourceMissing    = "resource_missing"
	ReasonLanguageBarrier    = "language_barrier"
	ReasonBehaviorDisruption = "behavior_disruption"
	ReasonOther              = "other"
)

// Review actions
const (
	ActionNeedsModification = "needs_modification"
	ActionAddAlternate      = "add_alternate"
	ActionNoChange          = "no_change"
)

var (
	Outcomes = []string{OutcomeWorked, OutcomePartiallyWorked, OutcomeDidntWork}
	Reasons  = []string{
		ReasonNone, ReasonTimingIssue, ReasonStudentConfusion, ReasonPrerequisiteGap, ReasonEngagementLow,
		ReasonResourceMissing, ReasonLanguageBarrier, ReasonBehaviorDisruption, ReasonOther,
	}
	Actions = []string{ActionNeedsModification, ActionAddAlternate, ActionNoChange}

	// QualifyingActions are the review actions that allow a new card version.
	QualifyingActions = []string{ActionNeedsModification, ActionAddAlternate}
)

type (
	// Reflection is an anonymized teacher-submitted outcome for a context. It is never updated.
	Reflection struct {
		ID string `json:"id"`
		core.ContextKey
		CardVersion int       `json:"cardVersion"`
		Outcome     string    `json:"outcome"`
		Reason      string    `json:"reason"`
		Notes       string    `json:"notes"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	NewReflection struct {
		core.ContextKey
		Outcome string `json:"outcome" validate:"required,oneof=worked partially_worked didnt_work"`
		Reason  string `json:"reason" validate:"omitempty,oneof=none timing_issue student_confusion prerequisite_gap engagement_low resource_missing language_barrier behavior_disruption other"`
		Notes   string `json:"notes" validate:"max=2000"`
	}

	// Review is a CRP assessment of a context. Reviews are append-only.
	Review struct {
		ID string `json:"id"`
		core.ContextKey
		CardVersion int       `json:"cardVersion"`
		Action      string    `json:"action"`
		Reasons     []string  `json:"reasons"`
		Notes       string    `json:"notes"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	NewReview struct {
		core.ContextKey
		Action  string   `json:"action" validate:"required,oneof=needs_modification add_alternate no_change"`
		Reasons []string `json:"reasons" validate:"max=20,dive,notblank,max=500"`
		Notes   string   `json:"notes" validate:"max=4000"`
	}

	// QueryFilter applies AND operation on the set fields.
	QueryFilter struct {
		Subject     string `query:"subject"`
		Grade       string `query:"grade"`
		TopicID     string `query:"topicId"`
		Situation   string `query:"situation"`
		CardVersion int    `query:"cardVersion"`
		Outcome     string `query:"outcome"` // reflections only
		Action      string `query:"action"`  // reviews only
	}
)

// Text returns the free text of a review: its reasons followed by its notes.
func (r Review) Text() string {
	parts := make([]string, 0, len(r.Reasons)+1)
	parts = append(parts, r.Reasons...)
	parts = append(parts, r.Notes)
	return strings.Join(parts, " ")
}

func (nr *NewReflection) Clean() {
	nr.ContextKey = nr.ContextKey.Clean()
	nr.Outcome = core.CleanString(nr.Outcome, true /* lower */)
	nr.Reason = core.CleanString(nr.Reason, true /* lower */)
	if nr.Reason == "" {
		nr.Reason = ReasonNone
	}
	nr.Notes = core.CleanString(nr.Notes)
}

func (nr NewReflection) Validate(validate *validator.Validate) error {
	return validate.Struct(nr)
}

func (nr *NewReview) Clean() {
	nr.ContextKey = nr.ContextKey.Clean()
	nr.Action = core.CleanString(nr.Action, true /* lower */)
	reasons := make([]string, 0, len(nr.Reasons))
	for _, r := range nr.Reasons {
		reasons = append(reasons, core.CleanString(r))
	}
	nr.Reasons = reasons
	nr.Notes = core.CleanString(nr.Notes)
}

func (nr NewReview) Validate(validate *validator.Validate) error {
	return validate.Struct(nr)
}

func (f *QueryFilter) Clean() {
	f.Subject = core.CleanString(f.Subject)
	f.Grade = core.CleanString(f.Grade)
	f.TopicID = core.CleanString(f.TopicID)
	f.Situation = core.CleanString(f.Situation)
	f.Outcome = core.CleanString(f.Outcome, true /* lower */)
	f.Action = core.CleanString(f.Action, true /* lower */)
}
