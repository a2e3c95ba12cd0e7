package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prepcards/core"
)

var ErrNotFound = errors.New("signal not found")

type (
	// Key identifies a signal: a context and the card version its reflections were recorded against.
	Key struct {
		core.ContextKey
		CardVersion int `json:"cardVersion" db:"card_version"`
	}

	ReasonCount struct {
		Reason string `json:"reason"`
		Count  int    `json:"count"`
	}

	ThemeSignal struct {
		Count        int     `json:"count"`
		FailureCount int     `json:"failureCount"`
		Score        float64 `json:"score"`
	}

	// Stats are the fields written by the aggregation job.
	Stats struct {
		TotalReflections     int           `json:"totalReflections"`
		WorkedCount          int           `json:"workedCount"`
		PartiallyWorkedCount int           `json:"partiallyWorkedCount"`
		DidntWorkCount       int           `json:"didntWorkCount"`
		SuccessCount         int           `json:"successCount"`
		SuccessRate          float64       `json:"successRate"`
		FailureRate          float64       `json:"failureRate"`
		PartiallyWorkedRate  float64       `json:"partiallyWorkedRate"`
		ConfidenceScore      float64       `json:"confidenceScore"`
		CommonReasons        []ReasonCount `json:"commonReasons"`
	}

	// FlagState are the fields written by the flagging job.
	FlagState struct {
		IsFlagged      bool      `json:"isFlagged"`
		FlagReason     string    `json:"flagReason"`
		FlaggedAt      null.Time `json:"flaggedAt"`
		ResolvedAt     null.Time `json:"resolvedAt"`
		ResolvedReason string    `json:"resolvedReason"`
		FlagHistory    int       `json:"flagHistory"`
	}

	// Signal is the aggregated record of a Key.
	Signal struct {
		ID string `json:"id"`
		Key
		ContentCardID null.String `json:"contentCardId"`
		Stats
		ThemeSignals    map[string]ThemeSignal `json:"themeSignals"`
		CRPThemeSignals map[string]int         `json:"crpThemeSignals"`
		FlagState
		CreatedAt   time.Time `json:"createdAt"`
		LastUpdated time.Time `json:"lastUpdated"`
	}

	// QueryFilter applies AND operation on the set fields.
	QueryFilter struct {
		Subject     string `query:"subject"`
		Grade       string `query:"grade"`
		TopicID     string `query:"topicId"`
		Situation   string `query:"situation"`
		CardVersion int    `query:"cardVersion"`
		IsFlagged   *bool  `query:"-"`
	}

	Repository interface {
		// CreateSignal inserts a new signal. It fails if one already exists for the same Key.
		CreateSignal(ctx context.Context, sig Signal, exec ...core.DBExecutor) (Signal, error)
		// UpsertStats inserts or updates the Stats of key, leaving every other field untouched.
		UpsertStats(ctx context.Context, key Key, stats Stats, now time.Time, exec ...core.DBExecutor) error
		// UpdateThemeSignals sets the reflection themes of key. It returns ErrNotFound if key has no signal.
		UpdateThemeSignals(ctx context.Context, key Key, themes map[string]ThemeSignal, now time.Time, exec ...core.DBExecutor) error
		// UpdateCRPThemeSignals sets the CRP themes of key. It returns ErrNotFound if key has no signal.
		UpdateCRPThemeSignals(ctx context.Context, key Key, themes map[string]int, now time.Time, exec ...core.DBExecutor) error
		UpdateFlagState(ctx context.Context, id string, state FlagState, exec ...core.DBExecutor) error
		QuerySignals(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Signal, error)
		GetSignalByID(ctx context.Context, id string, exec ...core.DBExecutor) (Signal, error)
		GetSignalByKey(ctx context.Context, key Key, exec ...core.DBExecutor) (Signal, error)
	}
)

func (k Key) String() string {
	return fmt.Sprintf("%s@v%d", k.ContextKey, k.CardVersion)
}

func (f *QueryFilter) Clean() {
	f.Subject = core.CleanString(f.Subject)
	f.Grade = core.CleanString(f.Grade)
	f.TopicID = core.CleanString(f.TopicID)
	f.Situation = core.CleanString(f.Situation)
}

// NewSignal returns a zeroed signal for key.
func NewSignal(key Key, now time.Time) Signal {
	return Signal{
		Key:             key,
		Stats:           Stats{CommonReasons: []ReasonCount{}},
		ThemeSignals:    map[string]ThemeSignal{},
		CRPThemeSignals: map[string]int{},
		CreatedAt:       now,
		LastUpdated:     now,
	}
}
