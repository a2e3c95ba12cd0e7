package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/card"
	"github.com/trezcool/prepcards/core/reflection"
	"github.com/trezcool/prepcards/storage/database"
)

// PrepareDB opens a migrated in-memory sqlite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := &core.Config{Database: core.DatabaseConfig{Engine: core.EngineSQLite, Name: ":memory:"}}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func ContextKey(subject, grade, topic, situation string) core.ContextKey {
	return core.ContextKey{Subject: subject, Grade: grade, TopicID: topic, Situation: situation}
}

func CreateCard(t *testing.T, repo card.Repository, key core.ContextKey, version int, isActive bool) card.Card {
	t.Helper()

	c := card.Card{
		ContextKey:   key,
		Version:      version,
		Title:        "Fractions on a number line",
		Explanation:  "Place unit fractions before composite ones.",
		WarningSigns: []string{"students count tick marks"},
		Remediation:  []string{"fold paper strips"},
		IsActive:     isActive,
		IsArchived:   !isActive,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	c, err := repo.CreateCard(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCard() failed: %v", err)
	}
	return c
}

func CreateReflection(
	t *testing.T,
	repo reflection.Repository,
	key core.ContextKey,
	version int,
	outcome, reason, notes string,
	createdAt ...time.Time,
) reflection.Reflection {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	refl, err := repo.CreateReflection(context.Background(), reflection.Reflection{
		ContextKey:  key,
		CardVersion: version,
		Outcome:     outcome,
		Reason:      reason,
		Notes:       notes,
		CreatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateReflection() failed: %v", err)
	}
	return refl
}

func CreateReview(
	t *testing.T,
	repo reflection.ReviewRepository,
	key core.ContextKey,
	version int,
	action string,
	reasons []string,
	notes string,
	createdAt ...time.Time,
) reflection.Review {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	rev, err := repo.CreateReview(context.Background(), reflection.Review{
		ContextKey:  key,
		CardVersion: version,
		Action:      action,
		Reasons:     reasons,
		Notes:       notes,
		CreatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateReview() failed: %v", err)
	}
	return rev
}
