package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/serene/internal/availability/domain"
	availabilityrepo "github.com/smallbiznis/serene/internal/availability/repository"
	availabilityservice "github.com/smallbiznis/serene/internal/availability/service"
	"github.com/smallbiznis/serene/internal/clock"
	"github.com/smallbiznis/serene/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	db.Exec(`CREATE TABLE IF NOT EXISTS availability_slots (
		id BIGINT PRIMARY KEY,
		slot_date TIMESTAMP NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)

	return db
}

func newService(t *testing.T, db *gorm.DB) domain.Service {
	t.Helper()

	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	holder, err := config.NewPolicyHolder()
	if err != nil {
		t.Fatalf("new policy holder: %v", err)
	}

	return availabilityservice.New(availabilityservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)),
		Policy: holder,
		Repo:   availabilityrepo.Provide(),
	})
}

func TestCreateSlotRejectsOverlapSameDate(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, domain.CreateSlotRequest{
		StartTime: day.Add(9 * time.Hour),
		EndTime:   day.Add(12 * time.Hour),
		Available: true,
	})
	if err != nil {
		t.Fatalf("create first slot: %v", err)
	}

	_, err = svc.Create(ctx, domain.CreateSlotRequest{
		StartTime: day.Add(11 * time.Hour),
		EndTime:   day.Add(13 * time.Hour),
		Available: true,
	})
	if !errors.Is(err, domain.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	// Touching slots are fine.
	if _, err = svc.Create(ctx, domain.CreateSlotRequest{
		StartTime: day.Add(12 * time.Hour),
		EndTime:   day.Add(14 * time.Hour),
		Available: true,
	}); err != nil {
		t.Fatalf("touching slot should not conflict: %v", err)
	}
}

func TestCreateSlotRejectsExcessiveDuration(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, domain.CreateSlotRequest{
		StartTime: day.Add(8 * time.Hour),
		EndTime:   day.Add(21 * time.Hour), // 13h > 12h maximum
		Available: true,
	})
	if !errors.Is(err, domain.ErrDurationTooLong) {
		t.Fatalf("expected ErrDurationTooLong, got %v", err)
	}
}

func TestCreateSlotRejectsInvertedRange(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, domain.CreateSlotRequest{
		StartTime: day.Add(12 * time.Hour),
		EndTime:   day.Add(11 * time.Hour),
	})
	if !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestUpdateSlotExcludesItselfFromConflictCheck(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	slot, err := svc.Create(ctx, domain.CreateSlotRequest{
		StartTime: day.Add(9 * time.Hour),
		EndTime:   day.Add(11 * time.Hour),
		Available: true,
	})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}

	// Shifting the slot inside its own window must not self-conflict.
	updated, err := svc.Update(ctx, domain.UpdateSlotRequest{
		ID:        slot.ID,
		StartTime: day.Add(9*time.Hour + 30*time.Minute),
		EndTime:   day.Add(11 * time.Hour),
		Available: true,
	})
	if err != nil {
		t.Fatalf("update slot: %v", err)
	}
	if !updated.StartTime.Equal(day.Add(9*time.Hour + 30*time.Minute)) {
		t.Fatalf("unexpected start time %v", updated.StartTime)
	}
}

func TestDeleteMissingSlot(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	if err := svc.Delete(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByRangeValidatesOrder(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	from := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	if _, err := svc.ListByRange(ctx, from, to); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
