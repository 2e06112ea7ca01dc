package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/serene/internal/availability/domain"
	"github.com/smallbiznis/serene/internal/clock"
	"github.com/smallbiznis/serene/internal/config"
	"github.com/smallbiznis/serene/internal/schedule"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.PolicyHolder
	Repo   domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.PolicyHolder
	repo   domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("availability.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSlotRequest) (domain.Slot, error) {
	if err := s.validateRange(req.StartTime, req.EndTime); err != nil {
		return domain.Slot{}, err
	}

	if err := s.checkDateConflicts(ctx, req.StartTime, req.EndTime, 0); err != nil {
		return domain.Slot{}, err
	}

	now := s.clock.Now()
	slot := domain.Slot{
		ID:          s.genID.Generate(),
		SlotDate:    dateOf(req.StartTime),
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		Description: strings.TrimSpace(req.Description),
		Available:   req.Available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &slot); err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateSlotRequest) (domain.Slot, error) {
	existing, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Slot{}, err
	}
	if existing == nil {
		return domain.Slot{}, domain.ErrNotFound
	}

	if err := s.validateRange(req.StartTime, req.EndTime); err != nil {
		return domain.Slot{}, err
	}

	if err := s.checkDateConflicts(ctx, req.StartTime, req.EndTime, req.ID); err != nil {
		return domain.Slot{}, err
	}

	slot := *existing
	slot.SlotDate = dateOf(req.StartTime)
	slot.StartTime = req.StartTime.UTC()
	slot.EndTime = req.EndTime.UTC()
	slot.Description = strings.TrimSpace(req.Description)
	slot.Available = req.Available
	slot.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, &slot); err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	deleted, err := s.repo.Delete(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) ListByDate(ctx context.Context, date time.Time) ([]domain.Slot, error) {
	return s.repo.ListByDate(ctx, s.db, dateOf(date))
}

func (s *Service) ListByRange(ctx context.Context, from, to time.Time) ([]domain.Slot, error) {
	if to.Before(from) {
		return nil, domain.ErrInvalidRange
	}
	return s.repo.ListByRange(ctx, s.db, dateOf(from), dateOf(to))
}

func (s *Service) validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return domain.ErrInvalidRange
	}
	if !sameDate(start, end) {
		return domain.ErrInvalidRange
	}
	if end.Sub(start) > s.policy.Current().MaxSlotDuration() {
		return domain.ErrDurationTooLong
	}
	return nil
}

// Slots on the same date may not overlap each other. The candidate is checked
// against every declared slot for its date, half-open.
func (s *Service) checkDateConflicts(ctx context.Context, start, end time.Time, excludeID snowflake.ID) error {
	slots, err := s.repo.ListByDate(ctx, s.db, dateOf(start))
	if err != nil {
		return err
	}

	existing := make([]schedule.Interval, 0, len(slots))
	for _, slot := range slots {
		existing = append(existing, schedule.Interval{
			ID:    slot.ID,
			Start: slot.StartTime,
			End:   slot.EndTime,
		})
	}

	candidate := schedule.Interval{Start: start.UTC(), End: end.UTC()}
	if schedule.HasConflict(candidate, existing, excludeID) {
		return domain.ErrSlotConflict
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	return dateOf(a).Equal(dateOf(b.Add(-time.Nanosecond)))
}
