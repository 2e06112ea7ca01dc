package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/serene/internal/booking/domain"
	"github.com/smallbiznis/serene/internal/calendar"
	catalogdomain "github.com/smallbiznis/serene/internal/catalog/domain"
	"github.com/smallbiznis/serene/internal/clock"
	"github.com/smallbiznis/serene/internal/config"
	customerdomain "github.com/smallbiznis/serene/internal/customer/domain"
	"github.com/smallbiznis/serene/internal/notification"
	"github.com/smallbiznis/serene/internal/observability/metrics"
	"github.com/smallbiznis/serene/internal/schedule"
	pkgdb "github.com/smallbiznis/serene/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       *config.PolicyHolder
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
	CatalogRepo  catalogdomain.Repository
	Calendar     calendar.Provider
	Notifier     notification.Provider
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *config.PolicyHolder
	repo         domain.Repository
	customerRepo customerdomain.Repository
	catalogRepo  catalogdomain.Repository
	calendar     calendar.Provider
	notifier     notification.Provider
	metrics      *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("booking.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		catalogRepo:  p.CatalogRepo,
		calendar:     p.Calendar,
		notifier:     p.Notifier,
		metrics:      p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateBookingRequest) (domain.Booking, error) {
	validated, customer, err := s.validate(ctx, req)
	if err != nil {
		return domain.Booking{}, err
	}

	now := s.clock.Now()
	booking := domain.Booking{
		ID:              s.genID.Generate(),
		CustomerID:      validated.CustomerID,
		StartTime:       validated.StartTime,
		EndTime:         validated.EndTime,
		Status:          domain.StatusPending,
		TotalDuration:   validated.Totals.DurationMinutes,
		TotalPriceCents: validated.Totals.PriceCents,
		Currency:        validated.Currency,
		Notes:           validated.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
		Services:        validated.Services,
	}
	for i := range booking.Services {
		booking.Services[i].BookingID = booking.ID
	}

	if err := s.repo.InsertWithConflictCheck(ctx, s.db, &booking); err != nil {
		if pkgdb.IsExclusionErr(err) {
			err = &domain.SlotConflictError{}
		}
		var conflict *domain.SlotConflictError
		if errors.As(err, &conflict) {
			s.metrics.RecordBookingConflict(ctx)
			s.log.Info("booking rejected on insert",
				zap.Int64("conflicting_id", int64(conflict.ConflictingID)),
			)
		}
		return domain.Booking{}, err
	}

	s.metrics.RecordBookingCreated(ctx)
	s.log.Info("booking created",
		zap.Int64("booking_id", int64(booking.ID)),
		zap.Int64("customer_id", int64(booking.CustomerID)),
		zap.Time("start_time", booking.StartTime),
		zap.Int64("total_price_cents", booking.TotalPriceCents),
	)

	go s.announce(booking, customer)

	return booking, nil
}

// validate runs the request through the full pipeline in order:
// customer, services, totals, end time, conflicts. The first failure
// wins and nothing is persisted.
func (s *Service) validate(ctx context.Context, req domain.CreateBookingRequest) (domain.ValidatedBooking, *customerdomain.Customer, error) {
	customer, err := s.customerRepo.FindByID(ctx, s.db, req.CustomerID)
	if err != nil {
		return domain.ValidatedBooking{}, nil, err
	}
	if customer == nil {
		return domain.ValidatedBooking{}, nil, customerdomain.ErrNotFound
	}

	if len(req.ServiceIDs) == 0 {
		return domain.ValidatedBooking{}, nil, domain.ErrEmptyServiceSet
	}
	services, err := s.catalogRepo.FindByIDs(ctx, s.db, req.ServiceIDs)
	if err != nil {
		return domain.ValidatedBooking{}, nil, err
	}
	if len(services) != len(dedupe(req.ServiceIDs)) {
		return domain.ValidatedBooking{}, nil, catalogdomain.ErrNotFound
	}

	if req.StartTime.IsZero() || !req.StartTime.After(s.clock.Now()) {
		return domain.ValidatedBooking{}, nil, domain.ErrInvalidStartTime
	}

	totals := domain.ComputeTotals(services)
	start := req.StartTime.UTC()
	end := start.Add(time.Duration(totals.DurationMinutes) * time.Minute)

	existing, err := s.repo.ListActiveIntervals(ctx, s.db, start, end)
	if err != nil {
		return domain.ValidatedBooking{}, nil, err
	}
	candidate := schedule.Interval{Start: start, End: end}
	if conflicts := schedule.FindConflicts(candidate, existing, 0); len(conflicts) > 0 {
		s.metrics.RecordBookingConflict(ctx)
		return domain.ValidatedBooking{}, nil, &domain.SlotConflictError{ConflictingID: conflicts[0].ID}
	}

	snapshot := make([]domain.BookedService, 0, len(services))
	for _, svc := range services {
		snapshot = append(snapshot, domain.BookedService{
			ServiceID:       svc.ID,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
			PriceCents:      svc.PriceCents,
		})
	}

	return domain.ValidatedBooking{
		CustomerID: customer.ID,
		StartTime:  start,
		EndTime:    end,
		Totals:     totals,
		Currency:   s.policy.Current().Currency,
		Notes:      req.Notes,
		Services:   snapshot,
	}, customer, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if booking == nil {
		return domain.Booking{}, domain.ErrNotFound
	}
	return *booking, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]domain.Booking, error) {
	customer, err := s.customerRepo.FindByID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, customerdomain.ErrNotFound
	}
	return s.repo.ListByCustomer(ctx, s.db, customerID)
}

func (s *Service) Confirm(ctx context.Context, id snowflake.ID) (domain.Booking, error) {
	return s.transition(ctx, id, domain.StatusConfirmed)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (domain.Booking, error) {
	booking, err := s.transition(ctx, id, domain.StatusCancelled)
	if err != nil {
		return domain.Booking{}, err
	}
	if booking.CalendarEventID != "" {
		go s.dropCalendarEvent(booking.ID, booking.CalendarEventID)
	}
	return booking, nil
}

func (s *Service) Complete(ctx context.Context, id snowflake.ID) (domain.Booking, error) {
	return s.transition(ctx, id, domain.StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, to domain.Status) (domain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if booking == nil {
		return domain.Booking{}, domain.ErrNotFound
	}
	if !domain.CanTransition(booking.Status, to) {
		return domain.Booking{}, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, booking.Status, to)
	}

	now := s.clock.Now()
	moved, err := s.repo.UpdateStatus(ctx, s.db, id, booking.Status, to, now)
	if err != nil {
		return domain.Booking{}, err
	}
	if !moved {
		// A concurrent transition won the race.
		return domain.Booking{}, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, booking.Status, to)
	}

	s.metrics.RecordBookingTransition(ctx, string(to))
	s.log.Info("booking transitioned",
		zap.Int64("booking_id", int64(id)),
		zap.String("from", string(booking.Status)),
		zap.String("to", string(to)),
	)

	booking.Status = to
	booking.UpdatedAt = now
	return *booking, nil
}

// announce pushes the booking to the calendar and mails the customer.
// Both are best-effort: the booking is already durable and failures
// are only logged.
func (s *Service) announce(booking domain.Booking, customer *customerdomain.Customer) {
	timeout := s.policy.Current().SideEffectTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	eventID, err := s.calendar.CreateEvent(ctx, calendar.Event{
		Title:       fmt.Sprintf("Booking for %s", customer.FullName),
		Description: booking.Notes,
		StartTime:   booking.StartTime,
		EndTime:     booking.EndTime,
	})
	if err != nil {
		s.log.Warn("calendar event creation failed",
			zap.Int64("booking_id", int64(booking.ID)),
			zap.Error(err),
		)
	} else if eventID != "" {
		if err := s.repo.SetCalendarEventID(ctx, s.db, booking.ID, eventID); err != nil {
			s.log.Warn("storing calendar event id failed",
				zap.Int64("booking_id", int64(booking.ID)),
				zap.Error(err),
			)
		}
	}

	serviceNames := make([]string, 0, len(booking.Services))
	for _, svc := range booking.Services {
		serviceNames = append(serviceNames, svc.Name)
	}
	err = s.notifier.SendBookingConfirmation(ctx, notification.BookingConfirmation{
		RecipientName:  customer.FullName,
		RecipientEmail: customer.Email,
		StartTime:      booking.StartTime,
		EndTime:        booking.EndTime,
		ServiceNames:   serviceNames,
		TotalCents:     booking.TotalPriceCents,
		Currency:       booking.Currency,
	})
	if err != nil {
		s.log.Warn("booking confirmation email failed",
			zap.Int64("booking_id", int64(booking.ID)),
			zap.Error(err),
		)
	}
}

func (s *Service) dropCalendarEvent(bookingID snowflake.ID, eventID string) {
	timeout := s.policy.Current().SideEffectTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.calendar.DeleteEvent(ctx, eventID); err != nil {
		s.log.Warn("calendar event deletion failed",
			zap.Int64("booking_id", int64(bookingID)),
			zap.Error(err),
		)
	}
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
