package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/serene/internal/booking/domain"
	"github.com/smallbiznis/serene/internal/schedule"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type conflictRow struct {
	ID        snowflake.ID
	StartTime time.Time
	EndTime   time.Time
}

func (r *repo) InsertWithConflictCheck(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []conflictRow
		err := tx.Raw(
			`SELECT id, start_time, end_time
			 FROM bookings
			 WHERE status <> 'CANCELLED'
			   AND start_time < ? AND end_time > ?`,
			booking.EndTime,
			booking.StartTime,
		).Scan(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return &domain.SlotConflictError{ConflictingID: rows[0].ID}
		}

		err = tx.Exec(
			`INSERT INTO bookings (
				id, customer_id, start_time, end_time, status,
				total_duration_minutes, total_price_cents, currency,
				notes, calendar_event_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			booking.ID,
			booking.CustomerID,
			booking.StartTime,
			booking.EndTime,
			booking.Status,
			booking.TotalDuration,
			booking.TotalPriceCents,
			booking.Currency,
			booking.Notes,
			booking.CalendarEventID,
			booking.CreatedAt,
			booking.UpdatedAt,
		).Error
		if err != nil {
			return err
		}

		for _, svc := range booking.Services {
			err = tx.Exec(
				`INSERT INTO booking_services (
					booking_id, service_id, name, duration_minutes, price_cents
				) VALUES (?, ?, ?, ?, ?)`,
				booking.ID,
				svc.ServiceID,
				svc.Name,
				svc.DurationMinutes,
				svc.PriceCents,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var item domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, start_time, end_time, status,
		        total_duration_minutes, total_price_cents, currency,
		        notes, calendar_event_id, created_at, updated_at
		 FROM bookings
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}

	if err := r.loadServices(ctx, db, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) loadServices(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Raw(
		`SELECT booking_id, service_id, name, duration_minutes, price_cents
		 FROM booking_services
		 WHERE booking_id = ?
		 ORDER BY service_id`,
		booking.ID,
	).Scan(&booking.Services).Error
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.Booking, error) {
	var items []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, start_time, end_time, status,
		        total_duration_minutes, total_price_cents, currency,
		        notes, calendar_event_id, created_at, updated_at
		 FROM bookings
		 WHERE customer_id = ?
		 ORDER BY start_time DESC`,
		customerID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}

	for i := range items {
		if err := r.loadServices(ctx, db, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *repo) ListActiveIntervals(ctx context.Context, db *gorm.DB, from, to time.Time) ([]schedule.Interval, error) {
	var rows []conflictRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, start_time, end_time
		 FROM bookings
		 WHERE status <> 'CANCELLED'
		   AND start_time < ? AND end_time > ?
		 ORDER BY start_time`,
		to,
		from,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	intervals := make([]schedule.Interval, 0, len(rows))
	for _, row := range rows {
		intervals = append(intervals, schedule.Interval{
			ID:    row.ID,
			Start: row.StartTime,
			End:   row.EndTime,
		})
	}
	return intervals, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		updatedAt,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetCalendarEventID(ctx context.Context, db *gorm.DB, id snowflake.ID, eventID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bookings SET calendar_event_id = ? WHERE id = ?`,
		eventID,
		id,
	).Error
}
