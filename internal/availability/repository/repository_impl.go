package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/serene/internal/availability/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, slot *domain.Slot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO availability_slots (
			id, slot_date, start_time, end_time, description, available, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		slot.ID,
		slot.SlotDate,
		slot.StartTime,
		slot.EndTime,
		slot.Description,
		slot.Available,
		slot.CreatedAt,
		slot.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, slot *domain.Slot) error {
	return db.WithContext(ctx).Exec(
		`UPDATE availability_slots
		 SET slot_date = ?, start_time = ?, end_time = ?, description = ?, available = ?, updated_at = ?
		 WHERE id = ?`,
		slot.SlotDate,
		slot.StartTime,
		slot.EndTime,
		slot.Description,
		slot.Available,
		slot.UpdatedAt,
		slot.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM availability_slots WHERE id = ?`,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Slot, error) {
	var item domain.Slot
	err := db.WithContext(ctx).Raw(
		`SELECT id, slot_date, start_time, end_time, description, available, created_at, updated_at
		 FROM availability_slots
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
	return &item, nil
}

func (r *repo) ListByDate(ctx context.Context, db *gorm.DB, date time.Time) ([]domain.Slot, error) {
	var items []domain.Slot
	err := db.WithContext(ctx).Raw(
		`SELECT id, slot_date, start_time, end_time, description, available, created_at, updated_at
		 FROM availability_slots
		 WHERE slot_date = ?
		 ORDER BY start_time`,
		date,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByRange(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Slot, error) {
	var items []domain.Slot
	err := db.WithContext(ctx).Raw(
		`SELECT id, slot_date, start_time, end_time, description, available, created_at, updated_at
		 FROM availability_slots
		 WHERE slot_date >= ? AND slot_date <= ?
		 ORDER BY slot_date, start_time`,
		from,
		to,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
