package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/serene/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var items []domain.Service
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, duration_minutes, price_cents, active, created_at, updated_at
		 FROM salon_services
		 WHERE id IN ? AND active = TRUE`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
