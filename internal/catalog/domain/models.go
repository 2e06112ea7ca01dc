package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is one bookable salon service. Prices are minor units.
type Service struct {
	ID              snowflake.ID `json:"id"`
	Name            string       `json:"name"`
	DurationMinutes int          `json:"duration_minutes"`
	PriceCents      int64        `json:"price_cents"`
	Active          bool         `json:"active"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (Service) TableName() string { return "salon_services" }

type Repository interface {
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Service, error)
}

var ErrNotFound = errors.New("service_not_found")
