package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Customer struct {
	ID        snowflake.ID `json:"id"`
	FullName  string       `json:"full_name"`
	Email     string       `json:"email"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
}

var ErrNotFound = errors.New("customer_not_found")
