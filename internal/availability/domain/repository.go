package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, slot *Slot) error
	Update(ctx context.Context, db *gorm.DB, slot *Slot) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Slot, error)
	ListByDate(ctx context.Context, db *gorm.DB, date time.Time) ([]Slot, error)
	ListByRange(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Slot, error)
}
