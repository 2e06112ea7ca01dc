package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/serene/internal/availability"
	"github.com/smallbiznis/serene/internal/booking"
	"github.com/smallbiznis/serene/internal/calendar"
	"github.com/smallbiznis/serene/internal/catalog"
	"github.com/smallbiznis/serene/internal/clock"
	"github.com/smallbiznis/serene/internal/config"
	"github.com/smallbiznis/serene/internal/customer"
	"github.com/smallbiznis/serene/internal/idempotency"
	"github.com/smallbiznis/serene/internal/logger"
	"github.com/smallbiznis/serene/internal/migration"
	"github.com/smallbiznis/serene/internal/notification"
	"github.com/smallbiznis/serene/internal/observability"
	"github.com/smallbiznis/serene/internal/payment"
	"github.com/smallbiznis/serene/internal/server"
	"github.com/smallbiznis/serene/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		db.Module,
		migration.Module,

		customer.Module,
		catalog.Module,
		availability.Module,
		calendar.Module,
		notification.Module,
		booking.Module,
		idempotency.Module,
		payment.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
