package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	availabilitydomain "github.com/smallbiznis/serene/internal/availability/domain"
	bookingdomain "github.com/smallbiznis/serene/internal/booking/domain"
	"github.com/smallbiznis/serene/internal/config"
	paymentdomain "github.com/smallbiznis/serene/internal/payment/domain"
	"github.com/smallbiznis/serene/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	BookingSvc      bookingdomain.Service
	AvailabilitySvc availabilitydomain.Service
	PaymentSvc      paymentdomain.Service
	Dispatcher      *webhook.Dispatcher
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	bookingSvc      bookingdomain.Service
	availabilitySvc availabilitydomain.Service
	paymentSvc      paymentdomain.Service
	dispatcher      *webhook.Dispatcher
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		bookingSvc:      p.BookingSvc,
		availabilitySvc: p.AvailabilitySvc,
		paymentSvc:      p.PaymentSvc,
		dispatcher:      p.Dispatcher,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	bookings := v1.Group("/bookings")
	bookings.POST("", s.CreateBooking)
	bookings.GET("/:id", s.GetBooking)
	bookings.POST("/:id/confirm", s.ConfirmBooking)
	bookings.POST("/:id/cancel", s.CancelBooking)
	bookings.POST("/:id/complete", s.CompleteBooking)
	bookings.GET("/:id/payments", s.ListBookingPayments)

	v1.GET("/customers/:id/bookings", s.ListCustomerBookings)

	availability := v1.Group("/availability")
	availability.GET("", s.ListAvailability)
	availability.POST("", s.CreateAvailabilitySlot)
	availability.PUT("/:id", s.UpdateAvailabilitySlot)
	availability.DELETE("/:id", s.DeleteAvailabilitySlot)

	payments := v1.Group("/payments")
	payments.POST("", s.CreatePayment)
	payments.GET("/:id", s.GetPayment)
	payments.POST("/:id/confirm", s.ConfirmPayment)
	payments.POST("/:id/cancel", s.CancelPayment)
	payments.POST("/:id/refund", s.RefundPayment)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
