package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/serene/internal/booking/domain"
)

type createBookingRequest struct {
	CustomerID string    `json:"customer_id" binding:"required"`
	ServiceIDs []string  `json:"service_ids" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	Notes      string    `json:"notes"`
}

func (s *Server) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	serviceIDs := make([]snowflake.ID, 0, len(req.ServiceIDs))
	for _, raw := range req.ServiceIDs {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		serviceIDs = append(serviceIDs, id)
	}

	booking, err := s.bookingSvc.Create(c.Request.Context(), bookingdomain.CreateBookingRequest{
		CustomerID: customerID,
		ServiceIDs: serviceIDs,
		StartTime:  req.StartTime,
		Notes:      req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": booking})
}

func (s *Server) GetBooking(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func (s *Server) ListCustomerBookings(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	bookings, err := s.bookingSvc.ListByCustomer(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": bookings})
}

func (s *Server) ConfirmBooking(c *gin.Context) {
	s.transitionBooking(c, s.bookingSvc.Confirm)
}

func (s *Server) CancelBooking(c *gin.Context) {
	s.transitionBooking(c, s.bookingSvc.Cancel)
}

func (s *Server) CompleteBooking(c *gin.Context) {
	s.transitionBooking(c, s.bookingSvc.Complete)
}

func (s *Server) transitionBooking(c *gin.Context, transition func(ctx context.Context, id snowflake.ID) (bookingdomain.Booking, error)) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := transition(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": booking})
}

func parseIDParam(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		return 0, invalidRequestError()
	}
	return id, nil
}
