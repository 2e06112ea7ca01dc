package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	availabilitydomain "github.com/smallbiznis/serene/internal/availability/domain"
)

type slotRequest struct {
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
	Description string    `json:"description"`
	Available   *bool     `json:"available"`
}

func (r slotRequest) available() bool {
	if r.Available == nil {
		return true
	}
	return *r.Available
}

func (s *Server) ListAvailability(c *gin.Context) {
	var query struct {
		Date string `form:"date"`
		From string `form:"from"`
		To   string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if query.Date != "" {
		date, err := time.Parse("2006-01-02", query.Date)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		slots, err := s.availabilitySvc.ListByDate(c.Request.Context(), date)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": slots})
		return
	}

	from, err := time.Parse("2006-01-02", query.From)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	to, err := time.Parse("2006-01-02", query.To)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	slots, err := s.availabilitySvc.ListByRange(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": slots})
}

func (s *Server) CreateAvailabilitySlot(c *gin.Context) {
	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	slot, err := s.availabilitySvc.Create(c.Request.Context(), availabilitydomain.CreateSlotRequest{
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Description: req.Description,
		Available:   req.available(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": slot})
}

func (s *Server) UpdateAvailabilitySlot(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req slotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	slot, err := s.availabilitySvc.Update(c.Request.Context(), availabilitydomain.UpdateSlotRequest{
		ID:          id,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Description: req.Description,
		Available:   req.available(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": slot})
}

func (s *Server) DeleteAvailabilitySlot(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.availabilitySvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
