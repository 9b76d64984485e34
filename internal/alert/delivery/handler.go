package delivery

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	alertdomain "plateping-backend/internal/alert/domain"
	alertdto "plateping-backend/internal/alert/dto"
	"plateping-backend/internal/alert/usecase"
	"plateping-backend/internal/notification"

	"github.com/gin-gonic/gin"
)

// AlertHandler handles blockage reports, responses and plate registrations
type AlertHandler struct {
	alertUsecase usecase.AlertUsecase
	dispatcher   *notification.Dispatcher
}

// NewAlertHandler creates a new AlertHandler. dispatcher may be nil when push
// delivery is not configured.
func NewAlertHandler(alertUsecase usecase.AlertUsecase, dispatcher *notification.Dispatcher) *AlertHandler {
	return &AlertHandler{
		alertUsecase: alertUsecase,
		dispatcher:   dispatcher,
	}
}

// Report creates an alert for a plate fingerprint and kicks off dispatch.
// The reporter always gets an alert id back, even when the fanout set is
// empty or every delivery fails.
func (h *AlertHandler) Report(c *gin.Context) {
	var req alertdto.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	senderID := c.GetString("userID")
	ttl := time.Duration(req.TTLSeconds) * time.Second

	alert, err := h.alertUsecase.CreateAlert(senderID, req.PlateFingerprint,
		alertdomain.Urgency(req.Urgency), req.Message, ttl)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.dispatcher != nil && len(alert.Recipients) > 0 {
		recipients := make([]string, 0, len(alert.Recipients))
		for _, r := range alert.Recipients {
			recipients = append(recipients, r.UserID)
		}
		alertCopy := *alert
		go func() {
			if _, err := h.dispatcher.Deliver(context.Background(), &alertCopy, recipients); err != nil {
				log.Printf("[Alert] Dispatch failed for alert %s: %v", alertCopy.ID, err)
			}
		}()
	}

	c.JSON(http.StatusCreated, gin.H{"alert": alert})
}

func (h *AlertHandler) GetAlert(c *gin.Context) {
	alert, err := h.alertUsecase.GetAlert(c.GetString("userID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

func (h *AlertHandler) ListSent(c *gin.Context) {
	alerts, err := h.alertUsecase.ListSent(c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *AlertHandler) ListReceived(c *gin.Context) {
	alerts, err := h.alertUsecase.ListReceived(c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *AlertHandler) Respond(c *gin.Context) {
	var req alertdto.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.alertUsecase.Respond(c.Param("id"), c.GetString("userID"), req.Response); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "acknowledged"})
}

func (h *AlertHandler) Resolve(c *gin.Context) {
	if err := h.alertUsecase.Resolve(c.Param("id"), c.GetString("userID")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "resolved"})
}

func (h *AlertHandler) Cancel(c *gin.Context) {
	if err := h.alertUsecase.Cancel(c.Param("id"), c.GetString("userID")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancelled"})
}

func (h *AlertHandler) Ignore(c *gin.Context) {
	if err := h.alertUsecase.Ignore(c.Param("id"), c.GetString("userID")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ignored"})
}

func (h *AlertHandler) RegisterPlate(c *gin.Context) {
	var req alertdto.RegisterPlateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg, err := h.alertUsecase.RegisterPlate(c.GetString("userID"), req.PlateFingerprint, req.Alias)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"registration": reg})
}

func (h *AlertHandler) UnregisterPlate(c *gin.Context) {
	if err := h.alertUsecase.UnregisterPlate(c.GetString("userID"), c.Param("fingerprint")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unregistered"})
}

func (h *AlertHandler) ListPlates(c *gin.Context) {
	regs, err := h.alertUsecase.ListPlates(c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

func (h *AlertHandler) GetStats(c *gin.Context) {
	stats, err := h.alertUsecase.GetStats(c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// respondError maps the domain error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var validationErr *alertdomain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, alertdomain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, alertdomain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
	case errors.Is(err, alertdomain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid status transition"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
