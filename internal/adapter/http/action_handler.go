package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kzeybek/push-fanout/internal/app"
	"github.com/kzeybek/push-fanout/internal/domain"
)

// ActionHandler serves the action-dispatch endpoint: one POST body whose
// "action" field selects send, details or cron.
type ActionHandler struct {
	notifications *app.NotificationService
	drainer       *app.DrainService
	deviceCap     int
}

func NewActionHandler(notifications *app.NotificationService, drainer *app.DrainService, deviceCap int) *ActionHandler {
	return &ActionHandler{
		notifications: notifications,
		drainer:       drainer,
		deviceCap:     deviceCap,
	}
}

func (h *ActionHandler) Dispatch(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}

	switch req.Action {
	case "send":
		h.send(c, req)
	case "details":
		h.details(c, req)
	case "cron":
		h.cron(c)
	}
}

func (h *ActionHandler) send(c *gin.Context, req ActionRequest) {
	id, err := h.notifications.Send(c.Request.Context(), app.SendInput{
		Title:     req.Title,
		Message:   req.Message,
		CountryID: req.CountryID,
	})
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, failure(err.Error()))
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, failure(err.Error()))
		return
	}

	c.JSON(http.StatusOK, success(SendResult{NotificationID: id}))
}

func (h *ActionHandler) details(c *gin.Context, req ActionRequest) {
	if req.NotificationID <= 0 {
		c.JSON(http.StatusBadRequest, failure("notification_id is required"))
		return
	}

	details, err := h.notifications.Details(c.Request.Context(), req.NotificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, failure(nil))
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, failure(err.Error()))
		return
	}

	c.JSON(http.StatusOK, success(details))
}

func (h *ActionHandler) cron(c *gin.Context) {
	reports, err := h.drainer.Run(c.Request.Context(), h.deviceCap)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, failure(err.Error()))
		return
	}

	c.JSON(http.StatusOK, success(reports))
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrEmptyTitle) ||
		errors.Is(err, domain.ErrTitleTooLong) ||
		errors.Is(err, domain.ErrEmptyMessage) ||
		errors.Is(err, domain.ErrInvalidCountry)
}
