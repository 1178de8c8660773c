package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sibysi/agent-directory/internal/model"
	"github.com/sibysi/agent-directory/internal/service"
)

type AgentHandler struct {
	revenue service.RevenueService
	notify  service.NotificationService
}

func NewAgentHandler(revenue service.RevenueService, notify service.NotificationService) *AgentHandler {
	return &AgentHandler{revenue: revenue, notify: notify}
}

func (h *AgentHandler) Revenue(c echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "missing agent id"))
	}
	cents, err := h.revenue.Get(c.Request().Context(), agentID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to load revenue"))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"agentId":      agentID,
		"revenueCents": cents,
	})
}

type NotificationResponse struct {
	ID            uint64  `json:"id"`
	Type          string  `json:"type"`
	Title         string  `json:"title"`
	Body          string  `json:"body"`
	TransactionID *string `json:"transactionId,omitempty"`
	Read          bool    `json:"read"`
	CreatedAt     string  `json:"createdAt"`
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            n.ID,
		Type:          n.Type,
		Title:         n.Title,
		Body:          n.Body,
		TransactionID: n.TransactionID,
		Read:          n.ReadAt != nil,
		CreatedAt:     n.CreatedAt.Format(time.RFC3339),
	}
}

func (h *AgentHandler) Notifications(c echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "missing agent id"))
	}
	limit := 20
	if lStr := c.QueryParam("limit"); lStr != "" {
		if parsed, err := strconv.Atoi(lStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	list, err := h.notify.List(c.Request().Context(), agentID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to load notifications"))
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, resp)
}
