package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sibysi/agent-directory/internal/model"
	"github.com/sibysi/agent-directory/internal/profit"
	"github.com/sibysi/agent-directory/internal/service"
)

type FulfillmentHandler struct {
	svc    service.FulfillmentService
	runner *service.Runner
}

func NewFulfillmentHandler(svc service.FulfillmentService, runner *service.Runner) *FulfillmentHandler {
	return &FulfillmentHandler{svc: svc, runner: runner}
}

// Trigger starts fulfillment for a paid transaction. Execution continues in
// the background; the caller polls Status for the result.
func (h *FulfillmentHandler) Trigger(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "missing transaction id"))
	}

	// Reject unknown transactions synchronously; everything else is async.
	if _, err := h.svc.Status(c.Request().Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "transaction not found"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to load transaction"))
	}

	if err := h.runner.Enqueue(id); err != nil {
		if errors.Is(err, service.ErrRunnerBusy) {
			return c.JSON(http.StatusServiceUnavailable, NewErrorResponse("busy", "fulfillment backlog full, retry later"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", err.Error()))
	}

	return c.JSON(http.StatusAccepted, AcceptedResponse{
		Success:       true,
		Message:       "Fulfillment started",
		TransactionID: id,
		Status:        "processing",
	})
}

func (h *FulfillmentHandler) Status(c echo.Context) error {
	id := c.Param("id")
	view, err := h.svc.Status(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "transaction not found"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to load status"))
	}
	return c.JSON(http.StatusOK, view)
}

type ManualTaskResponse struct {
	TransactionID  string         `json:"transactionId"`
	BuyerAgentID   string         `json:"buyerAgentId"`
	ListingID      string         `json:"listingId"`
	ServiceName    string         `json:"serviceName"`
	SourcePlatform string         `json:"sourcePlatform"`
	SourceURL      string         `json:"sourceUrl"`
	SourcePrice    string         `json:"sourcePrice"`
	BuyerPaid      string         `json:"buyerPaid"`
	BuyerInput     map[string]any `json:"buyerInput"`
	Instructions   string         `json:"instructions"`
	CreatedAt      string         `json:"createdAt"`
}

func toManualTaskResponse(t model.ManualFulfillmentTask) ManualTaskResponse {
	return ManualTaskResponse{
		TransactionID:  t.TransactionID,
		BuyerAgentID:   t.BuyerAgentID,
		ListingID:      t.ListingID,
		ServiceName:    t.ServiceName,
		SourcePlatform: t.SourcePlatform,
		SourceURL:      t.SourceURL,
		SourcePrice:    t.SourcePrice.StringFixed(2),
		BuyerPaid:      t.BuyerPaid.StringFixed(2),
		BuyerInput:     t.BuyerInput,
		Instructions:   t.Instructions,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
}

func (h *FulfillmentHandler) ManualQueue(c echo.Context) error {
	tasks, err := h.svc.ManualQueue(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to load manual queue"))
	}
	resp := make([]ManualTaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toManualTaskResponse(t))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"pendingTasks": len(resp),
		"tasks":        resp,
	})
}

type manualCompleteRequest struct {
	TransactionID string         `json:"transactionId"`
	DeliveryType  string         `json:"deliveryType"` // file, credentials, text_result, url, api_result
	DeliveryData  map[string]any `json:"deliveryData"`
	Notes         string         `json:"notes"`
}

func (h *FulfillmentHandler) CompleteManual(c echo.Context) error {
	var req manualCompleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	if req.TransactionID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "transactionId is required"))
	}
	delivery := map[string]any{
		"type":         req.DeliveryType,
		"data":         req.DeliveryData,
		"notes":        req.Notes,
		"completed_by": "manual",
	}
	if err := h.svc.CompleteManualTask(c.Request().Context(), req.TransactionID, delivery); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrTaskNotFound):
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", err.Error()))
		case errors.Is(err, service.ErrNotAwaitingDelivery):
			return c.JSON(http.StatusConflict, NewErrorResponse("conflict", err.Error()))
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", err.Error()))
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Manual fulfillment complete",
		"transactionId": req.TransactionID,
	})
}

type profitRequest struct {
	BuyerPaid  decimal.Decimal `json:"buyerPaid"`
	SourceCost decimal.Decimal `json:"sourceCost"`
	Platform   string          `json:"platform"`
}

func (h *FulfillmentHandler) CalculateProfit(c echo.Context) error {
	var req profitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	if req.BuyerPaid.IsNegative() || req.SourceCost.IsNegative() {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "amounts must be non-negative"))
	}
	return c.JSON(http.StatusOK, profit.ComputeNetProfit(req.BuyerPaid, req.SourceCost, req.Platform))
}

func (h *FulfillmentHandler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to compute stats"))
	}
	return c.JSON(http.StatusOK, stats)
}

type sourceCompleteRequest struct {
	TransactionID string         `json:"transactionId"`
	Platform      string         `json:"platform"`
	ResultData    map[string]any `json:"resultData"`
}

// SourceComplete is the webhook for source platforms that notify us when an
// order finishes; it completes the transaction like a strategy success.
func (h *FulfillmentHandler) SourceComplete(c echo.Context) error {
	var req sourceCompleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid body"))
	}
	if req.TransactionID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "transactionId is required"))
	}
	if err := h.svc.HandleSourceComplete(c.Request().Context(), req.TransactionID, req.Platform, req.ResultData); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", err.Error()))
		case errors.Is(err, service.ErrNotAwaitingDelivery):
			return c.JSON(http.StatusConflict, NewErrorResponse("conflict", err.Error()))
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", err.Error()))
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Delivery processed",
		"transactionId": req.TransactionID,
	})
}
