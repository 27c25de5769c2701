package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"tikit/models"
	"tikit/services"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	devMode        bool
}

func NewPaymentHandler(paymentService *services.PaymentService, devMode bool) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, devMode: devMode}
}

// CreatePayment - Open a pending payment for an event purchase
func (h *PaymentHandler) CreatePayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		EventID string `json:"event_id"`
		Method  string `json:"method"`
		Amount  string `json:"amount"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() || req.EventID == "" {
		return apis.NewBadRequestError("event_id and a non-negative amount are required", nil)
	}

	payment, err := h.paymentService.CreatePayment(e.Request.Context(), e.Auth.Id, req.EventID, req.Method, amount)
	if err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusCreated, payment)
}

// GetPaymentDetails - Payment record for the paying user
func (h *PaymentHandler) GetPaymentDetails(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	paymentID := e.Request.PathValue("paymentId")
	payment, err := h.paymentService.PaymentByID(e.Request.Context(), paymentID)
	if err != nil {
		return writeError(e, err)
	}
	if payment.UserID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}
	return e.JSON(http.StatusOK, payment)
}

// CheckPaymentStatus - Polling endpoint backed by the Redis mirror
func (h *PaymentHandler) CheckPaymentStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	paymentID := e.Request.PathValue("paymentId")
	paymentStatus, err := h.paymentService.PaymentStatus(e.Request.Context(), paymentID)
	if err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"status": paymentStatus})
}

// SimulatePayment - Flip a payment's status without a bank callback.
// Registered only outside production.
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	if !h.devMode {
		return apis.NewForbiddenError("Not available", nil)
	}
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.Status == "" {
		req.Status = models.PaymentStatusSuccessful
	}

	if err := h.paymentService.ConfirmPayment(e.Request.Context(), req.PaymentID, req.Status, "simulated"); err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"status":  req.Status,
	})
}
