package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"tikit/internal/status"
	"tikit/models"
	"tikit/monitoring"
	"tikit/services"
)

type TicketHandler struct {
	ticketService *services.TicketService
	monitor       *monitoring.Monitor
}

func NewTicketHandler(ticketService *services.TicketService, monitor *monitoring.Monitor) *TicketHandler {
	return &TicketHandler{ticketService: ticketService, monitor: monitor}
}

// errorCode maps service sentinels to the stable codes scanner apps
// and the web client switch on.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, status.ErrPaymentNotFound):
		return http.StatusNotFound, "payment_not_found"
	case errors.Is(err, status.ErrPaymentNotSuccessful):
		return http.StatusBadRequest, "payment_not_successful"
	case errors.Is(err, status.ErrPaymentMismatch):
		return http.StatusForbidden, "payment_mismatch"
	case errors.Is(err, status.ErrTicketAlreadyExists):
		return http.StatusConflict, "ticket_already_exists"
	case errors.Is(err, status.ErrEventNotFound):
		return http.StatusNotFound, "event_not_found"
	case errors.Is(err, status.ErrTierNotFound):
		return http.StatusNotFound, "tier_not_found"
	case errors.Is(err, status.ErrTierSoldOut):
		return http.StatusConflict, "tier_sold_out"
	case errors.Is(err, status.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found"
	case errors.Is(err, status.ErrTicketNotActive):
		return http.StatusConflict, "ticket_not_active"
	case errors.Is(err, status.ErrMissingCredential):
		return http.StatusBadRequest, "missing_credential"
	case errors.Is(err, status.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(e *core.RequestEvent, err error) error {
	httpStatus, code := errorCode(err)
	return e.JSON(httpStatus, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	})
}

// canScan reports whether the authenticated record may verify or
// redeem tickets: gate staff, organizers, and superusers.
func canScan(e *core.RequestEvent) bool {
	if e.Auth == nil {
		return false
	}
	if e.Auth.Collection().Name == core.CollectionNameSuperusers {
		return true
	}
	role := e.Auth.GetString("role")
	return role == "organizer" || role == "staff"
}

// IssueTicket - Issue a ticket for a completed payment
func (h *TicketHandler) IssueTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req services.IssueRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.PaymentID == "" || req.EventID == "" || req.TierID == "" {
		return apis.NewBadRequestError("payment_id, event_id and tier_id are required", nil)
	}
	req.UserID = e.Auth.Id

	ticket, err := h.ticketService.Issue(e.Request.Context(), req)
	if err != nil {
		return writeError(e, err)
	}
	if h.monitor != nil {
		h.monitor.TrackTicketIssued(ticket.EventID, ticket.TierID)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"ticket":  ticket,
	})
}

// GetMyTickets - List the caller's tickets with wallet counters
func (h *TicketHandler) GetMyTickets(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	summary, err := h.ticketService.TicketsByUser(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusOK, summary)
}

// GetTicket - Fetch one of the caller's tickets
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticketID := e.Request.PathValue("ticketId")
	ticket, err := h.ticketService.TicketByID(e.Request.Context(), ticketID, e.Auth.Id)
	if err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusOK, ticket)
}

// VerifyTicket - Pre-entry check, never mutates the ticket
func (h *TicketHandler) VerifyTicket(e *core.RequestEvent) error {
	if !canScan(e) {
		return apis.NewForbiddenError("Scanner access required", nil)
	}

	var cred models.Credential
	if err := e.BindBody(&cred); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	result, err := h.ticketService.Verify(e.Request.Context(), cred, e.Auth.Id)
	if err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusOK, result)
}

// RedeemTicket - Consume a ticket at the gate
func (h *TicketHandler) RedeemTicket(e *core.RequestEvent) error {
	if !canScan(e) {
		return apis.NewForbiddenError("Scanner access required", nil)
	}

	var body struct {
		models.Credential
		Location   string `json:"location"`
		DeviceInfo string `json:"device_info"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	result, err := h.ticketService.Redeem(e.Request.Context(), services.RedeemRequest{
		Credential: body.Credential,
		AgentID:    e.Auth.Id,
		Location:   body.Location,
		DeviceInfo: body.DeviceInfo,
	})
	if h.monitor != nil {
		switch {
		case err == nil:
			h.monitor.TrackRedemption("success")
		case errors.Is(err, status.ErrTicketNotActive), errors.Is(err, status.ErrTicketNotFound):
			h.monitor.TrackRedemption("rejected")
		default:
			h.monitor.TrackRedemption("error")
		}
	}
	if err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
	})
}

// GetScanHistory - Audit trail for one ticket
func (h *TicketHandler) GetScanHistory(e *core.RequestEvent) error {
	if !canScan(e) {
		return apis.NewForbiddenError("Scanner access required", nil)
	}

	ticketID := e.Request.PathValue("ticketId")
	history, err := h.ticketService.ScanHistory(e.Request.Context(), ticketID)
	if err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id": ticketID,
		"scans":     history,
	})
}

// CancelTicket - Owner cancels an active ticket
func (h *TicketHandler) CancelTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticketID := e.Request.PathValue("ticketId")
	var body struct {
		Reason string `json:"reason"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	if err := h.ticketService.Cancel(e.Request.Context(), ticketID, e.Auth.Id, body.Reason); err != nil {
		return writeError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Ticket cancelled",
	})
}
