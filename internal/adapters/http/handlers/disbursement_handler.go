package handlers

import (
	"namlend/internal/core/services"
	"namlend/internal/pkg/pagination"

	"github.com/gofiber/fiber/v2"
)

// DisbursementHandler handles disbursement endpoints
type DisbursementHandler struct {
	disbursements *services.DisbursementService
}

// NewDisbursementHandler creates a new disbursement handler
func NewDisbursementHandler(disbursements *services.DisbursementService) *DisbursementHandler {
	return &DisbursementHandler{disbursements: disbursements}
}

// NotesRequest carries optional free-text notes
type NotesRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

// ReasonRequest carries a mandatory reason
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// Create opens a disbursement for an approved loan
// @Summary Create disbursement
// @Description Open a pending disbursement for an approved loan
// @Tags Disbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param body body NotesRequest false "Notes"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/disbursement [post]
func (h *DisbursementHandler) Create(c *fiber.Ctx) error {
	loanID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "loan")
	}
	var req NotesRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	res, err := h.disbursements.CreateOnApproval(c.Context(), actor(c), loanID, req.Notes)
	return reply(c, fiber.StatusCreated, "Disbursement created", res, err)
}

// Approve moves a pending disbursement to approved
// @Summary Approve disbursement
// @Tags Disbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Disbursement ID"
// @Param body body NotesRequest false "Notes"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /disbursements/{id}/approve [post]
func (h *DisbursementHandler) Approve(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "disbursement")
	}
	var req NotesRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	res, err := h.disbursements.Approve(c.Context(), actor(c), id, req.Notes)
	return reply(c, fiber.StatusOK, "Disbursement approved", res, err)
}

// Process moves an approved disbursement to processing
// @Summary Start processing disbursement
// @Tags Disbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Disbursement ID"
// @Param body body NotesRequest false "Notes"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /disbursements/{id}/processing [post]
func (h *DisbursementHandler) Process(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "disbursement")
	}
	var req NotesRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	res, err := h.disbursements.MarkProcessing(c.Context(), actor(c), id, req.Notes)
	return reply(c, fiber.StatusOK, "Disbursement processing", res, err)
}

// Complete records the payout of a processing disbursement
// @Summary Complete disbursement
// @Description Record payment method and reference; the loan becomes disbursed
// @Tags Disbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Disbursement ID"
// @Param body body services.CompleteInput true "Payout details"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /disbursements/{id}/complete [post]
func (h *DisbursementHandler) Complete(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "disbursement")
	}
	var req services.CompleteInput
	if ok, err := bind(c, &req); !ok {
		return err
	}

	res, err := h.disbursements.Complete(c.Context(), actor(c), id, req)
	return reply(c, fiber.StatusOK, "Disbursement completed", res, err)
}

// Fail marks an open disbursement as failed
// @Summary Fail disbursement
// @Tags Disbursements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Disbursement ID"
// @Param body body ReasonRequest true "Failure reason"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /disbursements/{id}/fail [post]
func (h *DisbursementHandler) Fail(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "disbursement")
	}
	var req ReasonRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	res, err := h.disbursements.Fail(c.Context(), actor(c), id, req.Reason)
	return reply(c, fiber.StatusOK, "Disbursement failed", res, err)
}

// ListPending lists open disbursements
// @Summary List pending disbursements
// @Tags Disbursements
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved or processing"
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} response.Response
// @Router /disbursements [get]
func (h *DisbursementHandler) ListPending(c *fiber.Ctx) error {
	p := pagination.GetParams(c)
	res, err := h.disbursements.ListPending(c.Context(), actor(c), services.PendingFilter{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	return reply(c, fiber.StatusOK, "Disbursements retrieved", res, err)
}
