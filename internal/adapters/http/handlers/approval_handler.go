package handlers

import (
	"namlend/internal/core/services"

	"github.com/gofiber/fiber/v2"
)

// ApprovalHandler handles loan applications and approval workflow endpoints
type ApprovalHandler struct {
	approvals *services.ApprovalService
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(approvals *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

// Apply files a loan application for the caller
// @Summary Apply for a loan
// @Description Create a pending loan and start its approval workflow
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.ApplicationInput true "Application"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /loans [post]
func (h *ApprovalHandler) Apply(c *fiber.Ctx) error {
	var req services.ApplicationInput
	if ok, err := bind(c, &req); !ok {
		return err
	}

	res, err := h.approvals.Submit(c.Context(), actor(c), req)
	return reply(c, fiber.StatusCreated, "Loan application submitted", res, err)
}

// Start opens an approval request
// @Summary Start approval workflow
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.StartInput true "Request"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /approvals [post]
func (h *ApprovalHandler) Start(c *fiber.Ctx) error {
	var req services.StartInput
	if ok, err := bind(c, &req); !ok {
		return err
	}

	res, err := h.approvals.Start(c.Context(), actor(c), req)
	return reply(c, fiber.StatusCreated, "Approval workflow started", res, err)
}

// GetRequest returns a request with its stages and progress
// @Summary Get approval request
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) GetRequest(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "request")
	}

	res, err := h.approvals.GetRequest(c.Context(), actor(c), id)
	return reply(c, fiber.StatusOK, "Approval request retrieved", res, err)
}

// Cancel withdraws an in-progress request
// @Summary Cancel approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param body body ReasonRequest false "Reason"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /approvals/{id}/cancel [post]
func (h *ApprovalHandler) Cancel(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "request")
	}
	var req ReasonRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	res, err := h.approvals.Cancel(c.Context(), actor(c), id, req.Reason)
	return reply(c, fiber.StatusOK, "Approval request cancelled", res, err)
}

// GetStage returns one stage execution
// @Summary Get approval stage
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param id path int true "Stage ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /approval-stages/{id} [get]
func (h *ApprovalHandler) GetStage(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "stage")
	}

	res, err := h.approvals.GetStage(c.Context(), actor(c), id)
	return reply(c, fiber.StatusOK, "Approval stage retrieved", res, err)
}

// ApproveStage signs off the current stage
// @Summary Approve stage
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Stage ID"
// @Param body body NotesRequest false "Notes"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /approval-stages/{id}/approve [post]
func (h *ApprovalHandler) ApproveStage(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "stage")
	}
	var req NotesRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	res, err := h.approvals.ApproveStage(c.Context(), actor(c), id, req.Notes)
	return reply(c, fiber.StatusOK, "Stage approved", res, err)
}

// RejectStage rejects the current stage and ends the request
// @Summary Reject stage
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Stage ID"
// @Param body body NotesRequest true "Rejection notes"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /approval-stages/{id}/reject [post]
func (h *ApprovalHandler) RejectStage(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "stage")
	}
	var req NotesRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	res, err := h.approvals.RejectStage(c.Context(), actor(c), id, req.Notes)
	return reply(c, fiber.StatusOK, "Stage rejected", res, err)
}
