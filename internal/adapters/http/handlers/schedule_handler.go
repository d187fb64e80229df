package handlers

import (
	"time"

	"namlend/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ScheduleHandler handles repayment schedule, payment and late fee endpoints
type ScheduleHandler struct {
	schedule *services.ScheduleService
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(schedule *services.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule}
}

// GenerateRequest optionally pins the schedule start date
type GenerateRequest struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// ApplyPaymentRequest optionally limits how much of a payment is applied
type ApplyPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// Generate builds the amortization schedule of a loan
// @Summary Generate payment schedule
// @Description One installment per month of the term; a loan with a schedule is refused
// @Tags Schedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param body body GenerateRequest false "Start date (YYYY-MM-DD)"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/schedule [post]
func (h *ScheduleHandler) Generate(c *fiber.Ctx) error {
	loanID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "loan")
	}
	var req GenerateRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	var start *time.Time
	if req.StartDate != "" {
		// validated above
		t, _ := time.Parse(dateLayout, req.StartDate)
		start = &t
	}

	res, err := h.schedule.Generate(c.Context(), actor(c), loanID, start)
	return reply(c, fiber.StatusCreated, "Payment schedule generated", res, err)
}

// Get returns a loan's schedule
// @Summary Get payment schedule
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /loans/{id}/schedule [get]
func (h *ScheduleHandler) Get(c *fiber.Ctx) error {
	loanID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "loan")
	}

	res, err := h.schedule.Get(c.Context(), actor(c), loanID)
	return reply(c, fiber.StatusOK, "Payment schedule retrieved", res, err)
}

// RecordPayment registers a payment against a loan
// @Summary Record payment
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param body body services.PaymentInput true "Payment"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /loans/{id}/payments [post]
func (h *ScheduleHandler) RecordPayment(c *fiber.Ctx) error {
	loanID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "loan")
	}
	var req services.PaymentInput
	if ok, err := bind(c, &req); !ok {
		return err
	}

	res, err := h.schedule.RecordPayment(c.Context(), actor(c), loanID, req)
	return reply(c, fiber.StatusCreated, "Payment recorded", res, err)
}

// ApplyPayment allocates a recorded payment to the schedule
// @Summary Apply payment
// @Description Allocate to the oldest outstanding installment first, each capped at its remaining balance; any excess rolls to the next installment and the rest stays unapplied
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Payment ID"
// @Param body body ApplyPaymentRequest false "Amount to apply"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /payments/{id}/apply [post]
func (h *ScheduleHandler) ApplyPayment(c *fiber.Ctx) error {
	paymentID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "payment")
	}
	var req ApplyPaymentRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	res, err := h.schedule.ApplyPayment(c.Context(), actor(c), paymentID, req.Amount)
	return reply(c, fiber.StatusOK, "Payment applied", res, err)
}

// MarkOverdue runs the overdue scan now
// @Summary Mark overdue installments
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /schedules/overdue [post]
func (h *ScheduleHandler) MarkOverdue(c *fiber.Ctx) error {
	res, err := h.schedule.MarkOverdue(c.Context(), actor(c))
	return reply(c, fiber.StatusOK, "Overdue installments marked", res, err)
}

// QuoteLateFee computes the late fee owed on an installment
// @Summary Calculate late fee
// @Tags Late Fees
// @Produce json
// @Security BearerAuth
// @Param id path int true "Schedule entry ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /schedules/{id}/late-fee [get]
func (h *ScheduleHandler) QuoteLateFee(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "schedule")
	}

	res, err := h.schedule.CalculateLateFee(c.Context(), actor(c), id)
	return reply(c, fiber.StatusOK, "Late fee calculated", res, err)
}

// ApplyLateFee charges the outstanding late fee on an installment
// @Summary Apply late fee
// @Tags Late Fees
// @Produce json
// @Security BearerAuth
// @Param id path int true "Schedule entry ID"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /schedules/{id}/late-fee [post]
func (h *ScheduleHandler) ApplyLateFee(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "schedule")
	}

	res, err := h.schedule.ApplyLateFee(c.Context(), actor(c), id)
	return reply(c, fiber.StatusCreated, "Late fee applied", res, err)
}

// WaiveLateFee forgives a charged late fee
// @Summary Waive late fee
// @Tags Late Fees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Late fee ID"
// @Param body body ReasonRequest true "Waiver reason"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /late-fees/{id}/waive [post]
func (h *ScheduleHandler) WaiveLateFee(c *fiber.Ctx) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badID(c, "late fee")
	}
	var req ReasonRequest
	if ok, err := bindOptional(c, &req); !ok {
		return err
	}

	res, err := h.schedule.WaiveLateFee(c.Context(), actor(c), id, req.Reason)
	return reply(c, fiber.StatusOK, "Late fee waived", res, err)
}
