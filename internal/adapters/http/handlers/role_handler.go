package handlers

import (
	"namlend/internal/core/services"

	"github.com/gofiber/fiber/v2"
)

// RoleHandler handles user role endpoints
type RoleHandler struct {
	roles *services.RoleService
}

// NewRoleHandler creates a new role handler
func NewRoleHandler(roles *services.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// RoleRequest names one role to grant
type RoleRequest struct {
	Role   string `json:"role" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

// SetRolesRequest is the complete replacement role list
type SetRolesRequest struct {
	Roles  []string `json:"roles" validate:"required,min=1"`
	Reason string   `json:"reason" validate:"max=500"`
}

// Get returns a user's roles with the mutations allowed from them
// @Summary Get user roles
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /users/{id}/roles [get]
func (h *RoleHandler) Get(c *fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "user")
	}

	res, err := h.roles.Get(c.Context(), actor(c), userID)
	return reply(c, fiber.StatusOK, "User roles retrieved", res, err)
}

// Validate asks whether a role change would be allowed
// @Summary Validate role change
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param role query string true "client, loan_officer or admin"
// @Param operation query string true "add or remove"
// @Success 200 {object} response.Response
// @Router /users/{id}/roles/validate [get]
func (h *RoleHandler) Validate(c *fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "user")
	}

	res, err := h.roles.Validate(c.Context(), actor(c), userID, c.Query("role"), c.Query("operation"))
	return reply(c, fiber.StatusOK, "Role change validated", res, err)
}

// Assign grants a role
// @Summary Assign role
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param body body RoleRequest true "Role"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /users/{id}/roles [post]
func (h *RoleHandler) Assign(c *fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "user")
	}
	var req RoleRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	res, err := h.roles.Assign(c.Context(), actor(c), userID, req.Role, req.Reason)
	return reply(c, fiber.StatusOK, "Role assigned", res, err)
}

// Remove revokes a role
// @Summary Remove role
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param role path string true "Role"
// @Param reason query string false "Reason"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /users/{id}/roles/{role} [delete]
func (h *RoleHandler) Remove(c *fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "user")
	}

	res, err := h.roles.Remove(c.Context(), actor(c), userID, c.Params("role"), c.Query("reason"))
	return reply(c, fiber.StatusOK, "Role removed", res, err)
}

// Set replaces a user's roles
// @Summary Replace roles
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param body body SetRolesRequest true "Roles"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /users/{id}/roles [put]
func (h *RoleHandler) Set(c *fiber.Ctx) error {
	userID, ok := idParam(c, "id")
	if !ok {
		return badID(c, "user")
	}
	var req SetRolesRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	res, err := h.roles.Set(c.Context(), actor(c), userID, req.Roles, req.Reason)
	return reply(c, fiber.StatusOK, "Roles replaced", res, err)
}
