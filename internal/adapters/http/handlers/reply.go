package handlers

import (
	"strconv"

	"namlend/internal/adapters/http/middleware"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/core/services"
	"namlend/internal/pkg/response"
	"namlend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// statusClientClosed is the non-standard status for a caller that went away
const statusClientClosed = 499

// statusFor maps a failure code to an HTTP status
func statusFor(code string) int {
	switch code {
	case domain.CodeValidation:
		return fiber.StatusBadRequest
	case domain.CodeUnauthorized:
		return fiber.StatusForbidden
	case domain.CodeNotFound:
		return fiber.StatusNotFound
	case domain.CodeConflict:
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// reply writes the outcome of a service call. Gateway errors become 503,
// 504, 499 or 500; business failures keep their code and message.
func reply[T any](c *fiber.Ctx, status int, message string, res services.Result[T], err error) error {
	if err != nil {
		msg := services.Message(res, err)
		switch tag := rpc.TagOf(err); tag {
		case rpc.TagCircuitOpen:
			return response.Fail(c, fiber.StatusServiceUnavailable, tag, msg)
		case rpc.TagTimeout:
			return response.Fail(c, fiber.StatusGatewayTimeout, tag, msg)
		case rpc.TagCancelled:
			return response.Fail(c, statusClientClosed, tag, msg)
		case rpc.TagTransport:
			return response.Fail(c, fiber.StatusInternalServerError, tag, msg)
		}
		return response.InternalServerError(c, msg)
	}

	if !res.Success {
		return response.Fail(c, statusFor(res.Code), res.Code, res.Error)
	}

	if status == fiber.StatusCreated {
		return response.Created(c, message, res.Data)
	}
	return response.Success(c, message, res.Data)
}

// bind parses the JSON body into dst and validates it. It writes the 400
// itself and reports false when the request should stop there.
func bind(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, response.Fail(c, fiber.StatusBadRequest, domain.CodeValidation, "Invalid request body")
	}
	if msg := validation.Struct(dst); msg != "" {
		return false, response.Fail(c, fiber.StatusBadRequest, domain.CodeValidation, msg)
	}
	return true, nil
}

// bindOptional is bind for endpoints whose body may be empty
func bindOptional(c *fiber.Ctx, dst any) (bool, error) {
	if len(c.Body()) == 0 {
		return true, nil
	}
	return bind(c, dst)
}

// idParam reads a positive numeric path parameter
func idParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 0)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func badID(c *fiber.Ctx, what string) error {
	return response.Fail(c, fiber.StatusBadRequest, domain.CodeValidation, "Invalid "+what+" ID")
}

// actor returns the authenticated caller; routes that call it sit behind
// AuthMiddleware
func actor(c *fiber.Ctx) services.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}
