package controllers

import (
	"errors"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/apperrors"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/gateway"
)

var (
	validate = validator.New()

	gatewayOnce   sync.Once
	gatewayClient gateway.Client
)

// getGatewayClient returns the process-wide gateway client. The circuit
// breaker inside must accumulate state across requests, so the client is a
// singleton rather than per-request.
func getGatewayClient() gateway.Client {
	gatewayOnce.Do(func() {
		gatewayClient = gateway.NewHTTPClientFromEnv()
	})
	return gatewayClient
}

// SetGatewayClient swaps the gateway implementation; used by tests and the
// sandbox profile.
func SetGatewayClient(client gateway.Client) {
	gatewayOnce.Do(func() {})
	gatewayClient = client
}

// parseBody binds and validates a JSON request body.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.Validation("invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return apperrors.Wrap(apperrors.CodeValidation, err, "request validation failed")
	}
	return nil
}

// paramUint reads a numeric path parameter.
func paramUint(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, apperrors.Validation("invalid %s parameter %q", name, raw)
	}
	return uint(v), nil
}

// respondError maps the error taxonomy onto HTTP statuses with a stable
// {error, message} JSON shape.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		log.Errorf("unhandled error on %s: %v", c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_server_error",
			"message": "unexpected error",
		})
	}

	status := fiber.StatusInternalServerError
	switch appErr.Code {
	case apperrors.CodeValidation:
		status = fiber.StatusBadRequest
	case apperrors.CodeUnauthorized:
		status = fiber.StatusUnauthorized
	case apperrors.CodeForbidden:
		status = fiber.StatusForbidden
	case apperrors.CodeConflict:
		status = fiber.StatusConflict
	case apperrors.CodeNotFound:
		status = fiber.StatusNotFound
	case apperrors.CodeGatewayError:
		status = fiber.StatusBadGateway
	case apperrors.CodeDuplicateRequest:
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}
