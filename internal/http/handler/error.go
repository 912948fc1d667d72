package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"blobgate/internal/auth"
	"blobgate/internal/http/middleware"
	"blobgate/internal/replay"
	"blobgate/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "UNAUTHORIZED", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// writeServiceError maps pipeline rejections to their statuses. Every
// rejection class keeps its own code so callers can distinguish a reused proof
// (retryable with a fresh proof) from a bad one.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNoProof),
		errors.Is(err, auth.ErrInvalidProof),
		errors.Is(err, auth.ErrWrongPurpose):
		return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization proof")
	case errors.Is(err, service.ErrPubkeyNotInRule):
		return writeError(c, fiber.StatusUnauthorized, "PUBKEY_NOT_IN_RULE", "pubkey not accepted by any rule")
	case errors.Is(err, replay.ErrProofUsed):
		return writeError(c, fiber.StatusBadRequest, "PROOF_ALREADY_USED", "authorization proof already used")
	case errors.Is(err, service.ErrAuthMissingHash):
		return writeError(c, fiber.StatusBadRequest, "AUTH_MISSING_SHA256", "authorization proof does not bind declared sha256")
	case errors.Is(err, service.ErrHashMismatch):
		return writeError(c, fiber.StatusBadRequest, "INCORRECT_SHA256", "incorrect blob sha256")
	case errors.Is(err, service.ErrNotWhitelisted):
		return writeError(c, fiber.StatusForbidden, "NOT_WHITELISTED", "pubkey is not on the allow-list")
	case errors.Is(err, service.ErrNoRule):
		return writeError(c, fiber.StatusNotFound, "TYPE_NOT_ACCEPTED", "no rule accepts this content type")
	case errors.Is(err, service.ErrBlobNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "blob not found")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
