package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/servery/internal/core/domain"
)

// statusFor is the only place domain errors become HTTP status codes.
func statusFor(err error) int {
	var (
		dup      *domain.DuplicateIdentityError
		fiberErr *fiber.Error
	)
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, domain.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &dup):
		return fiber.StatusConflict
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	default:
		return fiber.StatusInternalServerError
	}
}
