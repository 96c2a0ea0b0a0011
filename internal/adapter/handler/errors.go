package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/storefront/internal/core/domain"
)

type errorMapping struct {
	target error
	status int
	code   string
	grpc   codes.Code
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", codes.Unauthenticated},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden", codes.PermissionDenied},
	{domain.ErrNotFound, http.StatusNotFound, "not_found", codes.NotFound},
	{domain.ErrEmptyCart, http.StatusBadRequest, "empty_cart", codes.FailedPrecondition},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity", codes.InvalidArgument},
	{domain.ErrInvalidProduct, http.StatusBadRequest, "invalid_product", codes.InvalidArgument},
	{domain.ErrInvalidStatus, http.StatusBadRequest, "invalid_status", codes.InvalidArgument},
	{domain.ErrInsufficientStock, http.StatusConflict, "insufficient_stock", codes.FailedPrecondition},
	{domain.ErrConflict, http.StatusConflict, "conflict", codes.Aborted},
	{domain.ErrDuplicateRequest, http.StatusConflict, "duplicate_request", codes.AlreadyExists},
	{domain.ErrTransaction, http.StatusInternalServerError, "transaction_failed", codes.Unavailable},
}

func mapError(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return errorMapping{status: http.StatusInternalServerError, code: "internal", grpc: codes.Internal}
}

// publicMessage hides internal failure details from clients.
func publicMessage(err error, m errorMapping) string {
	switch m.code {
	case "internal":
		return "internal error"
	case "transaction_failed":
		return "order could not be saved; check your order history before retrying"
	default:
		return err.Error()
	}
}
