package api

import (
	"errors"
	"net/http"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/storage"
	"keeper-vault/internal/venue"
)

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	if de, ok := domain.AsError(err); ok {
		switch de.Code {
		case domain.ErrUnauthorizedKeeper.Code, domain.ErrNotOwner.Code:
			return http.StatusForbidden
		case domain.ErrDailyLimitExceeded.Code, domain.ErrCooldownActive.Code,
			domain.ErrProfileDisabled.Code, domain.ErrProfileExists.Code:
			return http.StatusConflict
		case domain.ErrInvalidParameter.Code:
			return http.StatusBadRequest
		default:
			return http.StatusUnprocessableEntity
		}
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, venue.ErrNoFill):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorDetail(err error) ErrorDetail {
	if de, ok := domain.AsError(err); ok {
		return ErrorDetail{Code: de.Code, Name: de.Name, Message: err.Error()}
	}
	name := "Internal"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		name = "NotFound"
	case errors.Is(err, storage.ErrConflict):
		name = "Conflict"
	case errors.Is(err, venue.ErrNoFill):
		name = "NoFill"
	}
	return ErrorDetail{Name: name, Message: err.Error()}
}

// APIError is a failed call as seen by Client. It unwraps to the matching
// domain or storage sentinel so callers can use errors.Is.
type APIError struct {
	Status int
	ErrorDetail
}

func (e *APIError) Error() string {
	return http.StatusText(e.Status) + ": " + e.Message
}

func (e *APIError) Unwrap() error {
	for _, de := range knownErrors {
		if de.Code == e.Code {
			return de
		}
	}
	switch e.Status {
	case http.StatusNotFound:
		return storage.ErrNotFound
	case http.StatusConflict:
		return storage.ErrConflict
	}
	return nil
}

var knownErrors = []*domain.Error{
	domain.ErrProfileDisabled,
	domain.ErrUnauthorizedKeeper,
	domain.ErrDailyLimitExceeded,
	domain.ErrInsufficientBalance,
	domain.ErrInsufficientFeePool,
	domain.ErrSlippageExceeded,
	domain.ErrInvalidSignalType,
	domain.ErrCooldownActive,
	domain.ErrInvalidMint,
	domain.ErrArithmeticOverflow,
	domain.ErrNotOwner,
	domain.ErrInvalidParameter,
	domain.ErrProfileExists,
}
