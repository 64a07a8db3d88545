package gateway

import (
	"context"
	"errors"

	"termfolio/internal/portfolio"
)

// FriendlyError carries a store failure whose Message can be shown to the
// visitor as is.
type FriendlyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *FriendlyError) Error() string {
	return e.Message
}

func (e *FriendlyError) Unwrap() error { return e.Cause }

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if isValidationError(err) || errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrVersionConflict) {
		return err
	}
	var friendly *FriendlyError
	if errors.As(err, &friendly) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &FriendlyError{Code: "REQUEST_CANCELLED", Message: "Request cancelled before the document was saved.", Cause: err}
	}
	if errors.Is(err, portfolio.ErrRemoteUnavailable) {
		return &FriendlyError{Code: "STORE_UNAVAILABLE", Message: err.Error(), Cause: err}
	}
	return &FriendlyError{Code: "STORE_WRITE_FAILED", Message: err.Error(), Cause: err}
}

func isValidationError(err error) bool {
	for _, target := range []error{ErrInvalidPath, ErrUnknownField, ErrNotAnArray, ErrIndexOutOfBounds, ErrInvalidValue} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
