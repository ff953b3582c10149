package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Shelf error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"       // 400
	ErrOutOfRange           ErrorCode = "OUT_OF_RANGE"          // 400
	ErrNotFound             ErrorCode = "NOT_FOUND"             // 404
	ErrPersistenceTransient ErrorCode = "PERSISTENCE_TRANSIENT" // 503
	ErrPersistencePermanent ErrorCode = "PERSISTENCE_PERMANENT" // 409
	ErrConsistency          ErrorCode = "CONSISTENCY"           // 500
	ErrInternal             ErrorCode = "INTERNAL"              // 500
)

// Kind groups error codes into the handling classes the coordinator reacts to.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindTransient
	KindPermanent
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindConsistency:
		return "consistency"
	default:
		return "internal"
	}
}

// ShelfError represents a structured error with code, status, and details.
type ShelfError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *ShelfError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ShelfError) Unwrap() error { return e.Cause }

// Kind reports the handling class of the error.
func (e *ShelfError) Kind() Kind {
	switch e.Code {
	case ErrInvalidRequest, ErrOutOfRange:
		return KindValidation
	case ErrNotFound:
		return KindNotFound
	case ErrPersistenceTransient:
		return KindTransient
	case ErrPersistencePermanent:
		return KindPermanent
	case ErrConsistency:
		return KindConsistency
	default:
		return KindInternal
	}
}

// NewInvalidRequest creates a 400 error for invalid command parameters.
func NewInvalidRequest(msg string) *ShelfError {
	return &ShelfError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewOutOfRange creates a 400 error for reorder or insert indices outside the scope.
func NewOutOfRange(index, size int) *ShelfError {
	return &ShelfError{
		Code:    ErrOutOfRange,
		Status:  400,
		Message: fmt.Sprintf("index %d out of range for scope of %d items", index, size),
		Details: map[string]any{"index": index, "size": size},
	}
}

// NewNotFound creates a 404 error for an entry or child that no longer exists.
func NewNotFound(identifier string) *ShelfError {
	return &ShelfError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewTransient creates a 503 error for a backend that is temporarily unavailable.
func NewTransient(op string, cause error) *ShelfError {
	return &ShelfError{
		Code:    ErrPersistenceTransient,
		Status:  503,
		Message: fmt.Sprintf("%s: backend temporarily unavailable", op),
		Details: map[string]any{"op": op},
		Cause:   cause,
	}
}

// NewPermanent creates a 409 error for a write the backend rejected.
func NewPermanent(op string, cause error) *ShelfError {
	msg := fmt.Sprintf("%s: write rejected", op)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", op, cause)
	}
	return &ShelfError{
		Code:    ErrPersistencePermanent,
		Status:  409,
		Message: msg,
		Details: map[string]any{"op": op},
		Cause:   cause,
	}
}

// NewConsistency creates a 500 error for a broken ordering or counter invariant.
func NewConsistency(scope, msg string) *ShelfError {
	return &ShelfError{
		Code:    ErrConsistency,
		Status:  500,
		Message: fmt.Sprintf("%s: %s", scope, msg),
		Details: map[string]any{"scope": scope},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ShelfError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ShelfError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Cause:   err,
	}
}

// As extracts a ShelfError from err's chain.
func As(err error) (*ShelfError, bool) {
	var sErr *ShelfError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}

// Is checks if an error is a ShelfError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := As(err); ok {
		return sErr.Code == code
	}
	return false
}

// KindOf returns the handling class of err. Errors that are not ShelfErrors are internal.
func KindOf(err error) Kind {
	if sErr, ok := As(err); ok {
		return sErr.Kind()
	}
	return KindInternal
}

// IsValidation reports whether err is a caller error that must never be retried.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
