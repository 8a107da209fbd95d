// Package apperr is the error taxonomy of the core. Every failing operation
// returns an *Error carrying a kind (the broad category a transport layer
// maps to a status) and a stable machine-readable code. Errors wrap their
// cause, so errors.Is / errors.As keep working through the usual
// fmt.Errorf("...: %w", err) chains.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindConcurrency Kind = "concurrency"
	KindInternal    Kind = "internal"
)

// Stable failure codes surfaced to callers.
const (
	CodeProductNotFound    = "PRODUCT_NOT_FOUND"
	CodeProductInactive    = "PRODUCT_INACTIVE"
	CodeVariantNotFound    = "VARIANT_NOT_FOUND"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeCartNotFound       = "CART_NOT_FOUND"
	CodeCartFull           = "CART_FULL"
	CodeCartEmpty          = "CART_EMPTY"
	CodeActiveCartExists   = "ACTIVE_CART_EXISTS"
	CodeCartNotActive      = "CART_NOT_ACTIVE"
	CodeItemNotFound       = "ITEM_NOT_FOUND"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidCoupon      = "INVALID_COUPON"
	CodeCouponApplied      = "COUPON_APPLIED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeCheckoutRejected   = "CHECKOUT_REJECTED"
	CodeDuplicateOrder     = "DUPLICATE_ORDER"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail attaches one structured detail and returns the error for
// chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Concurrency(code, message string) *Error {
	return New(KindConcurrency, code, message)
}

func Internal(message string, cause error) *Error {
	return New(KindInternal, CodeStorageUnavailable, message).WithCause(cause)
}

// KindOf extracts the kind of err, or KindInternal if err carries no *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf extracts the code of err, or empty if err carries no *Error.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
