package services

import (
	"errors"
	"fmt"
)

// Error codes returned to clients.
const (
	CodeCustomerNotFound     = "CUSTOMER_NOT_FOUND"
	CodeLedgerNotFound       = "LEDGER_NOT_FOUND"
	CodeShopNotFound         = "SHOP_NOT_FOUND"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodeInvalidReversal      = "INVALID_REVERSAL"
	CodeLedgerCreationFailed = "LEDGER_CREATION_FAILED"
	CodePhoneAlreadyExists   = "PHONE_ALREADY_EXISTS"
	CodeUserAlreadyMember    = "USER_ALREADY_MEMBER"
	CodeValidation           = "VALIDATION_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError is a business-rule violation. It aborts the surrounding
// transaction and is reported to the client as a 400.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, ErrForbidden).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func newAppError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Sentinels for errors.Is comparisons.
var (
	ErrCustomerNotFound     = newAppError(CodeCustomerNotFound, "Customer not found")
	ErrLedgerNotFound       = newAppError(CodeLedgerNotFound, "Ledger entry not found or you don't have access to it")
	ErrShopNotFound         = newAppError(CodeShopNotFound, "Shop not found or you don't have access to it")
	ErrForbidden            = newAppError(CodeForbidden, "Access denied")
	ErrInvalidReversal      = newAppError(CodeInvalidReversal, "Cannot reverse a reversal entry")
	ErrLedgerCreationFailed = newAppError(CodeLedgerCreationFailed, "Failed to create ledger entry")
	ErrPhoneAlreadyExists   = newAppError(CodePhoneAlreadyExists, "A customer with this phone number already exists in this shop")
	ErrUserNotFound         = newAppError(CodeUserNotFound, "User not found")
	ErrUserAlreadyMember    = newAppError(CodeUserAlreadyMember, "User is already a member of this shop")
)

func forbidden(message string) *AppError {
	return newAppError(CodeForbidden, message)
}

func invalidReversal(message string) *AppError {
	return newAppError(CodeInvalidReversal, message)
}

// ErrorCode extracts the client-facing code, or INTERNAL_ERROR for anything
// that is not an AppError.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}
