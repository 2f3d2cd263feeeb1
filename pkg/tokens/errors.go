package tokens

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the token service.
var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrDuplicateEvent           = errors.New("duplicate payment event")
	ErrInvalidUserID            = errors.New("invalid user id")
	ErrInvalidAccountID         = errors.New("invalid account id")
	ErrInvalidTokenAmount       = errors.New("invalid token amount")
	ErrInvalidTransactionType   = errors.New("invalid transaction type")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrInvalidReferenceID       = errors.New("invalid reference id")
	ErrInvalidMetadataJSON      = errors.New("invalid metadata json")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
)

// InsufficientBalanceError carries the shortfall so callers can tell the user
// exactly how many tokens are missing.
type InsufficientBalanceError struct {
	AvailableTokens int64
	RequiredTokens  int64
}

// Error returns the formatted message.
func (balanceError *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d tokens, need %d", balanceError.AvailableTokens, balanceError.RequiredTokens)
}

// Unwrap links the error to ErrInsufficientBalance for errors.Is checks.
func (balanceError *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// Shortfall returns how many tokens are missing.
func (balanceError *InsufficientBalanceError) Shortfall() int64 {
	return balanceError.RequiredTokens - balanceError.AvailableTokens
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
