package tokens

import (
	"errors"
	"testing"
)

const (
	operationName    = "store"
	subjectName      = "transaction"
	codeName         = "insert_failed"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestOperationErrorUnwrap(test *testing.T) {
	test.Parallel()
	wrappedError := WrapError(operationName, subjectName, codeName, ErrDuplicateEvent)
	if !errors.Is(wrappedError, ErrDuplicateEvent) {
		test.Fatalf("expected wrapped error to match ErrDuplicateEvent")
	}
}

func TestInsufficientBalanceErrorShortfall(test *testing.T) {
	test.Parallel()
	balanceError := &InsufficientBalanceError{AvailableTokens: 40, RequiredTokens: 105}
	if got := balanceError.Shortfall(); got != 65 {
		test.Fatalf("expected shortfall 65, got %d", got)
	}
	if !errors.Is(balanceError, ErrInsufficientBalance) {
		test.Fatalf("expected error to match ErrInsufficientBalance")
	}
	var target *InsufficientBalanceError
	if !errors.As(error(balanceError), &target) {
		test.Fatalf("expected errors.As to extract the typed error")
	}
}
