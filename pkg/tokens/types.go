package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// UserID identifies an account owner as issued by the identity provider.
type UserID struct {
	value string
}

// TokenAmount is a strictly positive quantity of tokens used by operations.
type TokenAmount struct {
	value int64
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// TransactionType categorizes balance-affecting events.
type TransactionType string

const (
	TransactionPurchase          TransactionType = "purchase"
	TransactionInfluencerContact TransactionType = "influencer_contact"
	TransactionBoost             TransactionType = "boost"
)

// TransactionStatus defines the lifecycle state of a transaction row.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusPending   TransactionStatus = "pending"
)

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewTokenAmount validates an amount and ensures it is strictly positive.
func NewTokenAmount(raw int64) (TokenAmount, error) {
	if raw <= 0 {
		return TokenAmount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidTokenAmount)
	}
	return TokenAmount{value: raw}, nil
}

// Int64 returns the raw token count.
func (amount TokenAmount) Int64() int64 {
	return amount.value
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// ParseTransactionType validates a stored transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionPurchase, TransactionInfluencerContact, TransactionBoost:
		return TransactionType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
}

// String returns the stored representation.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// ParseTransactionStatus validates a stored transaction status.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch TransactionStatus(raw) {
	case StatusCompleted, StatusFailed, StatusPending:
		return TransactionStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionStatus, raw)
}

// String returns the stored representation.
func (status TransactionStatus) String() string {
	return string(status)
}

// A single immutable line in the transaction log. Amounts are signed:
// negative for debits, positive for credits.
type Transaction struct {
	TransactionID  string
	AccountID      string
	Amount         int64
	Status         TransactionStatus
	Type           TransactionType
	ReferenceID    string
	Purpose        string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// Balance is the cached projection of an account's transaction log.
type Balance struct {
	Tokens int64
}

// AuditReport compares the cached balance against the transaction log.
type AuditReport struct {
	BalanceTokens int64
	LedgerTokens  int64
}

// InSync reports whether the cached balance matches the log.
func (report AuditReport) InSync() bool {
	return report.BalanceTokens == report.LedgerTokens
}

// Store is the persistence contract used by Service. The balance row is only
// ever mutated through DebitBalance (conditional decrement, non-negative
// guard) and CreditBalance (additive update), and the transaction log is
// append-only.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateAccountID(ctx context.Context, userID string) (string, error)
	GetBalance(ctx context.Context, accountID string) (int64, error)
	DebitBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) (bool, error)
	CreditBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) error
	InsertTransaction(ctx context.Context, transaction Transaction) error
	HasCompletedPurchase(ctx context.Context, referenceID string) (bool, error)
	SumTransactionAmounts(ctx context.Context, accountID string) (int64, error)
	ListTransactions(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]Transaction, error)
}
