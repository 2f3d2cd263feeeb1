package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AccountBalance represents the account_balances table: one cached balance
// row per user. Mutated only through the conditional debit and additive
// credit statements in this package.
type AccountBalance struct {
	AccountID    string    `gorm:"type:uuid;primaryKey"`
	UserID       string    `gorm:"not null;index:uniq_account_balances_user,unique"`
	TokenBalance int64     `gorm:"not null;default:0;check:chk_token_balance_non_negative,token_balance >= 0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (AccountBalance) TableName() string { return "account_balances" }

func (account *AccountBalance) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// TokenTransaction mirrors the token_transactions table. Rows are append-only;
// corrections are new offsetting rows, never edits. The partial unique index
// on completed purchase references makes webhook crediting idempotent per
// payment-intent id.
type TokenTransaction struct {
	TransactionID string         `gorm:"type:uuid;primaryKey"`
	AccountID     string         `gorm:"type:uuid;not null;index:idx_token_transactions_account_created,priority:1"`
	Amount        int64          `gorm:"not null"`
	Status        string         `gorm:"not null"`
	Type          string         `gorm:"not null"`
	ReferenceID   *string        `gorm:"index:uniq_completed_purchase_reference,unique,where:type = 'purchase' AND status = 'completed'"`
	Purpose       string         `gorm:"not null"`
	Metadata      datatypes.JSON `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_token_transactions_account_created,priority:2"`
}

func (TokenTransaction) TableName() string { return "token_transactions" }

func (transaction *TokenTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}
