package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/influmatch/tokenledger/pkg/tokens"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintPurchaseReference = "uniq_completed_purchase_reference"
	defaultMetadataJSON         = "{}"
	pgUniqueViolationCode       = "23505"
	sqliteConstraintCode        = 19
	errorOperationStore         = "store"
	errorSubjectAccount         = "account"
	errorSubjectBalance         = "balance"
	errorSubjectTransaction     = "transaction"
	errorCodeCredit             = "credit"
	errorCodeDebit              = "debit"
	errorCodeDuplicate          = "duplicate"
	errorCodeGet                = "get"
	errorCodeInsert             = "insert"
	errorCodeInvalid            = "invalid"
	errorCodeList               = "list"
	errorCodeLookup             = "lookup"
	errorCodeSum                = "sum"
)

// Store implements tokens.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore tokens.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// GetOrCreateAccountID provisions the balance row with a single upsert.
// RETURNING reads the surviving row's id, so when two first-login callers
// race, the loser gets the winner's account id instead of the uuid its
// BeforeCreate hook generated for a row that was never kept.
func (store *Store) GetOrCreateAccountID(ctx context.Context, userID string) (string, error) {
	account := AccountBalance{UserID: userID}
	err := store.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"user_id": clause.Expr{SQL: "excluded.user_id"},
				}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "account_id"}}},
		).
		Create(&account).Error
	if err != nil {
		return "", wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return account.AccountID, nil
}

func (store *Store) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var account AccountBalance
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeGet, err)
	}
	return account.TokenBalance, nil
}

// DebitBalance subtracts amount where the balance covers it. The guard runs
// inside the UPDATE, so racing debits serialize on the row and the reported
// rows-affected count decides who won.
func (store *Store) DebitBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&AccountBalance{}).
		Where("account_id = ? AND token_balance >= ?", accountID, amount).
		Updates(map[string]interface{}{
			"token_balance": gorm.Expr("token_balance - ?", amount),
			"updated_at":    time.Unix(nowUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectBalance, errorCodeDebit, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) CreditBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&AccountBalance{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"token_balance": gorm.Expr("token_balance + ?", amount),
			"updated_at":    time.Unix(nowUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeCredit, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeCredit, tokens.ErrInvalidAccountID)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction tokens.Transaction) error {
	var referenceID *string
	if transaction.ReferenceID != "" {
		value := transaction.ReferenceID
		referenceID = &value
	}
	createdAt := time.Unix(transaction.CreatedUnixUTC, 0).UTC()
	if transaction.CreatedUnixUTC == 0 {
		createdAt = time.Now().UTC()
	}
	row := TokenTransaction{
		TransactionID: transaction.TransactionID,
		AccountID:     transaction.AccountID,
		Amount:        transaction.Amount,
		Status:        transaction.Status.String(),
		Type:          transaction.Type.String(),
		ReferenceID:   referenceID,
		Purpose:       transaction.Purpose,
		Metadata:      datatypesJSON(transaction.MetadataJSON),
		CreatedAt:     createdAt,
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isPurchaseReferenceConflict(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, tokens.ErrDuplicateEvent)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) HasCompletedPurchase(ctx context.Context, referenceID string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&TokenTransaction{}).
		Where("type = ? AND status = ? AND reference_id = ?",
			tokens.TransactionPurchase.String(), tokens.StatusCompleted.String(), referenceID).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) SumTransactionAmounts(ctx context.Context, accountID string) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&TokenTransaction{}).
		Select("coalesce(sum(amount),0) as total").
		Where("account_id = ? AND status = ?", accountID, tokens.StatusCompleted.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *Store) ListTransactions(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]tokens.Transaction, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []TokenTransaction
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND created_at < ?", accountID, before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}

	transactions := make([]tokens.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return tokens.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapTransaction(row TokenTransaction) (tokens.Transaction, error) {
	status, err := tokens.ParseTransactionStatus(row.Status)
	if err != nil {
		return tokens.Transaction{}, err
	}
	transactionType, err := tokens.ParseTransactionType(row.Type)
	if err != nil {
		return tokens.Transaction{}, err
	}
	referenceID := ""
	if row.ReferenceID != nil {
		referenceID = *row.ReferenceID
	}
	return tokens.Transaction{
		TransactionID:  row.TransactionID,
		AccountID:      row.AccountID,
		Amount:         row.Amount,
		Status:         status,
		Type:           transactionType,
		ReferenceID:    referenceID,
		Purpose:        row.Purpose,
		MetadataJSON:   string(row.Metadata),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isPurchaseReferenceConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintPurchaseReference
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
