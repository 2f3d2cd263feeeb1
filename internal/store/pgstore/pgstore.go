package pgstore

import (
	"context"
	"errors"

	"github.com/influmatch/tokenledger/pkg/tokens"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintPurchaseReference = "uniq_completed_purchase_reference"
	pgUniqueViolationCode       = "23505"
	errorOperationStore         = "store"
	errorSubjectAccount         = "account"
	errorSubjectBalance         = "balance"
	errorSubjectTransaction     = "transaction"
	errorCodeBegin              = "begin"
	errorCodeCommit             = "commit"
	errorCodeCredit             = "credit"
	errorCodeDebit              = "debit"
	errorCodeDuplicate          = "duplicate"
	errorCodeGet                = "get"
	errorCodeInsert             = "insert"
	errorCodeInvalid            = "invalid"
	errorCodeList               = "list"
	errorCodeLookup             = "lookup"
	errorCodeSum                = "sum"

	sqlInsertOrGetAccount = `
		insert into account_balances(account_id, user_id, token_balance)
		values(gen_random_uuid(), $1, 0)
		on conflict (user_id) do update set user_id = excluded.user_id
		returning account_id
	`

	sqlGetBalance = `
		select token_balance from account_balances where account_id = $1
	`

	sqlDebitBalance = `
		update account_balances
		set token_balance = token_balance - $2, updated_at = to_timestamp($3)
		where account_id = $1 and token_balance >= $2
	`

	sqlCreditBalance = `
		update account_balances
		set token_balance = token_balance + $2, updated_at = to_timestamp($3)
		where account_id = $1
	`

	sqlInsertTransaction = `
		insert into token_transactions(
			transaction_id, account_id, amount, status, type, reference_id, purpose, metadata, created_at
		)
		values(
			gen_random_uuid(), $1, $2, $3, $4,
			nullif($5,''), $6,
			coalesce(nullif($7,''),'{}')::jsonb,
			to_timestamp($8)
		)
	`

	sqlHasCompletedPurchase = `
		select exists(
			select 1 from token_transactions
			where type = 'purchase' and status = 'completed' and reference_id = $1
		)
	`

	sqlSumTransactionAmounts = `
		select coalesce(sum(amount),0) from token_transactions
		where account_id = $1 and status = 'completed'
	`

	sqlListTransactionsBefore = `
		select
			transaction_id::text,
			account_id::text,
			amount,
			status,
			type,
			coalesce(reference_id,''),
			purpose,
			coalesce(metadata::text,'{}'),
			extract(epoch from created_at)::bigint
		from token_transactions
		where account_id = $1 and created_at < to_timestamp($2)
		order by created_at desc
		limit $3
	`
)

// Store implements tokens.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
}

// TxStore implements tokens.Store for an active transaction.
type TxStore struct {
	tx pgx.Tx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore tokens.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) GetOrCreateAccountID(ctx context.Context, userID string) (string, error) {
	return insertOrGetAccount(ctx, store.pool, userID)
}

func (store *Store) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return getBalance(ctx, store.pool, accountID)
}

func (store *Store) DebitBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) (bool, error) {
	return debitBalance(ctx, store.pool, accountID, amount, nowUnixUTC)
}

func (store *Store) CreditBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) error {
	return creditBalance(ctx, store.pool, accountID, amount, nowUnixUTC)
}

func (store *Store) InsertTransaction(ctx context.Context, transaction tokens.Transaction) error {
	return insertTransaction(ctx, store.pool, transaction)
}

func (store *Store) HasCompletedPurchase(ctx context.Context, referenceID string) (bool, error) {
	return hasCompletedPurchase(ctx, store.pool, referenceID)
}

func (store *Store) SumTransactionAmounts(ctx context.Context, accountID string) (int64, error) {
	return sumTransactionAmounts(ctx, store.pool, accountID)
}

func (store *Store) ListTransactions(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]tokens.Transaction, error) {
	return listTransactions(ctx, store.pool, accountID, beforeUnixUTC, limit)
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore tokens.Store) error) error {
	return fn(ctx, store)
}

func (store *TxStore) GetOrCreateAccountID(ctx context.Context, userID string) (string, error) {
	return insertOrGetAccount(ctx, store.tx, userID)
}

func (store *TxStore) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return getBalance(ctx, store.tx, accountID)
}

func (store *TxStore) DebitBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) (bool, error) {
	return debitBalance(ctx, store.tx, accountID, amount, nowUnixUTC)
}

func (store *TxStore) CreditBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) error {
	return creditBalance(ctx, store.tx, accountID, amount, nowUnixUTC)
}

func (store *TxStore) InsertTransaction(ctx context.Context, transaction tokens.Transaction) error {
	return insertTransaction(ctx, store.tx, transaction)
}

func (store *TxStore) HasCompletedPurchase(ctx context.Context, referenceID string) (bool, error) {
	return hasCompletedPurchase(ctx, store.tx, referenceID)
}

func (store *TxStore) SumTransactionAmounts(ctx context.Context, accountID string) (int64, error) {
	return sumTransactionAmounts(ctx, store.tx, accountID)
}

func (store *TxStore) ListTransactions(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]tokens.Transaction, error) {
	return listTransactions(ctx, store.tx, accountID, beforeUnixUTC, limit)
}

// querier covers the pgxpool.Pool / pgx.Tx overlap the statements need.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertOrGetAccount(ctx context.Context, db querier, userID string) (string, error) {
	var accountID string
	if err := db.QueryRow(ctx, sqlInsertOrGetAccount, userID).Scan(&accountID); err != nil {
		return "", wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return accountID, nil
}

func getBalance(ctx context.Context, db querier, accountID string) (int64, error) {
	var balance int64
	err := db.QueryRow(ctx, sqlGetBalance, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeGet, err)
	}
	return balance, nil
}

func debitBalance(ctx context.Context, db querier, accountID string, amount int64, nowUnixUTC int64) (bool, error) {
	tag, err := db.Exec(ctx, sqlDebitBalance, accountID, amount, nowUnixUTC)
	if err != nil {
		return false, wrapStoreError(errorSubjectBalance, errorCodeDebit, err)
	}
	return tag.RowsAffected() > 0, nil
}

func creditBalance(ctx context.Context, db querier, accountID string, amount int64, nowUnixUTC int64) error {
	tag, err := db.Exec(ctx, sqlCreditBalance, accountID, amount, nowUnixUTC)
	if err != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeCredit, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeCredit, tokens.ErrInvalidAccountID)
	}
	return nil
}

func insertTransaction(ctx context.Context, db querier, transaction tokens.Transaction) error {
	_, err := db.Exec(ctx, sqlInsertTransaction,
		transaction.AccountID,
		transaction.Amount,
		transaction.Status.String(),
		transaction.Type.String(),
		transaction.ReferenceID,
		transaction.Purpose,
		transaction.MetadataJSON,
		transaction.CreatedUnixUTC,
	)
	if isPurchaseReferenceConflict(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, tokens.ErrDuplicateEvent)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func hasCompletedPurchase(ctx context.Context, db querier, referenceID string) (bool, error) {
	var exists bool
	if err := db.QueryRow(ctx, sqlHasCompletedPurchase, referenceID).Scan(&exists); err != nil {
		return false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, err)
	}
	return exists, nil
}

func sumTransactionAmounts(ctx context.Context, db querier, accountID string) (int64, error) {
	var sum int64
	if err := db.QueryRow(ctx, sqlSumTransactionAmounts, accountID).Scan(&sum); err != nil {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeSum, err)
	}
	return sum, nil
}

func listTransactions(ctx context.Context, db querier, accountID string, beforeUnixUTC int64, limit int) ([]tokens.Transaction, error) {
	rows, err := db.Query(ctx, sqlListTransactionsBefore, accountID, beforeUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	transactions, err := scanTransactions(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transactions, nil
}

func scanTransactions(rows pgx.Rows) ([]tokens.Transaction, error) {
	transactions := make([]tokens.Transaction, 0, 32)
	for rows.Next() {
		var (
			transactionIDValue string
			accountIDValue     string
			amountValue        int64
			statusValue        string
			typeValue          string
			referenceValue     string
			purposeValue       string
			metadataValue      string
			createdAtUnixUTC   int64
		)
		if err := rows.Scan(
			&transactionIDValue,
			&accountIDValue,
			&amountValue,
			&statusValue,
			&typeValue,
			&referenceValue,
			&purposeValue,
			&metadataValue,
			&createdAtUnixUTC,
		); err != nil {
			return nil, err
		}
		status, err := tokens.ParseTransactionStatus(statusValue)
		if err != nil {
			return nil, err
		}
		transactionType, err := tokens.ParseTransactionType(typeValue)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tokens.Transaction{
			TransactionID:  transactionIDValue,
			AccountID:      accountIDValue,
			Amount:         amountValue,
			Status:         status,
			Type:           transactionType,
			ReferenceID:    referenceValue,
			Purpose:        purposeValue,
			MetadataJSON:   metadataValue,
			CreatedUnixUTC: createdAtUnixUTC,
		})
	}
	return transactions, rows.Err()
}

func wrapStoreError(subject string, code string, err error) error {
	return tokens.WrapError(errorOperationStore, subject, code, err)
}

func isPurchaseReferenceConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintPurchaseReference
	}
	return false
}
