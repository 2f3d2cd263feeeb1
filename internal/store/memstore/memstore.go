// Package memstore provides an in-memory tokens.Store used in tests and
// local experiments. WithTx serializes callers on a single mutex and rolls
// state back when the transaction function fails, mirroring the atomicity the
// SQL stores get from storage transactions.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/influmatch/tokenledger/pkg/tokens"
)

// Store implements tokens.Store in memory.
type Store struct {
	mu             sync.Mutex
	accountsByUser map[string]string
	balances       map[string]int64
	transactions   []tokens.Transaction

	// FailInsertTransaction, when set, is returned by every transaction
	// insert. Used to exercise partial-failure paths.
	FailInsertTransaction error
	// FailDebit, when set, is returned by every debit attempt.
	FailDebit error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accountsByUser: make(map[string]string),
		balances:       make(map[string]int64),
	}
}

// WithTx runs fn under the store mutex and restores the prior state if fn
// returns an error.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore tokens.Store) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	snapshotAccounts := copyStringMap(store.accountsByUser)
	snapshotBalances := copyInt64Map(store.balances)
	snapshotTransactionCount := len(store.transactions)
	if err := fn(ctx, &txStore{store: store}); err != nil {
		store.accountsByUser = snapshotAccounts
		store.balances = snapshotBalances
		store.transactions = store.transactions[:snapshotTransactionCount]
		return err
	}
	return nil
}

func (store *Store) GetOrCreateAccountID(ctx context.Context, userID string) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.getOrCreateAccountLocked(userID)
}

func (store *Store) GetBalance(ctx context.Context, accountID string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.balances[accountID], nil
}

func (store *Store) DebitBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.debitLocked(accountID, amount)
}

func (store *Store) CreditBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.balances[accountID] += amount
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction tokens.Transaction) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.insertTransactionLocked(transaction)
}

func (store *Store) HasCompletedPurchase(ctx context.Context, referenceID string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.hasCompletedPurchaseLocked(referenceID), nil
}

func (store *Store) SumTransactionAmounts(ctx context.Context, accountID string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.sumLocked(accountID), nil
}

func (store *Store) ListTransactions(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]tokens.Transaction, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.listLocked(accountID, beforeUnixUTC, limit), nil
}

// Transactions returns a copy of every recorded transaction, newest last.
func (store *Store) Transactions() []tokens.Transaction {
	store.mu.Lock()
	defer store.mu.Unlock()
	out := make([]tokens.Transaction, len(store.transactions))
	copy(out, store.transactions)
	return out
}

// txStore is the view handed to WithTx callbacks; the mutex is already held.
type txStore struct {
	store *Store
}

func (view *txStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore tokens.Store) error) error {
	return fn(ctx, view)
}

func (view *txStore) GetOrCreateAccountID(ctx context.Context, userID string) (string, error) {
	return view.store.getOrCreateAccountLocked(userID)
}

func (view *txStore) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return view.store.balances[accountID], nil
}

func (view *txStore) DebitBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) (bool, error) {
	return view.store.debitLocked(accountID, amount)
}

func (view *txStore) CreditBalance(ctx context.Context, accountID string, amount int64, nowUnixUTC int64) error {
	view.store.balances[accountID] += amount
	return nil
}

func (view *txStore) InsertTransaction(ctx context.Context, transaction tokens.Transaction) error {
	return view.store.insertTransactionLocked(transaction)
}

func (view *txStore) HasCompletedPurchase(ctx context.Context, referenceID string) (bool, error) {
	return view.store.hasCompletedPurchaseLocked(referenceID), nil
}

func (view *txStore) SumTransactionAmounts(ctx context.Context, accountID string) (int64, error) {
	return view.store.sumLocked(accountID), nil
}

func (view *txStore) ListTransactions(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]tokens.Transaction, error) {
	return view.store.listLocked(accountID, beforeUnixUTC, limit), nil
}

func (store *Store) getOrCreateAccountLocked(userID string) (string, error) {
	if accountID, ok := store.accountsByUser[userID]; ok {
		return accountID, nil
	}
	accountID := uuid.NewString()
	store.accountsByUser[userID] = accountID
	return accountID, nil
}

func (store *Store) debitLocked(accountID string, amount int64) (bool, error) {
	if store.FailDebit != nil {
		return false, store.FailDebit
	}
	if store.balances[accountID] < amount {
		return false, nil
	}
	store.balances[accountID] -= amount
	return true, nil
}

func (store *Store) insertTransactionLocked(transaction tokens.Transaction) error {
	if store.FailInsertTransaction != nil {
		return store.FailInsertTransaction
	}
	if transaction.Type == tokens.TransactionPurchase &&
		transaction.Status == tokens.StatusCompleted &&
		transaction.ReferenceID != "" &&
		store.hasCompletedPurchaseLocked(transaction.ReferenceID) {
		return tokens.ErrDuplicateEvent
	}
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	store.transactions = append(store.transactions, transaction)
	return nil
}

func (store *Store) hasCompletedPurchaseLocked(referenceID string) bool {
	for _, transaction := range store.transactions {
		if transaction.Type == tokens.TransactionPurchase &&
			transaction.Status == tokens.StatusCompleted &&
			transaction.ReferenceID == referenceID {
			return true
		}
	}
	return false
}

func (store *Store) sumLocked(accountID string) int64 {
	var sum int64
	for _, transaction := range store.transactions {
		if transaction.AccountID == accountID && transaction.Status == tokens.StatusCompleted {
			sum += transaction.Amount
		}
	}
	return sum
}

func (store *Store) listLocked(accountID string, beforeUnixUTC int64, limit int) []tokens.Transaction {
	out := make([]tokens.Transaction, 0, limit)
	for index := len(store.transactions) - 1; index >= 0 && len(out) < limit; index-- {
		transaction := store.transactions[index]
		if transaction.AccountID != accountID {
			continue
		}
		if beforeUnixUTC != 0 && transaction.CreatedUnixUTC >= beforeUnixUTC {
			continue
		}
		out = append(out, transaction)
	}
	return out
}

func copyStringMap(source map[string]string) map[string]string {
	out := make(map[string]string, len(source))
	for key, value := range source {
		out[key] = value
	}
	return out
}

func copyInt64Map(source map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(source))
	for key, value := range source {
		out[key] = value
	}
	return out
}
