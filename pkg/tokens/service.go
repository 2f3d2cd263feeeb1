package tokens

import (
	"context"
	"encoding/json"
	"fmt"
)

// Service contains the domain logic over a Store.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Balance returns the current token balance, defaulting to 0 for users with
// no ledger activity yet. The account row is provisioned on first use; the
// insert is conflict-tolerant so concurrent first logins cannot race.
func (service *Service) Balance(ctx context.Context, userID UserID) (Balance, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, userID.String())
	if err != nil {
		return Balance{}, err
	}
	tokens, err := service.store.GetBalance(ctx, accountID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Tokens: tokens}, nil
}

// Spend debits the user's balance and appends the matching debit transaction
// in a single storage transaction. The decrement carries a non-negative guard
// at the storage level, so two racing spends against the same account cannot
// both succeed on a balance that only covers one of them.
func (service *Service) Spend(ctx context.Context, userID UserID, amount TokenAmount, transactionType TransactionType, purpose string, referenceID string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, userID.String())
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		debited, err := transactionStore.DebitBalance(ctx, accountID, amount.Int64(), nowUnixUTC)
		if err != nil {
			return err
		}
		if !debited {
			available, err := transactionStore.GetBalance(ctx, accountID)
			if err != nil {
				return err
			}
			return &InsufficientBalanceError{AvailableTokens: available, RequiredTokens: amount.Int64()}
		}
		return transactionStore.InsertTransaction(ctx, Transaction{
			AccountID:      accountID,
			Amount:         -amount.Int64(),
			Status:         StatusCompleted,
			Type:           transactionType,
			ReferenceID:    referenceID,
			Purpose:        purpose,
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationSpend,
		UserID:      userID,
		Amount:      amount.Int64(),
		Type:        transactionType,
		ReferenceID: referenceID,
		Error:       operationError,
	})
	return operationError
}

// Credit adds purchased tokens to the user's balance and appends a completed
// purchase transaction referencing the payment intent. Redelivery of the same
// payment intent returns ErrDuplicateEvent without mutating anything: the
// reference is checked inside the transaction and additionally enforced by a
// uniqueness constraint on completed purchase references.
func (service *Service) Credit(ctx context.Context, userID UserID, amount TokenAmount, paymentIntentID string, packageID string) error {
	if paymentIntentID == "" {
		return fmt.Errorf("%w: payment intent id is empty", ErrInvalidReferenceID)
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, userID.String())
		if err != nil {
			return err
		}
		alreadyCredited, err := transactionStore.HasCompletedPurchase(ctx, paymentIntentID)
		if err != nil {
			return err
		}
		if alreadyCredited {
			return ErrDuplicateEvent
		}
		nowUnixUTC := service.nowFn()
		if err := transactionStore.CreditBalance(ctx, accountID, amount.Int64(), nowUnixUTC); err != nil {
			return err
		}
		metadata, err := purchaseMetadata(packageID)
		if err != nil {
			return err
		}
		return transactionStore.InsertTransaction(ctx, Transaction{
			AccountID:      accountID,
			Amount:         amount.Int64(),
			Status:         StatusCompleted,
			Type:           TransactionPurchase,
			ReferenceID:    paymentIntentID,
			Purpose:        "token package purchase",
			MetadataJSON:   metadata,
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationCredit,
		UserID:      userID,
		Amount:      amount.Int64(),
		Type:        TransactionPurchase,
		ReferenceID: paymentIntentID,
		Error:       operationError,
	})
	return operationError
}

// RecordFailedPayment appends a zero-amount failed purchase transaction for
// audit. The balance is untouched and the payment intent reference stays
// available for a later successful retry.
func (service *Service) RecordFailedPayment(ctx context.Context, userID UserID, paymentIntentID string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		accountID, err := transactionStore.GetOrCreateAccountID(ctx, userID.String())
		if err != nil {
			return err
		}
		return transactionStore.InsertTransaction(ctx, Transaction{
			AccountID:      accountID,
			Amount:         0,
			Status:         StatusFailed,
			Type:           TransactionPurchase,
			ReferenceID:    paymentIntentID,
			Purpose:        "payment failed",
			CreatedUnixUTC: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationFailedPayment,
		UserID:      userID,
		Type:        TransactionPurchase,
		ReferenceID: paymentIntentID,
		Error:       operationError,
	})
	return operationError
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func purchaseMetadata(packageID string) (string, error) {
	raw, err := json.Marshal(map[string]string{"package_id": packageID})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	return string(raw), nil
}
