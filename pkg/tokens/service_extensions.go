package tokens

import "context"

// History lists transactions for a user before a cutoff time.
func (service *Service) History(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, userID.String())
	if err != nil {
		return nil, err
	}
	return service.store.ListTransactions(ctx, accountID, beforeUnixUTC, limit)
}

// Audit compares the cached balance against the sum of completed transaction
// amounts. The log is the source of truth; drift means the projection has
// been written outside the spend/credit paths.
func (service *Service) Audit(ctx context.Context, userID UserID) (AuditReport, error) {
	accountID, err := service.store.GetOrCreateAccountID(ctx, userID.String())
	if err != nil {
		return AuditReport{}, err
	}
	balance, err := service.store.GetBalance(ctx, accountID)
	if err != nil {
		return AuditReport{}, err
	}
	ledgerSum, err := service.store.SumTransactionAmounts(ctx, accountID)
	if err != nil {
		return AuditReport{}, err
	}
	return AuditReport{BalanceTokens: balance, LedgerTokens: ledgerSum}, nil
}
