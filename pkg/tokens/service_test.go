package tokens_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/influmatch/tokenledger/internal/store/memstore"
	"github.com/influmatch/tokenledger/pkg/tokens"
)

const fixedUnixUTC int64 = 1_700_000_000

func fixedClock() int64 { return fixedUnixUTC }

func mustService(test *testing.T, store tokens.Store, options ...tokens.ServiceOption) *tokens.Service {
	test.Helper()
	service, err := tokens.NewService(store, fixedClock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) tokens.UserID {
	test.Helper()
	userID, err := tokens.NewUserID(raw)
	if err != nil {
		test.Fatalf("new user id: %v", err)
	}
	return userID
}

func mustAmount(test *testing.T, raw int64) tokens.TokenAmount {
	test.Helper()
	amount, err := tokens.NewTokenAmount(raw)
	if err != nil {
		test.Fatalf("new token amount: %v", err)
	}
	return amount
}

func mustBalance(test *testing.T, service *tokens.Service, userID tokens.UserID) int64 {
	test.Helper()
	balance, err := service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	return balance.Tokens
}

func TestBalanceDefaultsToZero(test *testing.T) {
	test.Parallel()
	service := mustService(test, memstore.New())
	if got := mustBalance(test, service, mustUserID(test, "fresh-user")); got != 0 {
		test.Fatalf("expected zero balance for fresh user, got %d", got)
	}
}

func TestCreditAddsTokensAndPurchaseRow(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "buyer-1")

	if err := service.Credit(context.Background(), userID, mustAmount(test, 500), "pi_1", "starter_500"); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if got := mustBalance(test, service, userID); got != 500 {
		test.Fatalf("expected balance 500, got %d", got)
	}

	rows := store.Transactions()
	if len(rows) != 1 {
		test.Fatalf("expected 1 transaction, got %d", len(rows))
	}
	row := rows[0]
	if row.Amount != 500 || row.Type != tokens.TransactionPurchase || row.Status != tokens.StatusCompleted {
		test.Fatalf("unexpected purchase row: %+v", row)
	}
	if row.ReferenceID != "pi_1" {
		test.Fatalf("expected reference pi_1, got %q", row.ReferenceID)
	}
	if row.MetadataJSON != `{"package_id":"starter_500"}` {
		test.Fatalf("unexpected metadata: %q", row.MetadataJSON)
	}
}

func TestCreditDuplicatePaymentIntent(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "buyer-2")

	if err := service.Credit(context.Background(), userID, mustAmount(test, 500), "pi_dup", "starter_500"); err != nil {
		test.Fatalf("first credit: %v", err)
	}
	err := service.Credit(context.Background(), userID, mustAmount(test, 500), "pi_dup", "starter_500")
	if !errors.Is(err, tokens.ErrDuplicateEvent) {
		test.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
	if got := mustBalance(test, service, userID); got != 500 {
		test.Fatalf("expected balance unchanged at 500, got %d", got)
	}
	if got := len(store.Transactions()); got != 1 {
		test.Fatalf("expected single purchase row after redelivery, got %d", got)
	}
}

func TestCreditRequiresPaymentIntent(test *testing.T) {
	test.Parallel()
	service := mustService(test, memstore.New())
	err := service.Credit(context.Background(), mustUserID(test, "buyer-3"), mustAmount(test, 500), "", "starter_500")
	if !errors.Is(err, tokens.ErrInvalidReferenceID) {
		test.Fatalf("expected ErrInvalidReferenceID, got %v", err)
	}
}

func TestSpendDebitsAndAppendsDebitRow(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "business-1")

	if err := service.Credit(context.Background(), userID, mustAmount(test, 500), "pi_spend", "starter_500"); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if err := service.Spend(context.Background(), userID, mustAmount(test, 105), tokens.TransactionInfluencerContact, "contact influencer @handle", "influencer-9"); err != nil {
		test.Fatalf("spend: %v", err)
	}
	if got := mustBalance(test, service, userID); got != 395 {
		test.Fatalf("expected balance 395, got %d", got)
	}

	rows := store.Transactions()
	if len(rows) != 2 {
		test.Fatalf("expected 2 transactions, got %d", len(rows))
	}
	debit := rows[1]
	if debit.Amount != -105 {
		test.Fatalf("expected debit amount -105, got %d", debit.Amount)
	}
	if debit.Type != tokens.TransactionInfluencerContact || debit.Status != tokens.StatusCompleted {
		test.Fatalf("unexpected debit row: %+v", debit)
	}
	if debit.ReferenceID != "influencer-9" {
		test.Fatalf("expected reference influencer-9, got %q", debit.ReferenceID)
	}
}

func TestSpendInsufficientBalanceReportsShortfall(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "business-2")

	if err := service.Credit(context.Background(), userID, mustAmount(test, 40), "pi_low", "starter_40"); err != nil {
		test.Fatalf("credit: %v", err)
	}
	err := service.Spend(context.Background(), userID, mustAmount(test, 105), tokens.TransactionInfluencerContact, "contact", "influencer-1")
	var balanceError *tokens.InsufficientBalanceError
	if !errors.As(err, &balanceError) {
		test.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if balanceError.Shortfall() != 65 {
		test.Fatalf("expected shortfall 65, got %d", balanceError.Shortfall())
	}
	if got := mustBalance(test, service, userID); got != 40 {
		test.Fatalf("expected balance unchanged at 40, got %d", got)
	}
	if got := len(store.Transactions()); got != 1 {
		test.Fatalf("expected no debit row after failed spend, got %d rows", got)
	}
}

func TestSpendRollsBackWhenLogWriteFails(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "business-3")

	if err := service.Credit(context.Background(), userID, mustAmount(test, 500), "pi_rollback", "starter_500"); err != nil {
		test.Fatalf("credit: %v", err)
	}
	store.FailInsertTransaction = errors.New("disk full")
	err := service.Spend(context.Background(), userID, mustAmount(test, 105), tokens.TransactionBoost, "boost", "profile_spotlight")
	if err == nil {
		test.Fatalf("expected spend to fail")
	}
	store.FailInsertTransaction = nil
	if got := mustBalance(test, service, userID); got != 500 {
		test.Fatalf("expected balance restored to 500, got %d", got)
	}
	if got := len(store.Transactions()); got != 1 {
		test.Fatalf("expected only the purchase row to survive, got %d rows", got)
	}
}

func TestConcurrentSpendsSingleWinner(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "racer")

	if err := service.Credit(context.Background(), userID, mustAmount(test, 100), "pi_race", "starter_100"); err != nil {
		test.Fatalf("credit: %v", err)
	}

	const spenders = 2
	amount := mustAmount(test, 80)
	results := make([]error, spenders)
	var group sync.WaitGroup
	for index := 0; index < spenders; index++ {
		group.Add(1)
		go func(slot int) {
			defer group.Done()
			results[slot] = service.Spend(context.Background(), userID, amount, tokens.TransactionBoost, "boost", "profile_spotlight")
		}(index)
	}
	group.Wait()

	var wins, losses int
	for _, result := range results {
		switch {
		case result == nil:
			wins++
		case errors.Is(result, tokens.ErrInsufficientBalance):
			losses++
		default:
			test.Fatalf("unexpected spend result: %v", result)
		}
	}
	if wins != 1 || losses != 1 {
		test.Fatalf("expected exactly one winner, got %d wins and %d losses", wins, losses)
	}
	if got := mustBalance(test, service, userID); got != 20 {
		test.Fatalf("expected balance 20 after single debit, got %d", got)
	}
}

func TestRecordFailedPaymentKeepsReferenceUsable(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "retrier")

	if err := service.RecordFailedPayment(context.Background(), userID, "pi_retry"); err != nil {
		test.Fatalf("record failed payment: %v", err)
	}
	if got := mustBalance(test, service, userID); got != 0 {
		test.Fatalf("expected failed payment to leave balance at 0, got %d", got)
	}
	if err := service.Credit(context.Background(), userID, mustAmount(test, 500), "pi_retry", "starter_500"); err != nil {
		test.Fatalf("credit after failed attempt: %v", err)
	}
	if got := mustBalance(test, service, userID); got != 500 {
		test.Fatalf("expected balance 500 after retry, got %d", got)
	}

	rows := store.Transactions()
	if len(rows) != 2 {
		test.Fatalf("expected failed row plus completed row, got %d", len(rows))
	}
	if rows[0].Status != tokens.StatusFailed || rows[0].Amount != 0 {
		test.Fatalf("unexpected failed row: %+v", rows[0])
	}
	if rows[1].Status != tokens.StatusCompleted || rows[1].Amount != 500 {
		test.Fatalf("unexpected completed row: %+v", rows[1])
	}
}

func TestAuditMatchesLedger(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "auditee")

	if err := service.Credit(context.Background(), userID, mustAmount(test, 500), "pi_audit", "starter_500"); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if err := service.Spend(context.Background(), userID, mustAmount(test, 150), tokens.TransactionBoost, "boost", "profile_spotlight"); err != nil {
		test.Fatalf("spend: %v", err)
	}

	report, err := service.Audit(context.Background(), userID)
	if err != nil {
		test.Fatalf("audit: %v", err)
	}
	if !report.InSync() {
		test.Fatalf("expected report in sync, got %+v", report)
	}
	if report.BalanceTokens != 350 {
		test.Fatalf("expected balance 350, got %d", report.BalanceTokens)
	}
}

func TestAuditDetectsDrift(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	service := mustService(test, store)
	userID := mustUserID(test, "drifter")

	accountID, err := store.GetOrCreateAccountID(context.Background(), userID.String())
	if err != nil {
		test.Fatalf("account: %v", err)
	}
	// Mutate the projection behind the service's back.
	if err := store.CreditBalance(context.Background(), accountID, 50, fixedUnixUTC); err != nil {
		test.Fatalf("raw credit: %v", err)
	}

	report, err := service.Audit(context.Background(), userID)
	if err != nil {
		test.Fatalf("audit: %v", err)
	}
	if report.InSync() {
		test.Fatalf("expected drift to be detected, got %+v", report)
	}
	if report.BalanceTokens != 50 || report.LedgerTokens != 0 {
		test.Fatalf("unexpected report: %+v", report)
	}
}

func TestHistoryReturnsNewestFirst(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	clockValue := fixedUnixUTC
	service, err := tokens.NewService(store, func() int64 {
		clockValue++
		return clockValue
	})
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	userID := mustUserID(test, "historian")

	if err := service.Credit(context.Background(), userID, mustAmount(test, 500), "pi_hist", "starter_500"); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if err := service.Spend(context.Background(), userID, mustAmount(test, 100), tokens.TransactionInfluencerContact, "first contact", "influencer-1"); err != nil {
		test.Fatalf("first spend: %v", err)
	}
	if err := service.Spend(context.Background(), userID, mustAmount(test, 150), tokens.TransactionBoost, "boost", "profile_spotlight"); err != nil {
		test.Fatalf("second spend: %v", err)
	}

	history, err := service.History(context.Background(), userID, clockValue+1, 2)
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Amount != -150 || history[1].Amount != -100 {
		test.Fatalf("expected newest first, got %d then %d", history[0].Amount, history[1].Amount)
	}
}
