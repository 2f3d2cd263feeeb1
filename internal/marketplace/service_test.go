package marketplace

import (
	"context"
	"errors"
	"testing"

	"github.com/influmatch/tokenledger/internal/store/memstore"
	"github.com/influmatch/tokenledger/pkg/tokens"
)

const marketplaceNow int64 = 1_700_000_000

type stubStore struct {
	profiles      map[string]InfluencerProfile
	contacts      []ContactRecord
	boosts        []BoostRecord
	notifications []Notification
}

func newStubStore() *stubStore {
	return &stubStore{profiles: make(map[string]InfluencerProfile)}
}

func (store *stubStore) GetInfluencerProfile(_ context.Context, influencerID string) (InfluencerProfile, error) {
	profile, ok := store.profiles[influencerID]
	if !ok {
		return InfluencerProfile{}, ErrUnknownInfluencer
	}
	return profile, nil
}

func (store *stubStore) CreateContact(_ context.Context, contact ContactRecord) error {
	store.contacts = append(store.contacts, contact)
	return nil
}

func (store *stubStore) CreateBoost(_ context.Context, boost BoostRecord) error {
	store.boosts = append(store.boosts, boost)
	return nil
}

func (store *stubStore) CreateNotification(_ context.Context, notification Notification) error {
	store.notifications = append(store.notifications, notification)
	return nil
}

func mustMarketplace(test *testing.T, ledgerStore *memstore.Store, store Store) (*Service, *tokens.Service) {
	test.Helper()
	clock := func() int64 { return marketplaceNow }
	ledger, err := tokens.NewService(ledgerStore, clock)
	if err != nil {
		test.Fatalf("new ledger: %v", err)
	}
	service, err := NewService(ledger, store, clock)
	if err != nil {
		test.Fatalf("new marketplace: %v", err)
	}
	return service, ledger
}

func mustCredit(test *testing.T, ledger *tokens.Service, rawUserID string, amount int64) tokens.UserID {
	test.Helper()
	userID, err := tokens.NewUserID(rawUserID)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	tokenAmount, err := tokens.NewTokenAmount(amount)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	if err := ledger.Credit(context.Background(), userID, tokenAmount, "pi_seed_"+rawUserID, "starter"); err != nil {
		test.Fatalf("seed credit: %v", err)
	}
	return userID
}

func TestContactInfluencerDebitsFollowerPrice(test *testing.T) {
	test.Parallel()
	ledgerStore := memstore.New()
	store := newStubStore()
	store.profiles["inf-1"] = InfluencerProfile{
		InfluencerID:  "inf-1",
		OwnerUserID:   "owner-1",
		Handle:        "@creator",
		Platform:      "instagram",
		FollowerCount: 50_000,
	}
	service, ledger := mustMarketplace(test, ledgerStore, store)
	userID := mustCredit(test, ledger, "biz-1", 500)

	result, err := service.ContactInfluencer(context.Background(), userID, "inf-1", "let's collaborate")
	if err != nil {
		test.Fatalf("contact: %v", err)
	}
	if result.CostTokens != 105 {
		test.Fatalf("expected cost 105 for 50k followers, got %d", result.CostTokens)
	}
	if result.ContactID == "" {
		test.Fatalf("expected contact id")
	}

	balance, err := ledger.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.Tokens != 395 {
		test.Fatalf("expected balance 395, got %d", balance.Tokens)
	}

	if len(store.contacts) != 1 {
		test.Fatalf("expected contact record, got %d", len(store.contacts))
	}
	contact := store.contacts[0]
	if contact.BusinessUserID != "biz-1" || contact.InfluencerID != "inf-1" || contact.CostTokens != 105 {
		test.Fatalf("unexpected contact record: %+v", contact)
	}
	if len(store.notifications) != 1 {
		test.Fatalf("expected notification, got %d", len(store.notifications))
	}
	if store.notifications[0].UserID != "owner-1" || store.notifications[0].Kind != "contact_request" {
		test.Fatalf("unexpected notification: %+v", store.notifications[0])
	}
}

func TestContactInfluencerInsufficientBalanceLeavesNoRecords(test *testing.T) {
	test.Parallel()
	ledgerStore := memstore.New()
	store := newStubStore()
	store.profiles["inf-2"] = InfluencerProfile{
		InfluencerID:  "inf-2",
		OwnerUserID:   "owner-2",
		Handle:        "@big",
		FollowerCount: 10_000_000,
	}
	service, ledger := mustMarketplace(test, ledgerStore, store)
	userID := mustCredit(test, ledger, "biz-2", 100)

	_, err := service.ContactInfluencer(context.Background(), userID, "inf-2", "hello")
	var balanceError *tokens.InsufficientBalanceError
	if !errors.As(err, &balanceError) {
		test.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if balanceError.Shortfall() != 700 {
		test.Fatalf("expected shortfall 700, got %d", balanceError.Shortfall())
	}
	if len(store.contacts) != 0 || len(store.notifications) != 0 {
		test.Fatalf("expected no side effects on failed spend")
	}
}

func TestContactInfluencerUnknownProfile(test *testing.T) {
	test.Parallel()
	ledgerStore := memstore.New()
	service, ledger := mustMarketplace(test, ledgerStore, newStubStore())
	userID := mustCredit(test, ledger, "biz-3", 500)

	_, err := service.ContactInfluencer(context.Background(), userID, "missing", "hello")
	if !errors.Is(err, ErrUnknownInfluencer) {
		test.Fatalf("expected ErrUnknownInfluencer, got %v", err)
	}
	balance, err := ledger.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.Tokens != 500 {
		test.Fatalf("expected balance untouched, got %d", balance.Tokens)
	}
}

func TestPurchaseBoostRecordsWindow(test *testing.T) {
	test.Parallel()
	ledgerStore := memstore.New()
	store := newStubStore()
	service, ledger := mustMarketplace(test, ledgerStore, store)
	userID := mustCredit(test, ledger, "biz-4", 500)

	result, err := service.PurchaseBoost(context.Background(), userID, "profile_spotlight")
	if err != nil {
		test.Fatalf("purchase boost: %v", err)
	}
	if result.CostTokens != 150 {
		test.Fatalf("expected cost 150, got %d", result.CostTokens)
	}
	if result.ExpiresUnixUTC != marketplaceNow+7*24*3600 {
		test.Fatalf("expected 7 day window, got expiry %d", result.ExpiresUnixUTC)
	}

	if len(store.boosts) != 1 {
		test.Fatalf("expected boost record, got %d", len(store.boosts))
	}
	boost := store.boosts[0]
	if boost.UserID != "biz-4" || boost.PackageID != "profile_spotlight" || boost.StartsUnixUTC != marketplaceNow {
		test.Fatalf("unexpected boost record: %+v", boost)
	}

	balance, err := ledger.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.Tokens != 350 {
		test.Fatalf("expected balance 350, got %d", balance.Tokens)
	}
}

func TestPurchaseBoostUnknownPackageFailsBeforeDebit(test *testing.T) {
	test.Parallel()
	ledgerStore := memstore.New()
	store := newStubStore()
	service, ledger := mustMarketplace(test, ledgerStore, store)
	userID := mustCredit(test, ledger, "biz-5", 500)

	_, err := service.PurchaseBoost(context.Background(), userID, "mega_blast")
	if !errors.Is(err, ErrUnknownBoostPackage) {
		test.Fatalf("expected ErrUnknownBoostPackage, got %v", err)
	}
	balance, err := ledger.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.Tokens != 500 {
		test.Fatalf("expected balance untouched, got %d", balance.Tokens)
	}
	if len(store.boosts) != 0 {
		test.Fatalf("expected no boost record")
	}
}

func TestBoostCatalogListsPackages(test *testing.T) {
	test.Parallel()
	catalog := BoostCatalog()
	if len(catalog) != 3 {
		test.Fatalf("expected 3 packages, got %d", len(catalog))
	}
	seen := make(map[string]bool, len(catalog))
	for _, boostPackage := range catalog {
		seen[boostPackage.PackageID] = true
	}
	for _, packageID := range []string{"profile_spotlight", "featured_campaign", "homepage_banner"} {
		if !seen[packageID] {
			test.Fatalf("missing package %s", packageID)
		}
	}
}
