// Package marketplace implements the token-spending flows of the platform:
// contacting an influencer (priced by follower count) and purchasing a boost
// (flat price per package). All balance mutation goes through the tokens
// service; this package only computes amounts and writes the domain side
// effects that follow a successful spend.
package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/influmatch/tokenledger/pkg/tokens"
)

// Domain errors surfaced to the HTTP layer.
var (
	ErrUnknownInfluencer   = errors.New("unknown influencer")
	ErrUnknownBoostPackage = errors.New("unknown boost package")
)

// InfluencerProfile is the subset of a profile the contact flow needs.
type InfluencerProfile struct {
	InfluencerID  string
	OwnerUserID   string
	Handle        string
	Platform      string
	FollowerCount int64
}

// ContactRecord is written after a successful contact spend.
type ContactRecord struct {
	ContactID      string
	BusinessUserID string
	InfluencerID   string
	Message        string
	CostTokens     int64
	CreatedUnixUTC int64
}

// BoostRecord is written after a successful boost spend.
type BoostRecord struct {
	BoostID        string
	UserID         string
	PackageID      string
	CostTokens     int64
	StartsUnixUTC  int64
	ExpiresUnixUTC int64
}

// Notification informs the influencer that a business reached out.
type Notification struct {
	NotificationID string
	UserID         string
	Kind           string
	Body           string
	CreatedUnixUTC int64
}

// BoostPackage describes a purchasable visibility perk.
type BoostPackage struct {
	PackageID       string
	PriceTokens     int64
	DurationSeconds int64
}

// Store persists marketplace side-effect records.
type Store interface {
	GetInfluencerProfile(ctx context.Context, influencerID string) (InfluencerProfile, error)
	CreateContact(ctx context.Context, contact ContactRecord) error
	CreateBoost(ctx context.Context, boost BoostRecord) error
	CreateNotification(ctx context.Context, notification Notification) error
}

// Flat-priced boost catalog. Prices are tokens, durations are seconds.
var boostPackages = map[string]BoostPackage{
	"profile_spotlight": {PackageID: "profile_spotlight", PriceTokens: 150, DurationSeconds: 7 * 24 * 3600},
	"featured_campaign": {PackageID: "featured_campaign", PriceTokens: 300, DurationSeconds: 14 * 24 * 3600},
	"homepage_banner":   {PackageID: "homepage_banner", PriceTokens: 500, DurationSeconds: 30 * 24 * 3600},
}

// Service contains the flow logic over the ledger and the marketplace store.
type Service struct {
	ledger *tokens.Service
	store  Store
	nowFn  func() int64
}

// NewService wires a Service.
func NewService(ledger *tokens.Service, store Store, now func() int64) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("ledger dependency is nil")
	}
	if store == nil {
		return nil, errors.New("store dependency is nil")
	}
	if now == nil {
		return nil, errors.New("clock dependency is nil")
	}
	return &Service{ledger: ledger, store: store, nowFn: now}, nil
}

// ContactResult reports the outcome of a contact flow.
type ContactResult struct {
	ContactID  string
	CostTokens int64
}

// BoostResult reports the outcome of a boost purchase.
type BoostResult struct {
	BoostID        string
	CostTokens     int64
	ExpiresUnixUTC int64
}

// ContactInfluencer prices the contact from the influencer's follower count,
// debits the business account, and only then writes the contact record and
// the influencer's notification. A failed spend leaves no side effects.
func (service *Service) ContactInfluencer(ctx context.Context, businessUserID tokens.UserID, influencerID string, message string) (ContactResult, error) {
	profile, err := service.store.GetInfluencerProfile(ctx, influencerID)
	if err != nil {
		return ContactResult{}, err
	}
	cost, err := tokens.NewTokenAmount(tokens.ContactCost(profile.FollowerCount))
	if err != nil {
		return ContactResult{}, err
	}
	purpose := fmt.Sprintf("contact influencer %s", profile.Handle)
	if err := service.ledger.Spend(ctx, businessUserID, cost, tokens.TransactionInfluencerContact, purpose, influencerID); err != nil {
		return ContactResult{}, err
	}
	now := service.nowFn()
	contact := ContactRecord{
		ContactID:      uuid.NewString(),
		BusinessUserID: businessUserID.String(),
		InfluencerID:   influencerID,
		Message:        message,
		CostTokens:     cost.Int64(),
		CreatedUnixUTC: now,
	}
	if err := service.store.CreateContact(ctx, contact); err != nil {
		return ContactResult{}, err
	}
	notification := Notification{
		NotificationID: uuid.NewString(),
		UserID:         profile.OwnerUserID,
		Kind:           "contact_request",
		Body:           fmt.Sprintf("A business wants to work with you: %s", message),
		CreatedUnixUTC: now,
	}
	if err := service.store.CreateNotification(ctx, notification); err != nil {
		return ContactResult{}, err
	}
	return ContactResult{ContactID: contact.ContactID, CostTokens: cost.Int64()}, nil
}

// PurchaseBoost debits the flat package price and records the boost window.
// Unknown packages fail before any debit.
func (service *Service) PurchaseBoost(ctx context.Context, userID tokens.UserID, packageID string) (BoostResult, error) {
	boostPackage, ok := boostPackages[packageID]
	if !ok {
		return BoostResult{}, fmt.Errorf("%w: %q", ErrUnknownBoostPackage, packageID)
	}
	cost, err := tokens.NewTokenAmount(boostPackage.PriceTokens)
	if err != nil {
		return BoostResult{}, err
	}
	purpose := fmt.Sprintf("boost package %s", packageID)
	if err := service.ledger.Spend(ctx, userID, cost, tokens.TransactionBoost, purpose, packageID); err != nil {
		return BoostResult{}, err
	}
	now := service.nowFn()
	boost := BoostRecord{
		BoostID:        uuid.NewString(),
		UserID:         userID.String(),
		PackageID:      packageID,
		CostTokens:     cost.Int64(),
		StartsUnixUTC:  now,
		ExpiresUnixUTC: now + boostPackage.DurationSeconds,
	}
	if err := service.store.CreateBoost(ctx, boost); err != nil {
		return BoostResult{}, err
	}
	return BoostResult{BoostID: boost.BoostID, CostTokens: cost.Int64(), ExpiresUnixUTC: boost.ExpiresUnixUTC}, nil
}

// BoostCatalog returns the purchasable packages.
func BoostCatalog() []BoostPackage {
	catalog := make([]BoostPackage, 0, len(boostPackages))
	for _, boostPackage := range boostPackages {
		catalog = append(catalog, boostPackage)
	}
	return catalog
}
