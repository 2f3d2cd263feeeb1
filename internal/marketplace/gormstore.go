package marketplace

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// GORM models for the marketplace side-effect tables.

// InfluencerRow mirrors the influencer_profiles table.
type InfluencerRow struct {
	InfluencerID  string    `gorm:"type:uuid;primaryKey"`
	OwnerUserID   string    `gorm:"not null;index"`
	Handle        string    `gorm:"not null"`
	Platform      string    `gorm:"not null"`
	FollowerCount int64     `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (InfluencerRow) TableName() string { return "influencer_profiles" }

// ContactRow mirrors the contacts table.
type ContactRow struct {
	ContactID      string    `gorm:"type:uuid;primaryKey"`
	BusinessUserID string    `gorm:"not null;index"`
	InfluencerID   string    `gorm:"type:uuid;not null;index"`
	Message        string    `gorm:"not null"`
	CostTokens     int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (ContactRow) TableName() string { return "contacts" }

// BoostRow mirrors the boosts table.
type BoostRow struct {
	BoostID    string    `gorm:"type:uuid;primaryKey"`
	UserID     string    `gorm:"not null;index"`
	PackageID  string    `gorm:"not null"`
	CostTokens int64     `gorm:"not null"`
	StartsAt   time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

func (BoostRow) TableName() string { return "boosts" }

// NotificationRow mirrors the notifications table.
type NotificationRow struct {
	NotificationID string    `gorm:"type:uuid;primaryKey"`
	UserID         string    `gorm:"not null;index"`
	Kind           string    `gorm:"not null"`
	Body           string    `gorm:"not null"`
	ReadAt         *time.Time
	CreatedAt      time.Time `gorm:"not null"`
}

func (NotificationRow) TableName() string { return "notifications" }

// GormStore implements Store using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a GormStore backed by gorm.DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (store *GormStore) GetInfluencerProfile(ctx context.Context, influencerID string) (InfluencerProfile, error) {
	var row InfluencerRow
	err := store.db.WithContext(ctx).
		Where("influencer_id = ?", influencerID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return InfluencerProfile{}, ErrUnknownInfluencer
	}
	if err != nil {
		return InfluencerProfile{}, err
	}
	return InfluencerProfile{
		InfluencerID:  row.InfluencerID,
		OwnerUserID:   row.OwnerUserID,
		Handle:        row.Handle,
		Platform:      row.Platform,
		FollowerCount: row.FollowerCount,
	}, nil
}

func (store *GormStore) CreateContact(ctx context.Context, contact ContactRecord) error {
	row := ContactRow{
		ContactID:      contact.ContactID,
		BusinessUserID: contact.BusinessUserID,
		InfluencerID:   contact.InfluencerID,
		Message:        contact.Message,
		CostTokens:     contact.CostTokens,
		CreatedAt:      time.Unix(contact.CreatedUnixUTC, 0).UTC(),
	}
	return store.db.WithContext(ctx).Create(&row).Error
}

func (store *GormStore) CreateBoost(ctx context.Context, boost BoostRecord) error {
	row := BoostRow{
		BoostID:    boost.BoostID,
		UserID:     boost.UserID,
		PackageID:  boost.PackageID,
		CostTokens: boost.CostTokens,
		StartsAt:   time.Unix(boost.StartsUnixUTC, 0).UTC(),
		ExpiresAt:  time.Unix(boost.ExpiresUnixUTC, 0).UTC(),
	}
	return store.db.WithContext(ctx).Create(&row).Error
}

func (store *GormStore) CreateNotification(ctx context.Context, notification Notification) error {
	row := NotificationRow{
		NotificationID: notification.NotificationID,
		UserID:         notification.UserID,
		Kind:           notification.Kind,
		Body:           notification.Body,
		CreatedAt:      time.Unix(notification.CreatedUnixUTC, 0).UTC(),
	}
	return store.db.WithContext(ctx).Create(&row).Error
}
