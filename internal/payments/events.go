package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Recognized processor event kinds. Anything else is acknowledged and
// ignored.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

// ErrMissingMetadata marks an event that cannot be credited because required
// metadata fields are absent.
var ErrMissingMetadata = errors.New("missing event metadata")

// Event is the processor's webhook envelope.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData wraps the object the event describes.
type EventData struct {
	Object EventObject `json:"object"`
}

// EventObject carries the checkout session or payment intent the event is
// about. Metadata values arrive as strings, as the processor sends them.
type EventObject struct {
	ID              string            `json:"id"`
	PaymentIntentID string            `json:"payment_intent"`
	Metadata        map[string]string `json:"metadata"`
}

// CreditDetails is the validated subset of metadata a credit needs.
type CreditDetails struct {
	AccountUserID   string
	PackageID       string
	TokenCount      int64
	PaymentIntentID string
}

// ParseEvent decodes a webhook payload into an Event.
func ParseEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

// PaymentIntentID returns the payment intent reference for the event: the
// linked intent for checkout sessions, the object itself for intent events.
func (event Event) PaymentIntentID() string {
	if event.Data.Object.PaymentIntentID != "" {
		return event.Data.Object.PaymentIntentID
	}
	return event.Data.Object.ID
}

// CreditDetails extracts and validates the metadata a credit requires:
// account id, package id, and token count must all be present.
func (event Event) CreditDetails() (CreditDetails, error) {
	metadata := event.Data.Object.Metadata
	accountUserID := strings.TrimSpace(metadata["account_id"])
	packageID := strings.TrimSpace(metadata["package_id"])
	tokenCountRaw := strings.TrimSpace(metadata["token_count"])
	if accountUserID == "" || packageID == "" || tokenCountRaw == "" {
		return CreditDetails{}, fmt.Errorf("%w: need account_id, package_id, token_count", ErrMissingMetadata)
	}
	tokenCount, err := strconv.ParseInt(tokenCountRaw, 10, 64)
	if err != nil || tokenCount <= 0 {
		return CreditDetails{}, fmt.Errorf("%w: token_count %q is not a positive integer", ErrMissingMetadata, tokenCountRaw)
	}
	return CreditDetails{
		AccountUserID:   accountUserID,
		PackageID:       packageID,
		TokenCount:      tokenCount,
		PaymentIntentID: event.PaymentIntentID(),
	}, nil
}

// AccountUserID returns the account id from metadata, if present. Used by the
// failed-payment audit path, which does not require the full credit set.
func (event Event) AccountUserID() string {
	return strings.TrimSpace(event.Data.Object.Metadata["account_id"])
}
