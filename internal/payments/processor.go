// Package payments turns signed payment-processor webhooks into token ledger
// credits. The contract with the processor: 400 for anything that fails
// signature verification, 2xx for everything after that. Downstream failures
// are logged for operator follow-up, never surfaced to the payer.
package payments

import (
	"context"
	"errors"
	"time"

	"github.com/influmatch/tokenledger/pkg/tokens"
	"go.uber.org/zap"
)

// Processor applies webhook events to the token ledger.
type Processor struct {
	ledger *tokens.Service
	secret string
	logger *zap.Logger
	nowFn  func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithClock overrides the clock used for signature tolerance checks.
func WithClock(now func() time.Time) ProcessorOption {
	return func(processor *Processor) {
		processor.nowFn = now
	}
}

// NewProcessor wires a Processor.
func NewProcessor(ledger *tokens.Service, secret string, logger *zap.Logger, options ...ProcessorOption) (*Processor, error) {
	if ledger == nil {
		return nil, errors.New("ledger dependency is nil")
	}
	if secret == "" {
		return nil, errors.New("webhook secret is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	processor := &Processor{
		ledger: ledger,
		secret: secret,
		logger: logger,
		nowFn:  time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(processor)
		}
	}
	return processor, nil
}

// Process verifies the signature and applies the event. A non-nil error means
// the request was not authentic and the caller must answer 400; every other
// outcome is acknowledged.
func (processor *Processor) Process(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := VerifySignature(payload, signatureHeader, processor.secret, processor.nowFn()); err != nil {
		processor.logger.Warn("webhook signature rejected", zap.Error(err))
		return err
	}

	event, err := ParseEvent(payload)
	if err != nil {
		processor.logger.Error("webhook payload undecodable", zap.Error(err))
		return nil
	}

	switch event.Type {
	case EventCheckoutCompleted, EventPaymentSucceeded:
		processor.applyCredit(ctx, event)
	case EventPaymentFailed:
		processor.recordFailure(ctx, event)
	default:
		processor.logger.Debug("ignoring webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
	}
	return nil
}

func (processor *Processor) applyCredit(ctx context.Context, event Event) {
	details, err := event.CreditDetails()
	if err != nil {
		processor.logger.Error("webhook event not creditable",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		return
	}
	userID, err := tokens.NewUserID(details.AccountUserID)
	if err != nil {
		processor.logger.Error("webhook account id invalid",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}
	amount, err := tokens.NewTokenAmount(details.TokenCount)
	if err != nil {
		processor.logger.Error("webhook token count invalid",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}
	err = processor.ledger.Credit(ctx, userID, amount, details.PaymentIntentID, details.PackageID)
	if errors.Is(err, tokens.ErrDuplicateEvent) {
		processor.logger.Info("webhook redelivery ignored",
			zap.String("event_id", event.ID),
			zap.String("payment_intent_id", details.PaymentIntentID))
		return
	}
	if err != nil {
		processor.logger.Error("webhook credit failed",
			zap.String("event_id", event.ID),
			zap.String("payment_intent_id", details.PaymentIntentID),
			zap.Error(err))
		return
	}
	processor.logger.Info("tokens credited",
		zap.String("user_id", userID.String()),
		zap.Int64("tokens", details.TokenCount),
		zap.String("payment_intent_id", details.PaymentIntentID),
		zap.String("package_id", details.PackageID))
}

func (processor *Processor) recordFailure(ctx context.Context, event Event) {
	accountUserID := event.AccountUserID()
	if accountUserID == "" {
		processor.logger.Error("failed-payment event missing account id",
			zap.String("event_id", event.ID))
		return
	}
	userID, err := tokens.NewUserID(accountUserID)
	if err != nil {
		processor.logger.Error("failed-payment account id invalid",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}
	if err := processor.ledger.RecordFailedPayment(ctx, userID, event.PaymentIntentID()); err != nil {
		processor.logger.Error("failed-payment audit write failed",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}
	processor.logger.Info("failed payment recorded",
		zap.String("user_id", userID.String()),
		zap.String("payment_intent_id", event.PaymentIntentID()))
}
