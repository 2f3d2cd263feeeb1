package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature verification errors. All of them mean the request must not be
// trusted and nothing may be parsed from the payload.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

const (
	signatureTimestampKey = "t"
	signatureSchemeKey    = "v1"
	signatureTolerance    = 5 * time.Minute
)

// VerifySignature validates a processor signature header of the form
// "t=<unix>,v1=<hex>" against the raw payload. The expected signature is
// HMAC-SHA256 over "<timestamp>.<payload>" keyed with the shared secret; the
// comparison is constant-time and any v1 candidate in the header may match.
func VerifySignature(payload []byte, header string, secret string, now time.Time) error {
	timestamp, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	eventTime := time.Unix(timestamp, 0)
	drift := now.Sub(eventTime)
	if drift < 0 {
		drift = -drift
	}
	if drift > signatureTolerance {
		return fmt.Errorf("%w: event at %d, now %d", ErrStaleTimestamp, timestamp, now.Unix())
	}
	expected := ComputeSignature(payload, secret, timestamp)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// ComputeSignature returns the hex HMAC-SHA256 the processor would send for
// the given payload and timestamp. Exported for tests and local tooling.
func ComputeSignature(payload []byte, secret string, timestampUnix int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampUnix, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if strings.TrimSpace(header) == "" {
		return 0, nil, fmt.Errorf("%w: empty header", ErrInvalidSignature)
	}
	var (
		timestamp    int64
		hasTimestamp bool
		candidates   []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, fmt.Errorf("%w: malformed header segment", ErrInvalidSignature)
		}
		switch key {
		case signatureTimestampKey:
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = parsed
			hasTimestamp = true
		case signatureSchemeKey:
			candidates = append(candidates, value)
		}
	}
	if !hasTimestamp || len(candidates) == 0 {
		return 0, nil, fmt.Errorf("%w: missing timestamp or signature", ErrInvalidSignature)
	}
	return timestamp, candidates, nil
}
