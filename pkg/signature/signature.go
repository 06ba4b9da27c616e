// Package signature implements Stripe-style webhook signature verification.
//
// The signature header has the form "t=<unix_seconds>,v1=<hex_hmac>", where
// the MAC is HMAC-SHA256(secret, "<t>.<raw_body>") computed over the exact
// bytes received on the wire. Verification never re-serializes the payload:
// any JSON normalization before the MAC check would break interoperability
// with the sender.
package signature

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

// DefaultTolerance is the maximum allowed clock skew between the signature
// timestamp and the receiver's clock.
const DefaultTolerance = 300 * time.Second

var (
	// ErrMalformedHeader indicates a header missing t= or v1=, or with an
	// unparseable timestamp.
	ErrMalformedHeader = errors.New("malformed signature header")
	// ErrTimestampOutOfTolerance indicates |now - t| exceeds the tolerance.
	ErrTimestampOutOfTolerance = errors.New("signature timestamp outside tolerance")
	// ErrBadSignature indicates the HMAC did not match.
	ErrBadSignature = errors.New("signature mismatch")
)

// header is the parsed form of a Stripe-Signature header.
type header struct {
	Timestamp int64
	V1        string
}

// parseHeader splits a comma-separated list of key=value pairs.
// Unknown keys are ignored; t and v1 are required.
func parseHeader(raw string) (*header, error) {
	var (
		h     header
		hasT  bool
		hasV1 bool
	)
	for _, kv := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrMalformedHeader
		}
		switch strings.TrimSpace(key) {
		case "t":
			ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return nil, ErrMalformedHeader
			}
			h.Timestamp = ts
			hasT = true
		case "v1":
			h.V1 = strings.TrimSpace(value)
			hasV1 = true
		}
	}
	if !hasT || !hasV1 || h.V1 == "" {
		return nil, ErrMalformedHeader
	}
	return &h, nil
}

// Verify checks the signature header against the raw request body.
// It returns nil iff the header parses, the timestamp is within tolerance of
// now, and the MAC matches under constant-time comparison.
func Verify(raw []byte, headerValue, secret string, tolerance time.Duration, now time.Time) error {
	h, err := parseHeader(headerValue)
	if err != nil {
		return err
	}

	skew := now.Unix() - h.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(tolerance/time.Second) {
		return ErrTimestampOutOfTolerance
	}

	expected := ComputeV1(raw, secret, h.Timestamp)
	if !hmac.Equal([]byte(expected), []byte(h.V1)) {
		return ErrBadSignature
	}
	return nil
}

// ComputeV1 returns the lowercase hex HMAC-SHA256 of "<ts>.<raw>".
func ComputeV1(raw []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header renders a signature header for the given body, secret and
// timestamp. Used by the seed command and by tests.
func Header(raw []byte, secret string, ts int64) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeV1(raw, secret, ts))
}
