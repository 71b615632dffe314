package replies

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Textbelt-Signature"
	HeaderTimestamp = "X-Textbelt-Timestamp"

	DefaultMaxAge = 15 * time.Minute
)

var ErrUnauthenticated = errors.New("webhook not authenticated")

// AuthError names why a payload was rejected.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "webhook rejected: " + e.Reason }
func (e *AuthError) Unwrap() error { return ErrUnauthenticated }

type SignatureHeaders struct {
	Signature string
	Timestamp string
}

// Verifier checks the provider's HMAC over timestamp+body. With no secret it
// rejects everything unless AllowUnsigned is set, which only development
// configurations do.
type Verifier struct {
	Secret        string
	MaxAge        time.Duration
	AllowUnsigned bool
	Now           func() time.Time
}

func (v Verifier) Verify(body []byte, h SignatureHeaders) error {
	if v.Secret == "" {
		if v.AllowUnsigned {
			return nil
		}
		return &AuthError{Reason: "secret_not_configured"}
	}

	if h.Signature == "" || h.Timestamp == "" {
		return &AuthError{Reason: "missing_headers"}
	}

	sec, err := strconv.ParseInt(strings.TrimSpace(h.Timestamp), 10, 64)
	if err != nil {
		return &AuthError{Reason: "bad_timestamp"}
	}
	maxAge := v.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	skew := now().Sub(time.Unix(sec, 0))
	if skew > maxAge || skew < -maxAge {
		return &AuthError{Reason: "stale_timestamp"}
	}

	got, err := hex.DecodeString(strings.TrimSpace(h.Signature))
	if err != nil {
		return &AuthError{Reason: "bad_signature"}
	}
	if !hmac.Equal(got, mac(v.Secret, h.Timestamp, body)) {
		return &AuthError{Reason: "bad_signature"}
	}
	return nil
}

// Sign produces the hex signature the provider sends for body at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	return hex.EncodeToString(mac(secret, timestamp, body))
}

func mac(secret, timestamp string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(timestamp))
	m.Write(body)
	return m.Sum(nil)
}
