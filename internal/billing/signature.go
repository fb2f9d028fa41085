package billing

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

// defaultTolerance bounds how old a signed webhook timestamp may be.
const defaultTolerance = 5 * time.Minute

var (
	// ErrInvalidSignature indicates the signature header is malformed or no
	// candidate matches the payload.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	// ErrSignatureExpired indicates the signed timestamp is outside the
	// tolerance window.
	ErrSignatureExpired = errors.New("billing: webhook signature outside tolerance")
	errMissingSecret    = errors.New("billing: webhook secret required")
)

// SignatureVerifierConfig configures webhook signature checks.
type SignatureVerifierConfig struct {
	Secret    []byte
	Tolerance time.Duration
	Clock     func() time.Time
}

// SignatureVerifier validates processor webhook signatures of the form
// "t=<unix>,v1=<hex hmac>" computed over "<unix>.<payload>".
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	clock     func() time.Time
}

// NewSignatureVerifier constructs a verifier with sane defaults.
func NewSignatureVerifier(cfg SignatureVerifierConfig) (*SignatureVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errMissingSecret
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SignatureVerifier{
		secret:    append([]byte(nil), cfg.Secret...),
		tolerance: tolerance,
		clock:     clock,
	}, nil
}

// Verify checks the signature header against the raw payload. Every v1
// candidate in the header is tried; one match suffices.
func (v *SignatureVerifier) Verify(payload []byte, header string) error {
	timestamp, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	now := v.clock().UTC()
	signedAt := time.Unix(timestamp, 0).UTC()
	if now.Sub(signedAt) > v.tolerance || signedAt.Sub(now) > v.tolerance {
		return ErrSignatureExpired
	}

	expected := computeSignature(v.secret, timestamp, payload)
	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign produces a signature header for the payload. The processor side of
// the contract; used by tests and local tooling.
func (v *SignatureVerifier) Sign(payload []byte, signedAt time.Time) string {
	timestamp := signedAt.UTC().Unix()
	signature := computeSignature(v.secret, timestamp, payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(signature))
}

func computeSignature(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			parsed, err := strconv.ParseInt(pair[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = parsed
		case "v1":
			candidates = append(candidates, pair[1])
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return 0, nil, fmt.Errorf("%w: missing elements", ErrInvalidSignature)
	}
	return timestamp, candidates, nil
}
