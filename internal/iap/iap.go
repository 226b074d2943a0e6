// Package iap defines the Transaction Verifier contract: the boundary between
// tollgate and whatever proves an in-app purchase is genuine.
package iap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Environment string

const (
	Production   Environment = "Production"
	Sandbox      Environment = "Sandbox"
	Xcode        Environment = "Xcode"
	LocalTesting Environment = "LocalTesting"
)

// ParseEnvironment accepts the loose spellings used in configuration. An
// empty value means Sandbox.
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sandbox", "sand_box":
		return Sandbox, nil
	case "prod", "production":
		return Production, nil
	case "local_testing", "local-testing", "localtest", "localtesting":
		return LocalTesting, nil
	case "xcode":
		return Xcode, nil
	default:
		return "", fmt.Errorf("unsupported App Store environment: %q", value)
	}
}

// VerifiedTransaction is a decoded, trusted purchase transaction.
type VerifiedTransaction struct {
	ProductID             string
	TransactionID         string
	OriginalTransactionID string
	AppAccountToken       string
	ExpiresAt             *time.Time
	Environment           Environment
	SignedTransaction     string
}

// SubscriptionID is the stable identifier across renewals: the original
// transaction id, or the transaction id when the original is absent.
func (t *VerifiedTransaction) SubscriptionID() string {
	if t.OriginalTransactionID != "" {
		return t.OriginalTransactionID
	}
	return t.TransactionID
}

// ExpiredAt reports whether the transaction no longer entitles at now. A
// transaction without an expiry never expires.
func (t *VerifiedTransaction) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// Verifier proves a transaction is genuine, either from a signed JWS payload
// or by looking the transaction up with the store. Implementations must
// honor ctx cancellation and must not retry.
type Verifier interface {
	VerifySignedTransaction(ctx context.Context, jws string) (*VerifiedTransaction, error)
	VerifyTransaction(ctx context.Context, transactionID string) (*VerifiedTransaction, error)
}

var ErrVerification = errors.New("transaction verification failed")

// VerificationError is a typed verifier failure. StatusCode is the upstream
// HTTP status when one is known, and zero otherwise.
type VerificationError struct {
	Message    string
	StatusCode int
}

func (e *VerificationError) Error() string {
	return e.Message
}

func (e *VerificationError) Unwrap() error { return ErrVerification }

func NewVerificationError(status int, format string, args ...any) *VerificationError {
	return &VerificationError{
		Message:    fmt.Sprintf(format, args...),
		StatusCode: status,
	}
}

// MapStatus folds an upstream status into the status reported to callers:
// rate limiting and server failures become 503, other client errors 400.
// unknown is used when the upstream status is zero.
func MapStatus(upstream int, unknown int) int {
	if upstream == 0 {
		upstream = unknown
	}
	switch {
	case upstream == http.StatusTooManyRequests:
		return http.StatusServiceUnavailable
	case upstream >= 400 && upstream < 500:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// Unconfigured is the Verifier used when no store credentials are set.
// Every call fails with a 503-class VerificationError.
type Unconfigured struct {
	Reason string
}

var _ Verifier = Unconfigured{}

func (u Unconfigured) VerifySignedTransaction(context.Context, string) (*VerifiedTransaction, error) {
	return nil, u.err()
}

func (u Unconfigured) VerifyTransaction(context.Context, string) (*VerifiedTransaction, error) {
	return nil, u.err()
}

func (u Unconfigured) err() error {
	reason := u.Reason
	if reason == "" {
		reason = "Transaction verification is not configured"
	}
	return NewVerificationError(http.StatusServiceUnavailable, "%s", reason)
}
