package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"git.sr.ht/~jakintosh/tollgate/internal/metrics"
	"git.sr.ht/~jakintosh/tollgate/internal/tracing"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

type TokenRequest struct {
	GrantType   string `json:"grant_type"`
	Password    string `json:"password"`
	Transaction string `json:"transaction"`
}

type TokenResponse struct {
	AccessToken    string    `json:"access_token"`
	TokenType      string    `json:"token_type"`
	Entitlements   []string  `json:"entitlements,omitempty"`
	ProductID      string    `json:"product_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitzero"`
}

// IssueToken dispatches on the grant type. The grant type defaults to
// "password" and is matched case-insensitively.
func (s *Service) IssueToken(
	ctx context.Context,
	req TokenRequest,
) (
	resp *TokenResponse,
	err error,
) {
	raw := req.GrantType
	if strings.TrimSpace(raw) == "" {
		raw = GrantPassword
	}
	grant := strings.ToLower(strings.TrimSpace(raw))

	ctx, span := tracing.Start(ctx, "service.IssueToken", attribute.String("grant_type", grantLabel(grant)))
	defer func() {
		tracing.End(span, err)
		if err != nil {
			metrics.TokenRequestsRejected.
				WithLabelValues(grantLabel(grant), strconv.Itoa(StatusCode(err))).
				Inc()
		}
	}()

	switch grant {
	case GrantPassword:
		return s.passwordGrant(req.Password)
	case GrantTransaction, grantTransactionAlias:
		return s.transactionGrant(ctx, req.Transaction)
	default:
		return nil, newError(ErrUnsupportedGrant, fmt.Sprintf("Unsupported grant_type: %s", raw))
	}
}

func (s *Service) passwordGrant(
	password string,
) (
	*TokenResponse,
	error,
) {
	if !s.checkAdminPassword(password) {
		s.log.Warn("admin password rejected", nil)
		return nil, newError(ErrInvalidCredentials, "Invalid credentials")
	}

	now := s.clock.Now()
	token, err := s.issuer.IssueAccessToken(tokens.Claims{
		Subject:   AdminSubject,
		ExpiresAt: s.lifetimes.ExpiryFor(now, tokens.TokenTypeAdmin, nil),
		TokenType: tokens.Type(tokens.TokenTypeAdmin),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't issue admin token: %v", ErrInternal, err)
	}

	metrics.TokensIssued.WithLabelValues(GrantPassword, string(tokens.TokenTypeAdmin)).Inc()
	s.log.Info("admin token issued", map[string]interface{}{
		"expires_at": token.Expiration(),
	})

	return &TokenResponse{
		AccessToken: token.Encoded(),
		TokenType:   "bearer",
		ExpiresAt:   token.Expiration(),
	}, nil
}

func (s *Service) checkAdminPassword(password string) bool {
	if s.adminHash != nil {
		return bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), s.adminPassword) == 1
}

func (s *Service) transactionGrant(
	ctx context.Context,
	jws string,
) (
	*TokenResponse,
	error,
) {
	if strings.TrimSpace(jws) == "" {
		return nil, newError(ErrValidation, "transaction is required")
	}

	tx, err := s.verifier.VerifySignedTransaction(ctx, jws)
	if err != nil {
		return nil, s.verifierError("verify_signed_transaction", err, 400)
	}

	subject := strings.TrimSpace(tx.AppAccountToken)
	if subject == "" {
		return nil, newError(ErrValidation, "Transaction does not include appAccountToken")
	}

	issued, err := s.issueUserToken(ctx, tx, subject, nil)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssued.WithLabelValues(GrantTransaction, string(tokens.TokenTypeUser)).Inc()
	return issued, nil
}

// issueUserToken turns a verified transaction into a user token. The
// product must be in the catalog and the transaction must still entitle
// at the clock's current instant; only then is the usage record created.
func (s *Service) issueUserToken(
	ctx context.Context,
	tx *iap.VerifiedTransaction,
	subject string,
	scopes []string,
) (
	*TokenResponse,
	error,
) {
	productID := strings.TrimSpace(tx.ProductID)
	product, ok := s.catalog.Find(productID)
	if productID == "" || !ok {
		s.log.Warn("transaction for unsupported product", map[string]interface{}{
			"product_id": productID,
		})
		return nil, newError(ErrValidation, "Transaction does not correspond to a supported product")
	}

	now := s.clock.Now()
	if tx.ExpiredAt(now) {
		return nil, newError(ErrForbidden, "Subscription has expired")
	}

	transactionID := firstNonEmpty(tx.TransactionID, tx.OriginalTransactionID)
	subscriptionID := tx.SubscriptionID()
	if transactionID == "" || subscriptionID == "" {
		return nil, newError(ErrValidation, "Transaction identifiers missing")
	}

	entitlements := s.catalog.EntitlementsFor(product.ID)
	token, err := s.issuer.IssueAccessToken(tokens.Claims{
		Subject:        subject,
		ExpiresAt:      s.lifetimes.ExpiryFor(now, tokens.TokenTypeUser, tx.ExpiresAt),
		Scopes:         scopes,
		Entitlements:   entitlements,
		TokenType:      tokens.Type(tokens.TokenTypeUser),
		ProductID:      tokens.String(product.ID),
		SubscriptionID: tokens.String(subscriptionID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't issue user token: %v", ErrInternal, err)
	}

	// zero increment so the record exists before any metered call
	err = s.usage.Increment(ctx, usage.Increment{
		SubscriptionID: subscriptionID,
		UserID:         subject,
		ProductID:      product.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't initialize usage record: %v", ErrInternal, err)
	}

	s.log.Info("user token issued", map[string]interface{}{
		"product_id":      product.ID,
		"subscription_id": subscriptionID,
		"environment":     string(tx.Environment),
		"expires_at":      token.Expiration(),
	})

	return &TokenResponse{
		AccessToken:    token.Encoded(),
		TokenType:      "bearer",
		Entitlements:   entitlements,
		ProductID:      product.ID,
		SubscriptionID: subscriptionID,
		TransactionID:  transactionID,
		ExpiresAt:      token.Expiration(),
	}, nil
}

// verifierError folds a verifier failure into an UpstreamError. unknown is
// the status used when the verifier did not report one.
func (s *Service) verifierError(
	operation string,
	err error,
	unknown int,
) error {
	upstream := 0
	detail := "Transaction verification failed"
	var vErr *iap.VerificationError
	if errors.As(err, &vErr) && vErr.StatusCode != 0 {
		upstream = vErr.StatusCode
		detail = vErr.Message
	}
	status := iap.MapStatus(upstream, unknown)
	// messages without an upstream status describe local failures
	if upstream == 0 && status == http.StatusServiceUnavailable {
		detail = "Transaction verification unavailable"
	}

	metrics.VerifierFailures.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	s.log.WithError(err).Warn("transaction verification failed", map[string]interface{}{
		"operation":       operation,
		"upstream_status": upstream,
		"status":          status,
	})

	return &UpstreamError{Status: status, Detail: detail, Err: err}
}

func grantLabel(grant string) string {
	switch grant {
	case GrantPassword, GrantTransaction:
		return grant
	case grantTransactionAlias:
		return GrantTransaction
	default:
		return "unsupported"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
