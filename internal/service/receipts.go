package service

import (
	"context"
	"strings"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/metrics"
	"git.sr.ht/~jakintosh/tollgate/internal/tracing"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

type ReceiptRequest struct {
	TransactionID string `json:"transactionId"`
	AppUserID     string `json:"appUserId"`
}

type SubscriptionInfo struct {
	SubscriptionID string     `json:"subscriptionId"`
	ProductID      string     `json:"productId"`
	TransactionID  string     `json:"transactionId"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	Environment    string     `json:"environment"`
}

type ReceiptResponse struct {
	TokenResponse
	Subscription SubscriptionInfo `json:"subscription"`
}

// VerifyReceipt looks a transaction up by id and, when it entitles,
// issues a user token for the app user together with a subscription
// summary. Verifier failures without a status report 503.
func (s *Service) VerifyReceipt(
	ctx context.Context,
	req ReceiptRequest,
) (
	resp *ReceiptResponse,
	err error,
) {
	ctx, span := tracing.Start(ctx, "service.VerifyReceipt")
	defer func() { tracing.End(span, err) }()

	transactionID := strings.TrimSpace(req.TransactionID)
	appUserID := strings.TrimSpace(req.AppUserID)
	if transactionID == "" {
		return nil, newError(ErrValidation, "transactionId is required")
	}
	if appUserID == "" {
		return nil, newError(ErrValidation, "appUserId is required")
	}

	tx, err := s.verifier.VerifyTransaction(ctx, transactionID)
	if err != nil {
		return nil, s.verifierError("verify_transaction", err, 503)
	}

	issued, err := s.issueUserToken(ctx, tx, appUserID, s.receiptScopes)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssued.WithLabelValues("receipt", string(tokens.TokenTypeUser)).Inc()

	return &ReceiptResponse{
		TokenResponse: *issued,
		Subscription: SubscriptionInfo{
			SubscriptionID: issued.SubscriptionID,
			ProductID:      issued.ProductID,
			TransactionID:  issued.TransactionID,
			ExpiresAt:      tx.ExpiresAt,
			Environment:    string(tx.Environment),
		},
	}, nil
}
