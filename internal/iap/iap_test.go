package iap_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		upstream int
		unknown  int
		want     int
	}{
		{http.StatusTooManyRequests, http.StatusBadRequest, http.StatusServiceUnavailable},
		{http.StatusNotFound, http.StatusBadRequest, http.StatusBadRequest},
		{http.StatusUnauthorized, http.StatusBadRequest, http.StatusBadRequest},
		{http.StatusBadRequest, http.StatusBadRequest, http.StatusBadRequest},
		{http.StatusInternalServerError, http.StatusBadRequest, http.StatusServiceUnavailable},
		{http.StatusBadGateway, http.StatusBadRequest, http.StatusServiceUnavailable},
		{0, http.StatusBadRequest, http.StatusBadRequest},
		{0, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
		{302, http.StatusBadRequest, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, iap.MapStatus(tt.upstream, tt.unknown), "upstream=%d unknown=%d", tt.upstream, tt.unknown)
	}
}

func TestParseEnvironment(t *testing.T) {
	t.Parallel()

	cases := map[string]iap.Environment{
		"":              iap.Sandbox,
		"Sandbox":       iap.Sandbox,
		"sand_box":      iap.Sandbox,
		"prod":          iap.Production,
		" PRODUCTION ":  iap.Production,
		"local-testing": iap.LocalTesting,
		"localtest":     iap.LocalTesting,
		"xcode":         iap.Xcode,
	}
	for in, want := range cases {
		got, err := iap.ParseEnvironment(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := iap.ParseEnvironment("staging")
	assert.Error(t, err)
}

func TestVerifiedTransaction_SubscriptionID(t *testing.T) {
	t.Parallel()

	// original id wins
	tx := iap.VerifiedTransaction{TransactionID: "t1", OriginalTransactionID: "orig-1"}
	assert.Equal(t, "orig-1", tx.SubscriptionID())

	// falls back to the transaction id
	tx.OriginalTransactionID = ""
	assert.Equal(t, "t1", tx.SubscriptionID())
}

func TestVerifiedTransaction_ExpiredAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.False(t, (&iap.VerifiedTransaction{}).ExpiredAt(now))
	assert.True(t, (&iap.VerifiedTransaction{ExpiresAt: &past}).ExpiredAt(now))
	assert.True(t, (&iap.VerifiedTransaction{ExpiresAt: &now}).ExpiredAt(now))
	assert.False(t, (&iap.VerifiedTransaction{ExpiresAt: &future}).ExpiredAt(now))
}

func TestVerificationError_Is(t *testing.T) {
	t.Parallel()

	err := error(iap.NewVerificationError(http.StatusNotFound, "transaction %s not found", "t9"))
	assert.True(t, errors.Is(err, iap.ErrVerification))
	assert.Equal(t, "transaction t9 not found", err.Error())

	var vErr *iap.VerificationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, http.StatusNotFound, vErr.StatusCode)
}

func TestStub(t *testing.T) {
	t.Parallel()
	stub := iap.NewStub(&iap.VerifiedTransaction{ProductID: "p", TransactionID: "t1"})

	// returns a copy and records the reference
	tx, err := stub.VerifyTransaction(context.Background(), "t1")
	require.NoError(t, err)
	tx.ProductID = "mutated"
	again, err := stub.VerifySignedTransaction(context.Background(), "jws")
	require.NoError(t, err)
	assert.Equal(t, "p", again.ProductID)
	assert.Equal(t, []string{"t1", "jws"}, stub.Calls())

	// cancelled contexts surface immediately
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stub.VerifyTransaction(ctx, "t1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnconfigured(t *testing.T) {
	t.Parallel()
	verifier := iap.Unconfigured{}

	// both lookups fail as unavailable
	_, err := verifier.VerifySignedTransaction(context.Background(), "jws")
	var vErr *iap.VerificationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, http.StatusServiceUnavailable, vErr.StatusCode)
	assert.Equal(t, "Transaction verification is not configured", vErr.Message)

	_, err = iap.Unconfigured{Reason: "no keys"}.VerifyTransaction(context.Background(), "t1")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "no keys", vErr.Message)
	assert.Equal(t, http.StatusServiceUnavailable, iap.MapStatus(vErr.StatusCode, 400))
}
