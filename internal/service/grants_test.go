package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"git.sr.ht/~jakintosh/tollgate/internal/service"
	"git.sr.ht/~jakintosh/tollgate/internal/testutil"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func requireStatus(t *testing.T, err error, status int, detail string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, status, service.StatusCode(err))
	assert.Equal(t, detail, service.Detail(err))
}

func TestIssueToken_AdminPassword(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	resp, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType: "password",
		Password:  testutil.TestAdminPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Empty(t, resp.Entitlements)

	// token decodes to the admin subject with no entitlements
	claims, err := env.TokenValidator.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Empty(t, claims.Entitlements)
	assert.True(t, claims.IsAdmin())

	// expiry uses the default lifetime
	assert.Equal(t, testutil.TestNow.Add(60*time.Minute), claims.ExpiresAt)
	assert.Equal(t, claims.ExpiresAt, resp.ExpiresAt)
}

func TestIssueToken_GrantTypeDefaultsToPassword(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	// empty grant type is a password grant
	_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		Password: testutil.TestAdminPassword,
	})
	require.NoError(t, err)

	// grant type matching ignores case
	_, err = env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType: "PASSWORD",
		Password:  testutil.TestAdminPassword,
	})
	require.NoError(t, err)
}

func TestIssueToken_WrongPassword(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	for _, password := range []string{"", "wrong", testutil.TestAdminPassword + " "} {
		resp, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
			GrantType: "password",
			Password:  password,
		})
		assert.Nil(t, resp)
		requireStatus(t, err, http.StatusUnauthorized, "Invalid credentials")
		assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	}
}

func TestIssueToken_AdminPasswordHash(t *testing.T) {
	t.Parallel()
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	env := testutil.SetupTestEnvWithOptions(t, func(o *service.Options) {
		o.AdminPasswordHash = string(hash)
	})

	// the hash wins over the plain password
	_, err = env.Service.IssueToken(context.Background(), service.TokenRequest{Password: "hashed-secret"})
	require.NoError(t, err)

	_, err = env.Service.IssueToken(context.Background(), service.TokenRequest{Password: testutil.TestAdminPassword})
	requireStatus(t, err, http.StatusUnauthorized, "Invalid credentials")
}

func TestIssueToken_UnsupportedGrant(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{GrantType: "foo"})

	// the raw grant type is named
	requireStatus(t, err, http.StatusBadRequest, "Unsupported grant_type: foo")
	assert.ErrorIs(t, err, service.ErrUnsupportedGrant)
}

func TestIssueToken_TransactionEndToEnd(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	env.UseTransaction(env.Transaction(testutil.ProProduct, "user-42", 30*24*time.Hour))

	resp, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType:   service.GrantTransaction,
		Transaction: "signed-jws",
	})
	require.NoError(t, err)

	// response carries the catalog entitlements and subscription
	assert.Equal(t, []string{"pro"}, resp.Entitlements)
	assert.Equal(t, "orig-1", resp.SubscriptionID)
	assert.Equal(t, "t1", resp.TransactionID)
	assert.Equal(t, testutil.ProProduct, resp.ProductID)
	assert.Equal(t, []string{"signed-jws"}, env.Verifier.Calls())

	// the token is a user token for the app account
	claims, err := env.Service.Authenticate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, tokens.TokenTypeUser, *claims.TokenType)
	assert.Equal(t, "orig-1", *claims.SubscriptionID)
	assert.Equal(t, testutil.ProProduct, *claims.ProductID)

	// entitlement gate passes for pro and refuses enterprise
	assert.NoError(t, env.Service.Authorize(claims, "pro"))
	err = env.Service.Authorize(claims, "enterprise")
	requireStatus(t, err, http.StatusForbidden, "Missing required entitlement")

	// the usage record was initialized with zero counts
	record, err := env.Usage.Get(context.Background(), "orig-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.InputUnits)
	assert.Equal(t, int64(0), record.OutputUnits)
	assert.Equal(t, "user-42", record.UserID)
	assert.Equal(t, testutil.ProProduct, record.ProductID)
}

func TestIssueToken_TransactionAlias(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	env.UseTransaction(env.Transaction(testutil.ProProduct, "user-42", time.Hour))

	_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType:   "Transaction",
		Transaction: "signed-jws",
	})
	assert.NoError(t, err)
}

func TestIssueToken_TransactionMissingSubject(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	env.UseTransaction(env.Transaction(testutil.ProProduct, "", 30*24*time.Hour))

	_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType:   service.GrantTransaction,
		Transaction: "signed-jws",
	})

	requireStatus(t, err, http.StatusBadRequest, "Transaction does not include appAccountToken")
}

func TestIssueToken_TransactionRequired(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType: service.GrantTransaction,
	})

	// the verifier is never consulted
	requireStatus(t, err, http.StatusBadRequest, "transaction is required")
	assert.Empty(t, env.Verifier.Calls())
}

func TestIssueToken_UnsupportedProduct(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	for _, product := range []string{"", "  ", "com.example.unknown"} {
		env.UseTransaction(env.Transaction(product, "user-42", time.Hour))

		_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
			GrantType:   service.GrantTransaction,
			Transaction: "signed-jws",
		})
		requireStatus(t, err, http.StatusBadRequest, "Transaction does not correspond to a supported product")
	}
}

func TestIssueToken_ExpiredTransaction(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)

	// expiring exactly now counts as expired
	for _, lifetime := range []time.Duration{-time.Hour, 0} {
		env.UseTransaction(env.Transaction(testutil.ProProduct, "user-42", lifetime))

		_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
			GrantType:   service.GrantTransaction,
			Transaction: "signed-jws",
		})
		requireStatus(t, err, http.StatusForbidden, "Subscription has expired")
	}

	// no usage record was created
	_, err := env.Usage.Get(context.Background(), "orig-1")
	assert.ErrorIs(t, err, usage.ErrNotFound)
}

func TestIssueToken_TransactionWithoutExpiry(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnvWithOptions(t, func(o *service.Options) {
		o.Lifetimes.User = 15 * time.Minute
	})
	tx := env.Transaction("com.example.lifetime", "user-42", 0)
	tx.ExpiresAt = nil
	env.UseTransaction(tx)

	resp, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType:   service.GrantTransaction,
		Transaction: "signed-jws",
	})
	require.NoError(t, err)

	// user lifetime applies without a transaction expiry
	assert.Equal(t, testutil.TestNow.Add(15*time.Minute), resp.ExpiresAt)
}

func TestIssueToken_MissingIdentifiers(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	tx := env.Transaction(testutil.ProProduct, "user-42", time.Hour)
	tx.TransactionID = ""
	tx.OriginalTransactionID = ""
	env.UseTransaction(tx)

	_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType:   service.GrantTransaction,
		Transaction: "signed-jws",
	})

	requireStatus(t, err, http.StatusBadRequest, "Transaction identifiers missing")
}

func TestIssueToken_SubscriptionFallsBackToTransactionID(t *testing.T) {
	t.Parallel()
	env := testutil.SetupTestEnv(t)
	tx := env.Transaction(testutil.ProProduct, "user-42", time.Hour)
	tx.OriginalTransactionID = ""
	env.UseTransaction(tx)

	resp, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
		GrantType:   service.GrantTransaction,
		Transaction: "signed-jws",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.SubscriptionID)
}

func TestIssueToken_ExpiryCap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		maxUser  time.Duration
		lifetime time.Duration
		want     time.Time
	}{
		{"capped", time.Hour, 30 * 24 * time.Hour, testutil.TestNow.Add(time.Hour)},
		{"under cap", 48 * time.Hour, 2 * time.Hour, testutil.TestNow.Add(2 * time.Hour)},
		{"no cap", 0, 30 * 24 * time.Hour, testutil.TestNow.Add(30 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.SetupTestEnvWithOptions(t, func(o *service.Options) {
				o.Lifetimes.MaxUser = tt.maxUser
			})
			env.UseTransaction(env.Transaction(testutil.ProProduct, "user-42", tt.lifetime))

			resp, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
				GrantType:   service.GrantTransaction,
				Transaction: "signed-jws",
			})
			require.NoError(t, err)

			// effective expiry is min(transaction expiry, now + max)
			claims, err := env.TokenValidator.ValidateToken(resp.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, tt.want, claims.ExpiresAt)
		})
	}
}

func TestIssueToken_VerifierFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"no status", iap.NewVerificationError(0, `dial tcp 10.0.0.1:443: connect: refused`), http.StatusBadRequest, "Transaction verification failed"},
		{"client error", iap.NewVerificationError(404, "not found"), http.StatusBadRequest, "not found"},
		{"rate limited", iap.NewVerificationError(429, "slow down"), http.StatusServiceUnavailable, "slow down"},
		{"server error", iap.NewVerificationError(502, "apple down"), http.StatusServiceUnavailable, "apple down"},
		{"untyped", errors.New("boom"), http.StatusBadRequest, "Transaction verification failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.SetupTestEnv(t)
			env.Verifier.Set(nil, tt.err)

			_, err := env.Service.IssueToken(context.Background(), service.TokenRequest{
				GrantType:   service.GrantTransaction,
				Transaction: "signed-jws",
			})

			require.ErrorIs(t, err, service.ErrUpstream)
			assert.Equal(t, tt.status, service.StatusCode(err))
			assert.Equal(t, tt.detail, service.Detail(err))
		})
	}
}
