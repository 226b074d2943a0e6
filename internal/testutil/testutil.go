// Package testutil provides test environment setup and utilities for internal package tests.
package testutil

import (
	"net/http"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/api"
	"git.sr.ht/~jakintosh/tollgate/internal/catalog"
	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"git.sr.ht/~jakintosh/tollgate/internal/logger"
	"git.sr.ht/~jakintosh/tollgate/internal/muse"
	"git.sr.ht/~jakintosh/tollgate/internal/service"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

const (
	TestAdminPassword = "test-admin-password"
	TestSigningSecret = "test-signing-secret"

	ProProduct      = "com.example.pro.monthly"
	MechMuseProduct = "com.construct.mechmuse.monthly"
)

// TestNow is the instant every test environment starts at.
var TestNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

// Clock is a settable time source shared by the service and token server.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestEnv provides all dependencies needed for testing
type TestEnv struct {
	Service        *service.Service
	Router         http.Handler
	Catalog        *catalog.Catalog
	Verifier       *iap.Stub
	Generator      *muse.Stub
	Usage          *usage.MemoryStore
	Clock          *Clock
	TokenIssuer    tokens.Issuer
	TokenValidator tokens.Validator
}

// SetupTestEnv creates an isolated test environment: the testdata catalog,
// a stub verifier and generator, an in-memory usage store and a clock fixed
// at TestNow.
func SetupTestEnv(
	t *testing.T,
) *TestEnv {
	t.Helper()
	return SetupTestEnvWithOptions(t, nil)
}

// SetupTestEnvWithOptions is SetupTestEnv with a hook to adjust the service
// options before the service is built.
func SetupTestEnvWithOptions(
	t *testing.T,
	configure func(*service.Options),
) *TestEnv {
	t.Helper()

	clk := &Clock{now: TestNow}

	cat, err := catalog.Load(getTestDataPath("products.json"))
	if err != nil {
		t.Fatalf("failed to load test catalog: %v", err)
	}

	issuer, validator, err := tokens.InitServer([]byte(TestSigningSecret), "HS256", clk.Now)
	if err != nil {
		t.Fatalf("failed to init token server: %v", err)
	}

	env := &TestEnv{
		Catalog:        cat,
		Verifier:       iap.NewStub(nil),
		Generator:      muse.NewStub(nil, nil),
		Usage:          usage.NewMemoryStore(clk.Now),
		Clock:          clk,
		TokenIssuer:    issuer,
		TokenValidator: validator,
	}

	opts := service.Options{
		Catalog:       cat,
		Verifier:      env.Verifier,
		Usage:         env.Usage,
		Issuer:        issuer,
		Validator:     validator,
		Generator:     env.Generator,
		Clock:         clk.Now,
		AdminPassword: TestAdminPassword,
		Lifetimes: tokens.Lifetimes{
			Default: 60 * time.Minute,
		},
		Logger: logger.NewTestLogger(t),
	}
	if configure != nil {
		configure(&opts)
	}

	svc, err := service.New(opts)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	env.Service = svc
	return env
}

// SetupTestEnvWithRouter creates TestEnv and configures the API router
func SetupTestEnvWithRouter(
	t *testing.T,
) *TestEnv {
	t.Helper()
	env := SetupTestEnv(t)
	env.Router = api.New(env.Service, logger.NewTestLogger(t)).Router()
	return env
}

// getTestDataPath returns the path to a file in testdata
func getTestDataPath(
	name string,
) string {
	_, filename, _, _ := runtime.Caller(0)
	// Go up from internal/testutil to repo root, then into testdata
	return filepath.Join(filepath.Dir(filename), "..", "..", "testdata", name)
}

// TestDataPath exposes getTestDataPath to other packages' tests.
func TestDataPath(name string) string {
	return getTestDataPath(name)
}

// Transaction builds a verified transaction for product that expires
// lifetime after the environment's current instant.
func (env *TestEnv) Transaction(
	productID string,
	subject string,
	lifetime time.Duration,
) *iap.VerifiedTransaction {
	expires := env.Clock.Now().Add(lifetime)
	return &iap.VerifiedTransaction{
		ProductID:             productID,
		TransactionID:         "t1",
		OriginalTransactionID: "orig-1",
		AppAccountToken:       subject,
		ExpiresAt:             &expires,
		Environment:           iap.Sandbox,
		SignedTransaction:     "signed-jws",
	}
}

// UseTransaction makes the stub verifier return tx for every lookup.
func (env *TestEnv) UseTransaction(tx *iap.VerifiedTransaction) {
	env.Verifier.Set(tx, nil)
}

// IssueTestAccessToken signs claims directly, bypassing grant dispatch
func (env *TestEnv) IssueTestAccessToken(
	t *testing.T,
	claims tokens.Claims,
) *tokens.AccessToken {
	t.Helper()
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = env.Clock.Now().Add(30 * time.Minute)
	}
	token, err := env.TokenIssuer.IssueAccessToken(claims)
	if err != nil {
		t.Fatalf("failed to issue test access token: %v", err)
	}
	return token
}

// AdminToken issues an admin token through the password grant
func (env *TestEnv) AdminToken(
	t *testing.T,
) string {
	t.Helper()
	resp, err := env.Service.IssueToken(t.Context(), service.TokenRequest{
		GrantType: service.GrantPassword,
		Password:  TestAdminPassword,
	})
	if err != nil {
		t.Fatalf("failed to issue admin token: %v", err)
	}
	return resp.AccessToken
}
