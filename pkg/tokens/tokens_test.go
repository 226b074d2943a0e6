package tokens_test

import (
	"reflect"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

var testSecret = []byte("test-secret-key-with-enough-bytes")

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fixedClock returns a time source pinned to at.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// initTestServer builds an HS256 issuer/validator pinned to at.
func initTestServer(t *testing.T, at time.Time) (tokens.Issuer, tokens.Validator) {
	t.Helper()
	issuer, validator, err := tokens.InitServer(testSecret, "HS256", fixedClock(at))
	if err != nil {
		t.Fatalf("InitServer failed: %v", err)
	}
	return issuer, validator
}

func TestInitServer(t *testing.T) {
	t.Parallel()

	// server initialization returns issuer and validator
	issuer, validator, err := tokens.InitServer(testSecret, "HS256", nil)
	if err != nil {
		t.Fatalf("InitServer failed: %v", err)
	}
	if issuer == nil {
		t.Error("InitServer returned nil issuer")
	}
	if validator == nil {
		t.Error("InitServer returned nil validator")
	}
}

func TestInitServer_Algorithms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		alg string
		ok  bool
	}{
		{"HS256", true},
		{"HS384", true},
		{"HS512", true},
		{"ES256", false},
		{"none", false},
		{"", false},
	}

	for _, tt := range tests {
		_, _, err := tokens.InitServer(testSecret, tt.alg, nil)
		if tt.ok && err != nil {
			t.Errorf("InitServer(%q) failed: %v", tt.alg, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("InitServer(%q) should fail", tt.alg)
		}
	}
}

func TestInitServer_MissingSecret(t *testing.T) {
	t.Parallel()

	// empty secret is a configuration error
	_, _, err := tokens.InitServer(nil, "HS256", nil)
	if err != tokens.ErrMissingSecret() {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()
	issuer, validator := initTestServer(t, testNow)

	tests := []struct {
		name   string
		claims tokens.Claims
	}{
		{
			name: "admin",
			claims: tokens.Claims{
				Subject:   "admin",
				ExpiresAt: testNow.Add(time.Hour),
				TokenType: tokens.Type(tokens.TokenTypeAdmin),
			},
		},
		{
			name: "user with everything",
			claims: tokens.Claims{
				Subject:        "user-42",
				ExpiresAt:      testNow.Add(30 * time.Minute),
				Scopes:         []string{"mech-muse"},
				Entitlements:   []string{"pro", "mechanical_muse"},
				TokenType:      tokens.Type(tokens.TokenTypeUser),
				ProductID:      tokens.String("com.example.pro.monthly"),
				SubscriptionID: tokens.String("orig-1"),
			},
		},
		{
			name: "bare",
			claims: tokens.Claims{
				Subject:   "someone",
				ExpiresAt: testNow.Add(time.Minute),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issued, err := issuer.IssueAccessToken(tt.claims)
			if err != nil {
				t.Fatalf("IssueAccessToken failed: %v", err)
			}

			// decode(encode(claims)) == claims
			decoded := &tokens.AccessToken{}
			if err := decoded.Decode(issued.Encoded(), validator); err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			got := decoded.Claims()
			if !reflect.DeepEqual(got, tt.claims) {
				t.Errorf("claims mismatch:\n got %+v\nwant %+v", got, tt.claims)
			}
			if !reflect.DeepEqual(issued.Claims(), tt.claims) {
				t.Errorf("issued claims mismatch:\n got %+v\nwant %+v", issued.Claims(), tt.claims)
			}
		})
	}
}

func TestAccessToken_AbsentClaimsDecodeAbsent(t *testing.T) {
	t.Parallel()
	issuer, validator := initTestServer(t, testNow)

	issued, err := issuer.IssueAccessToken(tokens.Claims{
		Subject:   "admin",
		ExpiresAt: testNow.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	// optional claims stay absent, not empty strings
	claims, err := validator.ValidateToken(issued.Encoded())
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.TokenType != nil {
		t.Errorf("TokenType = %v, want nil", *claims.TokenType)
	}
	if claims.ProductID != nil {
		t.Errorf("ProductID = %v, want nil", *claims.ProductID)
	}
	if claims.SubscriptionID != nil {
		t.Errorf("SubscriptionID = %v, want nil", *claims.SubscriptionID)
	}
	if len(claims.Entitlements) != 0 || len(claims.Scopes) != 0 {
		t.Errorf("expected no entitlements or scopes, got %v / %v", claims.Entitlements, claims.Scopes)
	}
}

func TestAccessToken_EmptyProductIDIsPresent(t *testing.T) {
	t.Parallel()
	issuer, validator := initTestServer(t, testNow)

	issued, err := issuer.IssueAccessToken(tokens.Claims{
		Subject:   "user",
		ExpiresAt: testNow.Add(time.Hour),
		ProductID: tokens.String(""),
	})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	// a set-but-empty claim survives as set
	claims, err := validator.ValidateToken(issued.Encoded())
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ProductID == nil || *claims.ProductID != "" {
		t.Errorf("ProductID = %v, want pointer to empty string", claims.ProductID)
	}
}
