package tokens_test

import (
	"bytes"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
	"github.com/golang-jwt/jwt/v5"
)

// signRaw signs arbitrary claims with the shared test secret.
func signRaw(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	encoded, err := jwt.NewWithClaims(method, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign raw token: %v", err)
	}
	return encoded
}

func TestAccessToken_Decode_Valid(t *testing.T) {
	t.Parallel()
	issuer, validator := initTestServer(t, testNow)

	// issue a valid token
	original, err := issuer.IssueAccessToken(tokens.Claims{
		Subject:   "user",
		ExpiresAt: testNow.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	// decode succeeds and fields match
	decoded := &tokens.AccessToken{}
	if err := decoded.Decode(original.Encoded(), validator); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Subject() != original.Subject() {
		t.Errorf("Subject mismatch: %s != %s", decoded.Subject(), original.Subject())
	}
	if !decoded.Expiration().Equal(testNow.Add(time.Hour)) {
		t.Errorf("Expiration = %v, want %v", decoded.Expiration(), testNow.Add(time.Hour))
	}
}

func TestAccessToken_Decode_ExpiryBoundary(t *testing.T) {
	t.Parallel()
	expiry := testNow.Add(time.Hour)
	issuer, _ := initTestServer(t, testNow)

	original, err := issuer.IssueAccessToken(tokens.Claims{
		Subject:   "user",
		ExpiresAt: expiry,
	})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	tests := []struct {
		name    string
		at      time.Time
		expired bool
	}{
		{"at issuance", testNow, false},
		{"one second before expiry", expiry.Add(-time.Second), false},
		{"at expiry", expiry, true},
		{"one second after expiry", expiry.Add(time.Second), true},
		{"a day later", expiry.Add(24 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, validator := initTestServer(t, tt.at)
			claims, err := validator.ValidateToken(original.Encoded())
			if tt.expired {
				if !errors.Is(err, tokens.ErrTokenExpired()) {
					t.Errorf("expected ErrTokenExpired, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateToken failed: %v", err)
			}
			if claims.Subject != "user" {
				t.Errorf("Subject = %s, want user", claims.Subject)
			}
		})
	}
}

func TestAccessToken_Decode_BadSignature(t *testing.T) {
	t.Parallel()
	issuer, _ := initTestServer(t, testNow)

	original, err := issuer.IssueAccessToken(tokens.Claims{
		Subject:   "user",
		ExpiresAt: testNow.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	// validator with another secret rejects the token
	_, other, err := tokens.InitServer([]byte("another-secret"), "HS256", fixedClock(testNow))
	if err != nil {
		t.Fatalf("InitServer failed: %v", err)
	}
	_, err = other.ValidateToken(original.Encoded())
	if !errors.Is(err, tokens.ErrTokenBadSignature()) {
		t.Errorf("expected ErrTokenBadSignature, got %v", err)
	}
}

func TestAccessToken_Decode_WrongAlgorithm(t *testing.T) {
	t.Parallel()
	_, validator := initTestServer(t, testNow)

	// HS512 token is refused by an HS256 validator
	encoded := signRaw(t, jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "user",
		"exp": testNow.Add(time.Hour).Unix(),
	})
	_, err := validator.ValidateToken(encoded)
	if !errors.Is(err, tokens.ErrTokenBadSignature()) {
		t.Errorf("expected ErrTokenBadSignature, got %v", err)
	}
}

func TestAccessToken_Decode_Malformed(t *testing.T) {
	t.Parallel()
	_, validator := initTestServer(t, testNow)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one part", "abc"},
		{"two parts", "abc.def"},
		{"garbage", "not.a.jwt"},
		{"numeric subject", signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": 42,
			"exp": testNow.Add(time.Hour).Unix(),
		})},
		{"string expiry", signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user",
			"exp": "tomorrow",
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := &tokens.AccessToken{}
			err := decoded.Decode(tt.token, validator)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, tokens.ErrTokenExpired()) {
				t.Errorf("malformed token reported as expired: %v", err)
			}
		})
	}
}

func TestAccessToken_Decode_MissingClaims(t *testing.T) {
	t.Parallel()
	_, validator := initTestServer(t, testNow)

	// missing subject
	noSub := signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": testNow.Add(time.Hour).Unix(),
	})
	if _, err := validator.ValidateToken(noSub); !errors.Is(err, tokens.ErrTokenMissingSubject()) {
		t.Errorf("expected ErrTokenMissingSubject, got %v", err)
	}

	// missing expiry
	noExp := signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user",
	})
	if _, err := validator.ValidateToken(noExp); !errors.Is(err, tokens.ErrTokenMissingExpiry()) {
		t.Errorf("expected ErrTokenMissingExpiry, got %v", err)
	}
}

func TestAccessToken_Decode_EmptySubject(t *testing.T) {
	t.Parallel()
	issuer, validator := initTestServer(t, testNow)

	// an empty subject is still a string subject
	raw := signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "",
		"exp": testNow.Add(time.Hour).Unix(),
	})
	claims, err := validator.ValidateToken(raw)
	if err != nil {
		t.Fatalf("expected empty subject to validate, got %v", err)
	}
	if claims.Subject != "" {
		t.Errorf("Subject = %q, want empty", claims.Subject)
	}

	// and it survives issuance
	token, err := issuer.IssueAccessToken(tokens.Claims{ExpiresAt: testNow.Add(time.Hour)})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}
	decoded := &tokens.AccessToken{}
	if err := decoded.Decode(token.Encoded(), validator); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Subject() != "" {
		t.Errorf("Subject = %q, want empty", decoded.Subject())
	}
}

func TestAccessToken_Decode_DoesNotLog(t *testing.T) {
	_, validator := initTestServer(t, testNow)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	decoded := &tokens.AccessToken{}
	if err := decoded.Decode("not.a.token", validator); err == nil {
		t.Fatal("expected error")
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestAccessToken_Decode_LenientLists(t *testing.T) {
	t.Parallel()
	_, validator := initTestServer(t, testNow)

	// scope as a string, entitlements with junk and duplicates
	encoded := signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          "user",
		"exp":          testNow.Add(time.Hour).Unix(),
		"scope":        "mech-muse",
		"entitlements": []interface{}{"pro", 7, "pro", "extra"},
		"token_type":   12,
	})
	claims, err := validator.ValidateToken(encoded)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != "mech-muse" {
		t.Errorf("Scopes = %v, want [mech-muse]", claims.Scopes)
	}
	if len(claims.Entitlements) != 2 || claims.Entitlements[0] != "pro" || claims.Entitlements[1] != "extra" {
		t.Errorf("Entitlements = %v, want [pro extra]", claims.Entitlements)
	}
	if claims.TokenType != nil {
		t.Errorf("non-string token_type should decode as absent, got %v", *claims.TokenType)
	}
}

func TestAccessToken_Fields(t *testing.T) {
	t.Parallel()
	issuer, _ := initTestServer(t, testNow)

	token, err := issuer.IssueAccessToken(tokens.Claims{
		Subject:   "testuser",
		ExpiresAt: testNow.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	// accessors reflect issued values
	if token.Subject() != "testuser" {
		t.Errorf("Subject = %s, want testuser", token.Subject())
	}
	if !token.IssuedAt().Equal(testNow) {
		t.Errorf("IssuedAt = %v, want %v", token.IssuedAt(), testNow)
	}
	if token.Encoded() == "" {
		t.Error("Encoded() should not be empty")
	}
}
