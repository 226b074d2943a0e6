package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

var ErrNoToken = errors.New("no token")

// Verifier validates authorization from HTTP requests.
// Consuming projects should depend on this interface rather than
// *LocalVerifier to enable testing with mock implementations.
type Verifier interface {
	VerifyAuthorization(r *http.Request) (*tokens.Claims, error)
}

// Compile-time check that *LocalVerifier implements Verifier.
var _ Verifier = (*LocalVerifier)(nil)

// LocalVerifier checks bearer tokens with the gateway's signing secret.
type LocalVerifier struct {
	validator tokens.Validator
}

func NewLocalVerifier(
	secret []byte,
	algorithm string,
) (
	*LocalVerifier,
	error,
) {
	_, validator, err := tokens.InitServer(secret, algorithm, nil)
	if err != nil {
		return nil, err
	}
	return &LocalVerifier{validator: validator}, nil
}

// NewVerifier wraps an existing validator.
func NewVerifier(validator tokens.Validator) *LocalVerifier {
	return &LocalVerifier{validator: validator}
}

// VerifyAuthorization returns the claims of the request's bearer token.
// A missing or non-bearer Authorization header is ErrNoToken; token
// failures are the tokens package errors.
func (v *LocalVerifier) VerifyAuthorization(r *http.Request) (*tokens.Claims, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, encoded, found := strings.Cut(header, " ")
	encoded = strings.TrimSpace(encoded)
	if !found || !strings.EqualFold(scheme, "bearer") || encoded == "" {
		return nil, ErrNoToken
	}

	token := tokens.AccessToken{}
	if err := token.Decode(encoded, v.validator); err != nil {
		return nil, err
	}
	claims := token.Claims()
	return &claims, nil
}

type claimsKey struct{}

// ClaimsFromContext returns the claims stored by RequireEntitlement.
func ClaimsFromContext(ctx context.Context) (*tokens.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*tokens.Claims)
	return claims, ok
}

// RequireEntitlement guards next with a verified bearer token that carries
// entitlement. An empty entitlement only requires a valid token. Failures
// are answered the way the gateway answers them.
func RequireEntitlement(
	v Verifier,
	entitlement string,
	next http.Handler,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := v.VerifyAuthorization(r)
		switch {
		case errors.Is(err, ErrNoToken):
			unauthorized(w, "Not authenticated")
			return
		case errors.Is(err, tokens.ErrTokenExpired()):
			unauthorized(w, "Token has expired")
			return
		case err != nil:
			unauthorized(w, "Could not validate credentials")
			return
		}

		if entitlement != "" && !claims.HasEntitlement(entitlement) {
			writeDetail(w, http.StatusForbidden, "Missing required entitlement")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
