// Package tollgatetest mints tollgate tokens for tests of services that
// verify them with client.LocalVerifier.
package tollgatetest

import (
	"net/http"
	"time"

	"git.sr.ht/~jakintosh/tollgate/pkg/client"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

// DefaultLifetime is the lifetime of tokens minted without an explicit one.
const DefaultLifetime = 30 * time.Minute

// Env provides token issuing and validation for tests.
type Env struct {
	Issuer    tokens.Issuer
	Validator tokens.Validator
	Secret    []byte
	Algorithm string
}

// NewEnv creates an HS256 test environment with the given secret.
func NewEnv(secret string) (*Env, error) {
	return NewEnvWithAlgorithm(secret, "HS256", nil)
}

// NewEnvWithAlgorithm creates a test environment with a specific algorithm
// and time source. A nil now means wall-clock time.
func NewEnvWithAlgorithm(
	secret string,
	algorithm string,
	now func() time.Time,
) (
	*Env,
	error,
) {
	issuer, validator, err := tokens.InitServer([]byte(secret), algorithm, now)
	if err != nil {
		return nil, err
	}
	return &Env{
		Issuer:    issuer,
		Validator: validator,
		Secret:    []byte(secret),
		Algorithm: algorithm,
	}, nil
}

// Verifier returns a verifier that accepts this environment's tokens.
func (env *Env) Verifier() *client.LocalVerifier {
	return client.NewVerifier(env.Validator)
}

// IssueUserToken creates a user token for subject carrying entitlements.
func (env *Env) IssueUserToken(
	subject string,
	lifetime time.Duration,
	entitlements ...string,
) (
	*tokens.AccessToken,
	error,
) {
	return env.Issuer.IssueAccessToken(tokens.Claims{
		Subject:      subject,
		ExpiresAt:    time.Now().Add(lifetime),
		Entitlements: entitlements,
		TokenType:    tokens.Type(tokens.TokenTypeUser),
	})
}

// IssueAdminToken creates an admin token.
func (env *Env) IssueAdminToken(
	lifetime time.Duration,
) (
	*tokens.AccessToken,
	error,
) {
	return env.Issuer.IssueAccessToken(tokens.Claims{
		Subject:   "admin",
		ExpiresAt: time.Now().Add(lifetime),
		TokenType: tokens.Type(tokens.TokenTypeAdmin),
	})
}

// IssueExpiredToken creates a user token that expired a minute ago.
func (env *Env) IssueExpiredToken(
	subject string,
	entitlements ...string,
) (
	*tokens.AccessToken,
	error,
) {
	return env.IssueUserToken(subject, -time.Minute, entitlements...)
}

// AuthenticatedRequest creates an http.Request carrying a bearer token for
// subject with the given entitlements and DefaultLifetime.
func (env *Env) AuthenticatedRequest(
	method string,
	url string,
	subject string,
	entitlements ...string,
) (
	*http.Request,
	error,
) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}

	token, err := env.IssueUserToken(subject, DefaultLifetime, entitlements...)
	if err != nil {
		return nil, err
	}

	AddBearer(req, token)
	return req, nil
}

// AddBearer sets the request's Authorization header to token.
func AddBearer(
	req *http.Request,
	token *tokens.AccessToken,
) {
	req.Header.Set("Authorization", "Bearer "+token.Encoded())
}
