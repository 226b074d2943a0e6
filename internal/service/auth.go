package service

import (
	"errors"
	"strings"

	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

// Authenticate validates a bearer token. Expired tokens are reported apart
// from every other failure.
func (s *Service) Authenticate(
	encoded string,
) (
	*tokens.Claims,
	error,
) {
	if strings.TrimSpace(encoded) == "" {
		return nil, newError(ErrUnauthenticated, "Not authenticated")
	}

	token := tokens.AccessToken{}
	if err := token.Decode(encoded, s.validator); err != nil {
		if errors.Is(err, tokens.ErrTokenExpired()) {
			return nil, newError(ErrTokenExpired, "Token has expired")
		}
		s.log.Debug("bearer token rejected", map[string]interface{}{
			"reason": err.Error(),
		})
		return nil, newError(ErrTokenInvalid, "Could not validate credentials")
	}

	claims := token.Claims()
	return &claims, nil
}

// Authorize is the entitlement gate.
func (s *Service) Authorize(
	claims *tokens.Claims,
	entitlement string,
) error {
	if claims == nil {
		return newError(ErrUnauthenticated, "Not authenticated")
	}
	if err := claims.Require(entitlement); err != nil {
		return newError(ErrForbidden, "Missing required entitlement")
	}
	return nil
}

func (s *Service) RequireAdmin(claims *tokens.Claims) error {
	if claims == nil {
		return newError(ErrUnauthenticated, "Not authenticated")
	}
	if !claims.IsAdmin() {
		return newError(ErrForbidden, "Admin token required")
	}
	return nil
}
