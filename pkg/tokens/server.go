package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Server implements both Issuer and Validator with a shared HMAC secret.
// Create one with InitServer.
type Server struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	now    func() time.Time
}

//
// Issuer interface

func (server *Server) IssueAccessToken(
	claims Claims,
) (*AccessToken, error) {

	now := server.now()
	wire := claims.intoWire(now)

	encoded, err := jwt.NewWithClaims(server.method, wire).SignedString(server.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encode access token: %v", err)
	}

	token := &AccessToken{
		issuedAt: wire.IssuedAt.Time.UTC(),
		encoded:  encoded,
	}
	token.claims.fromWire(wire)

	return token, nil
}

//
// Validator interface

func (server *Server) ValidateToken(
	encToken string,
) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{server.method.Alg()}),
		jwt.WithTimeFunc(server.now),
	)

	wire := &wireClaims{}
	_, err := parser.ParseWithClaims(encToken, wire, func(*jwt.Token) (interface{}, error) {
		return server.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if wire.Sub == nil {
		return nil, &validateError{
			context: "token claims invalid: subject missing",
			err:     errTokenMissingSubject,
		}
	}
	if wire.ExpiresAt == nil {
		return nil, &validateError{
			context: "token claims invalid: exp missing",
			err:     errTokenMissingExpiry,
		}
	}

	claims := &Claims{}
	claims.fromWire(wire)
	return claims, nil
}

func classifyParseError(err error) *validateError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &validateError{
			context: fmt.Sprintf("token expired: %v", err),
			err:     errTokenExpired,
		}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return &validateError{
			context: fmt.Sprintf("token signature illegal: %v", err),
			err:     errTokenBadSignature,
		}
	default:
		return &validateError{
			context: fmt.Sprintf("token malformed: %v", err),
			err:     errTokenMalformed,
		}
	}
}
