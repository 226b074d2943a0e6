package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAdmin TokenType = "admin"
	TokenTypeUser  TokenType = "user"
)

// ==============================================

// Claims is the fixed-shape claim set carried by an access token. Optional
// claims are pointers so that an absent claim never collides with a real
// value; absent lists decode as nil.
type Claims struct {
	Subject        string
	ExpiresAt      time.Time
	Scopes         []string
	Entitlements   []string
	TokenType      *TokenType
	ProductID      *string
	SubscriptionID *string
}

// HasEntitlement reports whether the claims carry the entitlement.
func (c *Claims) HasEntitlement(entitlement string) bool {
	for _, e := range c.Entitlements {
		if e == entitlement {
			return true
		}
	}
	return false
}

// Require is the entitlement gate: it fails with ErrMissingEntitlement when
// the claims do not carry the entitlement. It has no side effects.
func (c *Claims) Require(entitlement string) error {
	if !c.HasEntitlement(entitlement) {
		return errMissingEntitlement
	}
	return nil
}

func (c *Claims) IsAdmin() bool {
	return c.TokenType != nil && *c.TokenType == TokenTypeAdmin
}

func (c *Claims) intoWire(issuedAt time.Time) *wireClaims {
	wire := &wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
		Sub:          String(c.Subject),
		Scope:        claimList(dedupe(c.Scopes)),
		Entitlements: claimList(dedupe(c.Entitlements)),
	}
	if c.TokenType != nil {
		tokenType := string(*c.TokenType)
		wire.TokenType = optionalString{value: &tokenType}
	}
	if c.ProductID != nil {
		wire.ProductID = optionalString{value: c.ProductID}
	}
	if c.SubscriptionID != nil {
		wire.SubscriptionID = optionalString{value: c.SubscriptionID}
	}
	return wire
}

func (c *Claims) fromWire(wire *wireClaims) {
	c.Subject = ""
	if wire.Sub != nil {
		c.Subject = *wire.Sub
	}
	if wire.ExpiresAt != nil {
		c.ExpiresAt = wire.ExpiresAt.Time.UTC()
	}
	c.Scopes = dedupe(wire.Scope)
	c.Entitlements = dedupe(wire.Entitlements)
	c.TokenType = nil
	if wire.TokenType.value != nil {
		tokenType := TokenType(*wire.TokenType.value)
		c.TokenType = &tokenType
	}
	c.ProductID = wire.ProductID.value
	c.SubscriptionID = wire.SubscriptionID.value
}

// ==============================================

// AccessToken is a signed, short-lived bearer token. There is no server-side
// session: the encoded string is the only durable representation.
type AccessToken struct {
	claims   Claims
	issuedAt time.Time
	encoded  string
}

func (t *AccessToken) Claims() Claims        { return t.claims }
func (t *AccessToken) Subject() string       { return t.claims.Subject }
func (t *AccessToken) Expiration() time.Time { return t.claims.ExpiresAt }
func (t *AccessToken) IssuedAt() time.Time   { return t.issuedAt }
func (t *AccessToken) Encoded() string       { return t.encoded }

func (token *AccessToken) Decode(encToken string, validator Validator) error {
	claims, err := validator.ValidateToken(encToken)
	if err != nil {
		return err
	}
	token.claims = *claims
	token.encoded = encToken
	return nil
}

// String returns a pointer to s, for populating optional claims.
func String(s string) *string {
	return &s
}

// Type returns a pointer to t, for populating Claims.TokenType.
func Type(t TokenType) *TokenType {
	return &t
}
