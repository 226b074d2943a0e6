package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type validateError struct {
	context string
	err     error
}

func (t *validateError) Context() string {
	return t.context
}
func (t *validateError) Error() string {
	return fmt.Sprintf("%v", t.err)
}
func (t *validateError) Unwrap() error {
	return t.err
}

var (
	errTokenMalformed      = errors.New("token malformed")
	errTokenBadSignature   = errors.New("token bad signature")
	errTokenExpired        = errors.New("token expired")
	errTokenMissingSubject = errors.New("token missing subject")
	errTokenMissingExpiry  = errors.New("token expiration missing")
	errMissingEntitlement  = errors.New("missing required entitlement")
	errUnsupportedAlg      = errors.New("unsupported signing algorithm")
	errMissingSecret       = errors.New("signing secret missing")
)

func ErrTokenMalformed() error      { return errTokenMalformed }
func ErrTokenBadSignature() error   { return errTokenBadSignature }
func ErrTokenExpired() error        { return errTokenExpired }
func ErrTokenMissingSubject() error { return errTokenMissingSubject }
func ErrTokenMissingExpiry() error  { return errTokenMissingExpiry }
func ErrMissingEntitlement() error  { return errMissingEntitlement }
func ErrUnsupportedAlg() error      { return errUnsupportedAlg }
func ErrMissingSecret() error       { return errMissingSecret }

type Issuer interface {
	IssueAccessToken(Claims) (*AccessToken, error)
}

type Validator interface {
	ValidateToken(string) (*Claims, error)
}

// InitServer builds an HMAC token server. The algorithm must be one of
// HS256, HS384 or HS512. now is the time source for issuance and expiry
// checks; nil means wall-clock UTC.
func InitServer(
	secret []byte,
	algorithm string,
	now func() time.Time,
) (
	Issuer,
	Validator,
	error,
) {
	if len(secret) == 0 {
		return nil, nil, errMissingSecret
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", errUnsupportedAlg, algorithm)
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	server := &Server{
		secret: secret,
		method: method,
		now:    now,
	}
	return server, server, nil
}

// wireClaims is the JSON shape carried inside the token.
// Sub shadows the embedded subject so that an empty subject still reaches
// the wire and an absent one can be told apart from it.
type wireClaims struct {
	jwt.RegisteredClaims
	Sub            *string        `json:"sub"`
	Scope          claimList      `json:"scope,omitempty"`
	Entitlements   claimList      `json:"entitlements,omitempty"`
	TokenType      optionalString `json:"token_type,omitzero"`
	ProductID      optionalString `json:"product_id,omitzero"`
	SubscriptionID optionalString `json:"subscription_id,omitzero"`
}

// claimList decodes either a single string or an array of strings.
// Non-string entries are dropped and duplicates collapse to their first
// occurrence.
type claimList []string

func (l *claimList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = claimList{single}
		return nil
	}

	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		*l = nil
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	*l = claimList(dedupe(out))
	return nil
}

// optionalString ignores values that are not JSON strings.
type optionalString struct {
	value *string
}

func (o optionalString) MarshalJSON() ([]byte, error) {
	if o.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.value)
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		o.value = nil
		return nil
	}
	o.value = &s
	return nil
}

func (o optionalString) IsZero() bool {
	return o.value == nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
