// Package tokens issues and validates the bearer tokens handed out by
// tollgate.
//
// Tokens are compact JWTs signed with a shared HMAC secret (HS256, HS384 or
// HS512). A single Server plays both roles:
//
//   - Issuer: signs a Claims value into an AccessToken
//   - Validator: checks signature, algorithm and expiry, then rebuilds Claims
//
// # Issuing
//
//	issuer, validator, err := tokens.InitServer(secret, "HS256", clock)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	token, err := issuer.IssueAccessToken(tokens.Claims{
//	    Subject:        "user-42",
//	    ExpiresAt:      lifetimes.ExpiryFor(now, tokens.TokenTypeUser, txExpiry),
//	    Entitlements:   []string{"pro"},
//	    TokenType:      tokens.Type(tokens.TokenTypeUser),
//	    ProductID:      tokens.String("com.example.pro.monthly"),
//	    SubscriptionID: tokens.String("orig-1"),
//	})
//
// Scopes and entitlements are de-duplicated, keeping first-seen order, before
// signing. Expiry and issued-at are carried at one-second precision.
//
// # Validating
//
//	token := &tokens.AccessToken{}
//	if err := token.Decode(encoded, validator); err != nil {
//	    ...
//	}
//	claims := token.Claims()
//	if err := claims.Require("pro"); err != nil {
//	    // ErrMissingEntitlement
//	}
//
// # Error Handling
//
//	switch {
//	case errors.Is(err, tokens.ErrTokenExpired()):
//	    // signature fine, exp has passed
//	case errors.Is(err, tokens.ErrTokenMissingExpiry()):
//	    // no exp claim
//	case errors.Is(err, tokens.ErrTokenBadSignature()),
//	    errors.Is(err, tokens.ErrTokenMalformed()),
//	    errors.Is(err, tokens.ErrTokenMissingSubject()):
//	    // otherwise invalid
//	}
package tokens
