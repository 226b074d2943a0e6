package appstore

import (
	"context"
	"net/http"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"git.sr.ht/~jakintosh/tollgate/internal/tracing"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
)

// Verifier is the App Store implementation of iap.Verifier.
type Verifier struct {
	api         *apiClient
	signed      *signedVerifier
	environment iap.Environment
}

var _ iap.Verifier = (*Verifier)(nil)

type options struct {
	httpClient *http.Client
	clock      clock.Clock
}

type Option func(*options)

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New validates cfg and builds a Verifier. Misconfiguration is reported as a
// *ConfigurationError.
func New(
	cfg Config,
	opts ...Option,
) (
	*Verifier,
	error,
) {
	o := options{clock: clock.System()}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Environment == "" {
		cfg.Environment = iap.Sandbox
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	baseURL, err := cfg.baseURL()
	if err != nil {
		return nil, err
	}

	pemKey, err := normalizePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	signingKey, err := jwt.ParseECPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, &ConfigurationError{Setting: "APPLE_API_PRIVATE_KEY", Reason: err.Error()}
	}

	signed, err := newSignedVerifier(cfg.RootCertificates, cfg.BundleID, cfg.Environment, o.clock)
	if err != nil {
		return nil, err
	}

	httpClient := o.httpClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Verifier{
		api: &apiClient{
			http:       tracing.WrapHTTPClient(httpClient),
			baseURL:    baseURL,
			keyID:      cfg.KeyID,
			issuerID:   cfg.IssuerID,
			bundleID:   cfg.BundleID,
			signingKey: signingKey,
			now:        o.clock,
		},
		signed:      signed,
		environment: cfg.Environment,
	}, nil
}

func (v *Verifier) VerifySignedTransaction(
	ctx context.Context,
	jws string,
) (
	_ *iap.VerifiedTransaction,
	err error,
) {
	_, span := tracing.Start(ctx, "appstore.VerifySignedTransaction")
	defer func() { tracing.End(span, err) }()

	payload, err := v.signed.verify(jws)
	if err != nil {
		return nil, err
	}
	return v.toVerified(payload, jws, ""), nil
}

func (v *Verifier) VerifyTransaction(
	ctx context.Context,
	transactionID string,
) (
	_ *iap.VerifiedTransaction,
	err error,
) {
	ctx, span := tracing.Start(ctx, "appstore.VerifyTransaction",
		attribute.String("appstore.transaction_id", transactionID))
	defer func() { tracing.End(span, err) }()

	signedTransaction, err := v.api.transactionInfo(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	payload, err := v.signed.verify(signedTransaction)
	if err != nil {
		return nil, err
	}
	return v.toVerified(payload, signedTransaction, transactionID), nil
}

func (v *Verifier) toVerified(
	p *transactionPayload,
	signed string,
	requestedID string,
) *iap.VerifiedTransaction {
	transactionID := firstNonEmpty(p.TransactionID, requestedID)
	env := iap.Environment(p.Environment)
	if env == "" {
		env = v.environment
	}
	return &iap.VerifiedTransaction{
		ProductID:             p.ProductID,
		TransactionID:         transactionID,
		OriginalTransactionID: firstNonEmpty(p.OriginalTransactionID, transactionID),
		AppAccountToken:       p.AppAccountToken,
		ExpiresAt:             p.expiresAt(),
		Environment:           env,
		SignedTransaction:     signed,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
