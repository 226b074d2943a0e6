package appstore

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"github.com/golang-jwt/jwt/v5"
)

// Marker extensions Apple places on the certificates that sign App Store
// payloads.
var (
	oidLeafMarker         = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 11, 1}
	oidIntermediateMarker = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 1}
)

// transactionPayload is the decoded body of a JWSTransaction.
type transactionPayload struct {
	jwt.RegisteredClaims
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	AppAccountToken       string `json:"appAccountToken"`
	ExpiresDate           int64  `json:"expiresDate"`
	SignedDate            int64  `json:"signedDate"`
	Environment           string `json:"environment"`
}

func (p *transactionPayload) expiresAt() *time.Time {
	return millisToTime(p.ExpiresDate)
}

// millisToTime converts an App Store millisecond timestamp. Zero and negative
// values mean "no timestamp".
func millisToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

type signedVerifier struct {
	roots       *x509.CertPool
	bundleID    string
	environment iap.Environment
	now         clock.Clock
}

func newSignedVerifier(
	rootCerts [][]byte,
	bundleID string,
	environment iap.Environment,
	now clock.Clock,
) (
	*signedVerifier,
	error,
) {
	roots := x509.NewCertPool()
	for i, data := range rootCerts {
		cert, err := parseCertificate(data)
		if err != nil {
			return nil, &ConfigurationError{
				Setting: "Apple root certificate",
				Reason:  fmt.Sprintf("#%d could not be parsed: %v", i+1, err),
			}
		}
		roots.AddCert(cert)
	}
	return &signedVerifier{
		roots:       roots,
		bundleID:    bundleID,
		environment: environment,
		now:         now,
	}, nil
}

func (v *signedVerifier) verify(jws string) (*transactionPayload, error) {
	payload := &transactionPayload{}

	// Xcode and local StoreKit testing sign with throwaway keys that do not
	// chain to Apple.
	if v.environment == iap.Xcode || v.environment == iap.LocalTesting {
		if _, _, err := jwt.NewParser().ParseUnverified(jws, payload); err != nil {
			return nil, badPayload("malformed signed transaction: %v", err)
		}
		return payload, v.checkPayload(payload)
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(jws, payload)
	if err != nil {
		return nil, badPayload("malformed signed transaction: %v", err)
	}
	leaf, err := v.verifyChain(unverified.Header, payload.SignedDate)
	if err != nil {
		return nil, err
	}
	leafKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, badPayload("signing certificate does not carry an ECDSA key")
	}

	payload = &transactionPayload{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	_, err = parser.ParseWithClaims(jws, payload, func(*jwt.Token) (interface{}, error) {
		return leafKey, nil
	})
	if err != nil {
		return nil, badPayload("signed transaction failed verification: %v", err)
	}
	return payload, v.checkPayload(payload)
}

// verifyChain checks the x5c header chains to a configured root at the time
// the payload was signed, and returns the leaf certificate.
func (v *signedVerifier) verifyChain(
	header map[string]interface{},
	signedDateMillis int64,
) (
	*x509.Certificate,
	error,
) {
	rawChain, ok := header["x5c"].([]interface{})
	if !ok || len(rawChain) < 2 {
		return nil, badPayload("signed transaction has no usable x5c chain")
	}

	chain := make([]*x509.Certificate, 0, len(rawChain))
	for i, raw := range rawChain {
		encoded, ok := raw.(string)
		if !ok {
			return nil, badPayload("x5c entry %d is not a string", i)
		}
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, badPayload("x5c entry %d is not base64: %v", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, badPayload("x5c entry %d is not a certificate: %v", i, err)
		}
		chain = append(chain, cert)
	}

	leaf, intermediate := chain[0], chain[1]
	if !hasExtension(leaf, oidLeafMarker) {
		return nil, badPayload("leaf certificate is missing the App Store marker")
	}
	if !hasExtension(intermediate, oidIntermediateMarker) {
		return nil, badPayload("intermediate certificate is missing the App Store marker")
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	at := v.now.Now()
	if signed := millisToTime(signedDateMillis); signed != nil {
		at = *signed
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, badPayload("certificate chain rejected: %v", err)
	}
	return leaf, nil
}

func (v *signedVerifier) checkPayload(p *transactionPayload) error {
	if p.BundleID != v.bundleID {
		return badPayload("bundle id %q does not match", p.BundleID)
	}
	if p.Environment != "" && p.Environment != string(v.environment) {
		return badPayload("environment %q does not match %q", p.Environment, v.environment)
	}
	return nil
}

func hasExtension(cert *x509.Certificate, oid asn1.ObjectIdentifier) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return true
		}
	}
	return false
}

func badPayload(format string, args ...any) *iap.VerificationError {
	return iap.NewVerificationError(http.StatusBadRequest, format, args...)
}
