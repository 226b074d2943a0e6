// Package appstore verifies App Store transactions: it looks transactions up
// with the App Store Server API and checks signed transaction payloads
// against the configured Apple root certificates.
package appstore

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/iap"
)

const (
	productionURL   = "https://api.storekit.itunes.apple.com"
	sandboxURL      = "https://api.storekit-sandbox.itunes.apple.com"
	localTestingURL = "https://local-testing-base-url"

	defaultTimeout = 30 * time.Second
)

var ErrConfiguration = errors.New("app store verifier misconfigured")

// ConfigurationError reports a missing or invalid verifier setting. It wraps
// ErrConfiguration.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrConfiguration, e.Setting, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

type Config struct {
	KeyID            string
	IssuerID         string
	PrivateKeyPEM    string
	BundleID         string
	AppAppleID       int64
	Environment      iap.Environment
	RootCertificates [][]byte
	BaseURL          string
	Timeout          time.Duration
}

func (c Config) validate() error {
	switch {
	case strings.TrimSpace(c.PrivateKeyPEM) == "":
		return &ConfigurationError{Setting: "APPLE_API_PRIVATE_KEY", Reason: "is not configured"}
	case c.KeyID == "":
		return &ConfigurationError{Setting: "APPLE_API_KEY_ID", Reason: "is not configured"}
	case c.IssuerID == "":
		return &ConfigurationError{Setting: "APPLE_API_ISSUER_ID", Reason: "is not configured"}
	case c.BundleID == "":
		return &ConfigurationError{Setting: "APPLE_BUNDLE_ID", Reason: "is not configured"}
	case len(c.RootCertificates) == 0:
		return &ConfigurationError{
			Setting: "APPLE_ROOT_CERT_PATHS/APPLE_ROOT_CERT_BASE64",
			Reason:  "must provide at least one Apple root certificate",
		}
	case c.Environment == iap.Production && c.AppAppleID == 0:
		return &ConfigurationError{Setting: "APPLE_APP_APPLE_ID", Reason: "is required in production"}
	}
	return nil
}

func (c Config) baseURL() (string, error) {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/"), nil
	}
	switch c.Environment {
	case iap.Production:
		return productionURL, nil
	case iap.Sandbox, "":
		return sandboxURL, nil
	case iap.LocalTesting:
		return localTestingURL, nil
	default:
		return "", &ConfigurationError{
			Setting: "APPLE_API_ENV",
			Reason:  fmt.Sprintf("%q has no App Store Server API", c.Environment),
		}
	}
}

// normalizePrivateKey accepts keys pasted into env vars with literal "\n"
// escapes.
func normalizePrivateKey(raw string) ([]byte, error) {
	formatted := strings.ReplaceAll(strings.TrimSpace(raw), `\n`, "\n")
	if !strings.Contains(formatted, "-----BEGIN") {
		return nil, &ConfigurationError{
			Setting: "APPLE_API_PRIVATE_KEY",
			Reason:  "must be provided in PEM format (including BEGIN/END headers)",
		}
	}
	return []byte(formatted), nil
}

// LoadRootCertificates reads root certificates from a colon-separated list of
// file paths and a comma-separated list of base64 blobs. Either may be empty.
func LoadRootCertificates(
	paths string,
	base64List string,
) (
	[][]byte,
	error,
) {
	var certs [][]byte
	for _, raw := range strings.Split(paths, ":") {
		path := strings.TrimSpace(raw)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigurationError{
				Setting: "APPLE_ROOT_CERT_PATHS",
				Reason:  fmt.Sprintf("couldn't read %s: %v", path, err),
			}
		}
		certs = append(certs, data)
	}

	for _, chunk := range strings.Split(base64List, ",") {
		data := strings.TrimSpace(chunk)
		if data == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, &ConfigurationError{
				Setting: "APPLE_ROOT_CERT_BASE64",
				Reason:  "failed to decode entry",
			}
		}
		certs = append(certs, decoded)
	}
	return certs, nil
}

// parseCertificate accepts DER or PEM.
func parseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	return x509.ParseCertificate(data)
}
