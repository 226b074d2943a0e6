// Package service implements the token gateway: grant dispatch, receipt
// verification, bearer validation, entitlement checks and usage metering.
// It depends only on interfaces for verification, storage and generation,
// and is wired together by the caller.
package service

import (
	"fmt"
	"strings"

	"git.sr.ht/~jakintosh/tollgate/internal/catalog"
	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"git.sr.ht/~jakintosh/tollgate/internal/logger"
	"git.sr.ht/~jakintosh/tollgate/internal/muse"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

const (
	GrantPassword    = "password"
	GrantTransaction = "urn:app:grant:appstore-transaction-jws"

	grantTransactionAlias = "transaction"

	AdminSubject = "admin"

	// MechMuseEntitlement gates the creature generation proxy.
	MechMuseEntitlement = "mechanical_muse"
)

// DefaultReceiptScopes are granted to tokens issued by receipt verification.
var DefaultReceiptScopes = []string{"mech-muse"}

type Options struct {
	Catalog   *catalog.Catalog
	Verifier  iap.Verifier
	Usage     usage.Store
	Issuer    tokens.Issuer
	Validator tokens.Validator

	// Generator is optional; without it generation reports unavailable.
	Generator muse.Generator

	Clock     clock.Clock
	Lifetimes tokens.Lifetimes

	// AdminPasswordHash, when set, is a bcrypt hash and takes precedence
	// over AdminPassword.
	AdminPassword     string
	AdminPasswordHash string

	ReceiptScopes []string
	Logger        logger.Logger
}

type Service struct {
	catalog   *catalog.Catalog
	verifier  iap.Verifier
	usage     usage.Store
	issuer    tokens.Issuer
	validator tokens.Validator
	generator muse.Generator

	clock     clock.Clock
	lifetimes tokens.Lifetimes

	adminPassword []byte
	adminHash     []byte

	receiptScopes []string
	log           logger.Logger
}

func New(opts Options) (*Service, error) {
	switch {
	case opts.Catalog == nil:
		return nil, fmt.Errorf("%w: catalog is required", ErrConfiguration)
	case opts.Verifier == nil:
		return nil, fmt.Errorf("%w: transaction verifier is required", ErrConfiguration)
	case opts.Usage == nil:
		return nil, fmt.Errorf("%w: usage store is required", ErrConfiguration)
	case opts.Issuer == nil || opts.Validator == nil:
		return nil, fmt.Errorf("%w: token issuer and validator are required", ErrConfiguration)
	case opts.AdminPassword == "" && strings.TrimSpace(opts.AdminPasswordHash) == "":
		return nil, fmt.Errorf("%w: admin password is required", ErrConfiguration)
	case opts.Lifetimes.Default <= 0:
		return nil, fmt.Errorf("%w: default token lifetime must be positive", ErrConfiguration)
	}

	s := &Service{
		catalog:       opts.Catalog,
		verifier:      opts.Verifier,
		usage:         opts.Usage,
		issuer:        opts.Issuer,
		validator:     opts.Validator,
		generator:     opts.Generator,
		clock:         opts.Clock,
		lifetimes:     opts.Lifetimes,
		adminPassword: []byte(opts.AdminPassword),
		receiptScopes: opts.ReceiptScopes,
		log:           opts.Logger,
	}
	if hash := strings.TrimSpace(opts.AdminPasswordHash); hash != "" {
		s.adminHash = []byte(hash)
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.receiptScopes == nil {
		s.receiptScopes = DefaultReceiptScopes
	}
	if s.log == nil {
		s.log = logger.NewNoOpLogger()
	}
	return s, nil
}

// Products lists the catalog in declaration order.
func (s *Service) Products() []catalog.Product {
	return s.catalog.Products()
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}
