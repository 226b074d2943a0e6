package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"git.sr.ht/~jakintosh/tollgate/internal/catalog"
	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/config"
	"git.sr.ht/~jakintosh/tollgate/internal/database"
	"git.sr.ht/~jakintosh/tollgate/internal/iap"
	"git.sr.ht/~jakintosh/tollgate/internal/iap/appstore"
	"git.sr.ht/~jakintosh/tollgate/internal/logger"
	"git.sr.ht/~jakintosh/tollgate/internal/muse"
	"git.sr.ht/~jakintosh/tollgate/internal/service"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
)

// buildService wires every dependency named by cfg. The returned cleanup
// closes the usage backend.
func buildService(
	ctx context.Context,
	cfg *config.Config,
	catalogs *catalog.Cache,
	log logger.Logger,
) (
	*service.Service,
	func(),
	error,
) {
	now := clock.System()

	cat, err := catalogs.Get(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, err
	}
	log.Info("catalog loaded", map[string]interface{}{
		"path":     cfg.Catalog.Path,
		"products": len(cat.Products()),
	})

	issuer, validator, err := tokens.InitServer([]byte(cfg.JWT.Secret), cfg.JWT.Algorithm, now)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't init token server: %w", err)
	}

	verifier, err := buildVerifier(cfg.Apple, now, log)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openUsageStore(ctx, cfg.Usage, now)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := closeStore(); err != nil {
			log.WithError(err).Warn("couldn't close usage store", nil)
		}
	}

	svc, err := service.New(service.Options{
		Catalog:           cat,
		Verifier:          verifier,
		Usage:             usage.NewMetered(store),
		Issuer:            issuer,
		Validator:         validator,
		Generator:         buildGenerator(cfg.OpenAI, log),
		Clock:             now,
		AdminPassword:     cfg.Admin.Password,
		AdminPasswordHash: cfg.Admin.PasswordHash,
		Lifetimes: tokens.Lifetimes{
			Default: cfg.JWT.DefaultLifetime(),
			User:    cfg.JWT.UserLifetime(),
			MaxUser: cfg.JWT.MaxUserLifetime(),
		},
		Logger: log,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// openUsageStore selects the backend named in cfg.
func openUsageStore(
	ctx context.Context,
	cfg config.UsageConfig,
	now clock.Clock,
) (
	usage.Store,
	func() error,
	error,
) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendMemory:
		return usage.NewMemoryStore(now), noop, nil

	case config.BackendSQLite:
		store, err := database.NewSQLiteStore(cfg.SQLitePath, now)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open sqlite usage store: %w", err)
		}
		return store, store.Close, nil

	case config.BackendPostgres:
		store, err := database.OpenPostgres(ctx, cfg.PostgresDSN, now)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open postgres usage store: %w", err)
		}
		return store, store.Close, nil

	case config.BackendRedis:
		store := database.NewRedisStore(database.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, now)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("couldn't reach redis usage store: %w", err)
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown usage backend %q", config.ErrConfiguration, cfg.Backend)
	}
}

// buildVerifier returns the App Store verifier, or an unconfigured one that
// answers every lookup with 503 when no credentials are set.
func buildVerifier(
	cfg config.AppleConfig,
	now clock.Clock,
	log logger.Logger,
) (
	iap.Verifier,
	error,
) {
	if !cfg.Configured() {
		log.Warn("app store credentials not configured; transaction grants are unavailable", nil)
		return iap.Unconfigured{Reason: "App Store verification is not configured"}, nil
	}

	environment, err := iap.ParseEnvironment(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	roots, err := appstore.LoadRootCertificates(cfg.RootCertPaths, cfg.RootCertBase64)
	if err != nil {
		return nil, err
	}

	verifier, err := appstore.New(appstore.Config{
		KeyID:            strings.TrimSpace(cfg.KeyID),
		IssuerID:         strings.TrimSpace(cfg.IssuerID),
		PrivateKeyPEM:    cfg.PrivateKey,
		BundleID:         strings.TrimSpace(cfg.BundleID),
		AppAppleID:       cfg.AppAppleID,
		Environment:      environment,
		RootCertificates: roots,
	}, appstore.WithClock(now))
	if err != nil {
		return nil, err
	}

	log.Info("app store verifier ready", map[string]interface{}{
		"environment": string(environment),
		"bundle_id":   cfg.BundleID,
	})
	return verifier, nil
}

// buildGenerator returns nil when no API key is configured, which the
// service reports as unavailable.
func buildGenerator(
	cfg config.OpenAIConfig,
	log logger.Logger,
) muse.Generator {
	client, err := muse.NewOpenAIClient(muse.Config{
		APIKey:          cfg.APIKey,
		Model:           cfg.Model,
		BaseURL:         cfg.BaseURL,
		Temperature:     cfg.Temperature,
		Timeout:         cfg.Timeout(),
		MaxOutputTokens: cfg.MaxOutputTokens,
	})
	if errors.Is(err, muse.ErrUnavailable) {
		log.Warn("openai not configured; generation is unavailable", nil)
		return nil
	} else if err != nil {
		log.WithError(err).Error("couldn't build openai client", nil)
		return nil
	}
	return client
}
