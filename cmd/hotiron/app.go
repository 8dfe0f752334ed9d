package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/config"
	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/geo"
	"github.com/cloudx-io/hotiron/history"
	"github.com/cloudx-io/hotiron/receipt"
	"github.com/cloudx-io/hotiron/registry"
)

// app holds the components built from configuration.
type app struct {
	registry *registry.Registry
	engine   *core.Engine
	history  *history.Store
	issuer   *receipt.Issuer

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp wires the registry, geocoder, engine, history store and
// receipt issuer. A failed initial registry load is fatal.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	source, err := a.registrySource(ctx, cfg.Registry, logger)
	if err != nil {
		return nil, err
	}
	a.registry, err = registry.Open(ctx, source, logger.Named("registry"))
	if err != nil {
		return nil, fmt.Errorf("initial registry load: %w", err)
	}

	geocoder, err := buildGeocoder(cfg.Geocoder, logger)
	if err != nil {
		return nil, err
	}
	a.engine, err = core.NewEngine(a.registry,
		core.NewResolver(geocoder, cfg.Auction.GeocodeTimeout),
		cfg.Pricing,
		core.WithMaxQuantityTons(cfg.Auction.MaxQuantityTons))
	if err != nil {
		return nil, err
	}

	kv, err := a.historyKV(ctx, cfg.History)
	if err != nil {
		return nil, err
	}
	a.history, err = history.Open(ctx, kv, history.Options{
		Key:     cfg.History.Key,
		MaxRuns: cfg.History.MaxRuns,
		Logger:  logger.Named("history"),
	})
	if err != nil {
		return nil, err
	}

	a.issuer, err = buildIssuer(cfg.Receipts, logger)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *app) registrySource(ctx context.Context, cfg config.RegistryConfig, logger *zap.Logger) (registry.Source, error) {
	switch cfg.Source {
	case config.RegistryFile:
		return &registry.FileSource{Path: cfg.Path}, nil
	case config.RegistrySQL:
		db, err := registry.OpenSQL(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if _, err := registry.Migrate(db, cfg.Driver, logger.Named("migrate")); err != nil {
			return nil, err
		}
		return registry.NewSQLSource(db, cfg.Driver), nil
	default:
		return &registry.DefaultSource{Jitter: cfg.Jitter, Seed: cfg.Seed}, nil
	}
}

func (a *app) historyKV(ctx context.Context, cfg config.HistoryConfig) (history.KV, error) {
	if cfg.Backend != config.HistoryRedis {
		return history.NewMemoryKV(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid history redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to history redis: %w", err)
	}
	return history.NewRedisKV(client, cfg.TTL), nil
}

// buildGeocoder resolves from the static address book first and falls back
// to the HTTP geocoder when one is configured.
func buildGeocoder(cfg config.GeocoderConfig, logger *zap.Logger) (core.Geocoder, error) {
	static := geo.NewStaticGeocoder(cfg.Addresses)
	if cfg.HTTP.BaseURL == "" {
		return static, nil
	}
	remote, err := geo.NewHTTPGeocoder(cfg.HTTP, logger.Named("geocoder"))
	if err != nil {
		return nil, err
	}
	return geo.Chain{static, remote}, nil
}

func buildIssuer(cfg config.ReceiptsConfig, logger *zap.Logger) (*receipt.Issuer, error) {
	switch cfg.Mode {
	case config.ReceiptsCOSE:
		var (
			km      *receipt.KeyManager
			created bool
			err     error
		)
		if cfg.KeyFile != "" {
			km, created, err = receipt.LoadOrCreateKeyManager(cfg.KeyFile)
		} else {
			km, err = receipt.NewKeyManager()
			created = true
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize key manager: %w", err)
		}
		signer, err := receipt.NewCOSESigner(km)
		if err != nil {
			return nil, err
		}
		logger.Info("Receipt signer initialized",
			zap.String("mode", cfg.Mode),
			zap.String("key_id", km.KeyID()),
			zap.String("key_file", cfg.KeyFile),
			zap.Bool("generated", created))
		return receipt.NewIssuer(signer), nil
	case config.ReceiptsNSM:
		attester, err := receipt.GetEnclaveAttester()
		if err != nil {
			return nil, err
		}
		logger.Info("Receipt signer initialized", zap.String("mode", cfg.Mode))
		return receipt.NewIssuer(receipt.NewNSMSigner(attester)), nil
	default:
		return nil, nil
	}
}
