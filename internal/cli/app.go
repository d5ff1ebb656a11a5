package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pos_ledger/internal/config"
	"pos_ledger/internal/kvstore"
	"pos_ledger/internal/logging"
	"pos_ledger/internal/register"
	"pos_ledger/internal/sales"
)

// app is everything a command needs, built from the configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	kv       *kvstore.Store
	register *register.Register
	closers  []func() error
}

func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	durable, err := a.openDurable()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.kv = kvstore.New(kvstore.NewMemoryBackend(), durable, kvstore.WithLogger(logger.Named("kvstore")))

	agg, err := sales.AggregatorByName(cfg.Ledger.Aggregation)
	if err != nil {
		a.Close()
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.register = register.New(a.kv, register.Options{
		Aggregator: agg,
		Location:   loc,
		Logger:     logger,
	})

	seeds, err := config.LoadVendors(cfg.VendorsFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.register.Seed(ctx, seeds); err != nil {
		a.Close()
		return nil, err
	}
	if _, err := a.register.Reconcile(ctx); err != nil {
		logger.Error("vendor reconciliation failed", zap.Error(err))
	}
	return a, nil
}

func (a *app) openDurable() (kvstore.Backend, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverSQLite:
		b, err := kvstore.OpenSQLite(a.cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		a.logger.Info("durable store opened", zap.String("driver", "sqlite"), zap.String("path", a.cfg.Storage.DSN))
		return b, nil
	case config.DriverPostgres:
		b, err := kvstore.OpenPostgres(a.cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		a.logger.Info("durable store opened", zap.String("driver", "postgres"))
		return b, nil
	default:
		a.logger.Warn("no durable store configured, data is lost on exit")
		return kvstore.NewMemoryBackend(), nil
	}
}

// Close drains the store and releases the backends.
func (a *app) Close() {
	if a.kv != nil {
		a.kv.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Error("failed to close backend", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
