package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/warp/lending-engine/auth"
	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/config"
	"github.com/warp/lending-engine/events"
	"github.com/warp/lending-engine/events/kafka"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/lending/store"
	"github.com/warp/lending-engine/notify"
	"github.com/warp/lending-engine/receipt"
	"github.com/warp/lending-engine/store/postgres"
	"github.com/warp/lending-engine/store/sqlite"
)

// appStore is what every driver provides.
type appStore interface {
	lending.TxStore
	Ping(ctx context.Context) error
	Close() error
}

// memoryStore adapts the in-process store.
type memoryStore struct{ *store.TxMemory }

func (memoryStore) Ping(context.Context) error { return nil }
func (memoryStore) Close() error               { return nil }

type app struct {
	log     zerolog.Logger
	store   appStore
	service *backoffice.Service
	auth    *auth.Authenticator
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := config.NewLogger(cfg.Log, os.Stderr)
	a := &app{log: log}

	st, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	interest, lateFee, err := cfg.Lending.Rates()
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []backoffice.Option{
		backoffice.WithLogger(log),
		backoffice.WithClassifier(lending.Classifier{LateFeeRate: lateFee, ReferenceDays: cfg.Lending.LateFeeDays}),
		backoffice.WithProduct(backoffice.Product{
			DefaultInterestRate: interest,
			InstallmentCounts:   cfg.Lending.InstallmentCounts,
			Currency:            cfg.Lending.CurrencySymbol,
		}),
	}

	if cfg.Redis.Enabled() {
		issuer := receipt.NewRedisIssuer(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := issuer.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, receipts will use the clock fallback until it recovers")
		}
		a.closers = append(a.closers, issuer.Close)
		opts = append(opts, backoffice.WithReceipts(receipt.NewFallbackIssuer(issuer, log)))
	}

	if cfg.Kafka.Enabled() {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, backoffice.WithPublisher(pub))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("publishing events to kafka")
	} else {
		opts = append(opts, backoffice.WithPublisher(events.Noop{}))
	}

	if cfg.SMTP.Enabled() {
		s := cfg.SMTP
		opts = append(opts, backoffice.WithNotifier(notify.NewMailer(s.Host, s.Port, s.Username, s.Password, s.From, cfg.Reminders.Subject)))
	} else {
		opts = append(opts, backoffice.WithNotifier(notify.NewLogNotifier(log)))
	}

	a.service = backoffice.NewService(st, opts...)

	if cfg.Auth.Disabled {
		log.Warn().Msg("authentication disabled, every endpoint is public")
	} else {
		a.auth, err = auth.New(cfg.Auth)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (appStore, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return memoryStore{store.NewTxMemory()}, nil

	case "postgres":
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.URL); err != nil {
				return nil, err
			}
		}
		st, err := postgres.New(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return st, nil

	case "sqlite":
		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if cfg.MigrateOnStart {
			if err := st.Migrate(ctx); err != nil {
				st.Close()
				return nil, err
			}
		}
		log.Info().Str("path", cfg.Path).Msg("sqlite store ready")
		return st, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
