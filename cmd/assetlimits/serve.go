package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"
	_ "gocloud.dev/secrets/localsecrets"

	"github.com/plaenen/assetlimits/pkg/config"
	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/httpapi"
	"github.com/plaenen/assetlimits/pkg/limiting"
	natsmsg "github.com/plaenen/assetlimits/pkg/messaging/nats"
	"github.com/plaenen/assetlimits/pkg/observability"
	"github.com/plaenen/assetlimits/pkg/reporting"
	"github.com/plaenen/assetlimits/pkg/runner"
	"github.com/plaenen/assetlimits/pkg/runtime/embeddednats"
	"github.com/plaenen/assetlimits/pkg/runtime/eventbus"
	"github.com/plaenen/assetlimits/pkg/security/credentials"
	"github.com/plaenen/assetlimits/pkg/store/sqlite"
)

func serve(c *cli.Context) error {
	ctx := c.Context

	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	tel, err := initTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := sqlite.Open(ctx,
		sqlite.WithDSN(cfg.DatabasePath),
		sqlite.WithWALMode(cfg.DatabaseWAL),
		sqlite.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := natsCredentials(ctx, cfg)
	if err != nil {
		return err
	}
	if provider != nil {
		defer provider.Close()
	}

	var services []runner.Service
	busConfig := busConfig(cfg)

	if cfg.EmbeddedNATS() {
		serverOpts, err := embeddedServerOptions(ctx, cfg, provider, logger)
		if err != nil {
			return err
		}
		natsServer := embeddednats.New(
			embeddednats.WithLogger(logger),
			embeddednats.WithTracer(tel.Tracer(observability.InstrumentationName)),
			embeddednats.WithServerOptions(serverOpts...),
		)
		busConfig.URLFunc = natsServer.URL
		services = append(services, natsServer)
	}

	bus := eventbus.New(
		eventbus.WithConfig(busConfig),
		eventbus.WithCredentials(provider),
		eventbus.WithLogger(logger),
		eventbus.WithTracer(tel.Tracer(observability.InstrumentationName)),
		eventbus.WithMetrics(tel.Metrics),
	)

	sink := reporting.MultiSink{
		reporting.NewLoggingSink(logger),
		store.AuditLog(),
		bus,
	}
	svc := limiting.NewService(store.Accounts(), store.Limits(), sink,
		limiting.WithTelemetry(tel),
		limiting.WithLogger(logger),
		limiting.WithConflictRetries(cfg.ConflictRetries),
	)
	bus.HandleLimitChanges(svc)

	var r *runner.Runner
	httpServer := httpapi.New(cfg.HTTPAddr, svc,
		httpapi.WithLogger(logger),
		httpapi.WithTracer(tel.Tracer(observability.InstrumentationName)),
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins...),
		httpapi.WithHealthCheck(func(ctx context.Context) error {
			return errors.Join(store.Ping(ctx), r.HealthCheck(ctx))
		}),
	)
	services = append(services, bus, httpServer)

	r = runner.New(services,
		runner.WithLogger(logger),
		runner.WithShutdownTimeout(cfg.ShutdownTimeout),
		runner.WithSignalHandling(),
	)

	logger.Info("starting assetlimits",
		"version", version,
		"http_addr", cfg.HTTPAddr,
		"embedded_nats", cfg.EmbeddedNATS(),
	)
	return r.Run(ctx)
}

func initTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*observability.Telemetry, error) {
	telCfg := observability.Config{
		ServiceName:     cfg.ServiceName,
		ServiceVersion:  version,
		Environment:     cfg.Environment,
		TraceSampleRate: cfg.TraceSample,
		SetGlobal:       true,
		Logger:          logger,
	}
	if cfg.OTLPEndpoint != "" {
		exporter, err := observability.NewOTLPExporter(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		telCfg.TraceExporter = exporter
	}
	return observability.Init(ctx, telCfg)
}

func busConfig(cfg *config.Config) eventbus.Config {
	bc := eventbus.DefaultConfig()
	if cfg.NATSURL != "" {
		bc.URL = cfg.NATSURL
	}
	bc.LimitChangesStream = cfg.LimitChangesStream
	bc.LimitChangesSubject = cfg.LimitChangesSubject
	bc.LimitChangesDurable = cfg.LimitChangesDurable
	bc.EventsStream = cfg.EventsStream
	bc.EventsSubjectPrefix = cfg.EventsSubjectPrefix
	return bc
}

// natsCredentials prefers an encrypted credentials file over plain
// environment variables. It returns nil when neither is configured.
func natsCredentials(ctx context.Context, cfg *config.Config) (credentials.Provider, error) {
	var providers []credentials.Provider
	if cfg.NATSCredentialsURL != "" {
		secret, err := credentials.NewSecretProvider(ctx, cfg.NATSCredentialsURL, cfg.NATSCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("nats credentials: %w", err)
		}
		providers = append(providers, secret)
	}
	if cfg.NATSUser != "" {
		providers = append(providers, credentials.NewStaticUserPasswordProvider(cfg.NATSUser, cfg.NATSPassword))
	}

	switch len(providers) {
	case 0:
		return nil, nil
	case 1:
		return providers[0], nil
	default:
		return credentials.NewChainProvider(providers...), nil
	}
}

// embeddedServerOptions makes the embedded server require the same
// credentials the bus connects with.
func embeddedServerOptions(ctx context.Context, cfg *config.Config, provider credentials.Provider, logger *slog.Logger) ([]natsmsg.ServerOption, error) {
	opts := []natsmsg.ServerOption{natsmsg.WithServerLogger(logger)}
	if cfg.NATSStoreDir != "" {
		opts = append(opts, natsmsg.WithStoreDir(cfg.NATSStoreDir))
	}
	if provider == nil {
		return opts, nil
	}

	creds, err := provider.GetCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("nats credentials: %w", err)
	}
	switch creds.Type {
	case credentials.CredentialTypeToken:
		opts = append(opts, natsmsg.WithToken(creds.Token))
	case credentials.CredentialTypeUserPassword:
		opts = append(opts, natsmsg.WithUserPassword(creds.User, creds.Password))
	}
	return opts, nil
}

func migrate(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(c.Context,
		sqlite.WithDSN(cfg.DatabasePath),
		sqlite.WithWALMode(cfg.DatabaseWAL),
		sqlite.WithAutoMigrate(false),
		sqlite.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := store.Migrate(c.Context)
	if err != nil {
		return err
	}
	current, err := store.MigrationVersion(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "applied %d migrations, schema version %d\n", applied, current)
	return nil
}

func setLimit(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.EmbeddedNATS() {
		return errors.New("set-limit needs NATS_URL to reach a running server")
	}

	provider, err := natsCredentials(c.Context, cfg)
	if err != nil {
		return err
	}
	if provider != nil {
		defer provider.Close()
	}

	bus := eventbus.New(
		eventbus.WithConfig(busConfig(cfg)),
		eventbus.WithCredentials(provider),
		eventbus.WithLogger(logger),
	)
	if err := bus.Start(c.Context); err != nil {
		return err
	}
	defer bus.Stop(context.Background())

	msgID, err := bus.PublishLimitChange(c.Context, domain.AccountID(c.String("account")), c.Int("limit"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "published limit change %s\n", msgID)
	return nil
}
