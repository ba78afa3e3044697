package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/santiscally/grafica-los-rumbos/internal/di"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/config"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/observability"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/secrets"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

// backend is the slice of the service layer the CLI operates on.
type backend struct {
	Counters    services.CounterService
	Catalog     services.CatalogService
	Attachments services.AttachmentService
	Config      config.Config
}

// backendFactory opens a backend. The returned func releases it.
type backendFactory func(ctx context.Context, envFile string) (*backend, func(), error)

func newRootCmd(open backendFactory) *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operations tool for the Gráfica Los Rumbos backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with API_* settings")

	withBackend := func(run func(cmd *cobra.Command, b *backend) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			b, release, err := open(cmd.Context(), envFile)
			if err != nil {
				return err
			}
			defer release()
			return run(cmd, b)
		}
	}

	cmd.AddCommand(newSeedCmd(withBackend))
	cmd.AddCommand(newSweepCmd(withBackend))
	return cmd
}

func productionBackend(ctx context.Context, envFile string) (*backend, func(), error) {
	logger, err := observability.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	logger = logger.Named("shopctl")

	env, err := config.EnvironmentValues(config.WithEnvFile(envFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read environment: %w", err)
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(firstNonEmpty(env["API_SECRETS_PROJECT_ID"], env["API_FIRESTORE_PROJECT_ID"], env["API_FIREBASE_PROJECT_ID"])),
	}
	if fallback := strings.TrimSpace(env["API_SECRETS_FALLBACK_FILE"]); fallback != "" {
		opts = append(opts, secrets.WithFallbackFile(fallback))
	}
	fetcher, err := secrets.NewFetcher(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("secret fetcher: %w", err)
	}
	cfg, err := config.Load(ctx, config.WithEnvFile(envFile), config.WithSecretResolver(fetcher))
	if err != nil {
		_ = fetcher.Close()
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		_ = fetcher.Close()
		return nil, nil, fmt.Errorf("build dependencies: %w", err)
	}
	release := func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
		_ = fetcher.Close()
		_ = logger.Sync()
	}
	return &backend{
		Counters:    container.Services.Counters,
		Catalog:     container.Services.Catalog,
		Attachments: container.Services.Attachments,
		Config:      cfg,
	}, release, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
