package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidahmann/parliament/internal/config"
	"github.com/davidahmann/parliament/internal/gateway"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.LookupEnv, serveGateway).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type lookupFn func(string) (string, bool)

type serveFn func(ctx context.Context, g *gateway.Gateway) error

func serveGateway(ctx context.Context, g *gateway.Gateway) error {
	return g.Serve(ctx)
}

func newRootCmd(lookup lookupFn, serve serveFn) *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:          "parliament-gateway",
		Short:        "Serve the parliament decision API",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, lookup)
			if err != nil {
				return err
			}

			logger, err := gateway.NewLogger(cfg.Log.Level, verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			g, err := gateway.Build(cmd.Context(), cfg, gateway.Options{Logger: logger})
			if err != nil {
				logger.Error("gateway setup failed", zap.Error(err))
				return err
			}
			defer func() {
				if err := g.Close(); err != nil {
					logger.Warn("close audit log", zap.Error(err))
				}
			}()

			logger.Info("parliament-gateway listening", zap.String("addr", cfg.ListenAddr))
			return serve(cmd.Context(), g)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default $PARLIAMENT_CONFIG_PATH)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func loadConfig(path string, lookup lookupFn) (config.Config, error) {
	if path == "" {
		path, _ = lookup("PARLIAMENT_CONFIG_PATH")
	}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}
