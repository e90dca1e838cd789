// Package cmd defines the CLI commands for the scrapeproxy executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-proxy/internal/api"
	"github.com/JakeFAU/scrape-proxy/internal/app"
	"github.com/JakeFAU/scrape-proxy/internal/config"
	"github.com/JakeFAU/scrape-proxy/internal/logging"
	"github.com/JakeFAU/scrape-proxy/internal/service"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands use. Tests can inject their own through newApp.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Service() *service.Service
	Server() *api.Server
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfg config.Config, logger *zap.Logger) (App, error) {
	return app.NewApp(cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "scrapeproxy",
		Short: "Domain-restricted page extraction proxy",
		Long: `scrapeproxy fetches pages from a single allowed domain, extracts a
normalized summary (title, description, links, tables, counts) and serves it
as JSON. Results are cached in memory for a bounded time.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Subcommands find the built App in their context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (YAML); SCRAPEPROXY_* environment variables override it")

	cmd.AddCommand(newServeCmd(), newExtractCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scrapeproxy: %v\n", err)
		stop()
		os.Exit(1)
	}
}
