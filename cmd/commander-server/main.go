package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"commander/internal/config"
	"commander/internal/util"
)

const version = "0.1.0"

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "commander-server",
		Short:         "Terminal trading console server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "path to the YAML config file (env COMMANDER_CONFIG)")

	root.AddCommand(
		&cobra.Command{
			Use:   "baskets",
			Short: "Validate basket and strategy definitions and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cfgPath)
				if err != nil {
					return err
				}
				return checkDefinitions(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the server version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "commander-server %s\n", version)
			},
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatalf("commander-server: %v", err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("COMMANDER_CONFIG"); p != "" {
		return p
	}
	return "config/commander.yaml"
}

// loadConfig reads the config file, falling back to defaults and environment
// variables when it does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	logger := util.NewLogger(util.LogOptions{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	util.SetDefault(logger)

	a, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info("commander-server starting",
		"version", version,
		"http", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"grpc_port", cfg.Server.GRPCPort,
		"mode", a.router.Mode(),
		"broker", a.router.Name(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.ListenAndServe(ctx)
	})
	g.Go(func() error {
		a.runner.Start(ctx, time.Duration(cfg.Auto.IntervalSeconds)*time.Second)
		return nil
	})

	err = g.Wait()
	logger.Info("commander-server stopped")
	return err
}
