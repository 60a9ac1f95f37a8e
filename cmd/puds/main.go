// Command puds is pud's central server: it owns configuration, the
// worker/manager router, and the job archive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyhorde/pud-go/internal/archive"
	"github.com/rustyhorde/pud-go/internal/config"
	"github.com/rustyhorde/pud-go/internal/puds"
)

var (
	configPath string
	dryRun     bool
	version    = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "puds",
		Short: "pud fleet-control server",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to puds.toml")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate configuration and exit")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return config.DefaultConfigDir() + "/puds.toml"
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", configPath, err)
	}
	if dryRun {
		fmt.Printf("%s is valid\n", configPath)
		return nil
	}

	arc, err := archive.Open(cfg.Archive.Name + ".db")
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer arc.Close()

	puds.SetVersion(version)
	server := puds.NewServer(cfg, configPath, arc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := puds.NewConfigWatcher(configPath, server.Router())
	if err != nil {
		fmt.Printf("puds: config watcher disabled: %v\n", err)
	} else {
		go watcher.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\npuds: shutting down...")
		cancel()
	}()

	fmt.Printf("puds: listening on %s:%d\n", cfg.Actix.IP, cfg.Actix.Port)
	if err := server.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
