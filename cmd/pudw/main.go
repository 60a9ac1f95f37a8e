// Command pudw is a pud worker: it connects to a server, receives a
// command table and schedule list, and executes commands locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyhorde/pud-go/internal/config"
	"github.com/rustyhorde/pud-go/internal/pudw"
)

var (
	configPath string
	serverAddr string
	name       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pudw",
		Short: "pud fleet-control worker",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to pudw.toml")
	rootCmd.Flags().StringVar(&serverAddr, "server", "", "Server WebSocket URL, overrides config")
	rootCmd.Flags().StringVar(&name, "name", "", "Worker name, overrides config")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return config.DefaultConfigDir() + "/pudw.toml"
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWorkerConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", configPath, err)
	}
	if serverAddr != "" {
		cfg.ServerAddr = serverAddr
	}
	if name != "" {
		cfg.Name = name
	}
	if cfg.Name == "" {
		hostname, _ := os.Hostname()
		cfg.Name = hostname
	}

	client := pudw.NewClient(pudw.ClientConfig{
		ServerURL: cfg.ServerAddr + "/v1/ws/worker",
		Name:      cfg.Name,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\npudw: shutting down...")
		cancel()
	}()

	fmt.Printf("pudw: %s connecting to %s\n", cfg.Name, cfg.ServerAddr)
	return client.Run(ctx)
}
