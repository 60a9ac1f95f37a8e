// Command pudc is the manager CLI: it connects to a server, sends one
// administrative request, renders the response, and exits.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyhorde/pud-go/internal/config"
	"github.com/rustyhorde/pud-go/internal/protocol"
	"github.com/rustyhorde/pud-go/internal/pudc"
)

var (
	configPath string
	serverAddr string
	clientName string
	dryRun     bool
	verbose    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pudc",
		Short: "pud fleet-control manager CLI",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to pudw-style config (server_addr)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "Server WebSocket URL, overrides config")
	rootCmd.PersistentFlags().StringVar(&clientName, "name", "pudc", "Name reported to the server")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Validate configuration and exit")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase verbosity")

	rootCmd.AddCommand(
		newReloadCmd(),
		newListWorkersCmd(),
		newSchedulesCmd(),
		newQueryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return config.DefaultConfigDir() + "/pudc.toml"
}

func resolveServerURL() (string, error) {
	cfg, err := config.LoadWorkerConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", configPath, err)
	}
	addr := cfg.ServerAddr
	if serverAddr != "" {
		addr = serverAddr
	}
	return addr + "/v1/ws/manager", nil
}

func runRequest(req pudc.Request) error {
	url, err := resolveServerURL()
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("%s is valid, would connect to %s\n", configPath, url)
		return nil
	}

	renderer := pudc.NewRenderer(os.Stdout)
	success, err := pudc.Run(context.Background(), url, clientName, req, renderer)
	if err != nil {
		return err
	}
	if !success {
		os.Exit(1)
	}
	return nil
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the server to reload its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(pudc.Request{Type: protocol.TypeReload, Payload: nil})
		},
	}
}

func newListWorkersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-workers",
		Short: "List connected workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(pudc.Request{Type: protocol.TypeListWorkers, Payload: nil})
		},
	}
}

func newSchedulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedules <workerName>",
		Short: "Dump a worker's installed schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(pudc.Request{
				Type:    protocol.TypeSchedules,
				Payload: protocol.SchedulesRequestPayload{WorkerName: args[0]},
			})
		},
	}
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <text>",
		Short: "Run a raw query against the job archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(pudc.Request{
				Type:    protocol.TypeQuery,
				Payload: protocol.QueryPayload{Text: args[0]},
			})
		},
	}
}
