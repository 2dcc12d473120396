package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve callback, login and sync endpoints",
	Long: `Serve the HTTP endpoints:

  POST /callback/{app}         encrypted event callbacks
  GET  /oauth/{app}/authorize  redirect to the login page
  GET  /oauth/{app}/login      login redirect target
  POST /apps/{app}/sync        start a background sync
  GET  /metrics                Prometheus metrics

Edits to the settings file are picked up while serving.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from settings)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if server == nil {
		return errors.New("server not configured")
	}

	ctx := cmd.Context()
	if watchSettings != nil {
		if err := watchSettings(ctx); err != nil {
			return fmt.Errorf("failed to watch settings: %w", err)
		}
	}

	addr := serveAddr
	if addr == "" {
		addr = serverAddr
	}
	if addr == "" {
		return errors.New("no listen address configured")
	}

	cmd.Printf("Serving on %s\n", addr)
	return server.ListenAndServe(ctx, addr)
}
