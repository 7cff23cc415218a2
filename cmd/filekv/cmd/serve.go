package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/filekv/pkg/api"
)

func newServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Serve the store over HTTP until interrupted.

Requests under /api/v1 require the X-API-Key header when an API key is
configured. Prometheus metrics are exposed on /metrics.

Examples:
  filekv serve --file ./data/app.fkv --port 8080
  FILEKV_API_KEY=secret filekv serve --bind 0.0.0.0`,
		Args: cobra.NoArgs,
		RunE: runServer,
	}
	addServerFlags(c)
	return c
}

func addServerFlags(c *cobra.Command) {
	c.Flags().IntP("port", "p", 8080, "Port to listen on")
	c.Flags().String("bind", "127.0.0.1", "Address to bind")
	c.Flags().String("api-key", "", "API key for /api/v1 (overrides the config file)")
}

// runServer serves the store from the command context until SIGINT or SIGTERM
func runServer(cmd *cobra.Command, _ []string) error {
	kv, err := storeFrom(cmd)
	if err != nil {
		return err
	}
	cfg := configFrom(cmd)
	logger := loggerFrom(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Security.APIKey == "" {
		logger.Warn("serving without an API key")
	}
	starter := container.GetServerFactory().CreateServerStarter()
	return starter.StartServer(ctx, kv, api.ServerConfig{
		Bind:   cfg.Server.Bind,
		Port:   cfg.Server.Port,
		APIKey: cfg.Security.APIKey,
		Logger: logger,
	})
}
