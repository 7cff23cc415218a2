package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/filekv/pkg/config"
)

// bootstrapConfig marks commands that write a config file before loading it
const bootstrapConfig = "bootstrap-config"

func newUpCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "up",
		Short: "Bootstrap configuration if needed and start the server",
		Long: `Create a configuration file with a generated API key if none exists,
then serve the store. This is the quickest way to get filekv running.

Examples:
  filekv up
  filekv up --config ./filekv.yaml --file ./data/app.fkv --port 9000`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{bootstrapConfig: "true"},
		RunE:        runServer,
	}
	addServerFlags(c)
	c.Flags().Bool("print-key", false, "Print the generated API key")
	return c
}

// bootstrapIfMissing writes a fresh config before setup when the command
// asks for one
func bootstrapIfMissing(cmd *cobra.Command) error {
	if _, ok := cmd.Annotations[bootstrapConfig]; !ok {
		return nil
	}
	return ensureConfig(cmd)
}

// ensureConfig writes a config with a generated API key unless the
// configured file already exists
func ensureConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
		// later lookups must see the bootstrapped file
		if err := cmd.Flags().Set("config", configPath); err != nil {
			return err
		}
	}
	if config.ConfigExists(configPath) {
		return nil
	}

	storePath, _ := cmd.Flags().GetString("file")
	cfg, err := config.BootstrapConfig(configPath, storePath)
	if err != nil {
		return err
	}
	cmd.Printf("Configuration created at %s\n", configPath)
	if printKey, _ := cmd.Flags().GetBool("print-key"); printKey {
		cmd.Printf("API key: %s\n", cfg.Security.APIKey)
	}
	return nil
}
