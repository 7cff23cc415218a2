package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/filekv/pkg/config"
)

func newInitCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with a generated API key",
		Long: `Write a configuration file for local use.

This command will:
- Generate a random API key for the HTTP server
- Record the store path given by --file (or the default)
- Save the file with 0600 permissions

Examples:
  filekv init
  filekv init --config ./filekv.yaml --file ./data/app.fkv --force`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}
			force, _ := cmd.Flags().GetBool("force")
			if config.ConfigExists(configPath) && !force {
				return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
			}

			cfg, err := config.BootstrapConfig(configPath, configFrom(cmd).Store.Path)
			if err != nil {
				return err
			}

			cmd.Printf("Wrote configuration to %s\n", configPath)
			cmd.Printf("Store file: %s\n", cfg.Store.Path)
			cmd.Printf("API key: %s...\n", cfg.Security.APIKey[:8])
			return nil
		},
	}
	c.Flags().Bool("force", false, "Overwrite an existing configuration")
	return c
}
