package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <key> <value>",
		Short: "Create a key",
		Long: `Create a key that does not exist yet. The value is parsed as JSON when
possible and stored as a string otherwise.

Example:
  filekv create user:1 '{"name":"ada"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			if err := kv.Create(args[0], parseValue(args[1])); err != nil {
				return fmt.Errorf("error creating key: %w", err)
			}
			cmd.Printf("Created key '%s'\n", args[0])
			return nil
		},
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <key>",
		Short: "Read the value of a key as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			var value any
			if err := kv.Read(args[0], &value); err != nil {
				return fmt.Errorf("error reading key: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), value)
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <key> <value>",
		Short: "Replace the value of an existing key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			if err := kv.Update(args[0], parseValue(args[1])); err != nil {
				return fmt.Errorf("error updating key: %w", err)
			}
			cmd.Printf("Updated key '%s'\n", args[0])
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key or list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			if err := kv.Delete(args[0]); err != nil {
				return fmt.Errorf("error deleting key: %w", err)
			}
			cmd.Printf("Deleted key '%s'\n", args[0])
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List live keys in sorted order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			prefix, _ := cmd.Flags().GetString("prefix")
			keys, err := kv.ListPrefix(prefix)
			if err != nil {
				return fmt.Errorf("error listing keys: %w", err)
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	c.Flags().String("prefix", "", "Only list keys with this prefix")
	return c
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the store file with only live records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			result, err := kv.Compact()
			if err != nil {
				return fmt.Errorf("error compacting store: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			stats, err := kv.Stats()
			if err != nil {
				return fmt.Errorf("error reading stats: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}
