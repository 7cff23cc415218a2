package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newLCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lcreate <name>",
		Short: "Create an empty list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			if err := kv.LCreate(args[0]); err != nil {
				return fmt.Errorf("error creating list: %w", err)
			}
			cmd.Printf("Created list '%s'\n", args[0])
			return nil
		},
	}
}

func newLAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ladd <name> <value>...",
		Short: "Append values to a list",
		Long: `Append one or more values to a list, creating the list if needed.
All values are written in a single record.

Example:
  filekv ladd queue job-1 job-2 '{"retry":3}'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			name := args[0]
			exists, err := kv.LExists(name)
			if err != nil {
				return err
			}
			if !exists {
				if err := kv.LCreate(name); err != nil {
					return fmt.Errorf("error creating list: %w", err)
				}
			}
			if err := kv.LExtend(name, parseValues(args[1:])...); err != nil {
				return fmt.Errorf("error appending to list: %w", err)
			}
			cmd.Printf("Appended %d value(s) to '%s'\n", len(args)-1, name)
			return nil
		},
	}
}

func newLGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lget <name> [index]",
		Short: "Print one element or the whole list as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				pos, err := parseIndex(args[1])
				if err != nil {
					return err
				}
				var value any
				if err := kv.LGet(args[0], pos, &value); err != nil {
					return fmt.Errorf("error reading list: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), value)
			}
			items, err := kv.LItems(args[0])
			if err != nil {
				return fmt.Errorf("error reading list: %w", err)
			}
			values := make([]any, 0, len(items))
			for _, item := range items {
				var v any
				if err := item.Decode(&v); err != nil {
					return err
				}
				values = append(values, v)
			}
			return printJSON(cmd.OutOrStdout(), values)
		},
	}
}

func newLLenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "llen <name>",
		Short: "Print the length of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			n, err := kv.LLen(args[0])
			if err != nil {
				return fmt.Errorf("error reading list: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newLPopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lpop <name> <index>",
		Short: "Remove an element and print it as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			pos, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			var value any
			if err := kv.LPop(args[0], pos, &value); err != nil {
				return fmt.Errorf("error popping from list: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), value)
		},
	}
}

func newLRemCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "lrem <name>",
		Short: "Remove a list, or the first element equal to --value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("value") {
				raw, _ := cmd.Flags().GetString("value")
				removed, err := kv.LRemValue(args[0], parseValue(raw))
				if err != nil {
					return fmt.Errorf("error removing value: %w", err)
				}
				if !removed {
					cmd.Printf("No element equal to %s in '%s'\n", raw, args[0])
					return nil
				}
				cmd.Printf("Removed %s from '%s'\n", raw, args[0])
				return nil
			}
			n, err := kv.LRemList(args[0])
			if err != nil {
				return fmt.Errorf("error removing list: %w", err)
			}
			cmd.Printf("Removed list '%s' with %d element(s)\n", args[0], n)
			return nil
		},
	}
	c.Flags().String("value", "", "Remove the first element equal to this value instead of the list")
	return c
}

func parseIndex(arg string) (int, error) {
	pos, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", arg, err)
	}
	return pos, nil
}
