package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ssargent/filekv/pkg/config"
)

const serviceName = "filekv.service"

// swapped in tests
var (
	runCommand = func(name string, args ...string) error {
		c := exec.Command(name, args...)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	}
	geteuid = os.Geteuid
)

func newServiceCmd() *cobra.Command {
	service := &cobra.Command{
		Use:   "service",
		Short: "Manage filekv serve as a systemd service",
		Long: `Manage the filekv HTTP server as a systemd service for long-running
deployments. The unit runs "filekv serve" against a configuration file.`,
	}

	unit := &cobra.Command{
		Use:         "unit",
		Short:       "Print the systemd unit file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := renderUnit(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), content)
			return err
		},
	}
	addUnitFlags(unit)

	install := &cobra.Command{
		Use:   "install",
		Short: "Install and enable the systemd service",
		Long: `Install filekv as a systemd service.

This will:
- Create a configuration with a generated API key if none exists
- Write the systemd unit file
- Enable and optionally start the service

Examples:
  sudo filekv service install --file /var/lib/filekv/store.fkv
  sudo filekv service install --user filekv --start=false`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if geteuid() != 0 {
				return fmt.Errorf("service install requires root privileges (run with sudo)")
			}
			if err := ensureConfig(cmd); err != nil {
				return err
			}
			content, err := renderUnit(cmd)
			if err != nil {
				return err
			}
			unitDir, _ := cmd.Flags().GetString("unit-dir")
			unitPath := filepath.Join(unitDir, serviceName)
			if err := os.WriteFile(unitPath, []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to write unit file: %w", err)
			}
			cmd.Printf("Wrote %s\n", unitPath)

			if err := runCommand("systemctl", "daemon-reload"); err != nil {
				return fmt.Errorf("failed to reload systemd: %w", err)
			}
			if err := runCommand("systemctl", "enable", serviceName); err != nil {
				return fmt.Errorf("failed to enable service: %w", err)
			}
			if start, _ := cmd.Flags().GetBool("start"); start {
				if err := runCommand("systemctl", "start", serviceName); err != nil {
					return fmt.Errorf("failed to start service: %w", err)
				}
				cmd.Printf("Service started\n")
			}
			cmd.Printf("To view logs: journalctl -u %s -f\n", serviceName)
			return nil
		},
	}
	addUnitFlags(install)
	install.Flags().String("unit-dir", "/etc/systemd/system", "Directory for the unit file")
	install.Flags().Bool("start", true, "Start the service after installation")

	uninstall := &cobra.Command{
		Use:         "uninstall",
		Short:       "Stop, disable and remove the systemd service",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if geteuid() != 0 {
				return fmt.Errorf("service uninstall requires root privileges (run with sudo)")
			}
			// already stopped is fine
			_ = runCommand("systemctl", "stop", serviceName)
			if err := runCommand("systemctl", "disable", serviceName); err != nil {
				cmd.Printf("Warning: could not disable service: %v\n", err)
			}
			unitDir, _ := cmd.Flags().GetString("unit-dir")
			if err := os.Remove(filepath.Join(unitDir, serviceName)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove unit file: %w", err)
			}
			if err := runCommand("systemctl", "daemon-reload"); err != nil {
				return fmt.Errorf("failed to reload systemd: %w", err)
			}
			cmd.Printf("Service removed. Configuration and store files were kept.\n")
			return nil
		},
	}
	uninstall.Flags().String("unit-dir", "/etc/systemd/system", "Directory holding the unit file")

	service.AddCommand(unit, install, uninstall)
	for _, action := range []string{"start", "stop", "restart", "status"} {
		service.AddCommand(systemctlCmd(action))
	}

	logs := &cobra.Command{
		Use:         "logs",
		Short:       "Show service logs with journalctl",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := []string{"-u", serviceName}
			if follow, _ := cmd.Flags().GetBool("follow"); follow {
				args = append(args, "-f")
			}
			if lines, _ := cmd.Flags().GetInt("lines"); lines > 0 {
				args = append(args, fmt.Sprintf("-n%d", lines))
			}
			return runCommand("journalctl", args...)
		},
	}
	logs.Flags().Bool("follow", false, "Follow log output")
	logs.Flags().IntP("lines", "n", 0, "Number of lines to show")
	service.AddCommand(logs)

	return service
}

func systemctlCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:         action,
		Short:       fmt.Sprintf("Run systemctl %s for the service", action),
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCommand("systemctl", action, serviceName)
		},
	}
}

func addUnitFlags(c *cobra.Command) {
	c.Flags().String("user", "filekv", "User to run the service as")
	c.Flags().String("binary", "/usr/local/bin/filekv", "Path of the installed filekv binary")
}

// renderUnit builds the unit file for the configuration the command loaded
func renderUnit(cmd *cobra.Command) (string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	configPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", err
	}
	storePath, err := filepath.Abs(configFrom(cmd).Store.Path)
	if err != nil {
		return "", err
	}
	user, _ := cmd.Flags().GetString("user")
	binary, _ := cmd.Flags().GetString("binary")

	return fmt.Sprintf(`[Unit]
Description=filekv server
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadWritePaths=%s
ReadOnlyPaths=%s

[Install]
WantedBy=multi-user.target
`, user, user, binary, configPath, filepath.Dir(storePath), filepath.Dir(configPath)), nil
}
