package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/heavenlabs/scrobbled/internal/daemon"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install scrobbled as a systemd user service",
	Long: `Install scrobbled as a systemd user service that runs automatically
on login.

This command will:
  - Generate a systemd unit for the scrobbled daemon
  - Install it to ~/.config/systemd/user/
  - Reload the user daemon and enable the service
  - Start the daemon

Logs go to the user journal: journalctl --user -u scrobbled`,
	RunE: func(cmd *cobra.Command, args []string) error {
		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		unit, err := daemon.GenerateUnit(daemon.UnitConfig{BinaryPath: binaryPath})
		if err != nil {
			return fmt.Errorf("failed to generate unit: %w", err)
		}

		unitPath, err := daemon.GetUnitPath()
		if err != nil {
			return fmt.Errorf("failed to get unit path: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
			return fmt.Errorf("failed to create unit directory: %w", err)
		}
		if err := os.WriteFile(unitPath, []byte(unit), 0644); err != nil {
			return fmt.Errorf("failed to write unit file: %w", err)
		}
		fmt.Printf("✓ Installed unit to %s\n", unitPath)

		for _, sysArgs := range [][]string{
			{"--user", "daemon-reload"},
			{"--user", "enable", "--now", "scrobbled.service"},
		} {
			if out, err := exec.Command("systemctl", sysArgs...).CombinedOutput(); err != nil {
				return fmt.Errorf("systemctl %v failed: %v\n%s", sysArgs, err, out)
			}
		}

		fmt.Println("✓ Service enabled and started")
		fmt.Println("\nCheck status with:")
		fmt.Println("  systemctl --user status scrobbled")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
