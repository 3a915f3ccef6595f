package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/heavenlabs/scrobbled/internal/daemon"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the scrobbled systemd service",
	Long: `Stop the scrobbled daemon and remove its systemd user unit.

After uninstalling, the daemon will no longer run automatically on
login. The local queue and configuration are left in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		unitPath, err := daemon.GetUnitPath()
		if err != nil {
			return fmt.Errorf("failed to get unit path: %w", err)
		}

		if _, err := os.Stat(unitPath); os.IsNotExist(err) {
			fmt.Println("Daemon is not installed (unit not found)")
			return nil
		}

		fmt.Println("Stopping daemon...")
		if out, err := exec.Command("systemctl", "--user", "disable", "--now", "scrobbled.service").CombinedOutput(); err != nil {
			fmt.Printf("Warning: failed to stop service: %v\n%s", err, out)
			fmt.Println("Continuing with unit removal...")
		} else {
			fmt.Println("✓ Daemon stopped")
		}

		if err := os.Remove(unitPath); err != nil {
			return fmt.Errorf("failed to remove unit file: %w", err)
		}
		fmt.Printf("✓ Removed unit from %s\n", unitPath)

		if out, err := exec.Command("systemctl", "--user", "daemon-reload").CombinedOutput(); err != nil {
			fmt.Printf("Warning: daemon-reload failed: %v\n%s", err, out)
		}

		fmt.Println("\nThe scrobbled daemon has been uninstalled.")
		fmt.Println("To reinstall, run:")
		fmt.Println("  scrobbled install")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
