package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/heavenlabs/scrobbled/internal/config"
	"github.com/heavenlabs/scrobbled/internal/daemon"
)

var submitLogLevel string

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit queued scrobbles on-chain now",
	Long: `Submit all pending scrobbles from the local queue as a single
sponsored user operation, without starting the daemon.

Useful after an offline listening session, or to retry scrobbles that
failed while the daemon was running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger := setupLogger("", submitLogLevel)

		d, err := daemon.New(cfg, logger)
		if err != nil {
			return err
		}
		defer d.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		submitted, err := d.SubmitPending(ctx)
		if err != nil {
			if submitted > 0 {
				fmt.Printf("Submitted %d scrobbles\n", submitted)
			}
			return err
		}
		if submitted == 0 {
			fmt.Println("No pending scrobbles")
			return nil
		}

		fmt.Printf("Submitted %d scrobbles\n", submitted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}
