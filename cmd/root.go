package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scrobbled",
	Short: "On-chain music scrobbler for MPD",
	Long: `scrobbled records the music you listen to as cryptographically
authenticated scrobbles on-chain.

It runs as a background daemon that monitors MPD playback, decides when
a track counts as listened (50% of its duration or 4 minutes, whichever
comes first), and submits batches of scrobbles as sponsored ERC-4337
user operations through a paymaster gateway. Gas is paid by the
sponsor; the listener only signs.

It also provides CLI commands to inspect the local queue, submit
pending scrobbles manually, and display the currently playing track for
status bars.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
