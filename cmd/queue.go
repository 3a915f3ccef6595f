package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/heavenlabs/scrobbled/internal/config"
	"github.com/heavenlabs/scrobbled/internal/store"
)

var queueAll bool

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the local scrobble queue",
	Long: `List scrobbles in the local queue.

By default only pending scrobbles are shown. Use --all to include
scrobbles that were already submitted on-chain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, err := store.Open(config.QueuePath())
		if err != nil {
			return fmt.Errorf("failed to open queue: %w", err)
		}
		defer queue.Close()

		ctx := context.Background()

		var scrobbles []store.Scrobble
		if queueAll {
			scrobbles, err = queue.GetAll(ctx)
		} else {
			scrobbles, err = queue.GetPending(ctx, 0)
		}
		if err != nil {
			return fmt.Errorf("failed to read queue: %w", err)
		}

		if len(scrobbles) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPLAYED\tARTIST\tTITLE\tSTATUS")
		for _, s := range scrobbles {
			status := "pending"
			if s.Submitted {
				status = "submitted " + shorten(s.UserOpHash)
			} else if s.Error != "" {
				status = "error: " + s.Error
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				s.ID,
				s.PlayedAt.Local().Format(time.DateTime),
				s.Artist,
				s.Title,
				status,
			)
		}
		return w.Flush()
	},
}

func shorten(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:8] + "…" + hash[len(hash)-4:]
}

func init() {
	rootCmd.AddCommand(queueCmd)

	queueCmd.Flags().BoolVarP(&queueAll, "all", "a", false, "Include submitted scrobbles")
}
