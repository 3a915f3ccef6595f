package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/heavenlabs/scrobbled/internal/config"
	"github.com/heavenlabs/scrobbled/internal/playback"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display currently playing track from MPD",
	Long: `Query MPD and display the currently playing track.

The output format can be customized in ~/.config/scrobbled/config.yaml
using a Go template. Available fields: .Title, .Artist, .Album, .Duration

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or MPD not reachable`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
}

func runNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if formatFlag, _ := cmd.Flags().GetString("format"); formatFlag != "" {
		cfg.Output.Format = formatFlag
	}

	source := playback.NewMPDSource(cfg.MPD.Addr, cfg.MPD.Password)
	defer source.Close()

	track, err := source.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current track: %w", err)
	}

	// Stopped or paused players exit with code 1 so status bars can
	// hide the segment.
	if track == nil || track.State != playback.StatePlaying {
		os.Exit(1)
		return nil
	}

	output, err := formatTrack(track, cfg.Output.Format)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.Output.Width
	}

	marquee, _ := cmd.Flags().GetBool("marquee")
	if !cmd.Flags().Changed("marquee") {
		marquee = cfg.Output.Marquee
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.Output.MarqueeSpeed, cfg.Output.MarqueeSeparator)
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)
	return nil
}

// formatTrack applies the template to the track data
func formatTrack(track *playback.Track, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to a fixed display width, measured
// in display columns so wide runes count correctly. Text longer than
// width is truncated with a "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)
	if currentWidth == width {
		return text
	}
	if currentWidth < width {
		return text + strings.Repeat(" ", width-currentWidth)
	}

	ellipsis := "..."
	ellipsisWidth := runewidth.StringWidth(ellipsis)
	if width <= ellipsisWidth {
		return runewidth.Truncate(ellipsis, width, "")
	}

	result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
	// Truncation on a wide rune can come up a column short.
	if got := runewidth.StringWidth(result); got < width {
		result += strings.Repeat(" ", width-got)
	}
	return result
}

// marqueeText scrolls text that exceeds the target width. The scroll
// position derives from the current unix time, so repeated invocations
// (a tmux status line refreshing every few seconds) step through the
// text without any persisted state.
func marqueeText(text string, width int, speed int, separator string) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	// Doubling the text with a separator makes the window wrap
	// seamlessly.
	extended := []rune(text + separator + text)
	total := len(extended)
	position := int(time.Now().Unix()*int64(speed)) % total

	var result []rune
	resultWidth := 0
	for i := 0; i < total && resultWidth < width; i++ {
		r := extended[(position+i)%total]
		rw := runewidth.RuneWidth(r)
		if resultWidth+rw > width {
			break
		}
		result = append(result, r)
		resultWidth += rw
	}

	if resultWidth < width {
		return string(result) + strings.Repeat(" ", width-resultWidth)
	}
	return string(result)
}
