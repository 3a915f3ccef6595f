package cmd

import (
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/heavenlabs/scrobbled/internal/playback"
)

func TestFormatTrack(t *testing.T) {
	track := &playback.Track{
		Title:    "Roygbiv",
		Artist:   "Boards of Canada",
		Album:    "Music Has the Right to Children",
		Duration: 150 * time.Second,
	}

	got, err := formatTrack(track, "{{.Artist}} - {{.Title}}")
	if err != nil {
		t.Fatalf("formatTrack returned error: %v", err)
	}
	if got != "Boards of Canada - Roygbiv" {
		t.Errorf("formatTrack() = %q", got)
	}

	if _, err := formatTrack(track, "{{.Artist"); err == nil {
		t.Error("expected error for invalid template")
	}
}

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "no padding when width is 0",
			input:    "Hello",
			width:    0,
			expected: "Hello",
		},
		{
			name:     "pad short text with spaces",
			input:    "Hi",
			width:    10,
			expected: "Hi        ",
		},
		{
			name:     "exact width unchanged",
			input:    "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{
			name:     "handle wide runes",
			input:    "日本語",
			width:    10,
			expected: "日本語    ",
		},
		{
			name:     "truncate wide runes",
			input:    "日本語とても長いテキスト",
			width:    10,
			expected: "日本語... ",
		},
		{
			name:     "minimum width for truncation",
			input:    "Hello",
			width:    3,
			expected: "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := padToWidth(tt.input, tt.width)
			if result != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, expected %q",
					tt.input, tt.width, result, tt.expected)
			}

			if tt.width > 0 {
				if got := runewidth.StringWidth(result); got != tt.width {
					t.Errorf("padToWidth(%q, %d) produced width %d",
						tt.input, tt.width, got)
				}
			}
		})
	}
}

func TestMarqueeTextShortInput(t *testing.T) {
	got := marqueeText("Hi", 10, 2, " | ")
	if got != "Hi        " {
		t.Errorf("short text should be padded, got %q", got)
	}
}

func TestMarqueeTextWidth(t *testing.T) {
	got := marqueeText("a very long track title that scrolls", 12, 2, " | ")
	if w := runewidth.StringWidth(got); w != 12 {
		t.Errorf("marquee output width = %d, want 12", w)
	}
}
