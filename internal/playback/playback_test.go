package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"

	"github.com/heavenlabs/scrobbled/internal/engine"
)

type fakeSource struct {
	track *Track
	err   error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Current(_ context.Context) (*Track, error) {
	return f.track, f.err
}

type event struct {
	kind    string
	meta    engine.Metadata
	playing bool
}

type recordingSink struct {
	events []event
}

func (r *recordingSink) OnMetadata(_ string, meta engine.Metadata) {
	r.events = append(r.events, event{kind: "metadata", meta: meta})
}

func (r *recordingSink) OnPlayback(_ string, isPlaying bool) {
	r.events = append(r.events, event{kind: "playback", playing: isPlaying})
}

func (r *recordingSink) OnSessionGone(_ string) {
	r.events = append(r.events, event{kind: "gone"})
}

func newTestPoller(source Source, sink Sink) *Poller {
	return NewPoller(source, sink, time.Second, zerolog.Nop())
}

func TestPollPlayingTrack(t *testing.T) {
	source := &fakeSource{track: &Track{
		Title:    "Teardrop",
		Artist:   "Massive Attack",
		Album:    "Mezzanine",
		Duration: 329 * time.Second,
		State:    StatePlaying,
	}}
	sink := &recordingSink{}
	p := newTestPoller(source, sink)

	p.Poll(context.Background())

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	if sink.events[0].kind != "metadata" {
		t.Fatalf("first event = %s, want metadata", sink.events[0].kind)
	}
	meta := sink.events[0].meta
	if meta.Title != "Teardrop" || meta.Artist != "Massive Attack" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.DurationMs != 329000 {
		t.Errorf("DurationMs = %d, want 329000", meta.DurationMs)
	}
	if sink.events[1].kind != "playback" || !sink.events[1].playing {
		t.Errorf("second event should report playing, got %+v", sink.events[1])
	}
}

func TestPollPausedTrack(t *testing.T) {
	source := &fakeSource{track: &Track{
		Title:  "Teardrop",
		Artist: "Massive Attack",
		State:  StatePaused,
	}}
	sink := &recordingSink{}
	p := newTestPoller(source, sink)

	p.Poll(context.Background())

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	if sink.events[1].kind != "playback" || sink.events[1].playing {
		t.Errorf("paused track should report not playing, got %+v", sink.events[1])
	}
}

func TestPollStopReportedOnce(t *testing.T) {
	source := &fakeSource{track: &Track{Title: "X", Artist: "Y", State: StatePlaying}}
	sink := &recordingSink{}
	p := newTestPoller(source, sink)

	p.Poll(context.Background())
	source.track = nil
	p.Poll(context.Background())
	p.Poll(context.Background())

	var gone int
	for _, ev := range sink.events {
		if ev.kind == "gone" {
			gone++
		}
	}
	if gone != 1 {
		t.Errorf("session gone reported %d times, want 1", gone)
	}
}

func TestPollNeverSawTrackNoGone(t *testing.T) {
	source := &fakeSource{}
	sink := &recordingSink{}
	p := newTestPoller(source, sink)

	p.Poll(context.Background())

	if len(sink.events) != 0 {
		t.Errorf("expected no events for idle player, got %d", len(sink.events))
	}
}

func TestPollErrorKeepsSession(t *testing.T) {
	source := &fakeSource{track: &Track{Title: "X", Artist: "Y", State: StatePlaying}}
	sink := &recordingSink{}
	p := newTestPoller(source, sink)

	p.Poll(context.Background())
	source.track = nil
	source.err = errors.New("connection reset")
	p.Poll(context.Background())

	for _, ev := range sink.events {
		if ev.kind == "gone" {
			t.Error("transient error should not end the session")
		}
	}
}

func TestTrackFromAttrs(t *testing.T) {
	tests := []struct {
		name   string
		status mpd.Attrs
		song   mpd.Attrs
		want   Track
	}{
		{
			name:   "playing with duration",
			status: mpd.Attrs{"state": "play", "duration": "318.200"},
			song: mpd.Attrs{
				"Title":  "Weird Fishes",
				"Artist": "Radiohead",
				"Album":  "In Rainbows",
			},
			want: Track{
				Title:    "Weird Fishes",
				Artist:   "Radiohead",
				Album:    "In Rainbows",
				Duration: 318200 * time.Millisecond,
				State:    StatePlaying,
			},
		},
		{
			name:   "paused",
			status: mpd.Attrs{"state": "pause"},
			song:   mpd.Attrs{"Title": "X", "Artist": "Y"},
			want:   Track{Title: "X", Artist: "Y", State: StatePaused},
		},
		{
			name:   "legacy Time tag",
			status: mpd.Attrs{"state": "play"},
			song:   mpd.Attrs{"Title": "X", "Artist": "Y", "Time": "240"},
			want:   Track{Title: "X", Artist: "Y", Duration: 240 * time.Second, State: StatePlaying},
		},
		{
			name:   "musicbrainz tag",
			status: mpd.Attrs{"state": "play"},
			song: mpd.Attrs{
				"Title":                "X",
				"Artist":               "Y",
				"MUSICBRAINZ_TRACKID":  "b1a9c0e9-d987-4042-ae91-78d6a3267d69",
			},
			want: Track{
				Title:  "X",
				Artist: "Y",
				MBID:   "b1a9c0e9-d987-4042-ae91-78d6a3267d69",
				State:  StatePlaying,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trackFromAttrs(tt.status, tt.song)
			if *got != tt.want {
				t.Errorf("trackFromAttrs() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
