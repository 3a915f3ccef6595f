package playback

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// MPDSource observes an MPD server. The connection is dialed lazily
// and re-dialed after any failure; MPD drops idle connections, so a
// dead client is routine rather than exceptional.
type MPDSource struct {
	addr     string
	password string

	mu     sync.Mutex
	client *mpd.Client
}

func NewMPDSource(addr, password string) *MPDSource {
	return &MPDSource{addr: addr, password: password}
}

func (s *MPDSource) Name() string { return "mpd" }

func (s *MPDSource) Current(ctx context.Context) (*Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.connect()
	if err != nil {
		return nil, err
	}

	status, err := client.Status()
	if err != nil {
		s.drop()
		return nil, fmt.Errorf("mpd status: %w", err)
	}
	if status["state"] == "stop" || status["state"] == "" {
		return nil, nil
	}

	song, err := client.CurrentSong()
	if err != nil {
		s.drop()
		return nil, fmt.Errorf("mpd currentsong: %w", err)
	}

	return trackFromAttrs(status, song), nil
}

// Close releases the MPD connection if one is open.
func (s *MPDSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *MPDSource) connect() (*mpd.Client, error) {
	if s.client != nil {
		if err := s.client.Ping(); err == nil {
			return s.client, nil
		}
		s.drop()
	}

	var (
		client *mpd.Client
		err    error
	)
	if s.password != "" {
		client, err = mpd.DialAuthenticated("tcp", s.addr, s.password)
	} else {
		client, err = mpd.Dial("tcp", s.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("mpd dial %s: %w", s.addr, err)
	}
	s.client = client
	return client, nil
}

func (s *MPDSource) drop() {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

// trackFromAttrs builds a Track from MPD status and currentsong
// responses.
func trackFromAttrs(status, song mpd.Attrs) *Track {
	t := &Track{
		Title:  song["Title"],
		Artist: song["Artist"],
		Album:  song["Album"],
		MBID:   song["MUSICBRAINZ_TRACKID"],
		IPID:   song["IPID"],
	}

	if raw := status["duration"]; raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
			t.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	// Older servers report "Time" on the song instead of a status
	// duration.
	if t.Duration == 0 {
		if raw := song["Time"]; raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				t.Duration = time.Duration(secs) * time.Second
			}
		}
	}

	switch status["state"] {
	case "play":
		t.State = StatePlaying
	case "pause":
		t.State = StatePaused
	default:
		t.State = StateStopped
	}
	return t
}
