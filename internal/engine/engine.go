// Package engine turns playback metadata and play/pause events into
// at-most-one ready scrobble per continuous play of a track.
//
// The engine tracks one state machine per playback session. Listen time
// is accumulated on periodic ticks while the session reports playing,
// with each tick's delta bounded so that host sleep or backgrounding
// cannot credit large time jumps.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Metadata describes the track a session is currently playing.
type Metadata struct {
	Title      string
	Artist     string
	Album      string
	MBID       string
	IPID       string
	DurationMs int64
}

// ReadyScrobble is an immutable record of a qualifying play.
type ReadyScrobble struct {
	SessionKey string
	Artist     string
	Title      string
	Album      string
	MBID       string
	IPID       string
	PlayedAt   time.Time
	DurationMs int64
}

// Config holds engine tuning parameters.
type Config struct {
	// TickInterval is how often Run drives Tick. Default 15s.
	TickInterval time.Duration

	// MaxTickDelta bounds the listen time credited per tick. Default
	// 2x TickInterval.
	MaxTickDelta time.Duration
}

type session struct {
	mu          sync.Mutex
	meta        Metadata
	tracking    bool
	accumulated time.Duration
	playing     bool
	emitted     bool
	lastTick    time.Time
}

// Engine is the per-session scrobble state machine. All methods are
// safe for concurrent use; each session is guarded by its own lock and
// sessions are fully independent.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
	out    chan ReadyScrobble
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// New creates an Engine. Ready scrobbles are delivered on Ready().
func New(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 15 * time.Second
	}
	if cfg.MaxTickDelta <= 0 {
		cfg.MaxTickDelta = 2 * cfg.TickInterval
	}

	return &Engine{
		cfg:      cfg,
		logger:   logger.With().Str("component", "engine").Logger(),
		out:      make(chan ReadyScrobble, 64),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Ready returns the channel on which qualifying scrobbles are emitted.
func (e *Engine) Ready() <-chan ReadyScrobble {
	return e.out
}

// OnMetadata records a metadata change for a session. A different track
// (compared by normalized title and artist) discards any pending,
// threshold-unmet play without emitting and restarts accumulation from
// zero. Metadata missing title or artist stops tracking entirely; such
// a play can never become a scrobble.
func (e *Engine) OnMetadata(sessionKey string, meta Metadata) {
	s := e.session(sessionKey)
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(meta.Title) == "" || strings.TrimSpace(meta.Artist) == "" {
		if s.tracking {
			e.logger.Debug().
				Str("session", sessionKey).
				Msg("Dropping tracked play: incomplete metadata")
		}
		s.reset(Metadata{}, false, e.now())
		return
	}

	if s.tracking && sameTrack(s.meta, meta) {
		// Same track: refresh fields like duration that may arrive
		// late, but keep accumulation and the emitted latch.
		s.meta = meta
		return
	}

	e.logger.Debug().
		Str("session", sessionKey).
		Str("artist", meta.Artist).
		Str("title", meta.Title).
		Msg("Tracking new play")
	s.reset(meta, true, e.now())
}

// OnPlayback updates a session's playing flag. It never advances
// accumulated listen time itself; only ticks do.
func (e *Engine) OnPlayback(sessionKey string, isPlaying bool) {
	s := e.session(sessionKey)
	s.mu.Lock()
	s.playing = isPlaying
	s.mu.Unlock()
}

// OnSessionGone removes a session's state unconditionally. A tracked
// play that never crossed its threshold is discarded without emitting.
func (e *Engine) OnSessionGone(sessionKey string) {
	e.mu.Lock()
	delete(e.sessions, sessionKey)
	e.mu.Unlock()
}

// Run drives Tick on the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(e.now())
		}
	}
}

// Tick advances every live session to now. While a session is playing,
// the elapsed time since its previous tick is credited, bounded by
// MaxTickDelta. Crossing the threshold emits exactly one ReadyScrobble
// for the tracked play.
func (e *Engine) Tick(now time.Time) {
	e.mu.RLock()
	keys := make([]string, 0, len(e.sessions))
	sessions := make([]*session, 0, len(e.sessions))
	for key, s := range e.sessions {
		keys = append(keys, key)
		sessions = append(sessions, s)
	}
	e.mu.RUnlock()

	for i, s := range sessions {
		e.tickSession(keys[i], s, now)
	}
}

func (e *Engine) tickSession(key string, s *session, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := now.Sub(s.lastTick)
	s.lastTick = now
	if !s.tracking {
		return
	}
	if delta < 0 {
		delta = 0
	}
	if delta > e.cfg.MaxTickDelta {
		delta = e.cfg.MaxTickDelta
	}

	if s.playing {
		s.accumulated += delta
	}

	if s.emitted || !s.playing {
		return
	}

	duration := time.Duration(s.meta.DurationMs) * time.Millisecond
	if !ShouldScrobble(duration, s.accumulated) {
		return
	}

	s.emitted = true
	ready := ReadyScrobble{
		SessionKey: key,
		Artist:     s.meta.Artist,
		Title:      s.meta.Title,
		Album:      s.meta.Album,
		MBID:       s.meta.MBID,
		IPID:       s.meta.IPID,
		PlayedAt:   now,
		DurationMs: s.meta.DurationMs,
	}

	select {
	case e.out <- ready:
		e.logger.Info().
			Str("session", key).
			Str("artist", ready.Artist).
			Str("title", ready.Title).
			Dur("listened", s.accumulated).
			Msg("Scrobble ready")
	default:
		e.logger.Warn().
			Str("session", key).
			Str("title", ready.Title).
			Msg("Ready channel full, dropping scrobble")
	}
}

func (e *Engine) session(key string) *session {
	e.mu.RLock()
	s, ok := e.sessions[key]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[key]; ok {
		return s
	}
	s = &session{lastTick: e.now()}
	e.sessions[key] = s
	return s
}

// reset must be called with s.mu held.
func (s *session) reset(meta Metadata, tracking bool, now time.Time) {
	s.meta = meta
	s.tracking = tracking
	s.accumulated = 0
	s.emitted = false
	s.lastTick = now
}

// sameTrack compares tracks by normalized title and artist,
// case-insensitively.
func sameTrack(a, b Metadata) bool {
	return normalize(a.Title) == normalize(b.Title) &&
		normalize(a.Artist) == normalize(b.Artist)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
