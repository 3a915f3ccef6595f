package playback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/heavenlabs/scrobbled/internal/engine"
)

// Sink receives playback observations. Satisfied by *engine.Engine.
type Sink interface {
	OnMetadata(sessionKey string, meta engine.Metadata)
	OnPlayback(sessionKey string, isPlaying bool)
	OnSessionGone(sessionKey string)
}

// Poller polls a source at regular intervals and forwards what it sees
// to the sink.
type Poller struct {
	source   Source
	sink     Sink
	interval time.Duration
	logger   zerolog.Logger

	// sawTrack tracks whether the previous poll observed a track, so
	// a stop is reported to the sink exactly once.
	sawTrack bool
}

func NewPoller(source Source, sink Sink, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		source:   source,
		sink:     sink,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Str("source", source.Name()).Logger(),
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("Starting poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll queries the source once and forwards the observation.
func (p *Poller) Poll(ctx context.Context) {
	key := p.source.Name()

	track, err := p.source.Current(ctx)
	if err != nil {
		// Transient player errors keep the session alive; the
		// engine only accumulates time across ticks it is told
		// about.
		p.logger.Debug().Err(err).Msg("Error querying player")
		return
	}

	if track == nil || track.State == StateStopped {
		if p.sawTrack {
			p.logger.Debug().Msg("Playback stopped")
			p.sink.OnSessionGone(key)
		}
		p.sawTrack = false
		return
	}

	p.sawTrack = true
	p.sink.OnMetadata(key, engine.Metadata{
		Title:      track.Title,
		Artist:     track.Artist,
		Album:      track.Album,
		MBID:       track.MBID,
		IPID:       track.IPID,
		DurationMs: track.Duration.Milliseconds(),
	})
	p.sink.OnPlayback(key, track.State == StatePlaying)
}
