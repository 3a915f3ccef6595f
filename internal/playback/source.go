package playback

import (
	"context"
	"time"
)

// Track is a snapshot of what a player is currently doing.
type Track struct {
	Title    string
	Artist   string
	Album    string
	MBID     string // MusicBrainz recording id, if tagged
	IPID     string // Story Protocol IP asset address, if tagged
	Duration time.Duration // Zero when the player does not report one
	State    PlayState
}

// PlayState represents the playback state of a player.
type PlayState int

const (
	StateStopped PlayState = iota
	StatePlaying
	StatePaused
)

func (s PlayState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Source observes a single music player.
type Source interface {
	// Name identifies the player. It doubles as the session key, so
	// it must be stable for the life of the source.
	Name() string

	// Current returns the track the player is on, or nil when
	// stopped.
	Current(ctx context.Context) (*Track, error)
}
