package engine

import (
	"time"
)

// Scrobbling threshold constants
const (
	// MinimumTrackDuration is the minimum known track length required
	// for a play to ever qualify (30 seconds)
	MinimumTrackDuration = 30 * time.Second

	// ScrobblePercentage is the fraction of the track that must be
	// listened to (50%)
	ScrobblePercentage = 0.5

	// MaxScrobbleThreshold caps the required listen time (4 minutes)
	MaxScrobbleThreshold = 4 * time.Minute

	// FallbackThreshold is the required listen time when the track
	// duration is unknown
	FallbackThreshold = 4 * time.Minute
)

// ScrobbleThreshold returns the accumulated listen time at which a play
// qualifies as a scrobble:
//   - duration known: min(50% of duration, 4 minutes); tracks shorter
//     than 30 seconds never qualify
//   - duration unknown (zero): a fixed 4 minute fallback
func ScrobbleThreshold(trackDuration time.Duration) time.Duration {
	if trackDuration <= 0 {
		return FallbackThreshold
	}

	if trackDuration < MinimumTrackDuration {
		// Can never be met
		return -1
	}

	threshold := time.Duration(float64(trackDuration) * ScrobblePercentage)
	if threshold > MaxScrobbleThreshold {
		threshold = MaxScrobbleThreshold
	}

	return threshold
}

// ShouldScrobble reports whether the accumulated listen time crosses
// the threshold for the given track duration.
func ShouldScrobble(trackDuration, listened time.Duration) bool {
	threshold := ScrobbleThreshold(trackDuration)
	if threshold < 0 {
		return false
	}
	return listened >= threshold
}
