package identity

import (
	"bytes"
	"testing"
)

func TestResolveMBID(t *testing.T) {
	meta := Metadata{
		Title:  "Song",
		Artist: "Artist",
		MBID:   "b1a9c0e9-d987-4042-ae91-78d6a3267d69",
	}

	id, err := Resolve(meta)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if id.Kind != KindMBID {
		t.Errorf("expected kind %d, got %d", KindMBID, id.Kind)
	}

	// MBID is left-aligned: the low 16 bytes must be zero.
	if !bytes.Equal(id.Payload[16:], make([]byte, 16)) {
		t.Errorf("expected zero low 16 bytes, got %x", id.Payload[16:])
	}
	if bytes.Equal(id.Payload[:16], make([]byte, 16)) {
		t.Error("expected non-zero high 16 bytes")
	}
}

func TestResolveMBIDInvalid(t *testing.T) {
	_, err := Resolve(Metadata{Title: "Song", Artist: "Artist", MBID: "not-a-uuid"})
	if err == nil {
		t.Fatal("expected error for malformed mbid")
	}
}

func TestResolveIPAsset(t *testing.T) {
	tests := []struct {
		name string
		ipID string
	}{
		{"with 0x prefix", "0x1234567890abcdef1234567890abcdef12345678"},
		{"without prefix", "1234567890abcdef1234567890abcdef12345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Resolve(Metadata{Title: "Song", Artist: "Artist", IPID: tt.ipID})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}

			if id.Kind != KindIPAsset {
				t.Errorf("expected kind %d, got %d", KindIPAsset, id.Kind)
			}

			// Address is right-aligned: the high 12 bytes must be zero.
			if !bytes.Equal(id.Payload[:12], make([]byte, 12)) {
				t.Errorf("expected zero high 12 bytes, got %x", id.Payload[:12])
			}
			if id.Payload[12] != 0x12 || id.Payload[31] != 0x78 {
				t.Errorf("unexpected address bytes: %x", id.Payload[12:])
			}
		})
	}
}

func TestResolveNormalizedMeta(t *testing.T) {
	id, err := Resolve(Metadata{Title: "Song", Artist: "Artist", Album: "Album"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id.Kind != KindNormalizedMeta {
		t.Errorf("expected kind %d, got %d", KindNormalizedMeta, id.Kind)
	}

	// Case and whitespace variants must produce the identical payload.
	variant, err := Resolve(Metadata{Title: "  SONG ", Artist: "aRtIsT", Album: " Album  "})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if variant.Payload != id.Payload {
		t.Errorf("normalization not idempotent: %x != %x", variant.Payload, id.Payload)
	}
	if variant.TrackID != id.TrackID {
		t.Errorf("track ids differ: %s != %s", variant.TrackID, id.TrackID)
	}
}

func TestResolveMissingTitleArtist(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
	}{
		{"missing title", Metadata{Artist: "Artist"}},
		{"missing artist", Metadata{Title: "Song"}},
		{"whitespace only", Metadata{Title: "   ", Artist: "Artist"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(tt.meta); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTrackIDDeterministic(t *testing.T) {
	meta := Metadata{Title: "Song", Artist: "Artist", Album: "Album"}

	first, err := Resolve(meta)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Resolve(meta)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if again.TrackID != first.TrackID {
			t.Fatalf("track id not stable: %s != %s", again.TrackID, first.TrackID)
		}
	}

	// trackId is a pure function of (kind, payload).
	if got := TrackID(first.Kind, first.Payload); got != first.TrackID {
		t.Errorf("TrackID mismatch: %s != %s", got, first.TrackID)
	}
}

func TestTrackIDKindAffectsHash(t *testing.T) {
	var payload [32]byte
	payload[0] = 0xab

	if TrackID(KindMBID, payload) == TrackID(KindNormalizedMeta, payload) {
		t.Error("different kinds must produce different track ids")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello world"},
		{"  HELLO   world  ", "hello world"},
		{"hello\tworld", "hello world"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
