// Package identity derives canonical on-chain track identities from
// track metadata.
//
// A track identity is a (kind, payload, trackId) triple. The payload
// encoding and the trackId derivation are wire contracts with the
// scrobble registry contract: the chain re-derives trackId from
// (kind, payload) and rejects anything that does not match
// byte-for-byte.
package identity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Kind discriminates how a track payload is derived.
type Kind uint8

const (
	// KindMBID identifies a track by its MusicBrainz recording id.
	// Payload is the 16-byte MBID left-aligned in 32 bytes; the low
	// 16 bytes must be zero.
	KindMBID Kind = 1

	// KindIPAsset identifies a track by its on-chain IP asset address.
	// Payload is the 20-byte address right-aligned in 32 bytes; the
	// high 12 bytes must be zero.
	KindIPAsset Kind = 2

	// KindNormalizedMeta identifies a track by a hash of its
	// normalized title, artist and album.
	KindNormalizedMeta Kind = 3
)

// Metadata is the resolver input.
type Metadata struct {
	Title  string
	Artist string
	Album  string
	MBID   string // optional MusicBrainz recording id
	IPID   string // optional IP asset address (hex, 0x-prefix optional)
}

// Identity is a resolved track identity.
type Identity struct {
	Kind    Kind
	Payload [32]byte
	TrackID common.Hash
}

var stringTupleArgs abi.Arguments

func init() {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(fmt.Sprintf("identity: build string abi type: %v", err))
	}
	stringTupleArgs = abi.Arguments{
		{Type: stringType},
		{Type: stringType},
		{Type: stringType},
	}
}

// Resolve derives the canonical identity for the given metadata.
//
// Precedence: MBID, then IP asset id, then normalized metadata.
// Title and artist are required for the normalized-metadata fallback.
func Resolve(meta Metadata) (Identity, error) {
	kind, payload, err := derivePayload(meta)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		Kind:    kind,
		Payload: payload,
		TrackID: TrackID(kind, payload),
	}, nil
}

// TrackID computes keccak256(kindWord ++ payload), where kindWord is
// the kind left-padded to a 32-byte word. This matches the registry
// contract's derivation exactly.
func TrackID(kind Kind, payload [32]byte) common.Hash {
	var buf [64]byte
	buf[31] = byte(kind)
	copy(buf[32:], payload[:])
	return crypto.Keccak256Hash(buf[:])
}

func derivePayload(meta Metadata) (Kind, [32]byte, error) {
	var payload [32]byte

	if mbid := strings.TrimSpace(meta.MBID); mbid != "" {
		id, err := uuid.Parse(mbid)
		if err != nil {
			return 0, payload, fmt.Errorf("invalid mbid %q: %w", mbid, err)
		}
		copy(payload[:16], id[:])
		return KindMBID, payload, nil
	}

	if ipID := strings.TrimSpace(meta.IPID); ipID != "" {
		if !strings.HasPrefix(ipID, "0x") && !strings.HasPrefix(ipID, "0X") {
			ipID = "0x" + ipID
		}
		if !common.IsHexAddress(ipID) {
			return 0, payload, fmt.Errorf("invalid ip asset id %q", meta.IPID)
		}
		addr := common.HexToAddress(ipID)
		copy(payload[12:], addr.Bytes())
		return KindIPAsset, payload, nil
	}

	if strings.TrimSpace(meta.Title) == "" || strings.TrimSpace(meta.Artist) == "" {
		return 0, payload, fmt.Errorf("metadata requires title and artist")
	}

	encoded, err := stringTupleArgs.Pack(
		Normalize(meta.Title),
		Normalize(meta.Artist),
		Normalize(meta.Album),
	)
	if err != nil {
		return 0, payload, fmt.Errorf("encode normalized metadata: %w", err)
	}
	copy(payload[:], crypto.Keccak256(encoded))
	return KindNormalizedMeta, payload, nil
}

// Normalize lowercases, trims and collapses internal whitespace so that
// casing and spacing variants of the same metadata produce the same
// payload.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
