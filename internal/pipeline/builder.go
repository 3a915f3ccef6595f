package pipeline

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/heavenlabs/scrobbled/internal/chain"
	"github.com/heavenlabs/scrobbled/internal/identity"
)

// Fixed gas values for sponsored scrobble operations. The paymaster
// absorbs the cost, so these are sized generously rather than
// estimated per call.
const (
	verificationGasLimit = 2_000_000
	callGasLimit         = 2_000_000
	maxPriorityFeePerGas = 1_000_000
	maxFeePerGas         = 2_000_000
	preVerificationGas   = 100_000
)

// Scrobble is one listening record to submit.
type Scrobble struct {
	Artist      string
	Title       string
	Album       string
	MBID        string
	IPID        string
	DurationSec uint32
	PlayedAtSec uint64
}

// batch is a built, unsigned operation together with the identities it
// covers and which of them carried registration entries.
type batch struct {
	op         chain.PackedUserOperation
	identities []identity.Identity
	registered []common.Hash // track ids newly included for registration
}

// PackUint128Pair packs two values into one 32-byte word as big-endian
// 128-bit halves, high half first.
func PackUint128Pair(high, low uint64) [32]byte {
	var word [32]byte
	new(big.Int).SetUint64(high).FillBytes(word[:16])
	new(big.Int).SetUint64(low).FillBytes(word[16:])
	return word
}

// resolveIdentities derives the canonical identity for every scrobble
// in the batch. A scrobble that cannot be resolved fails the whole
// build; the engine should never have emitted it.
func resolveIdentities(items []Scrobble) ([]identity.Identity, error) {
	identities := make([]identity.Identity, len(items))
	for i, item := range items {
		id, err := identity.Resolve(identity.Metadata{
			Title:  item.Title,
			Artist: item.Artist,
			Album:  item.Album,
			MBID:   item.MBID,
			IPID:   item.IPID,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve %q by %q: %w", item.Title, item.Artist, err)
		}
		identities[i] = id
	}
	return identities, nil
}

// buildUserOp assembles the unsigned operation for the batch.
//
// Registration entries are included only for tracks that are neither
// in the local registration cache nor registered on-chain; when every
// track is already known, the lighter scrobbleBatch call is used.
// When includeRegistrations is false, registration entries are dropped
// entirely (the duplicate-registration retry path).
func (p *Pipeline) buildUserOp(ctx context.Context, items []Scrobble, includeRegistrations bool) (batch, error) {
	identities, err := resolveIdentities(items)
	if err != nil {
		return batch{}, err
	}

	var toRegister []int
	if includeRegistrations {
		for i, id := range identities {
			known, err := p.isKnownRegistered(ctx, id.TrackID)
			if err != nil {
				return batch{}, err
			}
			if !known {
				toRegister = append(toRegister, i)
			}
		}
	}

	trackIDs := make([][32]byte, len(items))
	timestamps := make([]uint64, len(items))
	for i := range items {
		trackIDs[i] = identities[i].TrackID
		timestamps[i] = items[i].PlayedAtSec
	}

	var inner []byte
	if len(toRegister) == 0 {
		inner, err = chain.PackScrobbleBatch(p.cfg.Owner, trackIDs, timestamps)
	} else {
		reg := chain.RegistrationBatch{
			User:       p.cfg.Owner,
			TrackIDs:   trackIDs,
			Timestamps: timestamps,
		}
		for _, i := range toRegister {
			reg.Kinds = append(reg.Kinds, uint8(identities[i].Kind))
			reg.Payloads = append(reg.Payloads, identities[i].Payload)
			reg.Titles = append(reg.Titles, items[i].Title)
			reg.Artists = append(reg.Artists, items[i].Artist)
			reg.Albums = append(reg.Albums, items[i].Album)
			reg.Durations = append(reg.Durations, items[i].DurationSec)
		}
		inner, err = chain.PackRegisterAndScrobbleBatch(reg)
	}
	if err != nil {
		return batch{}, fmt.Errorf("pack inner calldata: %w", err)
	}

	addrs := p.reader.Addresses()
	callData, err := chain.PackExecute(addrs.Registry, big.NewInt(0), inner)
	if err != nil {
		return batch{}, fmt.Errorf("pack execute: %w", err)
	}

	sender, err := p.reader.SmartAccountAddress(ctx, p.cfg.Owner, big.NewInt(0))
	if err != nil {
		return batch{}, err
	}

	deployed, err := p.reader.IsDeployed(ctx, sender)
	if err != nil {
		return batch{}, err
	}
	initCode := []byte{}
	if !deployed {
		createCall, err := chain.PackCreateAccount(p.cfg.Owner, big.NewInt(0))
		if err != nil {
			return batch{}, fmt.Errorf("pack createAccount: %w", err)
		}
		initCode = append(addrs.Factory.Bytes(), createCall...)
	}

	nonce, err := p.reader.Nonce(ctx, sender, big.NewInt(0))
	if err != nil {
		return batch{}, err
	}

	b := batch{
		op: chain.PackedUserOperation{
			Sender:             sender,
			Nonce:              nonce,
			InitCode:           initCode,
			CallData:           callData,
			AccountGasLimits:   PackUint128Pair(verificationGasLimit, callGasLimit),
			PreVerificationGas: big.NewInt(preVerificationGas),
			GasFees:            PackUint128Pair(maxPriorityFeePerGas, maxFeePerGas),
			PaymasterAndData:   []byte{},
			Signature:          []byte{},
		},
		identities: identities,
	}
	for _, i := range toRegister {
		b.registered = append(b.registered, identities[i].TrackID)
	}
	return b, nil
}

// isKnownRegistered consults the local cache first, then the chain.
// A failed chain check degrades to "unregistered": the worst case is a
// redundant registration entry, which the retry path tolerates.
func (p *Pipeline) isKnownRegistered(ctx context.Context, trackID common.Hash) (bool, error) {
	if p.regCache != nil {
		known, err := p.regCache.IsRegistered(ctx, trackID.Hex())
		if err != nil {
			return false, fmt.Errorf("registration cache: %w", err)
		}
		if known {
			return true, nil
		}
	}

	registered, err := p.reader.IsRegistered(ctx, trackID)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("trackId", trackID.Hex()).
			Msg("Registry check failed, assuming unregistered")
		return false, nil
	}
	if registered && p.regCache != nil {
		if err := p.regCache.MarkRegistered(ctx, trackID.Hex()); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to cache registration")
		}
	}
	return registered, nil
}
