// Package signer obtains ECDSA signatures over UserOperation hashes
// from an external signing service and canonicalizes them into the
// 65-byte r||s||v form the smart account's validator expects.
//
// The signing service is treated as unreliable: its reported recovery
// id is never trusted. Instead every candidate recovery id is checked
// by running public-key recovery locally and keeping the one that
// reproduces the expected signer address.
package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature is the raw output of the signing service. RecoveryID is
// advisory only.
type Signature struct {
	R          [32]byte
	S          [32]byte
	RecoveryID byte
}

// Signer produces a signature over a 32-byte digest. Implementations
// must apply bounded timeouts; latency is seconds-scale and unbounded
// at the service side.
type Signer interface {
	Sign(ctx context.Context, digest [32]byte) (Signature, error)
}

// ErrNoRecoveryCandidate is returned when no recovery id reproduces
// the expected signer address. The signature is unusable.
var ErrNoRecoveryCandidate = errors.New("signer: no recovery id candidate matches expected address")

var (
	curveN     = crypto.S256().Params().N
	curveHalfN = new(big.Int).Rsh(curveN, 1)
)

// Canonicalize enforces low-S form. If s > n/2 it is replaced by n - s
// and the recovery parity flips. Signatures already in low-S form are
// returned unchanged.
func Canonicalize(sig Signature) Signature {
	s := new(big.Int).SetBytes(sig.S[:])
	if s.Cmp(curveHalfN) <= 0 {
		return sig
	}

	s.Sub(curveN, s)
	out := Signature{R: sig.R, RecoveryID: sig.RecoveryID ^ 1}
	s.FillBytes(out.S[:])
	return out
}

// SelectRecoveryID finds the recovery id in [0,4) whose recovered
// public key hashes to expected. Exactly one candidate can match for a
// valid (digest, address) pair.
func SelectRecoveryID(digest [32]byte, sig Signature, expected common.Address) (byte, error) {
	raw := make([]byte, 65)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])

	for candidate := byte(0); candidate < 4; candidate++ {
		raw[64] = candidate
		pub, err := crypto.SigToPub(digest[:], raw)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == expected {
			return candidate, nil
		}
	}

	return 0, ErrNoRecoveryCandidate
}

// SignUserOpHash requests a signature over the EIP-191 prefixed
// userOpHash and returns the canonical 65-byte r||s||v signature with
// v in {27, 28}. The prefixed digest is what the smart account's
// validator recovers against.
func SignUserOpHash(ctx context.Context, s Signer, userOpHash common.Hash, expected common.Address) ([]byte, error) {
	var digest [32]byte
	copy(digest[:], accounts.TextHash(userOpHash.Bytes()))

	sig, err := s.Sign(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("signing service: %w", err)
	}

	sig = Canonicalize(sig)
	recid, err := SelectRecoveryID(digest, sig, expected)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 65)
	copy(out[:32], sig.R[:])
	copy(out[32:64], sig.S[:])
	out[64] = recid + 27
	return out, nil
}
