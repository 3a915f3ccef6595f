package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// signDigest produces a raw signature over digest with the given key,
// optionally mangled into high-S form.
func signDigest(t *testing.T, key *ecdsa.PrivateKey, digest [32]byte, highS bool) Signature {
	t.Helper()

	raw, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.RecoveryID = raw[64]

	if highS {
		s := new(big.Int).SetBytes(sig.S[:])
		s.Sub(crypto.S256().Params().N, s)
		s.FillBytes(sig.S[:])
		sig.RecoveryID ^= 1
	}
	return sig
}

func TestCanonicalizeLowSUnchanged(t *testing.T) {
	key, _ := crypto.GenerateKey()
	digest := crypto.Keccak256Hash([]byte("payload"))

	var d [32]byte
	copy(d[:], digest[:])
	sig := signDigest(t, key, d, false)

	if got := Canonicalize(sig); got != sig {
		t.Error("low-S signature must pass through unchanged")
	}
}

func TestCanonicalizeHighS(t *testing.T) {
	key, _ := crypto.GenerateKey()
	digest := crypto.Keccak256Hash([]byte("payload"))

	var d [32]byte
	copy(d[:], digest[:])
	low := signDigest(t, key, d, false)
	high := signDigest(t, key, d, true)

	got := Canonicalize(high)
	if got.S != low.S {
		t.Errorf("expected s' = n - s: got %x, want %x", got.S, low.S)
	}
	if got.RecoveryID != low.RecoveryID {
		t.Errorf("expected recovery parity flip: got %d, want %d", got.RecoveryID, low.RecoveryID)
	}

	// Both forms recover the identical address once paired with their
	// respective recovery ids.
	addr := crypto.PubkeyToAddress(key.PublicKey)
	for _, sig := range []Signature{low, got} {
		recid, err := SelectRecoveryID(d, sig, addr)
		if err != nil {
			t.Fatalf("SelectRecoveryID: %v", err)
		}
		if recid != sig.RecoveryID {
			t.Errorf("selected recid %d, signature says %d", recid, sig.RecoveryID)
		}
	}
}

func TestSelectRecoveryIDIgnoresReportedValue(t *testing.T) {
	key, _ := crypto.GenerateKey()
	digest := crypto.Keccak256Hash([]byte("payload"))

	var d [32]byte
	copy(d[:], digest[:])
	sig := signDigest(t, key, d, false)
	want := sig.RecoveryID

	// The service reports garbage; selection is driven by recovery
	// alone.
	sig.RecoveryID = 3

	recid, err := SelectRecoveryID(d, sig, crypto.PubkeyToAddress(key.PublicKey))
	if err != nil {
		t.Fatalf("SelectRecoveryID: %v", err)
	}
	if recid != want {
		t.Errorf("selected recid %d, want %d", recid, want)
	}
}

func TestSelectRecoveryIDNoMatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	digest := crypto.Keccak256Hash([]byte("payload"))

	var d [32]byte
	copy(d[:], digest[:])
	sig := signDigest(t, key, d, false)

	_, err := SelectRecoveryID(d, sig, common.HexToAddress("0x000000000000000000000000000000000000dead"))
	if !errors.Is(err, ErrNoRecoveryCandidate) {
		t.Errorf("expected ErrNoRecoveryCandidate, got %v", err)
	}
}

type fakeSigner struct {
	key   *ecdsa.PrivateKey
	highS bool
}

func (f *fakeSigner) Sign(_ context.Context, digest [32]byte) (Signature, error) {
	raw, err := crypto.Sign(digest[:], f.key)
	if err != nil {
		return Signature{}, err
	}
	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	// Report an untrustworthy recovery id on purpose.
	sig.RecoveryID = 2
	if f.highS {
		s := new(big.Int).SetBytes(sig.S[:])
		s.Sub(crypto.S256().Params().N, s)
		s.FillBytes(sig.S[:])
	}
	return sig, nil
}

func TestSignUserOpHash(t *testing.T) {
	for _, highS := range []bool{false, true} {
		key, _ := crypto.GenerateKey()
		addr := crypto.PubkeyToAddress(key.PublicKey)
		userOpHash := crypto.Keccak256Hash([]byte("userop"))

		out, err := SignUserOpHash(context.Background(), &fakeSigner{key: key, highS: highS}, userOpHash, addr)
		if err != nil {
			t.Fatalf("SignUserOpHash(highS=%v): %v", highS, err)
		}
		if len(out) != 65 {
			t.Fatalf("expected 65-byte signature, got %d", len(out))
		}
		if out[64] != 27 && out[64] != 28 {
			t.Errorf("expected v in {27,28}, got %d", out[64])
		}

		// The validator recovers against the prefixed digest.
		prefixed := accounts.TextHash(userOpHash.Bytes())
		raw := make([]byte, 65)
		copy(raw, out)
		raw[64] -= 27
		pub, err := crypto.SigToPub(prefixed, raw)
		if err != nil {
			t.Fatalf("SigToPub: %v", err)
		}
		if got := crypto.PubkeyToAddress(*pub); got != addr {
			t.Errorf("recovered %s, want %s", got, addr)
		}

		// Low-S is always enforced.
		s := new(big.Int).SetBytes(out[32:64])
		if s.Cmp(new(big.Int).Rsh(crypto.S256().Params().N, 1)) > 0 {
			t.Error("assembled signature has high S")
		}
	}
}

func TestSignUserOpHashWrongKey(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	userOpHash := crypto.Keccak256Hash([]byte("userop"))

	_, err := SignUserOpHash(context.Background(), &fakeSigner{key: key}, userOpHash, crypto.PubkeyToAddress(other.PublicKey))
	if !errors.Is(err, ErrNoRecoveryCandidate) {
		t.Errorf("expected ErrNoRecoveryCandidate, got %v", err)
	}
}

func TestRemoteSign(t *testing.T) {
	key, _ := crypto.GenerateKey()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sign" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Digest string `json:"digest"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		digest, err := hexutil.Decode(req.Digest)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		raw, err := crypto.Sign(digest, key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		recid := raw[64]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"r":          hexutil.Encode(raw[:32]),
			"s":          hexutil.Encode(raw[32:64]),
			"recoveryId": recid,
		})
	}))
	defer server.Close()

	remote := NewRemote(server.URL, "test-key")
	userOpHash := crypto.Keccak256Hash([]byte("userop"))

	out, err := SignUserOpHash(context.Background(), remote, userOpHash, crypto.PubkeyToAddress(key.PublicKey))
	if err != nil {
		t.Fatalf("SignUserOpHash via remote: %v", err)
	}
	if len(out) != 65 {
		t.Errorf("expected 65-byte signature, got %d", len(out))
	}
}

func TestRemoteSignServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "key unavailable"})
	}))
	defer server.Close()

	remote := NewRemote(server.URL, "")
	_, err := remote.Sign(context.Background(), [32]byte{1})
	if err == nil {
		t.Fatal("expected error")
	}
}
