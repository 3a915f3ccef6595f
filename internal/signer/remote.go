package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Remote talks to a threshold signing service over HTTP. The service
// signs supplied digests without ever exposing the private key.
type Remote struct {
	url    string
	apiKey string
	client *http.Client
}

// NewRemote creates a Remote signer for the given endpoint. An empty
// apiKey sends no authorization header.
func NewRemote(url, apiKey string) *Remote {
	return &Remote{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		client: &http.Client{
			// Threshold signing is slow; allow for seconds-scale
			// latency but never hang.
			Timeout: 60 * time.Second,
		},
	}
}

type signRequest struct {
	Digest string `json:"digest"`
}

type signResponse struct {
	R          string `json:"r"`
	S          string `json:"s"`
	RecoveryID *byte  `json:"recoveryId"`
	Error      string `json:"error,omitempty"`
}

// Sign posts the digest to the service's sign endpoint. Diagnostics
// never include signature material.
func (r *Remote) Sign(ctx context.Context, digest [32]byte) (Signature, error) {
	body, err := json.Marshal(signRequest{Digest: hexutil.Encode(digest[:])})
	if err != nil {
		return Signature{}, fmt.Errorf("encode sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/sign", bytes.NewReader(body))
	if err != nil {
		return Signature{}, fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Signature{}, fmt.Errorf("sign request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Signature{}, fmt.Errorf("read sign response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Signature{}, fmt.Errorf("signing service returned status %d", resp.StatusCode)
	}

	var parsed signResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Signature{}, fmt.Errorf("parse sign response: %w", err)
	}
	if parsed.Error != "" {
		return Signature{}, fmt.Errorf("signing service error: %s", parsed.Error)
	}
	if parsed.R == "" || parsed.S == "" {
		return Signature{}, fmt.Errorf("signing service returned no signature")
	}

	var sig Signature
	if err := decodeWord(parsed.R, sig.R[:]); err != nil {
		return Signature{}, fmt.Errorf("invalid r: %w", err)
	}
	if err := decodeWord(parsed.S, sig.S[:]); err != nil {
		return Signature{}, fmt.Errorf("invalid s: %w", err)
	}
	if parsed.RecoveryID != nil {
		sig.RecoveryID = *parsed.RecoveryID
	}
	return sig, nil
}

// decodeWord parses a hex string of up to 32 bytes, right-aligning it
// into dst. Services differ on whether leading zeros are included.
func decodeWord(s string, dst []byte) error {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	raw, err := hexutil.Decode("0x" + s)
	if err != nil {
		return err
	}
	if len(raw) > len(dst) {
		return fmt.Errorf("value exceeds %d bytes", len(dst))
	}
	copy(dst[len(dst)-len(raw):], raw)
	return nil
}
