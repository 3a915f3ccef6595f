package aa

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GetHealth fetches the gateway health report, using the per-client
// cache when populated. Use ResetHealthCache to force a re-probe.
func (c *Client) GetHealth(ctx context.Context) (Health, error) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	if c.health != nil {
		return *c.health, nil
	}

	var health Health
	if err := c.doJSON(ctx, KindConfig, http.MethodGet, "/health", nil, &health); err != nil {
		return Health{}, err
	}

	c.health = &health
	return health, nil
}

// CheckEntryPoint verifies that the gateway sponsors operations for
// the expected EntryPoint contract. A mismatch is fatal: operations
// built against the local EntryPoint would be rejected or, worse,
// sponsored against a different protocol deployment.
func (c *Client) CheckEntryPoint(ctx context.Context, entryPoint string) error {
	health, err := c.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("gateway health check failed: %w", err)
	}

	if !health.OK {
		return &Error{Kind: KindConfig, Detail: "gateway reports unhealthy"}
	}
	if !strings.EqualFold(strings.TrimSpace(health.EntryPoint), strings.TrimSpace(entryPoint)) {
		return ErrEntryPointMismatch
	}
	return nil
}

type quoteRequest struct {
	UserOp UserOperation `json:"userOp"`
}

// QuotePaymaster requests gas sponsorship for an unsigned operation.
// On success the returned paymasterAndData must be attached to the
// operation before hashing and signing.
func (c *Client) QuotePaymaster(ctx context.Context, op UserOperation) (PaymasterQuote, error) {
	var quote PaymasterQuote
	err := c.doJSON(ctx, KindQuote, http.MethodPost, "/quotePaymaster", quoteRequest{UserOp: op}, &quote)
	if err != nil {
		return PaymasterQuote{}, err
	}
	if quote.PaymasterAndData == "" || quote.PaymasterAndData == "0x" {
		return PaymasterQuote{}, &Error{Kind: KindQuote, Detail: "gateway returned empty paymasterAndData"}
	}
	return quote, nil
}

type sendRequest struct {
	UserOp     UserOperation `json:"userOp"`
	UserOpHash string        `json:"userOpHash"`
}

type sendResponse struct {
	UserOpHash string `json:"userOpHash"`
	Error      string `json:"error"`
	Detail     string `json:"detail"`
}

// SendUserOp relays a signed operation. A response carrying an error
// or detail field is a submission failure even under HTTP 200.
func (c *Client) SendUserOp(ctx context.Context, op UserOperation, userOpHash string) (SubmissionResult, error) {
	var resp sendResponse
	if err := c.doJSON(ctx, KindSubmission, http.MethodPost, "/sendUserOp", sendRequest{UserOp: op, UserOpHash: userOpHash}, &resp); err != nil {
		return SubmissionResult{}, err
	}

	if resp.Error != "" || resp.Detail != "" {
		detail := resp.Error
		if resp.Detail != "" {
			if detail != "" {
				detail += ": "
			}
			detail += resp.Detail
		}
		return SubmissionResult{}, &Error{Kind: KindSubmission, Detail: detail}
	}

	hash := resp.UserOpHash
	if hash == "" {
		hash = userOpHash
	}
	return SubmissionResult{UserOpHash: hash, Sender: op.Sender}, nil
}

type coverRequest struct {
	TrackID  string `json:"trackId"`
	CoverURL string `json:"coverUrl"`
}

// SubmitCover posts auxiliary cover art for a track. Best effort: the
// caller should never fail a scrobble submission on a cover error.
func (c *Client) SubmitCover(ctx context.Context, trackID, coverURL string) error {
	return c.doJSON(ctx, KindSubmission, http.MethodPost, "/trackCover", coverRequest{TrackID: trackID, CoverURL: coverURL}, nil)
}
