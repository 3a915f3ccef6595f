package aa

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Config holds client configuration.
type Config struct {
	GatewayURL string       // Required: sponsor gateway base URL
	APIKey     string       // Optional: bearer token for the gateway
	HTTPClient *http.Client // Optional: HTTP client (defaults to http.DefaultClient)
	Logger     Logger       // Optional: logger interface for debug logging
}

// Logger is an optional interface for logging.
type Logger interface {
	// Debugf logs a debug message with format and arguments.
	Debugf(format string, args ...interface{})
}

// Client is the main entry point for sponsor gateway operations.
//
// The gateway health result is cached per client instance so that
// repeated submissions do not re-probe the gateway; independent
// pipelines each own their cache and can reset it explicitly.
type Client struct {
	gatewayURL string
	apiKey     string
	httpClient *http.Client
	logger     Logger

	healthMu sync.Mutex
	health   *Health
}

// NewClient creates a new sponsor gateway client.
//
// Returns an error if GatewayURL is missing.
func NewClient(cfg Config) (*Client, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("aa: GatewayURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// ResetHealthCache drops the cached gateway health result. The next
// call that needs it re-probes the gateway.
func (c *Client) ResetHealthCache() {
	c.healthMu.Lock()
	c.health = nil
	c.healthMu.Unlock()
}

// logDebugf logs a debug message if a logger is configured.
func (c *Client) logDebugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}
