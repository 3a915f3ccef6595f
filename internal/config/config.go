package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Defaults target the MegaETH testnet deployment.
const (
	DefaultRPCURL     = "https://carrot.megaeth.com/rpc"
	DefaultChainID    = 6342
	DefaultEntryPoint = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"
	DefaultFactory    = "0xB66BF4066F40b36Da0da34916799a069CBc79408"
	DefaultRegistry   = "0xBcD4EbBb964182ffC5EA03FF70761770a326Ccf1"
)

// Config holds application configuration
type Config struct {
	// Poll interval for the player poller (in seconds)
	PollInterval int

	// Tick interval for the session engine (in seconds)
	TickInterval int

	MPD     MPDConfig
	Chain   ChainConfig
	Gateway GatewayConfig
	Signer  SignerConfig
	Output  OutputConfig
}

// OutputConfig controls the "now" command's output
type OutputConfig struct {
	// Format is a Go template over the current track
	// Default: "{{.Artist}} - {{.Title}}"
	Format string

	// Width pads or truncates output to a fixed display width
	// (0 disables)
	Width int

	// Marquee scrolls output that exceeds Width
	Marquee          bool
	MarqueeSpeed     int
	MarqueeSeparator string
}

// MPDConfig holds MPD connection settings
type MPDConfig struct {
	Addr     string
	Password string
}

// ChainConfig holds RPC and contract addresses
type ChainConfig struct {
	RPCURL     string
	ChainID    uint64
	EntryPoint string
	Factory    string
	Registry   string

	// Owner is the EOA that owns the smart account
	Owner string
}

// GatewayConfig holds sponsorship gateway settings
type GatewayConfig struct {
	URL    string
	APIKey string
}

// SignerConfig holds remote signing service settings
type SignerConfig struct {
	URL   string
	Token string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	v.SetDefault("poll_interval", 3)
	v.SetDefault("tick_interval", 15)
	v.SetDefault("mpd.addr", "localhost:6600")
	v.SetDefault("chain.rpc_url", DefaultRPCURL)
	v.SetDefault("chain.chain_id", DefaultChainID)
	v.SetDefault("chain.entry_point", DefaultEntryPoint)
	v.SetDefault("chain.factory", DefaultFactory)
	v.SetDefault("chain.registry", DefaultRegistry)
	v.SetDefault("output.format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output.marquee_speed", 2)
	v.SetDefault("output.marquee_separator", "   ")

	// Read config file (optional - don't fail if missing)
	_ = v.ReadInConfig()

	v.SetEnvPrefix("SCROBBLED")
	v.AutomaticEnv()

	cfg := &Config{
		PollInterval: v.GetInt("poll_interval"),
		TickInterval: v.GetInt("tick_interval"),
		MPD: MPDConfig{
			Addr:     v.GetString("mpd.addr"),
			Password: v.GetString("mpd.password"),
		},
		Chain: ChainConfig{
			RPCURL:     v.GetString("chain.rpc_url"),
			ChainID:    v.GetUint64("chain.chain_id"),
			EntryPoint: v.GetString("chain.entry_point"),
			Factory:    v.GetString("chain.factory"),
			Registry:   v.GetString("chain.registry"),
			Owner:      v.GetString("chain.owner"),
		},
		Gateway: GatewayConfig{
			URL:    v.GetString("gateway.url"),
			APIKey: v.GetString("gateway.api_key"),
		},
		Signer: SignerConfig{
			URL:   v.GetString("signer.url"),
			Token: v.GetString("signer.token"),
		},
		Output: OutputConfig{
			Format:           v.GetString("output.format"),
			Width:            v.GetInt("output.width"),
			Marquee:          v.GetBool("output.marquee"),
			MarqueeSpeed:     v.GetInt("output.marquee_speed"),
			MarqueeSeparator: v.GetString("output.marquee_separator"),
		},
	}

	return cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Chain.Owner == "" {
		return fmt.Errorf("chain.owner is required")
	}
	for name, addr := range map[string]string{
		"chain.owner":       c.Chain.Owner,
		"chain.entry_point": c.Chain.EntryPoint,
		"chain.factory":     c.Chain.Factory,
		"chain.registry":    c.Chain.Registry,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if c.Signer.URL == "" {
		return fmt.Errorf("signer.url is required")
	}
	return nil
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "scrobbled")

	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// QueuePath returns the path of the local scrobble queue database.
func QueuePath() string {
	return filepath.Join(getConfigDir(), "queue.db")
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configDir := getConfigDir()
	configFile := filepath.Join(configDir, "config.yaml")

	v.Set("poll_interval", c.PollInterval)
	v.Set("tick_interval", c.TickInterval)
	v.Set("mpd.addr", c.MPD.Addr)
	v.Set("mpd.password", c.MPD.Password)
	v.Set("chain.rpc_url", c.Chain.RPCURL)
	v.Set("chain.chain_id", c.Chain.ChainID)
	v.Set("chain.entry_point", c.Chain.EntryPoint)
	v.Set("chain.factory", c.Chain.Factory)
	v.Set("chain.registry", c.Chain.Registry)
	v.Set("chain.owner", c.Chain.Owner)
	v.Set("gateway.url", c.Gateway.URL)
	v.Set("gateway.api_key", c.Gateway.APIKey)
	v.Set("signer.url", c.Signer.URL)
	v.Set("signer.token", c.Signer.Token)
	v.Set("output.format", c.Output.Format)
	v.Set("output.width", c.Output.Width)
	v.Set("output.marquee", c.Output.Marquee)
	v.Set("output.marquee_speed", c.Output.MarqueeSpeed)
	v.Set("output.marquee_separator", c.Output.MarqueeSeparator)

	return v.WriteConfigAs(configFile)
}
