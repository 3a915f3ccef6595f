package daemon

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const unitTemplate = `[Unit]
Description=On-chain music scrobbler
After=network-online.target mpd.service
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.BinaryPath}} daemon
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

// UnitConfig holds the configuration for generating a systemd unit
type UnitConfig struct {
	BinaryPath string
}

// GenerateUnit renders the systemd user unit for the daemon
func GenerateUnit(config UnitConfig) (string, error) {
	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return "", fmt.Errorf("failed to execute unit template: %w", err)
	}

	return buf.String(), nil
}

// GetUnitPath returns the path where the unit should be installed
func GetUnitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".config", "systemd", "user", "scrobbled.service"), nil
}
