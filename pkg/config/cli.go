package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultCLIAPIBase = "http://localhost:5000"

// CLIConfig is persisted by the netwatch CLI between invocations.
type CLIConfig struct {
	APIBaseURL    string `json:"api_base_url"`
	DashboardURL  string `json:"dashboard_url,omitempty"`
	OperatorToken string `json:"operator_token,omitempty"`
}

// CLIConfigPath returns ~/.netwatch/config.json.
func CLIConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".netwatch", "config.json"), nil
}

// LoadCLIConfig reads the CLI config file at path, then applies
// NETWATCH_API_URL and NETWATCH_OPERATOR_TOKEN overrides. A missing file is
// not an error.
func LoadCLIConfig(path string) (CLIConfig, error) {
	LoadDotEnv()
	var cfg CLIConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return CLIConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return CLIConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	if v := strings.TrimSpace(GetString("NETWATCH_API_URL", "")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(GetString("NETWATCH_OPERATOR_TOKEN", "")); v != "" {
		cfg.OperatorToken = v
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaultCLIAPIBase
	}
	return cfg, nil
}

// SaveCLIConfig writes cfg to path with user-only permissions.
func SaveCLIConfig(path string, cfg CLIConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
