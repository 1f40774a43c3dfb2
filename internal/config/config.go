package config

import (
	"encoding/json"
	"os"
	"time"
)

// CONFIG STRUCTURE — engine-wide knobs, not HTTP-server settings
type Config struct {
	DefaultTimeoutMs   int    `json:"defaultTimeoutMs"`
	MaxFlowVarScopes   int    `json:"maxFlowVarScopes"`
	MaxParallelPages   int    `json:"maxParallelPages"`
	CloudflareWaitMs   int    `json:"cloudflareWaitMs"`
	UserAgent          string `json:"userAgent"`
	MaxDebugFieldSample int   `json:"maxDebugFieldSample"`
}

// LOAD CONFIG FROM FILE
func LoadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := json.Unmarshal(file, &raw); err != nil {
		return nil, err
	}

	config := GetDefaultConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, err
	}

	return config, nil
}

// SAVE CONFIG TO FILE
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GET DEFAULT CONFIG
func GetDefaultConfig() *Config {
	return &Config{
		DefaultTimeoutMs:    int(15 * time.Second / time.Millisecond),
		MaxFlowVarScopes:    5000,
		MaxParallelPages:    3,
		CloudflareWaitMs:    int(15 * time.Second / time.Millisecond),
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		MaxDebugFieldSample: 5,
	}
}
