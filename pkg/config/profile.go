package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is an optional YAML deployment profile overriding parts of the
// environment configuration. Zero values leave the base config untouched.
type Profile struct {
	Name            string `yaml:"name"`
	StoreDriver     string `yaml:"store_driver"`
	DatabaseURL     string `yaml:"database_url"`
	SQLitePath      string `yaml:"sqlite_path"`
	RedisURL        string `yaml:"redis_url"`
	AnchorEndpoint  string `yaml:"anchor_endpoint"`
	GatewayBase     string `yaml:"gateway_base"`
	DuplicateWindow string `yaml:"duplicate_window"`
	RateLimitRPS    int    `yaml:"rate_limit_rps"`
	RateLimitBurst  int    `yaml:"rate_limit_burst"`
}

// LoadProfile parses a deployment profile from path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}
	return &profile, nil
}

// Apply overlays the profile's non-zero fields onto cfg.
func (p *Profile) Apply(cfg *Config) error {
	if p.StoreDriver != "" {
		cfg.StoreDriver = p.StoreDriver
	}
	if p.DatabaseURL != "" {
		cfg.DatabaseURL = p.DatabaseURL
	}
	if p.SQLitePath != "" {
		cfg.SQLitePath = p.SQLitePath
	}
	if p.RedisURL != "" {
		cfg.RedisURL = p.RedisURL
	}
	if p.AnchorEndpoint != "" {
		cfg.AnchorEndpoint = p.AnchorEndpoint
	}
	if p.GatewayBase != "" {
		cfg.GatewayBase = p.GatewayBase
	}
	if p.DuplicateWindow != "" {
		d, err := time.ParseDuration(p.DuplicateWindow)
		if err != nil {
			return fmt.Errorf("profile duplicate_window: %w", err)
		}
		cfg.DuplicateWindow = d
	}
	if p.RateLimitRPS > 0 {
		cfg.RateLimitRPS = p.RateLimitRPS
	}
	if p.RateLimitBurst > 0 {
		cfg.RateLimitBurst = p.RateLimitBurst
	}
	return nil
}
