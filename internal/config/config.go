package config

import "time"

// Config is the engine process configuration. Values come from config.yaml,
// AUTHZ_-prefixed environment variables, and defaults, in that priority
// order.
type Config struct {
	Environment string      `mapstructure:"environment"`
	LogLevel    string      `mapstructure:"log_level"`
	Cache       CacheConfig `mapstructure:"cache"`
	Authz       AuthzConfig `mapstructure:"authz"`
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Backend is "memory" (instance-local, default) or "redis" (shared).
	Backend    string `mapstructure:"backend"`
	Addr       string `mapstructure:"addr"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TTLSeconds int    `mapstructure:"ttl"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// DefaultTTL returns the backend default TTL as a duration.
func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// AuthzConfig tunes the authorization engine itself.
type AuthzConfig struct {
	// ConfigDir holds the permission matrix and related JSON documents.
	ConfigDir string `mapstructure:"config_dir"`
	// WatchConfig enables hot reload of individual documents on file change.
	WatchConfig bool `mapstructure:"watch_config"`
	// TeamLimit is the maximum number of facility teams a non-administrator
	// user may belong to.
	TeamLimit int `mapstructure:"team_limit"`
	// Staleness windows, in seconds, for the three cached shapes.
	UserContextTTLSeconds int `mapstructure:"user_context_ttl"`
	DecisionTTLSeconds    int `mapstructure:"decision_ttl"`
	TeamsTTLSeconds       int `mapstructure:"teams_ttl"`
}

func (a AuthzConfig) UserContextTTL() time.Duration {
	return time.Duration(a.UserContextTTLSeconds) * time.Second
}

func (a AuthzConfig) DecisionTTL() time.Duration {
	return time.Duration(a.DecisionTTLSeconds) * time.Second
}

func (a AuthzConfig) TeamsTTL() time.Duration {
	return time.Duration(a.TeamsTTLSeconds) * time.Second
}
