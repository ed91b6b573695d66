package config

import "fmt"

// validateConfig verifies the loaded configuration is internally consistent.
func validateConfig(config *Config) error {
	switch config.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be one of: memory, redis (got %q)", config.Cache.Backend)
	}

	if config.Cache.Backend == "redis" && config.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required for the redis backend")
	}

	if config.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	if config.Authz.ConfigDir == "" {
		return fmt.Errorf("authz.config_dir is required")
	}

	if config.Authz.TeamLimit <= 0 {
		return fmt.Errorf("authz.team_limit must be positive")
	}

	for name, ttl := range map[string]int{
		"authz.user_context_ttl": config.Authz.UserContextTTLSeconds,
		"authz.decision_ttl":     config.Authz.DecisionTTLSeconds,
		"authz.teams_ttl":        config.Authz.TeamsTTLSeconds,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}
