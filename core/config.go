package core

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Name      string        `koanf:"name" mapstructure:"name"`
	NetworkID string        `koanf:"network_id" mapstructure:"network_id"`
	ClaimTTL  time.Duration `koanf:"claim_ttl" mapstructure:"claim_ttl"`
}

func DefaultConfig() Config {
	return Config{
		Name:     "xbridge",
		ClaimTTL: 10 * time.Minute,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("core: name is required")
	}
	if strings.Contains(c.NetworkID, "/") {
		return fmt.Errorf("core: network_id %q is invalid", c.NetworkID)
	}
	if c.ClaimTTL < 0 {
		return fmt.Errorf("core: claim_ttl must not be negative")
	}
	return nil
}
