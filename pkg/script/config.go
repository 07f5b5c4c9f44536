package script

import (
	"fmt"
	"time"
)

// Security levels
const (
	SecurityLevelStrict     = "strict"
	SecurityLevelStandard   = "standard"
	SecurityLevelPermissive = "permissive"
)

// Config controls how scripts are executed
type Config struct {
	// Timeout is the maximum execution time of one invocation
	Timeout time.Duration

	// SecurityLevel defines sandbox restrictions (strict, standard, permissive)
	SecurityLevel string

	// MaxCallStackSize limits JavaScript recursion depth; 0 keeps the goja default
	MaxCallStackSize int
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{
		Timeout:          5 * time.Second,
		SecurityLevel:    SecurityLevelStandard,
		MaxCallStackSize: 1024,
	}
}

// ApplyDefaults fills zero fields from DefaultConfig
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = defaults.SecurityLevel
	}
	if c.MaxCallStackSize < 0 {
		c.MaxCallStackSize = 0
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch c.SecurityLevel {
	case SecurityLevelStrict, SecurityLevelStandard, SecurityLevelPermissive:
	default:
		return fmt.Errorf("invalid security level %q", c.SecurityLevel)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}
