package blockchain

import (
	"fmt"
	"time"
)

const (
	DefaultSendTimeout    = 30 * time.Second
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Config is everything the campaign registry needs to sign and submit.
// RPCURL, PrivateKey and ContractAddress are required; there is no default
// contract address.
type Config struct {
	RPCURL          string
	PrivateKey      string // hex, optional 0x prefix
	ContractAddress string
	ChainID         int64 // 0 queries the node

	SendTimeout    time.Duration
	ConfirmTimeout time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Validate checks the required fields without touching the network.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL is required", ErrConfiguration)
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("%w: signing key is required", ErrConfiguration)
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("%w: contract address is required", ErrConfiguration)
	}
	if _, err := ParseAddress(c.ContractAddress); err != nil {
		return fmt.Errorf("%w: contract address: %v", ErrConfiguration, err)
	}
	if c.ChainID < 0 {
		return fmt.Errorf("%w: chain id must not be negative", ErrConfiguration)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}
