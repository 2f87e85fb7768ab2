package discovery

import (
	"context"
	"time"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// AdvertiseBorderAgent starts advertising the border agent service,
	// replacing a previous advertisement.
	AdvertiseBorderAgent(ctx context.Context, info *BorderAgentInfo) error

	// UpdateBorderAgent replaces the TXT records of the running
	// advertisement. It returns ErrNotAdvertising if there is none.
	UpdateBorderAgent(info *BorderAgentInfo) error

	// StopBorderAgent stops the advertisement.
	StopBorderAgent() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       DefaultTTL,
	}
}
