package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
	name   string
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{config: config}
}

// getInterfaces returns the network interfaces to use for advertising.
// Returns nil to use all interfaces.
func (a *MDNSAdvertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// AdvertiseBorderAgent registers the border agent service.
func (a *MDNSAdvertiser) AdvertiseBorderAgent(ctx context.Context, info *BorderAgentInfo) error {
	if err := ValidateInstanceName(info.InstanceName); err != nil {
		return err
	}
	if info.Port == 0 {
		return fmt.Errorf("%w: port", ErrMissingRequired)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.InstanceName,
		ServiceTypeBorderAgent,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(EncodeBorderAgentTXT(info)),
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register border agent service: %w", err)
	}

	a.server = server
	a.name = info.InstanceName
	return nil
}

// UpdateBorderAgent updates TXT records of the running advertisement. A
// changed instance name needs a fresh registration.
func (a *MDNSAdvertiser) UpdateBorderAgent(info *BorderAgentInfo) error {
	a.mu.Lock()
	if a.server == nil {
		a.mu.Unlock()
		return ErrNotAdvertising
	}
	if info.InstanceName != a.name {
		a.mu.Unlock()
		return a.AdvertiseBorderAgent(context.Background(), info)
	}
	defer a.mu.Unlock()

	a.server.SetText(TXTRecordsToStrings(EncodeBorderAgentTXT(info)))
	return nil
}

// StopBorderAgent stops the advertisement.
func (a *MDNSAdvertiser) StopBorderAgent() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	a.server.Shutdown()
	a.server = nil
	a.name = ""
	return nil
}

// Ensure MDNSAdvertiser implements Advertiser interface.
var _ Advertiser = (*MDNSAdvertiser)(nil)
