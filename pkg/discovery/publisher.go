package discovery

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"

	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Advertiser publishes the records. Required.
	Advertiser Advertiser

	// Port is the commissioner-facing UDP port.
	Port uint16

	// Version is advertised in tv.
	Version string

	// NodeSuffix is appended to the network name to form the instance name.
	NodeSuffix string

	// Dataset returns the Active dataset the records describe.
	Dataset func() meshcop.Dataset

	// Role reports the node role.
	Role func() meshcop.DeviceRole

	// CommissionerActive reports whether a commissioner session exists.
	CommissionerActive func() bool

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// Publisher keeps the border agent advertisement in step with the node
// state. It must be used from the stack's event loop.
type Publisher struct {
	config  PublisherConfig
	logger  *slog.Logger
	running bool
	last    *BorderAgentInfo
}

// NewPublisher creates a Publisher. Nil callbacks report an empty dataset,
// a disabled role and no commissioner.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.Dataset == nil {
		cfg.Dataset = func() meshcop.Dataset { return meshcop.Dataset{} }
	}
	if cfg.Role == nil {
		cfg.Role = func() meshcop.DeviceRole { return meshcop.RoleDisabled }
	}
	if cfg.CommissionerActive == nil {
		cfg.CommissionerActive = func() bool { return false }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{config: cfg, logger: logger}
}

// Start publishes the current state.
func (p *Publisher) Start(ctx context.Context) error {
	info := p.Info()
	if err := p.config.Advertiser.AdvertiseBorderAgent(ctx, info); err != nil {
		return err
	}
	p.running = true
	p.last = info
	p.logger.Info("advertising border agent", "instance", info.InstanceName, "port", info.Port)
	return nil
}

// Refresh re-publishes the records if they changed since the last call.
func (p *Publisher) Refresh() {
	if !p.running {
		return
	}
	info := p.Info()
	if p.last != nil && sameInfo(p.last, info) {
		return
	}
	if err := p.config.Advertiser.UpdateBorderAgent(info); err != nil {
		p.logger.Warn("failed to update border agent advertisement", "error", err)
		return
	}
	p.last = info
}

// Stop withdraws the advertisement.
func (p *Publisher) Stop() error {
	if !p.running {
		return nil
	}
	p.running = false
	p.last = nil
	return p.config.Advertiser.StopBorderAgent()
}

// Info derives the advertised records from the node state.
func (p *Publisher) Info() *BorderAgentInfo {
	d := p.config.Dataset()
	role := p.config.Role()

	info := &BorderAgentInfo{
		Port:    p.config.Port,
		Version: p.config.Version,
		State: StateBitmap{
			Leader:             role == meshcop.RoleLeader,
			CommissionerActive: p.config.CommissionerActive(),
		},
	}

	name, hasName := d.NetworkName()
	xp, hasXP := d.ExtendedPanID()
	ts, hasTS := d.ActiveTimestamp()
	if hasName && hasXP && hasTS {
		info.Commissioned = true
		info.NetworkName = name
		info.ExtendedPanID = xp
		info.ActiveTimestamp = binary.BigEndian.Uint64(ts.Bytes())
		info.State.ConnectionMode = ConnectionModePSKc
	}

	switch {
	case role.IsAttached():
		info.State.Interface = InterfaceActive
	case info.Commissioned:
		info.State.Interface = InterfaceInitialized
	default:
		info.State.Interface = InterfaceNotInitialized
	}

	info.InstanceName = InstanceName(info.NetworkName, p.config.NodeSuffix)
	return info
}

func sameInfo(a, b *BorderAgentInfo) bool {
	return a.InstanceName == b.InstanceName &&
		a.Port == b.Port &&
		a.Version == b.Version &&
		a.NetworkName == b.NetworkName &&
		bytes.Equal(a.ExtendedPanID, b.ExtendedPanID) &&
		a.ActiveTimestamp == b.ActiveTimestamp &&
		a.Commissioned == b.Commissioned &&
		a.State == b.State
}
