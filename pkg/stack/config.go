package stack

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/discovery"
	"github.com/mesh-protocol/meshcop-go/pkg/keymgr"
	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
	"github.com/mesh-protocol/meshcop-go/pkg/version"
)

// Defaults.
const (
	DefaultMeshLocalPrefix = "fd00:db8::/64"
	DefaultSyncInterval    = 30 * time.Second
)

// ErrInvalidConfig wraps every configuration violation.
var ErrInvalidConfig = errors.New("stack: invalid configuration")

// Config configures an Instance.
type Config struct {
	// NodeID identifies the instance in logs and protocol captures.
	// Generated when empty.
	NodeID string `yaml:"nodeId"`

	// Role is the initial role: disabled, detached, child, router or leader.
	Role string `yaml:"role"`

	// RLOC16 is the node's 16-bit locator.
	RLOC16 uint16 `yaml:"rloc16"`

	// MeshLocalPrefix is used until an Active dataset provides one.
	MeshLocalPrefix string `yaml:"meshLocalPrefix"`

	// ListenAddress is the UDP address management messages are received on.
	ListenAddress string `yaml:"listen"`

	// LeaderAddress is the UDP address the leader anycast locator is routed
	// to. Non-leader nodes need it to reach the leader.
	LeaderAddress string `yaml:"leader"`

	// DataDir holds the settings database. Empty keeps settings in memory.
	DataDir string `yaml:"dataDir"`

	// DelayTimerMinimal is the floor for Pending dataset delays.
	DelayTimerMinimal time.Duration `yaml:"delayTimerMinimal"`

	// KeyRotationHours and GuardTimeHours configure key rotation.
	KeyRotationHours uint32 `yaml:"keyRotationHours"`
	GuardTimeHours   uint32 `yaml:"guardTimeHours"`

	// SyncInterval is how often a non-leader fetches the datasets from the
	// leader. Zero disables syncing.
	SyncInterval time.Duration `yaml:"syncInterval"`

	// ProtocolLog is the path of the protocol capture file. Empty disables it.
	ProtocolLog string `yaml:"protocolLog"`

	BorderAgent BorderAgentConfig `yaml:"borderAgent"`
	Network     NetworkConfig     `yaml:"network"`

	// Endpoint replaces the UDP socket, e.g. with a coap.Loopback endpoint.
	Endpoint coap.Endpoint `yaml:"-"`

	// Platform replaces the wall clock with a manual one.
	Platform *timer.ManualPlatform `yaml:"-"`

	// Advertiser replaces the mDNS advertiser.
	Advertiser discovery.Advertiser `yaml:"-"`

	// ProtocolLogger receives protocol capture events in addition to the
	// ProtocolLog file.
	ProtocolLogger log.Logger `yaml:"-"`

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger `yaml:"-"`
}

// BorderAgentConfig configures the mDNS advertisement.
type BorderAgentConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface"`
	Version   string `yaml:"version"`
}

// NetworkConfig describes the network a leader forms when it starts
// without an Active dataset. An empty Name skips forming.
type NetworkConfig struct {
	Name          string `yaml:"name"`
	Channel       uint16 `yaml:"channel"`
	PanID         uint16 `yaml:"panId"`
	ExtendedPanID string `yaml:"extendedPanId"`
	NetworkKey    string `yaml:"networkKey"`
	PSKc          string `yaml:"pskc"`
}

// DefaultConfig returns a leader configuration listening on the management
// port of all interfaces.
func DefaultConfig() Config {
	return Config{
		Role:              meshcop.RoleLeader.String(),
		MeshLocalPrefix:   DefaultMeshLocalPrefix,
		ListenAddress:     netip.AddrPortFrom(netip.IPv6Unspecified(), meshcop.ManagementPort).String(),
		DelayTimerMinimal: time.Duration(meshcop.DelayTimerMinimal) * time.Millisecond,
		KeyRotationHours:  keymgr.DefaultKeyRotationHours,
		GuardTimeHours:    keymgr.DefaultGuardTimeHours,
		SyncInterval:      DefaultSyncInterval,
		BorderAgent: BorderAgentConfig{
			Version: version.Current,
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if _, ok := meshcop.ParseDeviceRole(c.Role); !ok {
		add("unknown role %q", c.Role)
	}
	if p, err := netip.ParsePrefix(c.MeshLocalPrefix); err != nil || p.Bits() != 64 || !p.Addr().Is6() {
		add("mesh-local prefix %q must be an IPv6 /64", c.MeshLocalPrefix)
	}
	if c.Endpoint == nil {
		if _, err := netip.ParseAddrPort(c.ListenAddress); err != nil {
			add("listen address %q: %v", c.ListenAddress, err)
		}
	}
	if c.LeaderAddress != "" {
		if _, err := netip.ParseAddrPort(c.LeaderAddress); err != nil {
			add("leader address %q: %v", c.LeaderAddress, err)
		}
	}
	if c.DelayTimerMinimal <= 0 || timer.DurationToMsec(c.DelayTimerMinimal) > meshcop.DelayTimerDefault {
		add("delay timer minimal %s must be in (0, %s]", c.DelayTimerMinimal,
			time.Duration(meshcop.DelayTimerDefault)*time.Millisecond)
	}
	if c.KeyRotationHours < keymgr.MinKeyRotationHours || c.KeyRotationHours > keymgr.MaxKeyRotationHours {
		add("key rotation %dh out of range [%d, %d]", c.KeyRotationHours,
			keymgr.MinKeyRotationHours, keymgr.MaxKeyRotationHours)
	}
	if c.GuardTimeHours > keymgr.MaxKeyRotationHours {
		add("guard time %dh exceeds %d", c.GuardTimeHours, keymgr.MaxKeyRotationHours)
	}
	if c.SyncInterval < 0 {
		add("negative sync interval")
	}
	if c.BorderAgent.Version != "" {
		if _, err := version.Parse(c.BorderAgent.Version); err != nil {
			add("border agent: %v", err)
		}
	}

	errs = multierr.Append(errs, c.Network.validate())
	return errs
}

func (n *NetworkConfig) validate() error {
	if n.Name == "" {
		return nil
	}

	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: network: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if len(n.Name) > meshcop.MaxNetworkNameLength {
		add("name longer than %d bytes", meshcop.MaxNetworkNameLength)
	}
	if err := (meshcop.Channel{Number: n.Channel}).Validate(); err != nil {
		add("%v", err)
	}
	if n.PanID == 0xffff {
		add("broadcast PAN ID")
	}
	if b, err := hex.DecodeString(n.ExtendedPanID); err != nil || len(b) != 8 {
		add("extended PAN ID must be 8 hex bytes")
	}
	if b, err := hex.DecodeString(n.NetworkKey); err != nil || len(b) != meshcop.NetworkKeySize {
		add("network key must be %d hex bytes", meshcop.NetworkKeySize)
	}
	if n.PSKc != "" {
		if b, err := hex.DecodeString(n.PSKc); err != nil || len(b) != 16 {
			add("PSKc must be 16 hex bytes")
		}
	}
	return errs
}

// Dataset builds the Active dataset described by n at the given timestamp.
// n must have been validated.
func (n *NetworkConfig) Dataset(ts meshcop.Timestamp, prefix netip.Prefix) meshcop.Dataset {
	xp, _ := hex.DecodeString(n.ExtendedPanID)
	key, _ := hex.DecodeString(n.NetworkKey)

	var d meshcop.Dataset
	d.SetTimestamp(meshcop.TLVActiveTimestamp, ts)
	d.Set(meshcop.TLVChannel, meshcop.Channel{Number: n.Channel}.Bytes())
	d.Set(meshcop.TLVPanID, meshcop.Uint16Bytes(n.PanID))
	d.Set(meshcop.TLVExtendedPanID, xp)
	d.Set(meshcop.TLVNetworkName, []byte(n.Name))
	d.Set(meshcop.TLVMeshLocalPrefix, meshcop.MeshLocalPrefixBytes(prefix))
	d.Set(meshcop.TLVNetworkKey, key)
	d.Set(meshcop.TLVSecurityPolicy, meshcop.DefaultSecurityPolicy().Bytes())
	if pskc, err := hex.DecodeString(n.PSKc); err == nil && len(pskc) > 0 {
		d.Set(meshcop.TLVPSKc, pskc)
	}
	return d
}
