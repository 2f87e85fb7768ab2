package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypeBorderAgent is the service type of a border agent.
	ServiceTypeBorderAgent = "_meshcop._udp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// TXT record keys.
const (
	TXTKeyRecordVersion   = "rv"
	TXTKeyVersion         = "tv"
	TXTKeyNetworkName     = "nn"
	TXTKeyExtendedPanID   = "xp"
	TXTKeyStateBitmap     = "sb"
	TXTKeyActiveTimestamp = "at"
)

// RecordVersion is the TXT record format version.
const RecordVersion = "1"

// Timing constants.
const (
	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second

	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// MaxInstanceNameLen is the DNS label limit.
const MaxInstanceNameLen = 63

// Errors.
var (
	ErrNotAdvertising   = errors.New("discovery: not advertising")
	ErrMissingRequired  = errors.New("discovery: missing required TXT record")
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record")
)

// ConnectionMode is the connection mode field of the state bitmap.
type ConnectionMode uint8

// Connection modes.
const (
	ConnectionModeDisabled ConnectionMode = 0
	ConnectionModePSKc     ConnectionMode = 1
	ConnectionModePSKd     ConnectionMode = 2
)

// InterfaceStatus is the mesh interface field of the state bitmap.
type InterfaceStatus uint8

// Interface states.
const (
	InterfaceNotInitialized InterfaceStatus = 0
	InterfaceInitialized    InterfaceStatus = 1
	InterfaceActive         InterfaceStatus = 2
)

// State bitmap layout.
const (
	sbConnectionModeMask = 0x7
	sbInterfaceShift     = 3
	sbInterfaceMask      = 0x3 << sbInterfaceShift
	sbAvailabilityHigh   = 1 << 5
	sbCommissionerActive = 1 << 6
	sbLeader             = 1 << 9
)

// StateBitmap summarizes the border agent state in the sb record.
type StateBitmap struct {
	ConnectionMode     ConnectionMode
	Interface          InterfaceStatus
	HighAvailability   bool
	CommissionerActive bool
	Leader             bool
}

// Uint32 packs the bitmap.
func (s StateBitmap) Uint32() uint32 {
	v := uint32(s.ConnectionMode) & sbConnectionModeMask
	v |= (uint32(s.Interface) << sbInterfaceShift) & sbInterfaceMask
	if s.HighAvailability {
		v |= sbAvailabilityHigh
	}
	if s.CommissionerActive {
		v |= sbCommissionerActive
	}
	if s.Leader {
		v |= sbLeader
	}
	return v
}

// ParseStateBitmap unpacks v.
func ParseStateBitmap(v uint32) StateBitmap {
	return StateBitmap{
		ConnectionMode:     ConnectionMode(v & sbConnectionModeMask),
		Interface:          InterfaceStatus((v & sbInterfaceMask) >> sbInterfaceShift),
		HighAvailability:   v&sbAvailabilityHigh != 0,
		CommissionerActive: v&sbCommissionerActive != 0,
		Leader:             v&sbLeader != 0,
	}
}

// BorderAgentInfo is what a border agent advertises.
type BorderAgentInfo struct {
	// InstanceName is the DNS-SD instance name. Required.
	InstanceName string

	// Port is the commissioner-facing UDP port. Required.
	Port uint16

	// Version is the protocol version string.
	Version string

	// NetworkName, ExtendedPanID and ActiveTimestamp describe the Active
	// dataset. They are empty while the node is not commissioned.
	NetworkName     string
	ExtendedPanID   []byte
	ActiveTimestamp uint64
	Commissioned    bool

	State StateBitmap
}

// BorderAgentService is a border agent found by browsing.
type BorderAgentService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Info *BorderAgentInfo
}
