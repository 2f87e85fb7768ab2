package meshcop

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// TLVType identifies a MeshCoP TLV.
type TLVType uint8

// MeshCoP TLV types.
const (
	TLVChannel               TLVType = 0
	TLVPanID                 TLVType = 1
	TLVExtendedPanID         TLVType = 2
	TLVNetworkName           TLVType = 3
	TLVPSKc                  TLVType = 4
	TLVNetworkKey            TLVType = 5
	TLVNetworkKeySequence    TLVType = 6
	TLVMeshLocalPrefix       TLVType = 7
	TLVSteeringData          TLVType = 8
	TLVBorderAgentLocator    TLVType = 9
	TLVCommissionerID        TLVType = 10
	TLVCommissionerSessionID TLVType = 11
	TLVSecurityPolicy        TLVType = 12
	TLVGet                   TLVType = 13
	TLVActiveTimestamp       TLVType = 14
	TLVCommissionerUDPPort   TLVType = 15
	TLVState                 TLVType = 16
	TLVJoinerUDPPort         TLVType = 18
	TLVPendingTimestamp      TLVType = 51
	TLVDelayTimer            TLVType = 52
	TLVChannelMask           TLVType = 53
)

// Size limits.
const (
	// MaxDatasetSize is the largest encoded dataset accepted.
	MaxDatasetSize = 254

	// MaxValueSize is the largest single TLV value accepted in a dataset.
	MaxValueSize = 16

	// MaxCommissionerIDLength bounds the Commissioner ID TLV.
	MaxCommissionerIDLength = 64

	// NetworkKeySize is the size of the network key.
	NetworkKeySize = 16

	// MaxNetworkNameLength bounds the Network Name TLV.
	MaxNetworkNameLength = 16

	// MaxSteeringDataLength bounds the Steering Data TLV.
	MaxSteeringDataLength = 16
)

// String returns the TLV name.
func (t TLVType) String() string {
	switch t {
	case TLVChannel:
		return "Channel"
	case TLVPanID:
		return "PanId"
	case TLVExtendedPanID:
		return "ExtendedPanId"
	case TLVNetworkName:
		return "NetworkName"
	case TLVPSKc:
		return "PSKc"
	case TLVNetworkKey:
		return "NetworkKey"
	case TLVNetworkKeySequence:
		return "NetworkKeySequence"
	case TLVMeshLocalPrefix:
		return "MeshLocalPrefix"
	case TLVSteeringData:
		return "SteeringData"
	case TLVBorderAgentLocator:
		return "BorderAgentLocator"
	case TLVCommissionerID:
		return "CommissionerId"
	case TLVCommissionerSessionID:
		return "CommissionerSessionId"
	case TLVSecurityPolicy:
		return "SecurityPolicy"
	case TLVGet:
		return "Get"
	case TLVActiveTimestamp:
		return "ActiveTimestamp"
	case TLVCommissionerUDPPort:
		return "CommissionerUdpPort"
	case TLVState:
		return "State"
	case TLVJoinerUDPPort:
		return "JoinerUdpPort"
	case TLVPendingTimestamp:
		return "PendingTimestamp"
	case TLVDelayTimer:
		return "DelayTimer"
	case TLVChannelMask:
		return "ChannelMask"
	default:
		return fmt.Sprintf("TLV(%d)", uint8(t))
	}
}

// connectivityTLVs are the dataset TLVs whose change disrupts connectivity
// and therefore must go through a Pending dataset.
var connectivityTLVs = mapset.NewThreadUnsafeSet(
	TLVChannel,
	TLVPanID,
	TLVMeshLocalPrefix,
	TLVNetworkKey,
)

// commissioningTLVs are the TLVs making up the leader's commissioning data.
var commissioningTLVs = mapset.NewThreadUnsafeSet(
	TLVBorderAgentLocator,
	TLVCommissionerSessionID,
	TLVSteeringData,
	TLVJoinerUDPPort,
)

// IsConnectivityTLV reports whether changing t disrupts connectivity.
func IsConnectivityTLV(t TLVType) bool {
	return connectivityTLVs.Contains(t)
}

// IsCommissioningTLV reports whether t belongs to the commissioning data.
func IsCommissioningTLV(t TLVType) bool {
	return commissioningTLVs.Contains(t)
}

// ConnectivityTLVs returns a copy of the connectivity TLV set.
func ConnectivityTLVs() mapset.Set[TLVType] {
	return connectivityTLVs.Clone()
}
