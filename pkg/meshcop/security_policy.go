package meshcop

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// SecurityPolicySize is the encoded size of the Security Policy TLV value.
const SecurityPolicySize = 3

// Security policy flags (first flags byte).
const (
	PolicyObtainNetworkKey      uint8 = 0x80
	PolicyNativeCommissioning   uint8 = 0x40
	PolicyRoutersEnabled        uint8 = 0x20
	PolicyExternalCommissioning uint8 = 0x10
	PolicyBeaconsEnabled        uint8 = 0x08
)

// Key rotation limits in hours.
const (
	MinKeyRotationHours     = 1
	MaxKeyRotationHours     = 1193
	DefaultKeyRotationHours = 672
)

// DefaultSecurityPolicyFlags enables every feature.
const DefaultSecurityPolicyFlags = PolicyObtainNetworkKey | PolicyNativeCommissioning |
	PolicyRoutersEnabled | PolicyExternalCommissioning | PolicyBeaconsEnabled

// ErrInvalidSecurityPolicy is returned for a malformed Security Policy TLV.
var ErrInvalidSecurityPolicy = errors.New("meshcop: invalid security policy")

// SecurityPolicy is the value of the Security Policy TLV.
type SecurityPolicy struct {
	RotationHours uint16
	Flags         uint8
}

// DefaultSecurityPolicy returns the policy used when none is configured.
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		RotationHours: DefaultKeyRotationHours,
		Flags:         DefaultSecurityPolicyFlags,
	}
}

// ParseSecurityPolicy decodes a Security Policy TLV value.
func ParseSecurityPolicy(b []byte) (SecurityPolicy, error) {
	if len(b) < SecurityPolicySize {
		return SecurityPolicy{}, fmt.Errorf("%w: length %d", ErrInvalidSecurityPolicy, len(b))
	}

	p := SecurityPolicy{
		RotationHours: binary.BigEndian.Uint16(b),
		Flags:         b[2],
	}
	if p.RotationHours < MinKeyRotationHours {
		return SecurityPolicy{}, fmt.Errorf("%w: rotation time %d", ErrInvalidSecurityPolicy, p.RotationHours)
	}
	return p, nil
}

// Bytes encodes the policy as a TLV value.
func (p SecurityPolicy) Bytes() []byte {
	b := binary.BigEndian.AppendUint16(nil, p.RotationHours)
	return append(b, p.Flags)
}

// ObtainNetworkKey reports whether the network key may be disclosed through
// management get requests.
func (p SecurityPolicy) ObtainNetworkKey() bool {
	return p.Flags&PolicyObtainNetworkKey != 0
}

// String returns the rotation time and flag letters, e.g. "672 onrcb".
func (p SecurityPolicy) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d ", p.RotationHours)
	for _, f := range []struct {
		bit    uint8
		letter byte
	}{
		{PolicyObtainNetworkKey, 'o'},
		{PolicyNativeCommissioning, 'n'},
		{PolicyRoutersEnabled, 'r'},
		{PolicyExternalCommissioning, 'c'},
		{PolicyBeaconsEnabled, 'b'},
	} {
		if p.Flags&f.bit != 0 {
			sb.WriteByte(f.letter)
		}
	}
	return sb.String()
}
