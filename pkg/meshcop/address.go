package meshcop

import (
	"net/netip"
)

// Well-known 16-bit locators.
const (
	// LeaderALOC16 is the anycast locator of the partition leader.
	LeaderALOC16 uint16 = 0xFC00

	// InvalidRLOC16 marks an unknown locator.
	InvalidRLOC16 uint16 = 0xFFFE
)

// LocatorAddr builds the mesh-local address prefix::ff:fe00:loc16.
func LocatorAddr(prefix netip.Prefix, loc16 uint16) netip.Addr {
	a := prefix.Addr().As16()
	a[8], a[9] = 0x00, 0x00
	a[10], a[11] = 0x00, 0xFF
	a[12], a[13] = 0xFE, 0x00
	a[14], a[15] = byte(loc16>>8), byte(loc16)
	return netip.AddrFrom16(a)
}

// LeaderAddr returns the leader anycast address for the prefix.
func LeaderAddr(prefix netip.Prefix) netip.Addr {
	return LocatorAddr(prefix, LeaderALOC16)
}

// Locator extracts the 16-bit locator from a mesh-local locator address.
func Locator(addr netip.Addr) (uint16, bool) {
	if !addr.Is6() || addr.Is4In6() {
		return 0, false
	}
	a := addr.As16()
	if a[8] != 0 || a[9] != 0 || a[10] != 0 || a[11] != 0xFF || a[12] != 0xFE || a[13] != 0 {
		return 0, false
	}
	return uint16(a[14])<<8 | uint16(a[15]), true
}
