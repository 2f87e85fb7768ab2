package meshcop

import (
	"fmt"
	"net/netip"
)

// NetworkParams are the link and mesh parameters carried by an operational
// dataset, as applied to the rest of the stack.
type NetworkParams struct {
	Channel         uint16
	PanID           uint16
	ExtendedPanID   []byte
	NetworkName     string
	MeshLocalPrefix netip.Prefix
	PSKc            []byte
}

// ParamsFromDataset extracts the parameters present in d. Fields absent from
// d keep the values from base.
func ParamsFromDataset(d *Dataset, base NetworkParams) NetworkParams {
	p := base
	if c, ok := d.Channel(); ok {
		p.Channel = c.Number
	}
	if v, ok := d.PanID(); ok {
		p.PanID = v
	}
	if v, ok := d.ExtendedPanID(); ok {
		p.ExtendedPanID = v
	}
	if v, ok := d.NetworkName(); ok {
		p.NetworkName = v
	}
	if v, ok := d.MeshLocalPrefix(); ok {
		p.MeshLocalPrefix = v
	}
	if v, ok := d.Get(TLVPSKc); ok {
		p.PSKc = v
	}
	return p
}

// String formats the parameters for display.
func (p NetworkParams) String() string {
	return fmt.Sprintf("channel=%d panid=0x%04x xpanid=%x name=%q mlprefix=%s",
		p.Channel, p.PanID, p.ExtendedPanID, p.NetworkName, p.MeshLocalPrefix)
}
