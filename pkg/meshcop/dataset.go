package meshcop

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

// Delay timer limits in milliseconds.
const (
	// DelayTimerDefault is the minimum delay applied when a Pending dataset
	// changes the network key.
	DelayTimerDefault uint32 = 300_000

	// DelayTimerMinimal is the default floor applied to every received
	// Pending dataset.
	DelayTimerMinimal uint32 = 30_000

	// MaxDelayTimer is the largest delay accepted (72 hours).
	MaxDelayTimer uint32 = 259_200_000
)

// Errors returned by Dataset.
var (
	ErrDatasetTooLarge = errors.New("meshcop: dataset too large")
	ErrMalformedTLV    = errors.New("meshcop: malformed tlv")
)

// Dataset is an operational dataset: an ordered set of TLVs with at most one
// record per type. The zero value is an empty dataset.
type Dataset struct {
	tlvs []tlv.TLV
}

// ParseDataset decodes a dataset. Later duplicates replace earlier records.
func ParseDataset(b []byte) (Dataset, error) {
	if len(b) > MaxDatasetSize {
		return Dataset{}, fmt.Errorf("%w: %d bytes", ErrDatasetTooLarge, len(b))
	}

	recs, err := tlv.Decode(b)
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: %w", ErrMalformedTLV, err)
	}

	var d Dataset
	for _, r := range recs {
		d.Set(TLVType(r.Type), r.Value)
	}
	return d, nil
}

// Len returns the number of TLVs.
func (d Dataset) Len() int {
	return len(d.tlvs)
}

// IsEmpty reports whether the dataset holds no TLVs.
func (d Dataset) IsEmpty() bool {
	return len(d.tlvs) == 0
}

// Size returns the encoded size in bytes.
func (d *Dataset) Size() int {
	n := 0
	for _, t := range d.tlvs {
		n += t.Size()
	}
	return n
}

// Get returns the value of the given TLV.
func (d *Dataset) Get(t TLVType) ([]byte, bool) {
	if i := d.index(t); i >= 0 {
		return d.tlvs[i].Value, true
	}
	return nil, false
}

// Has reports whether the TLV is present.
func (d *Dataset) Has(t TLVType) bool {
	return d.index(t) >= 0
}

// Set stores a copy of value, replacing an existing TLV of the same type in
// place.
func (d *Dataset) Set(t TLVType, value []byte) {
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	if i := d.index(t); i >= 0 {
		d.tlvs[i].Value = v
		return
	}
	d.tlvs = append(d.tlvs, tlv.TLV{Type: uint8(t), Value: v})
}

// Remove deletes the TLV if present.
func (d *Dataset) Remove(t TLVType) {
	if i := d.index(t); i >= 0 {
		d.tlvs = slices.Delete(d.tlvs, i, i+1)
	}
}

// Clear removes every TLV.
func (d *Dataset) Clear() {
	d.tlvs = nil
}

// Types returns the TLV types in dataset order.
func (d *Dataset) Types() []TLVType {
	out := make([]TLVType, len(d.tlvs))
	for i, t := range d.tlvs {
		out[i] = TLVType(t.Type)
	}
	return out
}

// TLVs returns a copy of the records in dataset order.
func (d *Dataset) TLVs() []tlv.TLV {
	out := make([]tlv.TLV, len(d.tlvs))
	for i, t := range d.tlvs {
		out[i] = tlv.TLV{Type: t.Type, Value: bytes.Clone(t.Value)}
	}
	return out
}

// Bytes encodes the dataset.
func (d *Dataset) Bytes() []byte {
	// Dataset values are bounded well below the extended length limit.
	b, _ := tlv.Encode(d.tlvs)
	return b
}

// Clone returns a deep copy.
func (d *Dataset) Clone() Dataset {
	return Dataset{tlvs: d.TLVs()}
}

// Equal reports whether both datasets hold the same TLVs in the same order.
func (d *Dataset) Equal(o *Dataset) bool {
	return bytes.Equal(d.Bytes(), o.Bytes())
}

// Merge copies every TLV of o that d does not hold.
func (d *Dataset) Merge(o *Dataset) {
	for _, t := range o.tlvs {
		if !d.Has(TLVType(t.Type)) {
			d.Set(TLVType(t.Type), t.Value)
		}
	}
}

func (d *Dataset) index(t TLVType) int {
	return slices.IndexFunc(d.tlvs, func(r tlv.TLV) bool { return r.Type == uint8(t) })
}

// ActiveTimestamp returns the Active Timestamp TLV.
func (d *Dataset) ActiveTimestamp() (Timestamp, bool) {
	return d.timestamp(TLVActiveTimestamp)
}

// PendingTimestamp returns the Pending Timestamp TLV.
func (d *Dataset) PendingTimestamp() (Timestamp, bool) {
	return d.timestamp(TLVPendingTimestamp)
}

// SetTimestamp stores a timestamp TLV of the given type.
func (d *Dataset) SetTimestamp(t TLVType, ts Timestamp) {
	d.Set(t, ts.Bytes())
}

func (d *Dataset) timestamp(t TLVType) (Timestamp, bool) {
	v, ok := d.Get(t)
	if !ok {
		return Timestamp{}, false
	}
	ts, err := ParseTimestamp(v)
	if err != nil {
		return Timestamp{}, false
	}
	return ts, true
}

// DelayTimer returns the Delay Timer TLV in milliseconds.
func (d *Dataset) DelayTimer() (uint32, bool) {
	return d.uint32(TLVDelayTimer)
}

// SetDelayTimer stores the Delay Timer TLV.
func (d *Dataset) SetDelayTimer(ms uint32) {
	d.Set(TLVDelayTimer, Uint32Bytes(ms))
}

// Channel returns the Channel TLV.
func (d *Dataset) Channel() (Channel, bool) {
	v, ok := d.Get(TLVChannel)
	if !ok {
		return Channel{}, false
	}
	c, err := ParseChannel(v)
	return c, err == nil
}

// PanID returns the PAN ID TLV.
func (d *Dataset) PanID() (uint16, bool) {
	return d.uint16(TLVPanID)
}

// NetworkKey returns the Network Key TLV.
func (d *Dataset) NetworkKey() ([]byte, bool) {
	v, ok := d.Get(TLVNetworkKey)
	if !ok || len(v) != NetworkKeySize {
		return nil, false
	}
	return v, true
}

// KeySequence returns the Network Key Sequence TLV.
func (d *Dataset) KeySequence() (uint32, bool) {
	return d.uint32(TLVNetworkKeySequence)
}

// NetworkName returns the Network Name TLV.
func (d *Dataset) NetworkName() (string, bool) {
	v, ok := d.Get(TLVNetworkName)
	return string(v), ok
}

// ExtendedPanID returns the Extended PAN ID TLV.
func (d *Dataset) ExtendedPanID() ([]byte, bool) {
	v, ok := d.Get(TLVExtendedPanID)
	if !ok || len(v) != 8 {
		return nil, false
	}
	return v, true
}

// MeshLocalPrefix returns the Mesh-Local Prefix TLV as a /64 prefix.
func (d *Dataset) MeshLocalPrefix() (netip.Prefix, bool) {
	v, ok := d.Get(TLVMeshLocalPrefix)
	if !ok || len(v) != 8 {
		return netip.Prefix{}, false
	}
	var a [16]byte
	copy(a[:], v)
	return netip.PrefixFrom(netip.AddrFrom16(a), 64), true
}

// SecurityPolicy returns the Security Policy TLV.
func (d *Dataset) SecurityPolicy() (SecurityPolicy, bool) {
	v, ok := d.Get(TLVSecurityPolicy)
	if !ok {
		return SecurityPolicy{}, false
	}
	p, err := ParseSecurityPolicy(v)
	return p, err == nil
}

func (d *Dataset) uint16(t TLVType) (uint16, bool) {
	v, ok := d.Get(t)
	if !ok || len(v) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(v), true
}

func (d *Dataset) uint32(t TLVType) (uint32, bool) {
	v, ok := d.Get(t)
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// Uint16Bytes encodes v big-endian.
func Uint16Bytes(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

// Uint32Bytes encodes v big-endian.
func Uint32Bytes(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// ParseUint16 decodes a two byte TLV value.
func ParseUint16(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("%w: want 2 bytes, got %d", ErrMalformedTLV, len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// ParseUint32 decodes a four byte TLV value.
func ParseUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: want 4 bytes, got %d", ErrMalformedTLV, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// MeshLocalPrefixBytes returns the TLV encoding of a /64 mesh-local prefix.
func MeshLocalPrefixBytes(p netip.Prefix) []byte {
	a := p.Addr().As16()
	return bytes.Clone(a[:8])
}
