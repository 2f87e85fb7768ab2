package settings

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NetworkInfo is the persisted key material state.
type NetworkInfo struct {
	KeySequence     uint32 `cbor:"1,keyasint"`
	MLEFrameCounter uint32 `cbor:"2,keyasint"`
	MACFrameCounter uint32 `cbor:"3,keyasint"`
	RLOC16          uint16 `cbor:"4,keyasint,omitempty"`
	ExtAddress      []byte `cbor:"5,keyasint,omitempty"`
}

var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error

	recordEncMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create settings CBOR encoder mode: %v", err))
	}

	recordDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create settings CBOR decoder mode: %v", err))
	}
}

// NetworkInfoStore reads and writes the NetworkInfo record.
type NetworkInfoStore struct {
	Store Store
}

// NewNetworkInfoStore wraps s.
func NewNetworkInfoStore(s Store) *NetworkInfoStore {
	return &NetworkInfoStore{Store: s}
}

// SaveNetworkInfo persists info.
func (n *NetworkInfoStore) SaveNetworkInfo(info NetworkInfo) error {
	data, err := recordEncMode.Marshal(info)
	if err != nil {
		return fmt.Errorf("settings: encoding network info: %w", err)
	}
	return n.Store.Set(KeyNetworkInfo, data)
}

// LoadNetworkInfo reads the persisted record. It returns ErrNotFound if
// nothing was saved.
func (n *NetworkInfoStore) LoadNetworkInfo() (NetworkInfo, error) {
	data, err := n.Store.Get(KeyNetworkInfo, 0)
	if err != nil {
		return NetworkInfo{}, err
	}

	var info NetworkInfo
	if err := recordDecMode.Unmarshal(data, &info); err != nil {
		return NetworkInfo{}, fmt.Errorf("settings: decoding network info: %w", err)
	}
	return info, nil
}

// IsNotFound reports whether err means the entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
