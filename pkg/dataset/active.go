package dataset

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/settings"
)

// Active manages the Active operational dataset.
type Active struct {
	Manager

	params meshcop.NetworkParams
}

func newActive(s *shared) *Active {
	a := &Active{}
	a.init(s, TypeActive, a.handleUpdate)
	return a
}

func (a *Active) handleUpdate(local, network bool) {
	if network || (local && !a.role().IsAttached()) {
		if err := a.ApplyConfiguration(); err != nil {
			a.logger.Warn("failed to apply active dataset", "error", err)
		}
	}
	a.signal()
}

// Restore loads the persisted Active dataset as the local dataset and
// applies it. A missing record is not an error.
func (a *Active) Restore() error {
	if a.store == nil {
		return nil
	}

	b, err := a.store.Get(settings.KeyActiveDataset, 0)
	if errors.Is(err, settings.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore active dataset: %w", err)
	}

	d, err := meshcop.ParseDataset(b)
	if err != nil {
		return fmt.Errorf("restore active dataset: %w", err)
	}
	a.local = d

	a.logger.Info("restored active dataset", "tlvs", d.Len())
	return a.ApplyConfiguration()
}

// IsCommissioned reports whether the local dataset holds everything needed
// to join or form a network.
func (a *Active) IsCommissioned() bool {
	for _, t := range []meshcop.TLVType{
		meshcop.TLVActiveTimestamp,
		meshcop.TLVNetworkKey,
		meshcop.TLVNetworkName,
		meshcop.TLVExtendedPanID,
		meshcop.TLVMeshLocalPrefix,
		meshcop.TLVPanID,
		meshcop.TLVChannel,
	} {
		if !a.local.Has(t) {
			return false
		}
	}
	return true
}

// Params returns the parameters last applied from the Active dataset.
func (a *Active) Params() meshcop.NetworkParams {
	return a.params
}

// ApplyConfiguration pushes the Active dataset's key material to the key
// manager and its link parameters to the configured consumer. Attached
// nodes apply the network dataset, others the local one.
func (a *Active) ApplyConfiguration() error {
	d := &a.local
	if a.role().IsAttached() {
		d = &a.network
	}

	var errs error
	if key, ok := d.NetworkKey(); ok {
		errs = multierr.Append(errs, a.keys.SetNetworkKey(key))
	}
	if seq, ok := d.KeySequence(); ok {
		a.keys.SetCurrentKeySequence(seq)
	}
	if pskc, ok := d.Get(meshcop.TLVPSKc); ok {
		a.keys.SetPSKc(pskc)
	}
	if d.Has(meshcop.TLVSecurityPolicy) {
		p, ok := d.SecurityPolicy()
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: malformed %s", ErrInvalidArgs, meshcop.TLVSecurityPolicy))
		} else {
			errs = multierr.Append(errs, a.keys.SetSecurityPolicy(p))
		}
	}

	a.params = meshcop.ParamsFromDataset(d, a.params)
	if a.applyParams != nil {
		a.applyParams(a.params)
	}
	return errs
}

// currentDataset returns the dataset the node operates on.
func (a *Active) currentDataset() meshcop.Dataset {
	if a.network.IsEmpty() {
		return a.local.Clone()
	}
	return a.network.Clone()
}

// adopt replaces both datasets with a promoted Pending dataset.
func (a *Active) adopt(d meshcop.Dataset) {
	a.local = d.Clone()
	a.network = d.Clone()
	a.registerTimer.Stop()
	a.storeLocal()
	if a.role() == meshcop.RoleLeader && a.netdata != nil {
		a.netdata.IncrementVersion(true)
	}
	a.updated(true, true)
}
