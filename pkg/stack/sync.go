package stack

import (
	"errors"
	"net/netip"

	"github.com/mesh-protocol/meshcop-go/pkg/dataset"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
)

// scheduleSync arms the dataset sync timer on attached non-leader nodes.
func (i *Instance) scheduleSync() {
	if i.role == meshcop.RoleLeader || !i.role.IsAttached() || i.cfg.SyncInterval <= 0 {
		i.syncTimer.Stop()
		return
	}
	i.syncTimer.Start(timer.DurationToMsec(i.cfg.SyncInterval))
}

func (i *Instance) handleSyncTimer() {
	if err := i.Sync(); err != nil {
		i.logger.Warn("dataset sync failed", "error", err)
	}
	i.scheduleSync()
}

// Sync fetches both datasets from the leader and stores what it returns as
// the network copies. It stands in for the dissemination that attach and
// Network Data propagation perform on a real mesh.
func (i *Instance) Sync() error {
	err := i.active.SendGetRequest(nil, netip.Addr{}, func(d meshcop.Dataset, err error) {
		i.storeSynced(&i.active.Manager, d, err)
	})
	if err != nil {
		return err
	}
	return i.pending.SendGetRequest(nil, netip.Addr{}, func(d meshcop.Dataset, err error) {
		i.storeSynced(&i.pending.Manager, d, err)
	})
}

func (i *Instance) storeSynced(m *dataset.Manager, d meshcop.Dataset, err error) {
	if err != nil {
		i.logger.Debug("dataset get failed", "dataset", m.Type(), "error", err)
		return
	}
	if d.IsEmpty() {
		return
	}

	// The leader withholds the network key unless the policy allows it.
	if !d.Has(meshcop.TLVNetworkKey) {
		cur := m.Get()
		if key, ok := cur.NetworkKey(); ok {
			d.Set(meshcop.TLVNetworkKey, key)
		}
	}

	if err := m.SaveNetwork(d); err != nil && !errors.Is(err, dataset.ErrStale) {
		i.logger.Warn("failed to store synced dataset", "dataset", m.Type(), "error", err)
	}
}
