package dataset

import (
	"fmt"

	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
)

// Pending manages the Pending operational dataset and its commit timer.
type Pending struct {
	Manager

	commitTimer *timer.Timer

	// localTime and networkTime are when the local and network datasets
	// were last updated. Delay Timer values count down from them.
	localTime   uint32
	networkTime uint32
}

func newPending(s *shared) *Pending {
	p := &Pending{}
	p.init(s, TypePending, p.handleUpdate)
	p.commitTimer = s.sched.NewTimer(timer.HandlerFunc(p.commit))
	return p
}

func (p *Pending) handleUpdate(local, network bool) {
	now := p.sched.Now()
	if local {
		p.localTime = now
	}
	if network {
		p.networkTime = now
		p.commitTimer.Stop()
		if delay, ok := p.network.DelayTimer(); ok {
			if delay == 0 {
				p.signal()
				p.commit()
				return
			}
			p.commitTimer.Start(delay)
		}
	}
	p.signal()
}

// Stop unregisters the management resources and stops both timers.
func (p *Pending) Stop() {
	p.Manager.Stop()
	p.commitTimer.Stop()
}

// Get returns the Pending dataset with the Delay Timer reduced by the time
// elapsed since it was stored.
func (p *Pending) Get() meshcop.Dataset {
	d := p.Manager.Get()
	start := p.networkTime
	if p.local.Has(meshcop.TLVDelayTimer) {
		start = p.localTime
	}
	p.withRemainingDelay(&d, start)
	return d
}

// DelayTimerMinimal returns the floor applied to received delays.
func (p *Pending) DelayTimerMinimal() uint32 {
	return p.delayFloor
}

// SetDelayTimerMinimal changes the floor. It must be positive and no larger
// than meshcop.DelayTimerDefault.
func (p *Pending) SetDelayTimerMinimal(ms uint32) error {
	if ms == 0 || ms > meshcop.DelayTimerDefault {
		return fmt.Errorf("%w: delay timer minimal %d ms", ErrInvalidArgs, ms)
	}
	p.delayFloor = ms
	return nil
}

// CommitDeadline returns the tick at which the Pending dataset is promoted.
func (p *Pending) CommitDeadline() (uint32, bool) {
	if !p.commitTimer.IsRunning() {
		return 0, false
	}
	return p.commitTimer.FireTime(), true
}

// UpdateCommitTimer re-evaluates the commit timer against the network
// dataset. An already expired delay promotes synchronously.
func (p *Pending) UpdateCommitTimer() {
	delay, ok := p.network.DelayTimer()
	if !ok {
		p.commitTimer.Stop()
		return
	}
	if p.sched.Now()-p.networkTime >= delay {
		p.commitTimer.Stop()
		p.commit()
		return
	}
	p.commitTimer.StartAt(p.networkTime, delay)
}

// ApplyActiveDataset turns an Active dataset into a Pending one that takes
// effect after the minimal delay. It is how the leader applies an Active Set
// that changes connectivity.
func (p *Pending) ApplyActiveDataset(ts meshcop.Timestamp, d meshcop.Dataset) {
	if !p.role().IsAttached() {
		return
	}

	pd := d.Clone()
	pd.Remove(meshcop.TLVCommissionerSessionID)
	pd.SetDelayTimer(p.delayFloor)
	pd.SetTimestamp(meshcop.TLVPendingTimestamp, ts)

	p.local = pd
	p.network = pd.Clone()
	if p.netdata != nil {
		p.netdata.IncrementVersion(true)
	}
	p.logger.Info("active dataset scheduled through pending", "timestamp", ts, "delay", p.delayFloor)
	p.updated(true, true)
}

// commit promotes the network Pending dataset to Active.
func (p *Pending) commit() {
	if p.network.IsEmpty() {
		return
	}

	d := p.network.Clone()
	if _, ok := d.ActiveTimestamp(); !ok {
		ts, _ := d.PendingTimestamp()
		d.SetTimestamp(meshcop.TLVActiveTimestamp, ts)
	}
	d.Remove(meshcop.TLVPendingTimestamp)
	d.Remove(meshcop.TLVDelayTimer)

	ts, _ := d.ActiveTimestamp()
	p.logger.Info("pending dataset committed", "activeTimestamp", ts)

	p.active.adopt(d)
	p.Clear()
}

func (p *Pending) applyDelayFloor(d *meshcop.Dataset) {
	if delay, ok := d.DelayTimer(); ok && delay < p.delayFloor {
		d.SetDelayTimer(p.delayFloor)
	}
}

// clampDelay raises a delay accepted by the leader to the floor, or to
// meshcop.DelayTimerDefault when the network key changes.
func (p *Pending) clampDelay(delay uint32, keyChange bool) uint32 {
	floor := p.delayFloor
	if keyChange {
		floor = meshcop.DelayTimerDefault
	}
	return max(delay, floor)
}

func (p *Pending) withRemainingDelay(d *meshcop.Dataset, start uint32) {
	delay, ok := d.DelayTimer()
	if !ok {
		return
	}
	elapsed := p.sched.Now() - start
	if elapsed >= delay {
		d.SetDelayTimer(0)
		return
	}
	d.SetDelayTimer(delay - elapsed)
}
