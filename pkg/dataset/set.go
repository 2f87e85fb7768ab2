package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

var (
	errNotLeader        = errors.New("not leader")
	errNotNewer         = errors.New("timestamp not newer")
	errSessionMismatch  = errors.New("commissioner session mismatch")
	errConnectivity     = errors.New("commissioner active set changes connectivity")
	errMissingTimestamp = errors.New("missing timestamp")
)

// setRequest is a validated MGMT_SET.
type setRequest struct {
	dataset             meshcop.Dataset
	activeTimestamp     meshcop.Timestamp
	fromCommissioner    bool
	affectsConnectivity bool
	affectsKey          bool
}

// handleSet serves MGMT_ACTIVE_SET and MGMT_PENDING_SET on the leader.
func (m *Manager) handleSet(req *coap.Request) {
	r, err := m.validateSet(req.Payload)
	if err != nil {
		m.logger.Info("dataset set rejected", "dataset", m.typ, "source", req.Source, "reason", err)
		m.events.Error(log.LayerManagement, err, m.typ.setURI())
		if err := req.Respond(coap.CodeChanged, stateTLV(meshcop.StateReject)); err != nil {
			m.logger.Warn("failed to send dataset set response", "dataset", m.typ, "error", err)
		}
		return
	}

	m.applySet(r)
	m.logger.Info("dataset set accepted", "dataset", m.typ, "source", req.Source,
		"commissioner", r.fromCommissioner, "connectivity", r.affectsConnectivity)

	if !r.fromCommissioner {
		m.sendDatasetChanged()
	}
	if err := req.Respond(coap.CodeChanged, stateTLV(meshcop.StateAccept)); err != nil {
		m.logger.Warn("failed to send dataset set response", "dataset", m.typ, "error", err)
	}
}

// validateSet checks a Set payload without changing any state.
func (m *Manager) validateSet(payload []byte) (*setRequest, error) {
	if m.role() != meshcop.RoleLeader {
		return nil, errNotLeader
	}

	if len(payload) > meshcop.MaxDatasetSize {
		return nil, fmt.Errorf("%w: %d bytes", meshcop.ErrDatasetTooLarge, len(payload))
	}
	recs, err := tlv.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", meshcop.ErrMalformedTLV, err)
	}
	for _, r := range recs {
		if len(r.Value) > meshcop.MaxValueSize {
			return nil, fmt.Errorf("%w: %s value of %d bytes", meshcop.ErrMalformedTLV, meshcop.TLVType(r.Type), len(r.Value))
		}
	}
	d, err := meshcop.ParseDataset(payload)
	if err != nil {
		return nil, err
	}

	r := &setRequest{dataset: d}

	var ok bool
	if r.activeTimestamp, ok = d.ActiveTimestamp(); !ok {
		return nil, fmt.Errorf("%w: %s", errMissingTimestamp, meshcop.TLVActiveTimestamp)
	}
	ts := r.activeTimestamp
	if m.typ == TypePending {
		if ts, ok = d.PendingTimestamp(); !ok {
			return nil, fmt.Errorf("%w: %s", errMissingTimestamp, meshcop.TLVPendingTimestamp)
		}
		delay, ok := d.DelayTimer()
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidArgs, meshcop.TLVDelayTimer)
		}
		if delay > meshcop.MaxDelayTimer {
			return nil, fmt.Errorf("%w: delay %d ms", ErrInvalidArgs, delay)
		}
	}

	if cur, ok := m.timestampOf(&m.network); ok && !ts.After(cur) {
		return nil, fmt.Errorf("%w: %s <= %s", errNotNewer, ts, cur)
	}

	if d.Has(meshcop.TLVChannel) {
		c, ok := d.Channel()
		if !ok {
			return nil, meshcop.ErrInvalidChannel
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	if v, ok := d.Get(meshcop.TLVCommissionerSessionID); ok {
		r.fromCommissioner = true
		session, err := meshcop.ParseUint16(v)
		if err != nil {
			return nil, err
		}
		if m.netdata == nil {
			return nil, errSessionMismatch
		}
		if cur, ok := m.netdata.SessionID(); !ok || cur != session {
			return nil, fmt.Errorf("%w: got %d", errSessionMismatch, session)
		}
	}

	active := m.active.currentDataset()
	for _, rec := range d.TLVs() {
		t := meshcop.TLVType(rec.Type)
		if !meshcop.IsConnectivityTLV(t) {
			continue
		}
		var current []byte
		if t == meshcop.TLVNetworkKey {
			current, ok = m.keys.NetworkKey(), true
		} else {
			current, ok = active.Get(t)
		}
		if ok && !bytes.Equal(current, rec.Value) {
			r.affectsConnectivity = true
			if t == meshcop.TLVNetworkKey {
				r.affectsKey = true
			}
		}
	}

	if m.typ == TypeActive && r.fromCommissioner && r.affectsConnectivity {
		return nil, errConnectivity
	}

	if m.typ == TypePending && !r.affectsKey {
		if cur, ok := m.active.network.ActiveTimestamp(); ok && !r.activeTimestamp.After(cur) {
			return nil, fmt.Errorf("%w: embedded %s <= %s", errNotNewer, r.activeTimestamp, cur)
		}
	}

	return r, nil
}

// applySet commits a validated Set.
func (m *Manager) applySet(r *setRequest) {
	if m.typ == TypeActive && r.affectsConnectivity {
		// The change only takes effect through a Pending dataset.
		d := m.active.currentDataset()
		for _, rec := range r.dataset.TLVs() {
			d.Set(meshcop.TLVType(rec.Type), rec.Value)
		}
		m.pending.ApplyActiveDataset(r.activeTimestamp, d)
		return
	}

	if m.typ == TypePending && r.fromCommissioner {
		m.local = m.active.network.Clone()
	}

	for _, rec := range r.dataset.TLVs() {
		t := meshcop.TLVType(rec.Type)
		switch t {
		case meshcop.TLVCommissionerSessionID:
			continue
		case meshcop.TLVDelayTimer:
			delay, _ := r.dataset.DelayTimer()
			m.local.SetDelayTimer(m.pending.clampDelay(delay, r.affectsKey))
		default:
			m.local.Set(t, rec.Value)
		}
	}

	m.storeLocal()
	m.network = m.local.Clone()
	if m.netdata != nil {
		m.netdata.IncrementVersion(true)
	}
	m.updated(true, true)
}

// sendDatasetChanged notifies the admitted commissioner's border agent that
// a dataset changed without its involvement.
func (m *Manager) sendDatasetChanged() {
	if m.netdata == nil {
		return
	}
	locator, ok := m.netdata.BorderAgentLocator()
	if !ok {
		return
	}

	dst := netip.AddrPortFrom(meshcop.LocatorAddr(m.prefix(), locator), meshcop.ManagementPort)
	req := coap.NewRequest(coap.Confirmable, coap.CodePost, meshcop.URIDatasetChanged, nil)
	if err := m.agent.SendRequest(req, dst, nil); err != nil {
		m.logger.Warn("failed to send dataset changed", "error", err)
	}
}
