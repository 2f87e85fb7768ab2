package netdata

import (
	"log/slog"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/notifier"
	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

// Config configures a Leader.
type Config struct {
	// Agent serves c/cs and c/cg once Start is called. Optional.
	Agent *coap.Agent

	// Notifier receives NetworkDataChanged and CommissionerSessionChanged.
	Notifier *notifier.Notifier

	// Role reports the node role. Requests are refused unless it is leader.
	Role func() meshcop.DeviceRole

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// Leader is the Network Data owner on the leader.
type Leader struct {
	agent    *coap.Agent
	notifier *notifier.Notifier
	role     func() meshcop.DeviceRole
	logger   *slog.Logger

	commissioning meshcop.Dataset
	version       uint8
	stableVersion uint8
}

// New creates a Leader with empty commissioning data.
func New(cfg Config) *Leader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	role := cfg.Role
	if role == nil {
		role = func() meshcop.DeviceRole { return meshcop.RoleLeader }
	}

	return &Leader{
		agent:    cfg.Agent,
		notifier: cfg.Notifier,
		role:     role,
		logger:   logger,
	}
}

// Start registers the management resources.
func (l *Leader) Start() {
	if l.agent == nil {
		return
	}
	l.agent.AddResource(meshcop.URICommissionerSet, coap.HandlerFunc(l.handleCommissioningSet))
	l.agent.AddResource(meshcop.URICommissionerGet, coap.HandlerFunc(l.handleCommissioningGet))
}

// Stop unregisters the management resources.
func (l *Leader) Stop() {
	if l.agent == nil {
		return
	}
	l.agent.RemoveResource(meshcop.URICommissionerSet)
	l.agent.RemoveResource(meshcop.URICommissionerGet)
}

// SetCommissioningData replaces the commissioning data.
func (l *Leader) SetCommissioningData(d meshcop.Dataset) {
	oldSession, hadSession := l.SessionID()

	l.commissioning = d.Clone()
	l.version++

	flags := notifier.NetworkDataChanged
	if newSession, ok := l.SessionID(); ok != hadSession || newSession != oldSession {
		flags |= notifier.CommissionerSessionChanged
	}
	l.notifier.Signal(flags)
}

// CommissioningData returns a copy of the commissioning data.
func (l *Leader) CommissioningData() (meshcop.Dataset, bool) {
	if l.commissioning.IsEmpty() {
		return meshcop.Dataset{}, false
	}
	return l.commissioning.Clone(), true
}

// ClearCommissioningData removes the commissioning data. Clearing empty data
// is a no-op.
func (l *Leader) ClearCommissioningData() {
	if l.commissioning.IsEmpty() {
		return
	}
	l.commissioning.Clear()
	l.version++
	l.notifier.Signal(notifier.NetworkDataChanged | notifier.CommissionerSessionChanged)
}

// SessionID returns the admitted commissioner's session ID.
func (l *Leader) SessionID() (uint16, bool) {
	return l.commissioningUint16(meshcop.TLVCommissionerSessionID)
}

// BorderAgentLocator returns the locator of the admitted commissioner's
// border agent.
func (l *Leader) BorderAgentLocator() (uint16, bool) {
	return l.commissioningUint16(meshcop.TLVBorderAgentLocator)
}

func (l *Leader) commissioningUint16(t meshcop.TLVType) (uint16, bool) {
	v, ok := l.commissioning.Get(t)
	if !ok {
		return 0, false
	}
	n, err := meshcop.ParseUint16(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Version returns the Network Data version.
func (l *Leader) Version() uint8 {
	return l.version
}

// StableVersion returns the stable Network Data version.
func (l *Leader) StableVersion() uint8 {
	return l.stableVersion
}

// IncrementVersion bumps the version, and the stable version too when
// stable is set. Both wrap at 256.
func (l *Leader) IncrementVersion(stable bool) {
	l.version++
	if stable {
		l.stableVersion++
	}
	l.notifier.Signal(notifier.NetworkDataChanged)
}

// handleCommissioningSet serves MGMT_COMM_SET. The request must carry the
// current session ID and at least one of Steering Data or Joiner UDP Port;
// it may not carry a Border Agent Locator. Unknown TLVs are tolerated. The
// existing Border Agent Locator is kept.
func (l *Leader) handleCommissioningSet(req *coap.Request) {
	if l.role() != meshcop.RoleLeader {
		return
	}

	state := l.applyCommissioningSet(req.Payload)
	l.logger.Debug("MGMT_COMM_SET", "src", req.Source, "state", state)

	if err := req.Respond(coap.CodeChanged, stateTLV(state)); err != nil {
		l.logger.Warn("failed to send MGMT_COMM_SET response", "error", err)
	}
}

func (l *Leader) applyCommissioningSet(payload []byte) meshcop.State {
	recs, err := tlv.Decode(payload)
	if err != nil {
		return meshcop.StateReject
	}

	var (
		update     meshcop.Dataset
		hasValid   bool
		hasSession bool
		session    uint16
	)
	for _, r := range recs {
		switch meshcop.TLVType(r.Type) {
		case meshcop.TLVSteeringData, meshcop.TLVJoinerUDPPort:
			hasValid = true
		case meshcop.TLVBorderAgentLocator:
			return meshcop.StateReject
		case meshcop.TLVCommissionerSessionID:
			if session, err = meshcop.ParseUint16(r.Value); err != nil {
				return meshcop.StateReject
			}
			hasSession = true
		}
		update.Set(meshcop.TLVType(r.Type), r.Value)
	}

	if !hasSession || !hasValid {
		return meshcop.StateReject
	}
	if current, ok := l.SessionID(); !ok || current != session {
		return meshcop.StateReject
	}

	if bal, ok := l.commissioning.Get(meshcop.TLVBorderAgentLocator); ok {
		update.Set(meshcop.TLVBorderAgentLocator, bal)
	}
	if update.Size() > meshcop.MaxDatasetSize {
		return meshcop.StateReject
	}

	l.SetCommissioningData(update)
	return meshcop.StateAccept
}

// handleCommissioningGet serves MGMT_COMM_GET. A Get TLV selects the types
// to return; without one all commissioning data is returned. Nothing is
// sent when no commissioning data exists.
func (l *Leader) handleCommissioningGet(req *coap.Request) {
	if l.commissioning.IsEmpty() {
		return
	}

	var out []byte
	if types, ok, err := tlv.Find(req.Payload, uint8(meshcop.TLVGet)); err == nil && ok && len(types) > 0 {
		for _, t := range types {
			if v, ok := l.commissioning.Get(meshcop.TLVType(t)); ok {
				out, _ = tlv.Append(out, t, v)
			}
		}
	} else {
		out = l.commissioning.Bytes()
	}

	if err := req.Respond(coap.CodeChanged, out); err != nil {
		l.logger.Warn("failed to send MGMT_COMM_GET response", "error", err)
	}
}

func stateTLV(s meshcop.State) []byte {
	b, _ := tlv.Append(nil, uint8(meshcop.TLVState), s.Bytes())
	return b
}
