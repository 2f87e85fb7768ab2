package leader

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

// PetitionTimeout is how long an admitted commissioner may stay silent
// before the leader drops it, in milliseconds.
const PetitionTimeout uint32 = 50_000

// State is the admission state.
type State uint8

const (
	StateIdle State = iota
	StateAdmitted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAdmitted:
		return "ADMITTED"
	default:
		return "UNKNOWN"
	}
}

// CommissioningData is where the admitted session is published.
type CommissioningData interface {
	SetCommissioningData(d meshcop.Dataset)
	ClearCommissioningData()
}

// Config configures an Admission.
type Config struct {
	// Scheduler drives the keep-alive timer. Required.
	Scheduler *timer.Scheduler

	// Agent serves c/lp and c/la once Start is called. Required.
	Agent *coap.Agent

	// NetworkData receives the commissioning data. Required.
	NetworkData CommissioningData

	// Role reports the node role. Petitions are refused unless it is leader.
	// Defaults to always leader.
	Role func() meshcop.DeviceRole

	// RLOC16 returns the leader's own locator. It stands in as border agent
	// locator when a petition does not come from a mesh-local locator
	// address, i.e. when the leader relays for an off-mesh commissioner.
	RLOC16 func() uint16

	// OnAdmitted is called after a commissioner was admitted. Optional.
	OnAdmitted func(src netip.AddrPort, locator uint16)

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger

	// Events receives admission state changes. May be nil.
	Events *log.Emitter
}

// Admission is the leader's commissioner admission session.
type Admission struct {
	agent      *coap.Agent
	netdata    CommissioningData
	role       func() meshcop.DeviceRole
	rloc16     func() uint16
	onAdmitted func(netip.AddrPort, uint16)
	logger     *slog.Logger
	events     *log.Emitter

	state          State
	sessionID      uint16
	commissionerID string
	borderAgent    uint16
	peer           netip.AddrPort
	keepAliveTimer *timer.Timer
}

// New creates an idle Admission.
func New(cfg Config) *Admission {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	role := cfg.Role
	if role == nil {
		role = func() meshcop.DeviceRole { return meshcop.RoleLeader }
	}
	rloc16 := cfg.RLOC16
	if rloc16 == nil {
		rloc16 = func() uint16 { return 0 }
	}

	a := &Admission{
		agent:      cfg.Agent,
		netdata:    cfg.NetworkData,
		role:       role,
		rloc16:     rloc16,
		onAdmitted: cfg.OnAdmitted,
		logger:     logger,
		events:     cfg.Events,
	}
	a.keepAliveTimer = cfg.Scheduler.NewTimer(timer.HandlerFunc(a.handleTimeout))
	return a
}

// Start registers the petition and keep-alive resources.
func (a *Admission) Start() {
	a.agent.AddResource(meshcop.URIPetition, coap.HandlerFunc(a.handlePetition))
	a.agent.AddResource(meshcop.URIKeepAlive, coap.HandlerFunc(a.handleKeepAlive))
}

// Stop unregisters the resources and drops an admitted commissioner.
func (a *Admission) Stop() {
	a.agent.RemoveResource(meshcop.URIPetition)
	a.agent.RemoveResource(meshcop.URIKeepAlive)
	if a.state == StateAdmitted {
		a.resign("stopped")
	}
}

// State returns the admission state.
func (a *Admission) State() State {
	return a.state
}

// SessionID returns the admitted session, or false when Idle.
func (a *Admission) SessionID() (uint16, bool) {
	return a.sessionID, a.state == StateAdmitted
}

// CommissionerID returns the admitted commissioner's identifier.
func (a *Admission) CommissionerID() string {
	return a.commissionerID
}

// Peer returns the transport address the admitted commissioner petitioned
// from.
func (a *Admission) Peer() (netip.AddrPort, bool) {
	return a.peer, a.state == StateAdmitted
}

// KeepAliveDeadline returns the tick at which the session expires.
func (a *Admission) KeepAliveDeadline() (uint32, bool) {
	if !a.keepAliveTimer.IsRunning() {
		return 0, false
	}
	return a.keepAliveTimer.FireTime(), true
}

func (a *Admission) handlePetition(req *coap.Request) {
	v, ok, err := tlv.Find(req.Payload, uint8(meshcop.TLVCommissionerID))
	if err != nil || !ok || len(v) == 0 || len(v) > meshcop.MaxCommissionerIDLength {
		a.logger.Debug("dropping malformed petition", "source", req.Source)
		return
	}
	id := string(v)

	if a.role() != meshcop.RoleLeader {
		a.respond(req, petitionResponse(meshcop.StateReject, 0, nil))
		return
	}

	if a.state == StateAdmitted {
		a.logger.Info("petition rejected, commissioner already admitted",
			"commissionerId", id, "admitted", a.commissionerID, "sessionId", a.sessionID)
		a.respond(req, petitionResponse(meshcop.StateReject, 0, nil))
		return
	}

	locator, ok := meshcop.Locator(req.Source.Addr())
	if !ok {
		locator = a.rloc16()
	}

	a.sessionID++
	a.state = StateAdmitted
	a.commissionerID = id
	a.borderAgent = locator
	a.peer = req.Source

	var d meshcop.Dataset
	d.Set(meshcop.TLVBorderAgentLocator, meshcop.Uint16Bytes(locator))
	d.Set(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(a.sessionID))
	d.Set(meshcop.TLVSteeringData, []byte{0})
	a.netdata.SetCommissioningData(d)
	a.keepAliveTimer.Start(PetitionTimeout)

	a.logger.Info("commissioner admitted", "commissionerId", id, "sessionId", a.sessionID,
		"borderAgent", fmt.Sprintf("0x%04x", locator))
	a.events.StateChange(log.StateEntityAdmission, StateIdle.String(), StateAdmitted.String(), id)

	a.respond(req, petitionResponse(meshcop.StateAccept, a.sessionID, v))

	if a.onAdmitted != nil {
		a.onAdmitted(req.Source, locator)
	}
}

func (a *Admission) handleKeepAlive(req *coap.Request) {
	state, session, err := parseKeepAlive(req.Payload)
	if err != nil {
		if a.state == StateAdmitted {
			a.logger.Info("malformed keep-alive", "source", req.Source, "error", err)
			a.resign("malformed keep-alive")
		}
		return
	}

	switch {
	case a.state != StateAdmitted:
		a.respond(req, stateTLV(meshcop.StateReject))

	case session != a.sessionID:
		a.logger.Info("keep-alive session mismatch", "got", session, "want", a.sessionID)
		a.resign("session mismatch")
		a.respond(req, stateTLV(meshcop.StateReject))

	case state != meshcop.StateAccept:
		a.resign("commissioner resigned")
		a.respond(req, stateTLV(meshcop.StateReject))

	default:
		a.keepAliveTimer.Start(PetitionTimeout)
		a.respond(req, stateTLV(meshcop.StateAccept))
	}
}

func (a *Admission) handleTimeout() {
	if a.state != StateAdmitted {
		return
	}
	a.logger.Info("commissioner keep-alive timeout", "sessionId", a.sessionID)
	a.resign("keep-alive timeout")
}

func (a *Admission) resign(reason string) {
	a.keepAliveTimer.Stop()
	a.state = StateIdle
	a.commissionerID = ""
	a.peer = netip.AddrPort{}
	a.netdata.ClearCommissioningData()

	a.events.StateChange(log.StateEntityAdmission, StateAdmitted.String(), StateIdle.String(), reason)
}

func (a *Admission) respond(req *coap.Request, payload []byte) {
	if err := req.Respond(coap.CodeChanged, payload); err != nil {
		a.logger.Warn("failed to send admission response", "uri", req.URIPath, "error", err)
	}
}

func parseKeepAlive(b []byte) (meshcop.State, uint16, error) {
	v, ok, err := tlv.Find(b, uint8(meshcop.TLVState))
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("missing %s", meshcop.TLVState)
	}
	state, err := meshcop.ParseState(v)
	if err != nil {
		return 0, 0, err
	}

	v, ok, err = tlv.Find(b, uint8(meshcop.TLVCommissionerSessionID))
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("missing %s", meshcop.TLVCommissionerSessionID)
	}
	session, err := meshcop.ParseUint16(v)
	if err != nil {
		return 0, 0, err
	}
	return state, session, nil
}

func petitionResponse(state meshcop.State, session uint16, id []byte) []byte {
	b := stateTLV(state)
	if state != meshcop.StateAccept {
		return b
	}
	b, _ = tlv.Append(b, uint8(meshcop.TLVCommissionerSessionID), meshcop.Uint16Bytes(session))
	b, _ = tlv.Append(b, uint8(meshcop.TLVCommissionerID), id)
	return b
}

func stateTLV(s meshcop.State) []byte {
	b, _ := tlv.Append(nil, uint8(meshcop.TLVState), s.Bytes())
	return b
}
