package commissioner

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/dataset"
	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

// KeepAliveInterval is the keep-alive period, half of the leader's
// petition timeout, in milliseconds.
const KeepAliveInterval uint32 = 25_000

// Errors returned by Commissioner.
var (
	ErrInvalidState = errors.New("commissioner: invalid state")
	ErrInvalidArgs  = errors.New("commissioner: invalid arguments")
	ErrRejected     = errors.New("commissioner: rejected by leader")
	ErrMalformed    = errors.New("commissioner: malformed response")
)

// State is the commissioner state.
type State uint8

const (
	StateDisabled State = iota
	StatePetitioning
	StateActive
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StatePetitioning:
		return "PETITIONING"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Commissioner.
type Config struct {
	// Scheduler drives the keep-alive timer. Required.
	Scheduler *timer.Scheduler

	// Agent carries the requests. Required.
	Agent *coap.Agent

	// Leader is the management address of the leader or the border agent
	// relaying to it. Required.
	Leader netip.AddrPort

	// OnStateChanged is called after every state change. Optional.
	OnStateChanged func(State)

	// OnDatasetChanged is called when the leader reports a dataset change
	// made by someone else. Optional.
	OnDatasetChanged func()

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger

	// Events receives commissioner state changes. May be nil.
	Events *log.Emitter
}

// Commissioner is an external commissioner.
type Commissioner struct {
	agent            *coap.Agent
	leader           netip.AddrPort
	onStateChanged   func(State)
	onDatasetChanged func()
	logger           *slog.Logger
	events           *log.Emitter

	state          State
	id             string
	sessionID      uint16
	keepAliveTimer *timer.Timer
}

// New creates a disabled Commissioner.
func New(cfg Config) *Commissioner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Commissioner{
		agent:            cfg.Agent,
		leader:           cfg.Leader,
		onStateChanged:   cfg.OnStateChanged,
		onDatasetChanged: cfg.OnDatasetChanged,
		logger:           logger,
		events:           cfg.Events,
	}
	c.keepAliveTimer = cfg.Scheduler.NewTimer(timer.HandlerFunc(c.sendKeepAlive))
	return c
}

// State returns the commissioner state.
func (c *Commissioner) State() State {
	return c.state
}

// ID returns the commissioner identifier passed to Start.
func (c *Commissioner) ID() string {
	return c.id
}

// SessionID returns the session granted by the leader while active.
func (c *Commissioner) SessionID() (uint16, bool) {
	return c.sessionID, c.state == StateActive
}

// Start petitions the leader with the given identifier.
func (c *Commissioner) Start(id string) error {
	if c.state != StateDisabled {
		return fmt.Errorf("%w: %s", ErrInvalidState, c.state)
	}
	if id == "" || len(id) > meshcop.MaxCommissionerIDLength {
		return fmt.Errorf("%w: commissioner id length %d", ErrInvalidArgs, len(id))
	}

	payload, err := tlv.Append(nil, uint8(meshcop.TLVCommissionerID), []byte(id))
	if err != nil {
		return err
	}
	req := coap.NewRequest(coap.Confirmable, coap.CodePost, meshcop.URIPetition, payload)
	if err := c.agent.SendRequest(req, c.leader, coap.ResponseHandlerFunc(c.handlePetitionResponse)); err != nil {
		return err
	}

	c.id = id
	c.agent.AddResource(meshcop.URIDatasetChanged, coap.HandlerFunc(c.handleDatasetChanged))
	c.setState(StatePetitioning, "petition sent")
	c.logger.Info("petitioning leader", "commissionerId", id, "leader", c.leader)
	return nil
}

// Stop resigns the session, if any, and disables the commissioner.
func (c *Commissioner) Stop() {
	if c.state == StateDisabled {
		return
	}
	if c.state == StateActive {
		if err := c.send(meshcop.URIKeepAlive, keepAlivePayload(meshcop.StateReject, c.sessionID), nil); err != nil {
			c.logger.Warn("failed to send resignation", "error", err)
		}
	}
	c.disable("stopped")
}

func (c *Commissioner) handlePetitionResponse(resp *coap.Message, _ netip.AddrPort, err error) {
	if c.state != StatePetitioning {
		// Stopped while waiting. Give back a session we no longer want.
		if err == nil && c.state == StateDisabled {
			if state, session, perr := parsePetitionResponse(resp); perr == nil && state == meshcop.StateAccept {
				_ = c.send(meshcop.URIKeepAlive, keepAlivePayload(meshcop.StateReject, session), nil)
			}
		}
		return
	}

	if err != nil {
		c.logger.Warn("petition failed", "error", err)
		c.disable("petition failed")
		return
	}

	state, session, err := parsePetitionResponse(resp)
	if err != nil {
		c.logger.Warn("malformed petition response", "error", err)
		c.disable("malformed petition response")
		return
	}
	if state != meshcop.StateAccept {
		c.logger.Info("petition rejected", "commissionerId", c.id)
		c.disable("petition rejected")
		return
	}

	c.sessionID = session
	c.keepAliveTimer.Start(KeepAliveInterval)
	c.setState(StateActive, "petition accepted")
	c.logger.Info("commissioner active", "sessionId", session)
}

func (c *Commissioner) sendKeepAlive() {
	if c.state != StateActive {
		return
	}
	payload := keepAlivePayload(meshcop.StateAccept, c.sessionID)
	if err := c.send(meshcop.URIKeepAlive, payload, coap.ResponseHandlerFunc(c.handleKeepAliveResponse)); err != nil {
		c.logger.Warn("failed to send keep-alive", "error", err)
		c.keepAliveTimer.Start(KeepAliveInterval)
	}
}

func (c *Commissioner) handleKeepAliveResponse(resp *coap.Message, _ netip.AddrPort, err error) {
	if c.state != StateActive {
		return
	}
	if err != nil {
		c.logger.Warn("keep-alive failed", "error", err)
		c.keepAliveTimer.Start(KeepAliveInterval)
		return
	}

	state, err := responseState(resp)
	if err != nil || state != meshcop.StateAccept {
		c.logger.Info("keep-alive rejected, session lost", "sessionId", c.sessionID)
		c.disable("keep-alive rejected")
		return
	}
	c.keepAliveTimer.Start(KeepAliveInterval)
}

func (c *Commissioner) handleDatasetChanged(req *coap.Request) {
	if req.IsConfirmable() {
		if err := req.Respond(coap.CodeChanged, nil); err != nil {
			c.logger.Warn("failed to acknowledge dataset changed", "error", err)
		}
	}
	c.logger.Info("leader reports dataset change", "source", req.Source)
	if c.onDatasetChanged != nil {
		c.onDatasetChanged()
	}
}

// SendMgmtSet sends MGMT_ACTIVE_SET or MGMT_PENDING_SET with the session ID
// prepended. done receives the leader's State.
func (c *Commissioner) SendMgmtSet(typ dataset.Type, info meshcop.Dataset, done func(meshcop.State, error)) error {
	if c.state != StateActive {
		return fmt.Errorf("%w: %s", ErrInvalidState, c.state)
	}

	uri := meshcop.URIActiveSet
	if typ == dataset.TypePending {
		uri = meshcop.URIPendingSet
	}
	d := info.Clone()
	d.Remove(meshcop.TLVCommissionerSessionID)
	payload := append(c.sessionTLV(), d.Bytes()...)
	return c.send(uri, payload, stateHandler(done))
}

// SendMgmtGet sends MGMT_ACTIVE_GET or MGMT_PENDING_GET. An empty types
// list asks for every TLV.
func (c *Commissioner) SendMgmtGet(typ dataset.Type, types []meshcop.TLVType, done func(meshcop.Dataset, error)) error {
	uri := meshcop.URIActiveGet
	if typ == dataset.TypePending {
		uri = meshcop.URIPendingGet
	}
	return c.send(uri, getPayload(types), datasetHandler(done))
}

// SendCommissionerSet sends MGMT_COMMISSIONER_SET with the session ID
// prepended.
func (c *Commissioner) SendCommissionerSet(d meshcop.Dataset, done func(meshcop.State, error)) error {
	if c.state != StateActive {
		return fmt.Errorf("%w: %s", ErrInvalidState, c.state)
	}
	data := d.Clone()
	data.Remove(meshcop.TLVCommissionerSessionID)
	payload := append(c.sessionTLV(), data.Bytes()...)
	return c.send(meshcop.URICommissionerSet, payload, stateHandler(done))
}

// SendCommissionerGet sends MGMT_COMMISSIONER_GET.
func (c *Commissioner) SendCommissionerGet(types []meshcop.TLVType, done func(meshcop.Dataset, error)) error {
	return c.send(meshcop.URICommissionerGet, getPayload(types), datasetHandler(done))
}

func (c *Commissioner) send(uri string, payload []byte, h coap.ResponseHandler) error {
	req := coap.NewRequest(coap.Confirmable, coap.CodePost, uri, payload)
	return c.agent.SendRequest(req, c.leader, h)
}

func (c *Commissioner) sessionTLV() []byte {
	b, _ := tlv.Append(nil, uint8(meshcop.TLVCommissionerSessionID), meshcop.Uint16Bytes(c.sessionID))
	return b
}

func (c *Commissioner) disable(reason string) {
	c.keepAliveTimer.Stop()
	c.agent.RemoveResource(meshcop.URIDatasetChanged)
	c.setState(StateDisabled, reason)
}

func (c *Commissioner) setState(s State, reason string) {
	if s == c.state {
		return
	}
	old := c.state
	c.state = s
	c.events.StateChange(log.StateEntityCommissioner, old.String(), s.String(), reason)
	if c.onStateChanged != nil {
		c.onStateChanged(s)
	}
}

func keepAlivePayload(state meshcop.State, session uint16) []byte {
	b, _ := tlv.Append(nil, uint8(meshcop.TLVState), state.Bytes())
	b, _ = tlv.Append(b, uint8(meshcop.TLVCommissionerSessionID), meshcop.Uint16Bytes(session))
	return b
}

func getPayload(types []meshcop.TLVType) []byte {
	if len(types) == 0 {
		return nil
	}
	list := make([]byte, len(types))
	for i, t := range types {
		list[i] = uint8(t)
	}
	b, _ := tlv.Append(nil, uint8(meshcop.TLVGet), list)
	return b
}

func responseState(resp *coap.Message) (meshcop.State, error) {
	if !resp.Code.IsSuccess() {
		return meshcop.StateReject, fmt.Errorf("%w: code %s", ErrMalformed, resp.Code)
	}
	v, ok, err := tlv.Find(resp.Payload, uint8(meshcop.TLVState))
	if err != nil || !ok {
		return meshcop.StateReject, ErrMalformed
	}
	s, err := meshcop.ParseState(v)
	if err != nil {
		return meshcop.StateReject, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return s, nil
}

func parsePetitionResponse(resp *coap.Message) (meshcop.State, uint16, error) {
	state, err := responseState(resp)
	if err != nil || state != meshcop.StateAccept {
		return state, 0, err
	}
	v, ok, err := tlv.Find(resp.Payload, uint8(meshcop.TLVCommissionerSessionID))
	if err != nil || !ok {
		return meshcop.StateReject, 0, fmt.Errorf("%w: missing session id", ErrMalformed)
	}
	session, err := meshcop.ParseUint16(v)
	if err != nil {
		return meshcop.StateReject, 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return state, session, nil
}

func stateHandler(done func(meshcop.State, error)) coap.ResponseHandler {
	if done == nil {
		return nil
	}
	return coap.ResponseHandlerFunc(func(resp *coap.Message, _ netip.AddrPort, err error) {
		if err != nil {
			done(meshcop.StateReject, err)
			return
		}
		s, err := responseState(resp)
		if err == nil && s != meshcop.StateAccept {
			err = ErrRejected
		}
		done(s, err)
	})
}

func datasetHandler(done func(meshcop.Dataset, error)) coap.ResponseHandler {
	if done == nil {
		return nil
	}
	return coap.ResponseHandlerFunc(func(resp *coap.Message, _ netip.AddrPort, err error) {
		if err != nil {
			done(meshcop.Dataset{}, err)
			return
		}
		if !resp.Code.IsSuccess() {
			done(meshcop.Dataset{}, fmt.Errorf("%w: code %s", ErrMalformed, resp.Code))
			return
		}
		d, err := meshcop.ParseDataset(resp.Payload)
		done(d, err)
	})
}
