package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/notifier"
	"github.com/mesh-protocol/meshcop-go/pkg/settings"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

// Errors returned by the managers.
var (
	// ErrInvalidArgs is returned for a dataset that cannot be stored.
	ErrInvalidArgs = errors.New("dataset: invalid arguments")

	// ErrBusy is returned while a previous Set request is outstanding.
	ErrBusy = errors.New("dataset: set request in progress")

	// ErrStale is returned for an Active dataset older than the current one.
	ErrStale = errors.New("dataset: stale timestamp")

	// ErrMalformedResponse is delivered when a response lacks a valid State TLV.
	ErrMalformedResponse = errors.New("dataset: malformed response")
)

// registerDelay is the retry period for pushing a newer local dataset to
// the leader, in milliseconds.
const registerDelay uint32 = 1000

// Type selects the Active or Pending dataset.
type Type uint8

const (
	TypeActive Type = iota
	TypePending
)

// String returns the type name.
func (t Type) String() string {
	if t == TypePending {
		return "pending"
	}
	return "active"
}

// TimestampTLV returns the TLV that orders datasets of this type.
func (t Type) TimestampTLV() meshcop.TLVType {
	if t == TypePending {
		return meshcop.TLVPendingTimestamp
	}
	return meshcop.TLVActiveTimestamp
}

func (t Type) setURI() string {
	if t == TypePending {
		return meshcop.URIPendingSet
	}
	return meshcop.URIActiveSet
}

func (t Type) getURI() string {
	if t == TypePending {
		return meshcop.URIPendingGet
	}
	return meshcop.URIActiveGet
}

// KeyManager is the subset of keymgr.KeyManager the managers drive.
type KeyManager interface {
	NetworkKey() []byte
	SetNetworkKey(key []byte) error
	CurrentKeySequence() uint32
	SetCurrentKeySequence(n uint32)
	SetPSKc(pskc []byte)
	SecurityPolicy() meshcop.SecurityPolicy
	SetSecurityPolicy(p meshcop.SecurityPolicy) error
}

// NetworkData is the leader's commissioning data and versioning.
type NetworkData interface {
	SessionID() (uint16, bool)
	BorderAgentLocator() (uint16, bool)
	IncrementVersion(stable bool)
}

// Config configures both managers.
type Config struct {
	// Scheduler drives the commit and registration timers. Required.
	Scheduler *timer.Scheduler

	// Agent carries management requests. Required.
	Agent *coap.Agent

	// KeyManager receives key material from the Active dataset. Required.
	KeyManager KeyManager

	// NetworkData is consulted by the leader for the commissioner session.
	// Without it every Set carrying a session ID is rejected.
	NetworkData NetworkData

	// Store persists the Active dataset. Optional.
	Store settings.Store

	// Notifier receives ActiveDatasetChanged and PendingDatasetChanged.
	Notifier *notifier.Notifier

	// Role reports the node role.
	Role func() meshcop.DeviceRole

	// MeshLocalPrefix returns the prefix used to address the leader and
	// border agents.
	MeshLocalPrefix func() netip.Prefix

	// CommissionerSession reports the session of a local commissioner.
	// Set requests sent while it is active carry the session ID.
	CommissionerSession func() (uint16, bool)

	// ApplyParams receives the link and mesh parameters of the Active
	// dataset. Optional.
	ApplyParams func(meshcop.NetworkParams)

	// DelayTimerMinimal is the floor for Pending delays, in milliseconds.
	// Defaults to meshcop.DelayTimerMinimal.
	DelayTimerMinimal uint32

	// Logger is the optional logger. If nil, logging is disabled.
	Logger *slog.Logger

	// Events receives state change capture events. May be nil.
	Events *log.Emitter
}

// shared holds what both managers use.
type shared struct {
	sched        *timer.Scheduler
	agent        *coap.Agent
	keys         KeyManager
	netdata      NetworkData
	store        settings.Store
	notifier     *notifier.Notifier
	role         func() meshcop.DeviceRole
	prefix       func() netip.Prefix
	commissioner func() (uint16, bool)
	applyParams  func(meshcop.NetworkParams)
	delayFloor   uint32
	logger       *slog.Logger
	events       *log.Emitter

	active  *Active
	pending *Pending
}

// New creates the Active and Pending managers of one stack instance.
func New(cfg Config) (*Active, *Pending) {
	s := &shared{
		sched:        cfg.Scheduler,
		agent:        cfg.Agent,
		keys:         cfg.KeyManager,
		netdata:      cfg.NetworkData,
		store:        cfg.Store,
		notifier:     cfg.Notifier,
		role:         cfg.Role,
		prefix:       cfg.MeshLocalPrefix,
		commissioner: cfg.CommissionerSession,
		applyParams:  cfg.ApplyParams,
		delayFloor:   cfg.DelayTimerMinimal,
		logger:       cfg.Logger,
		events:       cfg.Events,
	}
	if s.role == nil {
		s.role = func() meshcop.DeviceRole { return meshcop.RoleDisabled }
	}
	if s.prefix == nil {
		s.prefix = func() netip.Prefix { return netip.Prefix{} }
	}
	if s.commissioner == nil {
		s.commissioner = func() (uint16, bool) { return 0, false }
	}
	if s.delayFloor == 0 {
		s.delayFloor = meshcop.DelayTimerMinimal
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	s.active = newActive(s)
	s.pending = newPending(s)
	return s.active, s.pending
}

// Manager is the behavior shared by the Active and Pending managers.
type Manager struct {
	*shared

	typ     Type
	local   meshcop.Dataset
	network meshcop.Dataset

	registerTimer *timer.Timer
	setInFlight   bool

	// updated runs the role specific reaction to a local or network change.
	updated func(local, network bool)
}

func (m *Manager) init(s *shared, typ Type, updated func(local, network bool)) {
	m.shared = s
	m.typ = typ
	m.updated = updated
	m.registerTimer = s.sched.NewTimer(timer.HandlerFunc(m.handleRegisterTimer))
}

// Type returns which dataset this manager holds.
func (m *Manager) Type() Type {
	return m.typ
}

// Start registers the management resources.
func (m *Manager) Start() {
	m.agent.AddResource(m.typ.setURI(), coap.HandlerFunc(m.handleSet))
	m.agent.AddResource(m.typ.getURI(), coap.HandlerFunc(m.handleGet))
}

// Stop unregisters the management resources and stops registration.
func (m *Manager) Stop() {
	m.agent.RemoveResource(m.typ.setURI())
	m.agent.RemoveResource(m.typ.getURI())
	m.registerTimer.Stop()
}

// Get returns the local dataset completed with TLVs only the network
// dataset holds. Local values win.
func (m *Manager) Get() meshcop.Dataset {
	d := m.local.Clone()
	d.Merge(&m.network)
	return d
}

// Local returns a copy of the local dataset.
func (m *Manager) Local() meshcop.Dataset {
	return m.local.Clone()
}

// Network returns a copy of the network dataset.
func (m *Manager) Network() meshcop.Dataset {
	return m.network.Clone()
}

// Timestamp returns the network dataset's ordering timestamp.
func (m *Manager) Timestamp() (meshcop.Timestamp, bool) {
	return m.timestampOf(&m.network)
}

// LocalTimestamp returns the local dataset's ordering timestamp.
func (m *Manager) LocalTimestamp() (meshcop.Timestamp, bool) {
	return m.timestampOf(&m.local)
}

func (m *Manager) timestampOf(d *meshcop.Dataset) (meshcop.Timestamp, bool) {
	if m.typ == TypePending {
		return d.PendingTimestamp()
	}
	return d.ActiveTimestamp()
}

// compareLocalNetwork returns 1 if the local dataset is newer than the
// network one, -1 if older and 0 if equal. A missing timestamp is older than
// any present one.
func (m *Manager) compareLocalNetwork() int {
	lts, lok := m.timestampOf(&m.local)
	nts, nok := m.timestampOf(&m.network)
	switch {
	case lok && nok:
		return lts.Compare(nts)
	case lok:
		return 1
	case nok:
		return -1
	default:
		return 0
	}
}

// SaveLocal stores an operator supplied dataset. On the leader it becomes
// the network dataset immediately; on other attached nodes it is offered to
// the leader until the leader confirms it.
func (m *Manager) SaveLocal(d meshcop.Dataset) error {
	if err := m.checkStorable(&d); err != nil {
		return err
	}

	m.local = d.Clone()
	m.storeLocal()

	network := false
	switch role := m.role(); {
	case role == meshcop.RoleLeader:
		m.network = m.local.Clone()
		network = true
		if m.netdata != nil {
			m.netdata.IncrementVersion(true)
		}
	case role.IsAttached():
		m.registerTimer.Start(registerDelay)
	}

	m.updated(true, network)
	return nil
}

// SaveNetwork stores a dataset learned from the leader. A newer network
// dataset replaces the local one; an older one causes the local dataset to
// be offered to the leader again.
func (m *Manager) SaveNetwork(d meshcop.Dataset) error {
	if err := m.checkStorable(&d); err != nil {
		return err
	}

	if m.typ == TypeActive {
		ts, _ := m.timestampOf(&d)
		if cur, ok := m.timestampOf(&m.network); ok {
			switch ts.Compare(cur) {
			case -1:
				return fmt.Errorf("%w: %s older than %s", ErrStale, ts, cur)
			case 0:
				if d.Equal(&m.network) {
					return nil
				}
			}
		}
	} else {
		m.pending.applyDelayFloor(&d)
	}

	m.network = d.Clone()
	m.handleNetworkUpdate()
	return nil
}

func (m *Manager) checkStorable(d *meshcop.Dataset) error {
	if d.Size() > meshcop.MaxDatasetSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidArgs, d.Size())
	}
	if _, ok := m.timestampOf(d); !ok {
		return fmt.Errorf("%w: missing %s", ErrInvalidArgs, m.typ.TimestampTLV())
	}
	if m.typ == TypePending && !d.Has(meshcop.TLVDelayTimer) {
		return fmt.Errorf("%w: missing %s", ErrInvalidArgs, meshcop.TLVDelayTimer)
	}
	return nil
}

func (m *Manager) handleNetworkUpdate() {
	local := false
	switch m.compareLocalNetwork() {
	case -1:
		m.local = m.network.Clone()
		m.storeLocal()
		local = true
	case 1:
		m.registerTimer.Start(registerDelay)
	}
	m.updated(local, true)
}

// Clear removes both datasets.
func (m *Manager) Clear() {
	m.local.Clear()
	m.network.Clear()
	m.registerTimer.Stop()

	if m.typ == TypeActive && m.store != nil {
		if err := m.store.Delete(settings.KeyActiveDataset, settings.DeleteAll); err != nil && !errors.Is(err, settings.ErrNotFound) {
			m.logger.Warn("failed to delete active dataset", "error", err)
		}
	}

	m.updated(true, true)
}

func (m *Manager) storeLocal() {
	if m.typ != TypeActive || m.store == nil {
		return
	}
	if err := m.store.Set(settings.KeyActiveDataset, m.local.Bytes()); err != nil {
		m.logger.Warn("failed to store active dataset", "error", err)
	}
}

// handleRegisterTimer pushes a newer local dataset to the leader and keeps
// retrying until the leader's copy catches up. Retries stop while a Pending
// dataset is about to replace the local Active one.
func (m *Manager) handleRegisterTimer() {
	if !m.role().IsAttached() || m.compareLocalNetwork() <= 0 {
		return
	}

	m.register()

	localActive, ok := m.active.local.ActiveTimestamp()
	if !ok {
		return
	}
	if pendingActive, ok := m.pending.network.ActiveTimestamp(); ok && pendingActive.Compare(localActive) >= 0 {
		return
	}
	m.registerTimer.Start(registerDelay)
}

func (m *Manager) register() {
	d := m.local.Clone()
	if m.typ == TypePending {
		m.pending.withRemainingDelay(&d, m.pending.localTime)
	}

	req := coap.NewRequest(coap.Confirmable, coap.CodePost, m.typ.setURI(), d.Bytes())
	if err := m.agent.SendRequest(req, m.leaderAddr(), nil); err != nil {
		m.logger.Warn("failed to register dataset with leader", "dataset", m.typ, "error", err)
		return
	}
	m.logger.Debug("sent dataset to leader", "dataset", m.typ)
}

func (m *Manager) leaderAddr() netip.AddrPort {
	return netip.AddrPortFrom(meshcop.LeaderAddr(m.prefix()), meshcop.ManagementPort)
}

// SendSetRequest sends MGMT_SET for this dataset to the leader. info holds
// the dataset TLVs and extra any additional raw TLVs. While a local
// commissioner is active the session ID is added unless already present.
// done is called once with the leader's State, or with an error.
func (m *Manager) SendSetRequest(info meshcop.Dataset, extra []tlv.TLV, done func(meshcop.State, error)) error {
	if m.setInFlight {
		return ErrBusy
	}

	var payload []byte
	if session, ok := m.commissioner(); ok && !hasSessionID(&info, extra) {
		payload, _ = tlv.Append(payload, uint8(meshcop.TLVCommissionerSessionID), meshcop.Uint16Bytes(session))
	}
	payload = append(payload, info.Bytes()...)
	for _, r := range extra {
		var err error
		if payload, err = tlv.Append(payload, r.Type, r.Value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgs, err)
		}
	}

	h := coap.ResponseHandlerFunc(func(resp *coap.Message, _ netip.AddrPort, err error) {
		m.setInFlight = false
		if done == nil {
			return
		}
		if err != nil {
			done(meshcop.StateReject, err)
			return
		}
		state, err := responseState(resp)
		done(state, err)
	})

	req := coap.NewRequest(coap.Confirmable, coap.CodePost, m.typ.setURI(), payload)
	if err := m.agent.SendRequest(req, m.leaderAddr(), h); err != nil {
		return err
	}
	m.setInFlight = true

	m.logger.Debug("sent dataset set request", "dataset", m.typ)
	return nil
}

// SendGetRequest sends MGMT_GET for this dataset. An empty types list asks
// for every TLV. A zero dst addresses the leader. done receives the returned
// TLVs or an error.
func (m *Manager) SendGetRequest(types []meshcop.TLVType, dst netip.Addr, done func(meshcop.Dataset, error)) error {
	var payload []byte
	if len(types) > 0 {
		list := make([]byte, len(types))
		for i, t := range types {
			list[i] = uint8(t)
		}
		var err error
		if payload, err = tlv.Append(nil, uint8(meshcop.TLVGet), list); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgs, err)
		}
	}

	to := m.leaderAddr()
	if dst.IsValid() {
		to = netip.AddrPortFrom(dst, meshcop.ManagementPort)
	}

	var h coap.ResponseHandler
	if done != nil {
		h = coap.ResponseHandlerFunc(func(resp *coap.Message, _ netip.AddrPort, err error) {
			if err != nil {
				done(meshcop.Dataset{}, err)
				return
			}
			d, err := meshcop.ParseDataset(resp.Payload)
			done(d, err)
		})
	}

	return m.agent.SendRequest(coap.NewRequest(coap.Confirmable, coap.CodePost, m.typ.getURI(), payload), to, h)
}

// handleGet serves MGMT_GET from the network dataset. The network key is
// only disclosed when the security policy allows obtaining it.
func (m *Manager) handleGet(req *coap.Request) {
	d := m.network.Clone()
	if m.typ == TypePending {
		m.pending.withRemainingDelay(&d, m.pending.networkTime)
	}
	allowKey := m.keys.SecurityPolicy().ObtainNetworkKey()

	// A Get TLV narrows the response; without one every TLV is served.
	var want mapset.Set[meshcop.TLVType]
	if types, ok, err := tlv.Find(req.Payload, uint8(meshcop.TLVGet)); err == nil && ok && len(types) > 0 {
		want = mapset.NewThreadUnsafeSet[meshcop.TLVType]()
		for _, t := range types {
			want.Add(meshcop.TLVType(t))
		}
	}

	var out meshcop.Dataset
	for _, r := range d.TLVs() {
		typ := meshcop.TLVType(r.Type)
		if want != nil && !want.Contains(typ) {
			continue
		}
		if typ == meshcop.TLVNetworkKey && !allowKey {
			continue
		}
		out.Set(typ, r.Value)
	}

	if err := req.Respond(coap.CodeChanged, out.Bytes()); err != nil {
		m.logger.Warn("failed to send dataset get response", "dataset", m.typ, "error", err)
	}
}

func (m *Manager) signal() {
	flag := notifier.ActiveDatasetChanged
	entity := log.StateEntityActiveDataset
	if m.typ == TypePending {
		flag = notifier.PendingDatasetChanged
		entity = log.StateEntityPendingDataset
	}

	state := "empty"
	if ts, ok := m.timestampOf(&m.network); ok {
		state = ts.String()
	}
	m.events.StateChange(entity, "", state, "")
	m.notifier.Signal(flag)
}

func hasSessionID(info *meshcop.Dataset, extra []tlv.TLV) bool {
	if info.Has(meshcop.TLVCommissionerSessionID) {
		return true
	}
	for _, r := range extra {
		if meshcop.TLVType(r.Type) == meshcop.TLVCommissionerSessionID {
			return true
		}
	}
	return false
}

func responseState(resp *coap.Message) (meshcop.State, error) {
	v, ok, err := tlv.Find(resp.Payload, uint8(meshcop.TLVState))
	if err != nil || !ok {
		return meshcop.StateReject, ErrMalformedResponse
	}
	s, err := meshcop.ParseState(v)
	if err != nil {
		return meshcop.StateReject, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return s, nil
}

func stateTLV(s meshcop.State) []byte {
	b, _ := tlv.Append(nil, uint8(meshcop.TLVState), s.Bytes())
	return b
}
