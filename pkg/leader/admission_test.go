package leader

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/netdata"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

const (
	leaderRLOC16       uint16 = 0x0400
	commissionerRLOC16 uint16 = 0x0c00
)

var prefix = netip.MustParsePrefix("fd00:db8::/64")

type eventRecorder struct {
	events []log.Event
}

func (r *eventRecorder) Log(e log.Event) {
	r.events = append(r.events, e)
}

type fixture struct {
	plat    *timer.ManualPlatform
	loop    *coap.Loopback
	adm     *Admission
	netdata *netdata.Leader
	comm    *coap.Agent
	events  eventRecorder
	role    meshcop.DeviceRole

	admitted []netip.AddrPort
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureAt(t, netip.AddrPortFrom(meshcop.LocatorAddr(prefix, commissionerRLOC16), meshcop.ManagementPort))
}

func newFixtureAt(t *testing.T, commAddr netip.AddrPort) *fixture {
	t.Helper()

	p := timer.NewManualPlatform(0)
	sched := timer.NewScheduler(p, p)
	loop := coap.NewLoopback()

	epLeader := loop.Endpoint(netip.AddrPortFrom(meshcop.LocatorAddr(prefix, leaderRLOC16), meshcop.ManagementPort))
	epLeader.AddAddress(netip.AddrPortFrom(meshcop.LeaderAddr(prefix), meshcop.ManagementPort))
	epComm := loop.Endpoint(commAddr)

	leaderAgent := coap.NewAgent(coap.AgentConfig{Scheduler: sched, Endpoint: epLeader})
	commAgent := coap.NewAgent(coap.AgentConfig{Scheduler: sched, Endpoint: epComm})
	epLeader.SetReceiver(leaderAgent.Receive)
	epComm.SetReceiver(commAgent.Receive)

	f := &fixture{plat: p, loop: loop, comm: commAgent, role: meshcop.RoleLeader}
	f.netdata = netdata.New(netdata.Config{})
	f.adm = New(Config{
		Scheduler:   sched,
		Agent:       leaderAgent,
		NetworkData: f.netdata,
		Role:        func() meshcop.DeviceRole { return f.role },
		RLOC16:      func() uint16 { return leaderRLOC16 },
		OnAdmitted: func(src netip.AddrPort, _ uint16) {
			f.admitted = append(f.admitted, src)
		},
		Events: &log.Emitter{Logger: &f.events, NodeID: "leader"},
	})
	f.adm.Start()
	return f
}

type response struct {
	called  bool
	err     error
	code    coap.Code
	payload []byte
}

func (r *response) state(t *testing.T) meshcop.State {
	t.Helper()
	require.True(t, r.called, "no response")
	require.NoError(t, r.err)
	v, ok, err := tlv.Find(r.payload, uint8(meshcop.TLVState))
	require.NoError(t, err)
	require.True(t, ok, "missing state tlv")
	s, err := meshcop.ParseState(v)
	require.NoError(t, err)
	return s
}

func (r *response) session(t *testing.T) uint16 {
	t.Helper()
	v, ok, err := tlv.Find(r.payload, uint8(meshcop.TLVCommissionerSessionID))
	require.NoError(t, err)
	require.True(t, ok, "missing session tlv")
	s, err := meshcop.ParseUint16(v)
	require.NoError(t, err)
	return s
}

func (f *fixture) send(t *testing.T, uri string, payload []byte) *response {
	t.Helper()
	r := &response{}
	dst := netip.AddrPortFrom(meshcop.LeaderAddr(prefix), meshcop.ManagementPort)
	err := f.comm.SendRequest(coap.NewRequest(coap.Confirmable, coap.CodePost, uri, payload), dst,
		coap.ResponseHandlerFunc(func(m *coap.Message, _ netip.AddrPort, err error) {
			r.called = true
			r.err = err
			if m != nil {
				r.code = m.Code
				r.payload = m.Payload
			}
		}))
	require.NoError(t, err)
	f.loop.Flush()
	return r
}

func (f *fixture) petition(t *testing.T, id string) *response {
	t.Helper()
	b, err := tlv.Append(nil, uint8(meshcop.TLVCommissionerID), []byte(id))
	require.NoError(t, err)
	return f.send(t, meshcop.URIPetition, b)
}

func (f *fixture) keepAlive(t *testing.T, state meshcop.State, session uint16) *response {
	t.Helper()
	b, _ := tlv.Append(nil, uint8(meshcop.TLVState), state.Bytes())
	b, _ = tlv.Append(b, uint8(meshcop.TLVCommissionerSessionID), meshcop.Uint16Bytes(session))
	return f.send(t, meshcop.URIKeepAlive, b)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "ADMITTED", StateAdmitted.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}

func TestPetitionAccepted(t *testing.T) {
	f := newFixture(t)

	r := f.petition(t, "A")
	require.Equal(t, meshcop.StateAccept, r.state(t))
	assert.Equal(t, uint16(1), r.session(t))
	id, ok, err := tlv.Find(r.payload, uint8(meshcop.TLVCommissionerID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", string(id))

	assert.Equal(t, StateAdmitted, f.adm.State())
	assert.Equal(t, "A", f.adm.CommissionerID())
	session, ok := f.adm.SessionID()
	require.True(t, ok)
	assert.Equal(t, uint16(1), session)

	loc, ok := f.netdata.BorderAgentLocator()
	require.True(t, ok)
	assert.Equal(t, commissionerRLOC16, loc)
	nds, ok := f.netdata.SessionID()
	require.True(t, ok)
	assert.Equal(t, uint16(1), nds)
	data, _ := f.netdata.CommissioningData()
	steering, ok := data.Get(meshcop.TLVSteeringData)
	require.True(t, ok)
	assert.Equal(t, []byte{0}, steering)

	deadline, ok := f.adm.KeepAliveDeadline()
	require.True(t, ok)
	assert.Equal(t, PetitionTimeout, deadline)

	require.Len(t, f.admitted, 1)
	peer, ok := f.adm.Peer()
	require.True(t, ok)
	assert.Equal(t, f.admitted[0], peer)

	require.NotEmpty(t, f.events.events)
	sc := f.events.events[len(f.events.events)-1].StateChange
	require.NotNil(t, sc)
	assert.Equal(t, log.StateEntityAdmission, sc.Entity)
	assert.Equal(t, "ADMITTED", sc.NewState)
}

// Petition A is admitted, B is refused while A holds the session, and after
// A times out B gets the next session.
func TestAdmissionLifecycle(t *testing.T) {
	f := newFixture(t)

	r := f.petition(t, "A")
	require.Equal(t, meshcop.StateAccept, r.state(t))
	assert.Equal(t, uint16(1), r.session(t))

	r = f.petition(t, "B")
	assert.Equal(t, meshcop.StateReject, r.state(t))
	session, _ := f.adm.SessionID()
	assert.Equal(t, uint16(1), session)
	assert.Equal(t, "A", f.adm.CommissionerID())

	f.plat.Advance(PetitionTimeout)
	assert.Equal(t, StateIdle, f.adm.State())
	_, ok := f.netdata.CommissioningData()
	assert.False(t, ok)

	r = f.petition(t, "B")
	require.Equal(t, meshcop.StateAccept, r.state(t))
	assert.Equal(t, uint16(2), r.session(t))
	assert.Equal(t, "B", f.adm.CommissionerID())
}

func TestRejectedPetitionLeavesTimerAlone(t *testing.T) {
	f := newFixture(t)
	f.petition(t, "A")
	before, _ := f.adm.KeepAliveDeadline()

	f.plat.Advance(PetitionTimeout / 2)
	r := f.petition(t, "B")
	assert.Equal(t, meshcop.StateReject, r.state(t))
	_, ok, _ := tlv.Find(r.payload, uint8(meshcop.TLVCommissionerSessionID))
	assert.False(t, ok)

	after, ok := f.adm.KeepAliveDeadline()
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestKeepAlive(t *testing.T) {
	tests := []struct {
		name      string
		state     meshcop.State
		session   uint16
		wantState meshcop.State
		wantAdmit State
	}{
		{"matching session", meshcop.StateAccept, 1, meshcop.StateAccept, StateAdmitted},
		{"mismatched session", meshcop.StateAccept, 2, meshcop.StateReject, StateIdle},
		{"commissioner resigns", meshcop.StateReject, 1, meshcop.StateReject, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.petition(t, "A")

			r := f.keepAlive(t, tt.state, tt.session)
			assert.Equal(t, tt.wantState, r.state(t))
			assert.Equal(t, tt.wantAdmit, f.adm.State())

			_, ok := f.netdata.CommissioningData()
			assert.Equal(t, tt.wantAdmit == StateAdmitted, ok)
		})
	}
}

func TestKeepAliveExtendsSession(t *testing.T) {
	f := newFixture(t)
	f.petition(t, "A")

	for range 4 {
		f.plat.Advance(PetitionTimeout - 1)
		r := f.keepAlive(t, meshcop.StateAccept, 1)
		require.Equal(t, meshcop.StateAccept, r.state(t))
	}
	assert.Equal(t, StateAdmitted, f.adm.State())

	f.plat.Advance(PetitionTimeout)
	assert.Equal(t, StateIdle, f.adm.State())
}

func TestKeepAliveWhileIdle(t *testing.T) {
	f := newFixture(t)

	r := f.keepAlive(t, meshcop.StateAccept, 1)
	assert.Equal(t, meshcop.StateReject, r.state(t))
	assert.Equal(t, StateIdle, f.adm.State())
}

func TestMalformedKeepAliveDropsSession(t *testing.T) {
	f := newFixture(t)
	f.petition(t, "A")

	// State TLV only, no session.
	b, _ := tlv.Append(nil, uint8(meshcop.TLVState), meshcop.StateAccept.Bytes())
	r := f.send(t, meshcop.URIKeepAlive, b)

	assert.False(t, r.called, "malformed keep-alive must not be answered")
	assert.Equal(t, StateIdle, f.adm.State())
	_, ok := f.netdata.CommissioningData()
	assert.False(t, ok)
}

func TestMalformedPetitionDropped(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"no commissioner id", stateTLV(meshcop.StateAccept)},
		{"empty commissioner id", []byte{byte(meshcop.TLVCommissionerID), 0}},
		{"truncated", []byte{byte(meshcop.TLVCommissionerID), 5, 'A'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			r := f.send(t, meshcop.URIPetition, tt.payload)
			assert.False(t, r.called)
			assert.Equal(t, StateIdle, f.adm.State())
			_, ok := f.netdata.CommissioningData()
			assert.False(t, ok)
		})
	}
}

func TestPetitionRejectedWhenNotLeader(t *testing.T) {
	f := newFixture(t)
	f.role = meshcop.RoleRouter

	r := f.petition(t, "A")
	assert.Equal(t, meshcop.StateReject, r.state(t))
	assert.Equal(t, StateIdle, f.adm.State())
}

func TestOffMeshPetitionUsesLeaderLocator(t *testing.T) {
	f := newFixtureAt(t, netip.MustParseAddrPort("[2001:db8::5]:49191"))

	r := f.petition(t, "A")
	require.Equal(t, meshcop.StateAccept, r.state(t))

	loc, ok := f.netdata.BorderAgentLocator()
	require.True(t, ok)
	assert.Equal(t, leaderRLOC16, loc)
}

func TestStopDropsSession(t *testing.T) {
	f := newFixture(t)
	f.petition(t, "A")

	f.adm.Stop()
	assert.Equal(t, StateIdle, f.adm.State())
	_, ok := f.netdata.CommissioningData()
	assert.False(t, ok)
	_, ok = f.adm.KeepAliveDeadline()
	assert.False(t, ok)

	// Resources are gone.
	r := f.petition(t, "A")
	require.True(t, r.called)
	assert.Equal(t, coap.CodeNotFound, r.code)
}
