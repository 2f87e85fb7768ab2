package netdata

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/notifier"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

var (
	leaderAddr = netip.MustParseAddrPort("[fd00::ff:fe00:0]:61631")
	peerAddr   = netip.MustParseAddrPort("[fd00::ff:fe00:400]:61631")
)

type fixture struct {
	leader *Leader
	peer   *coap.Agent
	loop   *coap.Loopback
	role   meshcop.DeviceRole
	flags  []notifier.Flags
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p := timer.NewManualPlatform(0)
	sched := timer.NewScheduler(p, p)
	loop := coap.NewLoopback()

	epLeader := loop.Endpoint(leaderAddr)
	epPeer := loop.Endpoint(peerAddr)
	leaderAgent := coap.NewAgent(coap.AgentConfig{Scheduler: sched, Endpoint: epLeader})
	peerAgent := coap.NewAgent(coap.AgentConfig{Scheduler: sched, Endpoint: epPeer})
	epLeader.SetReceiver(leaderAgent.Receive)
	epPeer.SetReceiver(peerAgent.Receive)

	f := &fixture{peer: peerAgent, loop: loop, role: meshcop.RoleLeader}
	n := notifier.New()
	n.Subscribe(func(fl notifier.Flags) { f.flags = append(f.flags, fl) })

	f.leader = New(Config{
		Agent:    leaderAgent,
		Notifier: n,
		Role:     func() meshcop.DeviceRole { return f.role },
	})
	f.leader.Start()
	return f
}

func (f *fixture) admit(session, locator uint16) {
	var d meshcop.Dataset
	d.Set(meshcop.TLVBorderAgentLocator, meshcop.Uint16Bytes(locator))
	d.Set(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(session))
	d.Set(meshcop.TLVSteeringData, []byte{0})
	f.leader.SetCommissioningData(d)
}

func (f *fixture) request(t *testing.T, uri string, recs ...tlv.TLV) *coap.Message {
	t.Helper()

	payload, err := tlv.Encode(recs)
	require.NoError(t, err)

	var got *coap.Message
	h := coap.ResponseHandlerFunc(func(resp *coap.Message, _ netip.AddrPort, err error) {
		require.NoError(t, err)
		got = resp
	})
	require.NoError(t, f.peer.SendRequest(coap.NewRequest(coap.Confirmable, coap.CodePost, uri, payload), leaderAddr, h))
	f.loop.Flush()
	return got
}

func responseState(t *testing.T, m *coap.Message) meshcop.State {
	t.Helper()
	require.NotNil(t, m)
	v, ok, err := tlv.Find(m.Payload, uint8(meshcop.TLVState))
	require.NoError(t, err)
	require.True(t, ok)
	s, err := meshcop.ParseState(v)
	require.NoError(t, err)
	return s
}

func rec(t meshcop.TLVType, v []byte) tlv.TLV {
	return tlv.TLV{Type: uint8(t), Value: v}
}

func TestCommissioningDataAccessors(t *testing.T) {
	f := newFixture(t)

	_, ok := f.leader.SessionID()
	assert.False(t, ok)

	f.admit(7, 0x0400)

	session, ok := f.leader.SessionID()
	require.True(t, ok)
	assert.Equal(t, uint16(7), session)
	bal, ok := f.leader.BorderAgentLocator()
	require.True(t, ok)
	assert.Equal(t, uint16(0x0400), bal)
	assert.Equal(t, uint8(1), f.leader.Version())
	assert.Equal(t, uint8(0), f.leader.StableVersion())
	require.NotEmpty(t, f.flags)
	assert.True(t, f.flags[0].Has(notifier.CommissionerSessionChanged))

	f.leader.ClearCommissioningData()
	_, ok = f.leader.CommissioningData()
	assert.False(t, ok)
	assert.Equal(t, uint8(2), f.leader.Version())

	// Clearing again changes nothing.
	f.leader.ClearCommissioningData()
	assert.Equal(t, uint8(2), f.leader.Version())
}

func TestIncrementVersion(t *testing.T) {
	f := newFixture(t)

	f.leader.IncrementVersion(true)
	f.leader.IncrementVersion(false)

	assert.Equal(t, uint8(2), f.leader.Version())
	assert.Equal(t, uint8(1), f.leader.StableVersion())
}

func TestCommissioningSet(t *testing.T) {
	tests := []struct {
		name string
		recs []tlv.TLV
		want meshcop.State
	}{
		{
			name: "steering data with matching session",
			recs: []tlv.TLV{
				rec(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(7)),
				rec(meshcop.TLVSteeringData, []byte{0xff}),
			},
			want: meshcop.StateAccept,
		},
		{
			name: "joiner port and unknown tlv",
			recs: []tlv.TLV{
				rec(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(7)),
				rec(meshcop.TLVJoinerUDPPort, meshcop.Uint16Bytes(1000)),
				rec(meshcop.TLVType(200), []byte{1}),
			},
			want: meshcop.StateAccept,
		},
		{
			name: "session mismatch",
			recs: []tlv.TLV{
				rec(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(8)),
				rec(meshcop.TLVSteeringData, []byte{0xff}),
			},
			want: meshcop.StateReject,
		},
		{
			name: "missing session",
			recs: []tlv.TLV{rec(meshcop.TLVSteeringData, []byte{0xff})},
			want: meshcop.StateReject,
		},
		{
			name: "no steering fields",
			recs: []tlv.TLV{rec(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(7))},
			want: meshcop.StateReject,
		},
		{
			name: "border agent locator forbidden",
			recs: []tlv.TLV{
				rec(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(7)),
				rec(meshcop.TLVSteeringData, []byte{0xff}),
				rec(meshcop.TLVBorderAgentLocator, meshcop.Uint16Bytes(0x0800)),
			},
			want: meshcop.StateReject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.admit(7, 0x0400)
			before, _ := f.leader.CommissioningData()

			got := responseState(t, f.request(t, meshcop.URICommissionerSet, tt.recs...))
			assert.Equal(t, tt.want, got)

			after, _ := f.leader.CommissioningData()
			if tt.want == meshcop.StateReject {
				assert.True(t, before.Equal(&after), "rejected set must not mutate")
				return
			}
			bal, ok := f.leader.BorderAgentLocator()
			require.True(t, ok, "border agent locator kept")
			assert.Equal(t, uint16(0x0400), bal)
		})
	}
}

func TestCommissioningSetRequiresLeader(t *testing.T) {
	f := newFixture(t)
	f.admit(7, 0x0400)
	f.role = meshcop.RoleRouter

	resp := f.request(t, meshcop.URICommissionerSet,
		rec(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(7)),
		rec(meshcop.TLVSteeringData, []byte{0xff}))
	assert.Nil(t, resp)
}

func TestCommissioningGet(t *testing.T) {
	f := newFixture(t)

	// Nothing to report yet: no response.
	assert.Nil(t, f.request(t, meshcop.URICommissionerGet))

	f.admit(9, 0x0400)

	all := f.request(t, meshcop.URICommissionerGet)
	require.NotNil(t, all)
	d, err := meshcop.ParseDataset(all.Payload)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	some := f.request(t, meshcop.URICommissionerGet,
		rec(meshcop.TLVGet, []byte{uint8(meshcop.TLVCommissionerSessionID)}))
	require.NotNil(t, some)
	d, err = meshcop.ParseDataset(some.Payload)
	require.NoError(t, err)
	assert.Equal(t, []meshcop.TLVType{meshcop.TLVCommissionerSessionID}, d.Types())
}
