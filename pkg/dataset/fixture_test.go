package dataset

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/keymgr"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/netdata"
	"github.com/mesh-protocol/meshcop-go/pkg/notifier"
	"github.com/mesh-protocol/meshcop-go/pkg/settings"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
)

const (
	leaderRLOC16       uint16 = 0x0000
	routerRLOC16       uint16 = 0x0400
	borderAgentRLOC16  uint16 = 0x0800
	testSession        uint16 = 1
	testRotationHours  uint16 = 672
	testStartTick      uint32 = 5000
	testChannel        uint16 = 15
	testPanID          uint16 = 0xface
	testNetworkName           = "mesh"
	testKeySequence    uint32 = 5
	testDelayFloor     uint32 = 1000
	testActiveSeconds  uint64 = 10
	testPendingSeconds uint64 = 1
)

var (
	testPrefix = netip.MustParsePrefix("fd00:db8::/64")
	testKey    = bytes.Repeat([]byte{0x11}, 16)
	newKey     = bytes.Repeat([]byte{0x22}, 16)
	testXPanID = []byte{0xde, 0xad, 0x00, 0xbe, 0xef, 0x00, 0xca, 0xfe}
)

type testNetwork struct {
	plat  *timer.ManualPlatform
	sched *timer.Scheduler
	loop  *coap.Loopback
}

func newTestNetwork() *testNetwork {
	p := timer.NewManualPlatform(testStartTick)
	return &testNetwork{
		plat:  p,
		sched: timer.NewScheduler(p, p),
		loop:  coap.NewLoopback(),
	}
}

type testNode struct {
	active   *Active
	pending  *Pending
	keys     *keymgr.KeyManager
	agent    *coap.Agent
	store    *settings.MemoryStore
	netdata  *netdata.Leader
	endpoint *coap.LoopbackEndpoint

	role    meshcop.DeviceRole
	session uint16
	flags   notifier.Flags
	params  []meshcop.NetworkParams
}

func (n *testNetwork) addNode(t *testing.T, rloc16 uint16, role meshcop.DeviceRole) *testNode {
	t.Helper()

	addr := netip.AddrPortFrom(meshcop.LocatorAddr(testPrefix, rloc16), meshcop.ManagementPort)
	ep := n.loop.Endpoint(addr)
	agent := coap.NewAgent(coap.AgentConfig{Scheduler: n.sched, Endpoint: ep})
	ep.SetReceiver(agent.Receive)
	if role == meshcop.RoleLeader {
		ep.AddAddress(netip.AddrPortFrom(meshcop.LeaderAddr(testPrefix), meshcop.ManagementPort))
	}

	nd := &testNode{agent: agent, endpoint: ep, store: settings.NewMemoryStore(), role: role}
	notif := notifier.New()
	notif.Subscribe(func(f notifier.Flags) { nd.flags |= f })

	roleFn := func() meshcop.DeviceRole { return nd.role }
	nd.keys = keymgr.New(keymgr.Config{Scheduler: n.sched, Notifier: notif})
	nd.netdata = netdata.New(netdata.Config{Notifier: notif, Role: roleFn})
	nd.active, nd.pending = New(Config{
		Scheduler:       n.sched,
		Agent:           agent,
		KeyManager:      nd.keys,
		NetworkData:     nd.netdata,
		Store:           nd.store,
		Notifier:        notif,
		Role:            roleFn,
		MeshLocalPrefix: func() netip.Prefix { return testPrefix },
		CommissionerSession: func() (uint16, bool) {
			return nd.session, nd.session != 0
		},
		ApplyParams:       func(p meshcop.NetworkParams) { nd.params = append(nd.params, p) },
		DelayTimerMinimal: testDelayFloor,
	})
	nd.active.Start()
	nd.pending.Start()
	return nd
}

// formed returns a leader and a router sharing the Active dataset at
// testActiveSeconds.
func formed(t *testing.T) (*testNetwork, *testNode, *testNode) {
	t.Helper()

	n := newTestNetwork()
	leader := n.addNode(t, leaderRLOC16, meshcop.RoleLeader)
	router := n.addNode(t, routerRLOC16, meshcop.RoleRouter)

	if err := leader.active.SaveLocal(activeDataset(testActiveSeconds)); err != nil {
		t.Fatalf("leader SaveLocal: %v", err)
	}
	if err := router.active.SaveNetwork(activeDataset(testActiveSeconds)); err != nil {
		t.Fatalf("router SaveNetwork: %v", err)
	}
	leader.flags, router.flags = 0, 0
	return n, leader, router
}

// admit records an admitted commissioner in the leader's network data.
func (nd *testNode) admit(session, locator uint16) {
	var d meshcop.Dataset
	d.Set(meshcop.TLVBorderAgentLocator, meshcop.Uint16Bytes(locator))
	d.Set(meshcop.TLVCommissionerSessionID, meshcop.Uint16Bytes(session))
	d.Set(meshcop.TLVSteeringData, []byte{0})
	nd.netdata.SetCommissioningData(d)
	nd.flags = 0
}

func activeDataset(seconds uint64) meshcop.Dataset {
	var d meshcop.Dataset
	d.SetTimestamp(meshcop.TLVActiveTimestamp, meshcop.Timestamp{Seconds: seconds})
	d.Set(meshcop.TLVChannel, meshcop.Channel{Number: testChannel}.Bytes())
	d.Set(meshcop.TLVPanID, meshcop.Uint16Bytes(testPanID))
	d.Set(meshcop.TLVNetworkName, []byte(testNetworkName))
	d.Set(meshcop.TLVExtendedPanID, testXPanID)
	d.Set(meshcop.TLVMeshLocalPrefix, meshcop.MeshLocalPrefixBytes(testPrefix))
	d.Set(meshcop.TLVNetworkKey, testKey)
	return d
}

func pendingDataset(activeSeconds, pendingSeconds uint64, delay uint32) meshcop.Dataset {
	d := activeDataset(activeSeconds)
	d.SetTimestamp(meshcop.TLVPendingTimestamp, meshcop.Timestamp{Seconds: pendingSeconds})
	d.SetDelayTimer(delay)
	return d
}

func timestamp(seconds uint64) meshcop.Timestamp {
	return meshcop.Timestamp{Seconds: seconds}
}

type setResult struct {
	called bool
	state  meshcop.State
	err    error
}

func (r *setResult) done(s meshcop.State, err error) {
	r.called = true
	r.state = s
	r.err = err
}
