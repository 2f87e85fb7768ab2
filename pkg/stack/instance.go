package stack

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/commissioner"
	"github.com/mesh-protocol/meshcop-go/pkg/dataset"
	"github.com/mesh-protocol/meshcop-go/pkg/discovery"
	"github.com/mesh-protocol/meshcop-go/pkg/keymgr"
	"github.com/mesh-protocol/meshcop-go/pkg/leader"
	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/netdata"
	"github.com/mesh-protocol/meshcop-go/pkg/notifier"
	"github.com/mesh-protocol/meshcop-go/pkg/settings"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
)

// SettingsFile is the settings database name inside DataDir.
const SettingsFile = "settings.db"

// Instance is one mesh stack. Apart from the Loop methods, NodeID and Run,
// its methods must be called on the event loop.
type Instance struct {
	*Loop

	cfg    Config
	nodeID string
	logger *slog.Logger

	notifier  *notifier.Notifier
	sched     *timer.Scheduler
	alarm     timer.Alarm
	endpoint  coap.Endpoint
	udp       *coap.UDPEndpoint
	agent     *coap.Agent
	store     settings.Store
	closers   []io.Closer
	events    *log.Emitter
	keys      *keymgr.KeyManager
	netdata   *netdata.Leader
	admission *leader.Admission
	active    *dataset.Active
	pending   *dataset.Pending
	comm      *commissioner.Commissioner
	publisher *discovery.Publisher

	role   meshcop.DeviceRole
	prefix netip.Prefix
	params meshcop.NetworkParams

	syncTimer *timer.Timer
}

// New validates cfg and assembles an Instance. Nothing runs until Run.
func New(cfg Config) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	role, _ := meshcop.ParseDeviceRole(cfg.Role)
	prefix := netip.MustParsePrefix(cfg.MeshLocalPrefix)

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.New().String()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("node", shortID(nodeID))

	i := &Instance{
		cfg:      cfg,
		nodeID:   nodeID,
		logger:   logger,
		Loop:     NewLoop(),
		notifier: notifier.New(),
		role:     role,
		prefix:   prefix,
	}

	if err := i.openSettings(); err != nil {
		return nil, err
	}
	if err := i.openProtocolLog(); err != nil {
		i.closeAll()
		return nil, err
	}
	if err := i.openTransport(); err != nil {
		i.closeAll()
		return nil, err
	}
	if err := i.assemble(); err != nil {
		i.closeAll()
		return nil, err
	}

	return i, nil
}

func (i *Instance) openSettings() error {
	if i.cfg.DataDir == "" {
		i.store = settings.NewMemoryStore()
		return nil
	}
	bolt, err := settings.OpenBoltStore(filepath.Join(i.cfg.DataDir, SettingsFile))
	if err != nil {
		return err
	}
	i.store = bolt
	i.closers = append(i.closers, bolt)
	return nil
}

func (i *Instance) openProtocolLog() error {
	var loggers []log.Logger
	if i.cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(i.cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("opening protocol log: %w", err)
		}
		i.closers = append(i.closers, fl)
		loggers = append(loggers, fl)
	}
	if i.cfg.ProtocolLogger != nil {
		loggers = append(loggers, i.cfg.ProtocolLogger)
	}

	i.events = &log.Emitter{NodeID: i.nodeID, Role: logRole(i.role)}
	switch len(loggers) {
	case 0:
	case 1:
		i.events.Logger = loggers[0]
	default:
		i.events.Logger = log.NewMultiLogger(loggers...)
	}
	return nil
}

func (i *Instance) openTransport() error {
	if i.cfg.Platform != nil {
		i.sched = timer.NewScheduler(i.cfg.Platform, i.cfg.Platform)
		i.alarm = i.cfg.Platform
	} else {
		clock := timer.NewRealClock()
		alarm := timer.NewRealAlarm(clock, func(fn func()) { i.Post(fn) })
		i.sched = timer.NewScheduler(clock, alarm)
		i.alarm = alarm
	}

	if i.cfg.Endpoint != nil {
		i.endpoint = i.cfg.Endpoint
		return nil
	}

	udp, err := coap.ListenUDP(netip.MustParseAddrPort(i.cfg.ListenAddress), func(fn func()) { i.Post(fn) }, i.logger)
	if err != nil {
		return err
	}
	i.udp = udp
	i.routeLeader(i.prefix)
	i.endpoint = udp
	i.closers = append(i.closers, udp)
	return nil
}

func (i *Instance) assemble() error {
	i.agent = coap.NewAgent(coap.AgentConfig{
		Scheduler: i.sched,
		Endpoint:  i.endpoint,
		Logger:    i.logger,
		Events:    i.events,
	})
	switch ep := i.endpoint.(type) {
	case *coap.LoopbackEndpoint:
		// Loopback delivery happens on the flushing goroutine.
		ep.SetReceiver(func(src netip.AddrPort, data []byte) {
			i.Post(func() { i.agent.Receive(src, data) })
		})
	case *coap.UDPEndpoint:
		ep.SetReceiver(i.agent.Receive)
	}

	i.keys = keymgr.New(keymgr.Config{
		Scheduler: i.sched,
		Store:     settings.NewNetworkInfoStore(i.store),
		Notifier:  i.notifier,
		Logger:    i.logger,
	})
	if err := i.keys.SetKeyRotation(i.cfg.KeyRotationHours); err != nil {
		return fmt.Errorf("configuring key rotation: %w", err)
	}
	if err := i.keys.SetGuardTime(i.cfg.GuardTimeHours); err != nil {
		return fmt.Errorf("configuring guard time: %w", err)
	}

	i.netdata = netdata.New(netdata.Config{
		Agent:    i.agent,
		Notifier: i.notifier,
		Role:     i.Role,
		Logger:   i.logger,
	})

	i.admission = leader.New(leader.Config{
		Scheduler:   i.sched,
		Agent:       i.agent,
		NetworkData: i.netdata,
		Role:        i.Role,
		RLOC16:      func() uint16 { return i.cfg.RLOC16 },
		OnAdmitted:  i.handleAdmitted,
		Logger:      i.logger,
		Events:      i.events,
	})

	i.comm = commissioner.New(commissioner.Config{
		Scheduler: i.sched,
		Agent:     i.agent,
		Leader:    netip.AddrPortFrom(meshcop.LeaderAddr(i.prefix), meshcop.ManagementPort),
		Logger:    i.logger,
		Events:    i.events,
	})

	i.active, i.pending = dataset.New(dataset.Config{
		Scheduler:           i.sched,
		Agent:               i.agent,
		KeyManager:          i.keys,
		NetworkData:         i.netdata,
		Store:               i.store,
		Notifier:            i.notifier,
		Role:                i.Role,
		MeshLocalPrefix:     i.MeshLocalPrefix,
		CommissionerSession: i.comm.SessionID,
		ApplyParams:         i.applyParams,
		DelayTimerMinimal:   timer.DurationToMsec(i.cfg.DelayTimerMinimal),
		Logger:              i.logger,
		Events:              i.events,
	})

	if i.cfg.BorderAgent.Enabled || i.cfg.Advertiser != nil {
		adv := i.cfg.Advertiser
		if adv == nil {
			adv = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
				Interface: i.cfg.BorderAgent.Interface,
				TTL:       discovery.DefaultTTL,
			})
		}
		i.publisher = discovery.NewPublisher(discovery.PublisherConfig{
			Advertiser: adv,
			Port:       i.endpoint.LocalAddr().Port(),
			Version:    i.cfg.BorderAgent.Version,
			NodeSuffix: fmt.Sprintf("%04x", i.cfg.RLOC16),
			Dataset:    i.active.Network,
			Role:       i.Role,
			CommissionerActive: func() bool {
				_, ok := i.netdata.SessionID()
				return ok
			},
			Logger: i.logger,
		})
	}

	i.syncTimer = i.sched.NewTimer(timer.HandlerFunc(i.handleSyncTimer))
	i.notifier.Subscribe(i.handleNotifier)
	return nil
}

// NodeID returns the instance identifier.
func (i *Instance) NodeID() string {
	return i.nodeID
}

// Run starts the components and executes queued tasks until ctx is done.
// It stops the components and releases all resources before returning.
func (i *Instance) Run(ctx context.Context) error {
	if i.Closed() {
		return ErrClosed
	}

	i.start(ctx)
	i.Loop.Run(ctx)
	i.shutdown()
	return nil
}

func (i *Instance) start(ctx context.Context) {
	if err := i.keys.RestoreCounters(); err != nil {
		i.logger.Warn("failed to restore frame counters", "error", err)
	}
	if err := i.active.Restore(); err != nil {
		i.logger.Warn("failed to restore active dataset", "error", err)
	}

	i.netdata.Start()
	i.admission.Start()
	i.active.Start()
	i.pending.Start()
	i.keys.Start()

	if i.role == meshcop.RoleLeader {
		var err error
		switch {
		case i.active.IsCommissioned():
			// A restarting leader serves its restored dataset again.
			err = i.active.SaveLocal(i.active.Local())
		case i.cfg.Network.Name != "":
			err = i.Form()
		}
		if err != nil {
			i.logger.Error("failed to form network", "error", err)
		}
	}

	if i.publisher != nil {
		if err := i.publisher.Start(ctx); err != nil {
			i.logger.Warn("failed to advertise border agent", "error", err)
		}
	}

	i.scheduleSync()
	i.logger.Info("stack started", "role", i.role, "rloc16", fmt.Sprintf("0x%04x", i.cfg.RLOC16),
		"local", i.endpoint.LocalAddr())
}

func (i *Instance) shutdown() {
	i.comm.Stop()
	i.admission.Stop()
	i.active.Stop()
	i.pending.Stop()
	i.keys.Stop()
	i.netdata.Stop()
	i.syncTimer.Stop()
	i.agent.AbortAll()
	if i.publisher != nil {
		if err := i.publisher.Stop(); err != nil {
			i.logger.Warn("failed to withdraw border agent advertisement", "error", err)
		}
	}
	i.alarm.Stop()

	if err := i.closeAll(); err != nil {
		i.logger.Warn("failed to release resources", "error", err)
	}
	i.logger.Info("stack stopped")
}

// closeAll closes what New opened, last opened first.
func (i *Instance) closeAll() error {
	var errs error
	for n := len(i.closers) - 1; n >= 0; n-- {
		errs = multierr.Append(errs, i.closers[n].Close())
	}
	i.closers = nil
	return errs
}

// Form saves the configured network as the local Active dataset.
func (i *Instance) Form() error {
	if i.cfg.Network.Name == "" {
		return fmt.Errorf("%w: no network configured", ErrInvalidConfig)
	}
	d := i.cfg.Network.Dataset(meshcop.Timestamp{Seconds: 1}, i.prefix)
	if err := i.active.SaveLocal(d); err != nil {
		return err
	}
	i.logger.Info("formed network", "name", i.cfg.Network.Name, "channel", i.cfg.Network.Channel)
	return nil
}

// Role returns the node role.
func (i *Instance) Role() meshcop.DeviceRole {
	return i.role
}

// SetRole changes the node role.
func (i *Instance) SetRole(r meshcop.DeviceRole) {
	if r == i.role {
		return
	}
	old := i.role
	i.role = r
	i.events.Role = logRole(r)
	i.events.StateChange(log.StateEntityRole, old.String(), r.String(), "")
	i.logger.Info("role changed", "from", old, "to", r)

	if old == meshcop.RoleLeader {
		i.admission.Stop()
		i.admission.Start()
		i.netdata.ClearCommissioningData()
	}
	i.scheduleSync()
	i.notifier.Signal(notifier.RoleChanged)
}

// MeshLocalPrefix returns the prefix of the Active dataset, or the
// configured one before the node is commissioned.
func (i *Instance) MeshLocalPrefix() netip.Prefix {
	return i.prefix
}

// Params returns the network parameters of the Active dataset.
func (i *Instance) Params() meshcop.NetworkParams {
	return i.params
}

// RLOC16 returns the node's locator.
func (i *Instance) RLOC16() uint16 {
	return i.cfg.RLOC16
}

// Scheduler returns the instance scheduler.
func (i *Instance) Scheduler() *timer.Scheduler { return i.sched }

// Agent returns the management transport.
func (i *Instance) Agent() *coap.Agent { return i.agent }

// KeyManager returns the key manager.
func (i *Instance) KeyManager() *keymgr.KeyManager { return i.keys }

// NetworkData returns the leader network data.
func (i *Instance) NetworkData() *netdata.Leader { return i.netdata }

// Admission returns the leader's admission session.
func (i *Instance) Admission() *leader.Admission { return i.admission }

// Active returns the Active dataset manager.
func (i *Instance) Active() *dataset.Active { return i.active }

// Pending returns the Pending dataset manager.
func (i *Instance) Pending() *dataset.Pending { return i.pending }

// Commissioner returns the on-mesh commissioner.
func (i *Instance) Commissioner() *commissioner.Commissioner { return i.comm }

// Notifier returns the change event bus.
func (i *Instance) Notifier() *notifier.Notifier { return i.notifier }

func (i *Instance) applyParams(p meshcop.NetworkParams) {
	i.params = p
	if p.MeshLocalPrefix.IsValid() && p.MeshLocalPrefix != i.prefix {
		i.logger.Info("mesh-local prefix changed", "from", i.prefix, "to", p.MeshLocalPrefix)
		i.prefix = p.MeshLocalPrefix
		i.routeLeader(i.prefix)
	}
}

// routeLeader sends traffic for the leader anycast locator to the
// configured leader, or back to this node when none is configured.
func (i *Instance) routeLeader(prefix netip.Prefix) {
	if i.udp == nil {
		return
	}
	if i.cfg.LeaderAddress != "" {
		i.udp.AddRoute(meshcop.LeaderAddr(prefix), netip.MustParseAddrPort(i.cfg.LeaderAddress))
		return
	}

	self := i.udp.LocalAddr()
	if self.Addr().IsUnspecified() {
		loopback := netip.IPv6Loopback()
		if self.Addr().Is4() {
			loopback = netip.AddrFrom4([4]byte{127, 0, 0, 1})
		}
		self = netip.AddrPortFrom(loopback, self.Port())
	}
	i.udp.AddRoute(meshcop.LeaderAddr(prefix), self)
}

// handleAdmitted makes the border agent reachable for c/dc notifications
// when the commissioner talks to the leader over plain UDP.
func (i *Instance) handleAdmitted(src netip.AddrPort, locator uint16) {
	if i.udp == nil {
		return
	}
	if _, onMesh := meshcop.Locator(src.Addr()); onMesh {
		return
	}
	i.udp.AddRoute(meshcop.LocatorAddr(i.prefix, locator), src)
}

func (i *Instance) handleNotifier(f notifier.Flags) {
	i.logger.Debug("state changed", "flags", f)
	if i.publisher != nil && f.Any(notifier.ActiveDatasetChanged|notifier.CommissionerSessionChanged|notifier.RoleChanged) {
		i.publisher.Refresh()
	}
}

func logRole(r meshcop.DeviceRole) log.Role {
	if r == meshcop.RoleLeader {
		return log.RoleLeader
	}
	return log.RoleNode
}

func shortID(id string) string {
	if n := strings.IndexByte(id, '-'); n > 0 {
		return id[:n]
	}
	return id
}
