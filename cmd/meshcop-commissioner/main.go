// Command meshcop-commissioner is an external commissioner. It finds a
// border agent over mDNS, petitions the leader through it and then reads
// and changes the operational datasets from an interactive console.
//
// Usage:
//
//	meshcop-commissioner [flags]
//
// Flags:
//
//	-network string        Network name to look for (any network if empty)
//	-border-agent string   Border agent UDP address; skips discovery
//	-id string             Commissioner ID (default "meshcop-commissioner")
//	-listen string         Local UDP address (default "[::]:0")
//	-browse-timeout dur    How long to browse for a border agent (default 10s)
//	-protocol-log string   Protocol capture file (.mclog)
//	-log-level string      Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Commission the network "home"
//	meshcop-commissioner -network home
//
//	# Talk to a known border agent
//	meshcop-commissioner -border-agent 192.0.2.1:61631 -id laptop
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mesh-protocol/meshcop-go/pkg/coap"
	"github.com/mesh-protocol/meshcop-go/pkg/commissioner"
	"github.com/mesh-protocol/meshcop-go/pkg/discovery"
	mlog "github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/stack"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
	"github.com/mesh-protocol/meshcop-go/pkg/version"
)

// Config holds the command-line settings.
type Config struct {
	Network       string
	BorderAgent   string
	ID            string
	Listen        string
	BrowseTimeout time.Duration
	ProtocolLog   string
	LogLevel      string
}

var config Config

func init() {
	flag.StringVar(&config.Network, "network", "", "Network name to look for (any network if empty)")
	flag.StringVar(&config.BorderAgent, "border-agent", "", "Border agent UDP address; skips discovery")
	flag.StringVar(&config.ID, "id", "meshcop-commissioner", "Commissioner ID")
	flag.StringVar(&config.Listen, "listen", "[::]:0", "Local UDP address")
	flag.DurationVar(&config.BrowseTimeout, "browse-timeout", discovery.BrowseTimeout, "How long to browse for a border agent")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Protocol capture file (.mclog)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target, err := resolveBorderAgent(ctx)
	if err != nil {
		log.Fatalf("No border agent: %v", err)
	}
	log.Printf("Using border agent %s", target)

	listen, err := netip.ParseAddrPort(config.Listen)
	if err != nil {
		log.Fatalf("Invalid listen address: %v", err)
	}

	console, err := NewConsole()
	if err != nil {
		log.Fatalf("Failed to create console: %v", err)
	}
	log.SetOutput(console.Stdout())

	var level slog.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(console.Stdout(), &slog.HandlerOptions{Level: level}))

	loop := stack.NewLoop()
	clock := timer.NewRealClock()
	alarm := timer.NewRealAlarm(clock, func(fn func()) { loop.Post(fn) })
	sched := timer.NewScheduler(clock, alarm)

	ep, err := coap.ListenUDP(listen, func(fn func()) { loop.Post(fn) }, logger)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	defer ep.Close()

	events := &mlog.Emitter{Role: mlog.RoleCommissioner}
	if config.ProtocolLog != "" {
		fl, err := mlog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to open protocol log: %v", err)
		}
		defer fl.Close()
		events.Logger = fl
	}

	agent := coap.NewAgent(coap.AgentConfig{
		Scheduler: sched,
		Endpoint:  ep,
		Logger:    logger,
		Events:    events,
	})
	ep.SetReceiver(agent.Receive)

	comm := commissioner.New(commissioner.Config{
		Scheduler: sched,
		Agent:     agent,
		Leader:    target,
		OnStateChanged: func(s commissioner.State) {
			log.Printf("[EVENT] Commissioner %s", s)
		},
		OnDatasetChanged: func() {
			log.Println("[EVENT] Operational dataset changed by another party")
		},
		Logger: logger,
		Events: events,
	})

	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	if err := loop.Do(ctx, func() {
		if err := comm.Start(config.ID); err != nil {
			log.Printf("Petition failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("Event loop: %v", err)
	}

	go console.Run(ctx, cancel, loop, comm)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Resigning...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	_ = loop.Do(stopCtx, comm.Stop)
	stopCancel()

	cancel()
	<-loopDone
	alarm.Stop()
	log.Println("Goodbye!")
}

// resolveBorderAgent returns the configured border agent or browses for one.
func resolveBorderAgent(ctx context.Context) (netip.AddrPort, error) {
	if config.BorderAgent != "" {
		return netip.ParseAddrPort(config.BorderAgent)
	}

	log.Printf("Browsing for border agents (network %q)...", config.Network)
	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{BrowseTimeout: config.BrowseTimeout})
	svc, err := browser.FindBorderAgent(ctx, config.Network)
	if err != nil {
		return netip.AddrPort{}, err
	}
	log.Printf("Found %q on %s (network %q, version %s)", svc.InstanceName, svc.Host, svc.Info.NetworkName, svc.Info.Version)
	if err := version.CheckPeer(svc.Info.Version); err != nil {
		return netip.AddrPort{}, fmt.Errorf("%s: %w", svc.InstanceName, err)
	}

	for _, a := range svc.Addresses {
		if addr, err := netip.ParseAddr(a); err == nil {
			return netip.AddrPortFrom(addr, svc.Port), nil
		}
	}
	return netip.AddrPort{}, fmt.Errorf("%s advertises no usable address", svc.InstanceName)
}
