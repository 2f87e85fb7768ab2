// Command meshcop-node runs one mesh stack instance: a leader that owns the
// operational datasets and admits a commissioner, or a router that keeps
// its datasets in sync with the leader.
//
// Usage:
//
//	meshcop-node [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-role string          Initial role: leader, router, child (default "leader")
//	-rloc16 string        16-bit locator in hex (default "0000")
//	-listen string        UDP listen address (default "[::]:61631")
//	-leader string        UDP address of the leader (routers only)
//	-data-dir string      Directory for the settings database
//	-network-name string  Network to form when no dataset is stored (leader)
//	-channel int          Channel of the formed network (default 11)
//	-network-key string   Network key of the formed network, hex
//	-border-agent         Advertise the node as border agent over mDNS
//	-protocol-log string  Protocol capture file (.mclog)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-interactive          Enable the interactive console
//
// Examples:
//
//	# Form a network and open the console
//	meshcop-node -network-name home -network-key 00112233445566778899aabbccddeeff -interactive
//
//	# Join as router, reaching the leader at 192.0.2.1
//	meshcop-node -role router -rloc16 0400 -listen 0.0.0.0:61632 -leader 192.0.2.1:61631
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mesh-protocol/meshcop-go/cmd/meshcop-node/interactive"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/stack"
	"github.com/mesh-protocol/meshcop-go/pkg/version"
)

// Flags holds the command-line overrides.
type Flags struct {
	ConfigFile  string
	Role        string
	RLOC16      string
	Listen      string
	Leader      string
	DataDir     string
	NetworkName string
	Channel     uint
	PanID       string
	XPanID      string
	NetworkKey  string
	BorderAgent bool
	ProtocolLog string
	LogLevel    string
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "YAML configuration file")
	flag.StringVar(&flags.Role, "role", "", "Initial role: leader, router, child")
	flag.StringVar(&flags.RLOC16, "rloc16", "", "16-bit locator in hex")
	flag.StringVar(&flags.Listen, "listen", "", "UDP listen address")
	flag.StringVar(&flags.Leader, "leader", "", "UDP address of the leader")
	flag.StringVar(&flags.DataDir, "data-dir", "", "Directory for the settings database")
	flag.StringVar(&flags.NetworkName, "network-name", "", "Network to form when no dataset is stored")
	flag.UintVar(&flags.Channel, "channel", 11, "Channel of the formed network")
	flag.StringVar(&flags.PanID, "pan-id", "", "PAN ID of the formed network, hex (random if empty)")
	flag.StringVar(&flags.XPanID, "xpanid", "", "Extended PAN ID of the formed network, hex (random if empty)")
	flag.StringVar(&flags.NetworkKey, "network-key", "", "Network key of the formed network, hex (random if empty)")
	flag.BoolVar(&flags.BorderAgent, "border-agent", false, "Advertise the node as border agent over mDNS")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Protocol capture file (.mclog)")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable the interactive console")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var console *interactive.Console
	var out io.Writer = os.Stderr
	if flags.Interactive {
		console, err = interactive.New()
		if err != nil {
			log.Fatalf("Failed to create console: %v", err)
		}
		// Route log output through readline so it does not garble the prompt.
		out = console.Stdout()
		log.SetOutput(out)
	}
	cfg.Logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(flags.LogLevel)}))

	log.Println("MeshCoP Node")
	log.Println("============")
	log.Printf("Version: %s", version.Current)
	log.Printf("Role:   %s", cfg.Role)
	log.Printf("RLOC16: 0x%04x", cfg.RLOC16)
	log.Printf("Listen: %s", cfg.ListenAddress)

	inst, err := stack.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create stack: %v", err)
	}
	log.Printf("Node ID: %s", inst.NodeID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- inst.Run(ctx) }()

	if console != nil {
		go console.Run(ctx, cancel, inst)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	cancel()
	if err := <-done; err != nil {
		log.Printf("Error stopping stack: %v", err)
	}
	log.Println("Goodbye!")
}

// buildConfig loads the config file, if any, and applies the flags that
// were set explicitly.
func buildConfig() (stack.Config, error) {
	cfg := stack.DefaultConfig()
	if flags.ConfigFile != "" {
		var err error
		if cfg, err = stack.LoadConfig(flags.ConfigFile); err != nil {
			return cfg, err
		}
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["role"] {
		cfg.Role = flags.Role
	}
	if set["rloc16"] {
		v, err := strconv.ParseUint(flags.RLOC16, 16, 16)
		if err != nil {
			return cfg, fmt.Errorf("rloc16: %w", err)
		}
		cfg.RLOC16 = uint16(v)
	}
	if set["listen"] {
		cfg.ListenAddress = flags.Listen
	}
	if set["leader"] {
		cfg.LeaderAddress = flags.Leader
	}
	if set["data-dir"] {
		cfg.DataDir = flags.DataDir
	}
	if set["border-agent"] {
		cfg.BorderAgent.Enabled = flags.BorderAgent
	}
	if set["protocol-log"] {
		cfg.ProtocolLog = flags.ProtocolLog
	}

	if set["network-name"] {
		n := &cfg.Network
		n.Name = flags.NetworkName
		n.Channel = uint16(flags.Channel)
		n.ExtendedPanID = orRandomHex(flags.XPanID, 8)
		n.NetworkKey = orRandomHex(flags.NetworkKey, meshcop.NetworkKeySize)
		pan, err := strconv.ParseUint(orRandomHex(flags.PanID, 2), 16, 16)
		if err != nil {
			return cfg, fmt.Errorf("pan-id: %w", err)
		}
		n.PanID = uint16(pan)
	}

	return cfg, cfg.Validate()
}

func orRandomHex(v string, n int) string {
	if v != "" {
		return v
	}
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
