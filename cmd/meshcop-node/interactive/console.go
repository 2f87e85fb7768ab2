// Package interactive provides the interactive console of meshcop-node.
package interactive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mesh-protocol/meshcop-go/pkg/dataset"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/stack"
)

// commandTimeout bounds how long a command waits for the event loop.
const commandTimeout = 5 * time.Second

// Console is the readline command loop.
type Console struct {
	rl   *readline.Instance
	inst *stack.Instance
}

// New creates the console. Its Stdout should receive all log output.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "meshcop> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit or EOF, then cancels the process context.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, inst *stack.Instance) {
	defer c.rl.Close()
	c.inst = inst

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()
		case "status", "s":
			c.cmdStatus()
		case "dataset", "ds":
			c.cmdDataset(args)
		case "form":
			c.cmdForm()
		case "role":
			c.cmdRole(args)
		case "sync":
			c.cmdSync()
		case "name":
			c.cmdName(args)
		case "migrate":
			c.cmdMigrate(args)
		case "keys":
			c.cmdKeys()
		case "commissioner", "comm":
			c.cmdCommissioner(args)
		case "steering":
			c.cmdSteering(args)
		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
MeshCoP Node Commands:
  Node:
    status                      - Show role, datasets and sessions
    role <role>                 - Change role (leader, router, child, detached)
    keys                        - Show key sequence and rotation settings

  Datasets:
    dataset [active|pending]    - Show the local and network dataset
    form                        - Form the configured network (leader)
    sync                        - Fetch the datasets from the leader now
    name <network-name>         - Rename the network (MGMT_ACTIVE_SET)
    migrate <channel> [delay-s] - Move the network to another channel (MGMT_PENDING_SET)

  Commissioner:
    commissioner start <id>     - Petition to become commissioner
    commissioner stop           - Resign the commissioner session
    steering <hex>              - Set the steering data (MGMT_COMMISSIONER_SET)

    quit                        - Exit`)
}

// do runs fn on the stack's event loop.
func (c *Console) do(fn func()) bool {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.inst.Do(ctx, fn); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return false
	}
	return true
}

// stateReporter returns a done callback that prints the leader's answer.
func (c *Console) stateReporter(what string) func(meshcop.State, error) {
	return func(s meshcop.State, err error) {
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "%s failed: %v\n", what, err)
			return
		}
		fmt.Fprintf(c.rl.Stdout(), "%s: %s\n", what, s)
	}
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	c.do(func() {
		i := c.inst
		fmt.Fprintf(out, "Node:         %s\n", i.NodeID())
		fmt.Fprintf(out, "Role:         %s\n", i.Role())
		fmt.Fprintf(out, "RLOC16:       0x%04x\n", i.RLOC16())
		fmt.Fprintf(out, "Mesh-local:   %s\n", i.MeshLocalPrefix())
		fmt.Fprintf(out, "Commissioned: %v\n", i.Active().IsCommissioned())
		fmt.Fprintf(out, "Params:       %s\n", i.Params())

		if ts, ok := i.Active().Timestamp(); ok {
			fmt.Fprintf(out, "Active:       %s\n", ts)
		}
		if ts, ok := i.Pending().Timestamp(); ok {
			fmt.Fprintf(out, "Pending:      %s", ts)
			if at, ok := i.Pending().CommitDeadline(); ok {
				fmt.Fprintf(out, " (commit in %s)", time.Duration(at-i.Scheduler().Now())*time.Millisecond)
			}
			fmt.Fprintln(out)
		}

		if i.Role() == meshcop.RoleLeader {
			a := i.Admission()
			fmt.Fprintf(out, "Admission:    %s", a.State())
			if session, ok := a.SessionID(); ok {
				fmt.Fprintf(out, " (%q, session %d)", a.CommissionerID(), session)
			}
			fmt.Fprintln(out)
		}

		comm := i.Commissioner()
		fmt.Fprintf(out, "Commissioner: %s", comm.State())
		if session, ok := comm.SessionID(); ok {
			fmt.Fprintf(out, " (%q, session %d)", comm.ID(), session)
		}
		fmt.Fprintln(out)
	})
}

func (c *Console) cmdDataset(args []string) {
	typ := dataset.TypeActive
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "active":
		case "pending":
			typ = dataset.TypePending
		default:
			fmt.Fprintln(c.rl.Stdout(), "Usage: dataset [active|pending]")
			return
		}
	}

	out := c.rl.Stdout()
	c.do(func() {
		m := &c.inst.Active().Manager
		if typ == dataset.TypePending {
			m = &c.inst.Pending().Manager
		}
		printDataset(out, "Local", m.Local())
		printDataset(out, "Network", m.Network())
	})
}

func printDataset(out io.Writer, title string, d meshcop.Dataset) {
	fmt.Fprintf(out, "%s:\n", title)
	if d.IsEmpty() {
		fmt.Fprintln(out, "  (empty)")
		return
	}
	for _, r := range d.TLVs() {
		typ := meshcop.TLVType(r.Type)
		fmt.Fprintf(out, "  %-22s %s\n", typ, formatTLV(&d, typ, r.Value))
	}
}

func formatTLV(d *meshcop.Dataset, typ meshcop.TLVType, value []byte) string {
	switch typ {
	case meshcop.TLVNetworkName:
		return strconv.Quote(string(value))
	case meshcop.TLVNetworkKey, meshcop.TLVPSKc:
		// Keys are not printed.
		return fmt.Sprintf("<%d bytes>", len(value))
	case meshcop.TLVActiveTimestamp:
		ts, _ := d.ActiveTimestamp()
		return ts.String()
	case meshcop.TLVPendingTimestamp:
		ts, _ := d.PendingTimestamp()
		return ts.String()
	case meshcop.TLVChannel:
		ch, _ := d.Channel()
		return strconv.Itoa(int(ch.Number))
	case meshcop.TLVMeshLocalPrefix:
		p, _ := d.MeshLocalPrefix()
		return p.String()
	case meshcop.TLVSecurityPolicy:
		p, _ := d.SecurityPolicy()
		return p.String()
	case meshcop.TLVDelayTimer:
		ms, _ := d.DelayTimer()
		return (time.Duration(ms) * time.Millisecond).String()
	default:
		return hex.EncodeToString(value)
	}
}

func (c *Console) cmdForm() {
	c.do(func() {
		if err := c.inst.Form(); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Form failed: %v\n", err)
			return
		}
		fmt.Fprintln(c.rl.Stdout(), "Network formed")
	})
}

func (c *Console) cmdRole(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: role <leader|router|child|detached|disabled>")
		return
	}
	r, ok := meshcop.ParseDeviceRole(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown role: %s\n", args[0])
		return
	}
	c.do(func() { c.inst.SetRole(r) })
}

func (c *Console) cmdSync() {
	c.do(func() {
		if err := c.inst.Sync(); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Sync failed: %v\n", err)
		}
	})
}

func (c *Console) cmdName(args []string) {
	if len(args) != 1 || len(args[0]) > meshcop.MaxNetworkNameLength {
		fmt.Fprintf(c.rl.Stdout(), "Usage: name <network-name> (at most %d bytes)\n", meshcop.MaxNetworkNameLength)
		return
	}

	c.do(func() {
		var req meshcop.Dataset
		req.SetTimestamp(meshcop.TLVActiveTimestamp, nextTimestamp(c.inst.Active().Timestamp()))
		req.Set(meshcop.TLVNetworkName, []byte(args[0]))
		if err := c.inst.Active().SendSetRequest(req, nil, c.stateReporter("Active set")); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Active set failed: %v\n", err)
		}
	})
}

func (c *Console) cmdMigrate(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: migrate <channel> [delay-seconds]")
		return
	}
	n, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid channel: %v\n", err)
		return
	}
	ch := meshcop.Channel{Number: uint16(n)}
	if err := ch.Validate(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid channel: %v\n", err)
		return
	}
	delay := uint32(meshcop.DelayTimerDefault)
	if len(args) == 2 {
		sec, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid delay: %v\n", err)
			return
		}
		delay = uint32(sec) * 1000
	}

	c.do(func() {
		var req meshcop.Dataset
		req.SetTimestamp(meshcop.TLVPendingTimestamp, nextTimestamp(c.inst.Pending().Timestamp()))
		req.SetTimestamp(meshcop.TLVActiveTimestamp, nextTimestamp(c.inst.Active().Timestamp()))
		req.SetDelayTimer(delay)
		req.Set(meshcop.TLVChannel, ch.Bytes())
		if err := c.inst.Pending().SendSetRequest(req, nil, c.stateReporter("Pending set")); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Pending set failed: %v\n", err)
		}
	})
}

// nextTimestamp returns a timestamp one second after ts, or one second
// after zero when there is none.
func nextTimestamp(ts meshcop.Timestamp, ok bool) meshcop.Timestamp {
	if !ok {
		return meshcop.Timestamp{Seconds: 1}
	}
	return meshcop.Timestamp{Seconds: ts.Seconds + 1}
}

func (c *Console) cmdKeys() {
	out := c.rl.Stdout()
	c.do(func() {
		k := c.inst.KeyManager()
		fmt.Fprintf(out, "Key sequence:    %d\n", k.CurrentKeySequence())
		fmt.Fprintf(out, "Rotation:        %dh\n", k.KeyRotation())
		fmt.Fprintf(out, "Guard time:      %dh (enabled: %v)\n", k.GuardTime(), k.IsGuardEnabled())
		fmt.Fprintf(out, "Security policy: %s\n", k.SecurityPolicy())
	})
}

func (c *Console) cmdCommissioner(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: commissioner <start <id>|stop>")
		return
	}

	switch strings.ToLower(args[0]) {
	case "start":
		if len(args) != 2 {
			fmt.Fprintln(c.rl.Stdout(), "Usage: commissioner start <id>")
			return
		}
		c.do(func() {
			if err := c.inst.Commissioner().Start(args[1]); err != nil {
				fmt.Fprintf(c.rl.Stdout(), "Petition failed: %v\n", err)
				return
			}
			fmt.Fprintln(c.rl.Stdout(), "Petitioning...")
		})
	case "stop":
		c.do(func() { c.inst.Commissioner().Stop() })
	default:
		fmt.Fprintf(c.rl.Stdout(), "Unknown commissioner command: %s\n", args[0])
	}
}

func (c *Console) cmdSteering(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: steering <hex>")
		return
	}
	data, err := hex.DecodeString(args[0])
	if err != nil || len(data) == 0 || len(data) > 16 {
		fmt.Fprintln(c.rl.Stdout(), "Steering data must be 1 to 16 hex bytes")
		return
	}

	c.do(func() {
		var d meshcop.Dataset
		d.Set(meshcop.TLVSteeringData, data)
		if err := c.inst.Commissioner().SendCommissionerSet(d, c.stateReporter("Commissioner set")); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Commissioner set failed: %v\n", err)
		}
	})
}
