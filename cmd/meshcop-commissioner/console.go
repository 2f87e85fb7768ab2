package main

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

	"github.com/mesh-protocol/meshcop-go/pkg/commissioner"
	"github.com/mesh-protocol/meshcop-go/pkg/dataset"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/stack"
)

const commandTimeout = 5 * time.Second

// Console is the interactive command loop of the commissioner.
type Console struct {
	rl   *readline.Instance
	loop *stack.Loop
	comm *commissioner.Commissioner
}

// NewConsole creates the console.
func NewConsole() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "commissioner> ",
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

// Run reads commands until quit or EOF.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, loop *stack.Loop, comm *commissioner.Commissioner) {
	defer c.rl.Close()
	c.loop = loop
	c.comm = comm

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
			cancel()
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		args := parts[1:]

		switch strings.ToLower(parts[0]) {
		case "help", "?":
			c.printHelp()
		case "status", "s":
			c.cmdStatus()
		case "start":
			c.cmdStart(args)
		case "stop":
			c.do(c.comm.Stop)
		case "get":
			c.cmdGet(args)
		case "name":
			c.cmdName(args)
		case "migrate":
			c.cmdMigrate(args)
		case "steering":
			c.cmdSteering(args)
		case "commissioning", "cg":
			c.cmdCommissionerGet()
		case "quit", "exit", "q":
			cancel()
			return
		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", parts[0])
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Commissioner Commands:
  status                      - Show the session state
  start <id>                  - Petition again after the session was lost
  stop                        - Resign the session
  get [active|pending]        - Read an operational dataset (MGMT_GET)
  name <network-name>         - Rename the network (MGMT_ACTIVE_SET)
  migrate <channel> [delay-s] - Change channel through a Pending dataset
  steering <hex>              - Set the steering data (MGMT_COMMISSIONER_SET)
  commissioning               - Read the commissioning data (MGMT_COMMISSIONER_GET)
  quit                        - Resign and exit`)
}

func (c *Console) do(fn func()) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.loop.Do(ctx, fn); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

func (c *Console) report(what string, err error) {
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "%s failed: %v\n", what, err)
	}
}

func (c *Console) stateReporter(what string) func(meshcop.State, error) {
	return func(s meshcop.State, err error) {
		if err != nil {
			c.report(what, err)
			return
		}
		fmt.Fprintf(c.rl.Stdout(), "%s: %s\n", what, s)
	}
}

func (c *Console) cmdStatus() {
	c.do(func() {
		fmt.Fprintf(c.rl.Stdout(), "State: %s", c.comm.State())
		if session, ok := c.comm.SessionID(); ok {
			fmt.Fprintf(c.rl.Stdout(), " (%q, session %d)", c.comm.ID(), session)
		}
		fmt.Fprintln(c.rl.Stdout())
	})
}

func (c *Console) cmdStart(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: start <id>")
		return
	}
	c.do(func() { c.report("Petition", c.comm.Start(args[0])) })
}

func (c *Console) cmdGet(args []string) {
	typ := dataset.TypeActive
	if len(args) > 0 && strings.EqualFold(args[0], "pending") {
		typ = dataset.TypePending
	}
	c.do(func() {
		err := c.comm.SendMgmtGet(typ, nil, func(d meshcop.Dataset, err error) {
			if err != nil {
				c.report("Get", err)
				return
			}
			c.printDataset(typ, d)
		})
		c.report("Get", err)
	})
}

func (c *Console) printDataset(typ dataset.Type, d meshcop.Dataset) {
	out := c.rl.Stdout()
	fmt.Fprintf(out, "%s dataset:\n", typ)
	if d.IsEmpty() {
		fmt.Fprintln(out, "  (empty)")
		return
	}
	for _, r := range d.TLVs() {
		t := meshcop.TLVType(r.Type)
		var v string
		switch t {
		case meshcop.TLVNetworkName:
			v = strconv.Quote(string(r.Value))
		case meshcop.TLVNetworkKey, meshcop.TLVPSKc:
			v = fmt.Sprintf("<%d bytes>", len(r.Value))
		case meshcop.TLVActiveTimestamp, meshcop.TLVPendingTimestamp:
			ts, err := meshcop.ParseTimestamp(r.Value)
			if err != nil {
				v = hex.EncodeToString(r.Value)
			} else {
				v = ts.String()
			}
		default:
			v = hex.EncodeToString(r.Value)
		}
		fmt.Fprintf(out, "  %-22s %s\n", t, v)
	}
}

// withTimestamps fetches the current Active and Pending timestamps and
// passes their successors to fn on the event loop.
func (c *Console) withTimestamps(what string, fn func(active, pending meshcop.Timestamp)) {
	c.do(func() {
		err := c.comm.SendMgmtGet(dataset.TypeActive, []meshcop.TLVType{meshcop.TLVActiveTimestamp}, func(a meshcop.Dataset, err error) {
			if err != nil {
				c.report(what, err)
				return
			}
			err = c.comm.SendMgmtGet(dataset.TypePending, []meshcop.TLVType{meshcop.TLVPendingTimestamp}, func(p meshcop.Dataset, err error) {
				if err != nil {
					c.report(what, err)
					return
				}
				fn(next(a.ActiveTimestamp()), next(p.PendingTimestamp()))
			})
			c.report(what, err)
		})
		c.report(what, err)
	})
}

func next(ts meshcop.Timestamp, ok bool) meshcop.Timestamp {
	if !ok {
		return meshcop.Timestamp{Seconds: 1}
	}
	return meshcop.Timestamp{Seconds: ts.Seconds + 1}
}

func (c *Console) cmdName(args []string) {
	if len(args) != 1 || len(args[0]) > meshcop.MaxNetworkNameLength {
		fmt.Fprintf(c.rl.Stdout(), "Usage: name <network-name> (at most %d bytes)\n", meshcop.MaxNetworkNameLength)
		return
	}
	c.withTimestamps("Active set", func(active, _ meshcop.Timestamp) {
		var d meshcop.Dataset
		d.SetTimestamp(meshcop.TLVActiveTimestamp, active)
		d.Set(meshcop.TLVNetworkName, []byte(args[0]))
		c.report("Active set", c.comm.SendMgmtSet(dataset.TypeActive, d, c.stateReporter("Active set")))
	})
}

func (c *Console) cmdMigrate(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: migrate <channel> [delay-seconds]")
		return
	}
	n, err := strconv.ParseUint(args[0], 10, 16)
	ch := meshcop.Channel{Number: uint16(n)}
	if err == nil {
		err = ch.Validate()
	}
	if err != nil {
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

	c.withTimestamps("Pending set", func(active, pending meshcop.Timestamp) {
		var d meshcop.Dataset
		d.SetTimestamp(meshcop.TLVPendingTimestamp, pending)
		d.SetTimestamp(meshcop.TLVActiveTimestamp, active)
		d.SetDelayTimer(delay)
		d.Set(meshcop.TLVChannel, ch.Bytes())
		c.report("Pending set", c.comm.SendMgmtSet(dataset.TypePending, d, c.stateReporter("Pending set")))
	})
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
		c.report("Commissioner set", c.comm.SendCommissionerSet(d, c.stateReporter("Commissioner set")))
	})
}

func (c *Console) cmdCommissionerGet() {
	c.do(func() {
		err := c.comm.SendCommissionerGet(nil, func(d meshcop.Dataset, err error) {
			if err != nil {
				c.report("Commissioner get", err)
				return
			}
			out := c.rl.Stdout()
			for _, r := range d.TLVs() {
				fmt.Fprintf(out, "  %-22s %s\n", meshcop.TLVType(r.Type), hex.EncodeToString(r.Value))
			}
		})
		c.report("Commissioner get", err)
	})
}
