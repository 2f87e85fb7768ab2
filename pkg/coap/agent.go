package coap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"time"

	"github.com/mesh-protocol/meshcop-go/pkg/log"
	"github.com/mesh-protocol/meshcop-go/pkg/meshcop"
	"github.com/mesh-protocol/meshcop-go/pkg/timer"
	"github.com/mesh-protocol/meshcop-go/pkg/tlv"
)

// Agent errors.
var (
	// ErrNoBufs is returned when no request slot is free.
	ErrNoBufs = errors.New("coap: no buffers")

	// ErrResponseTimeout is delivered when a request gets no response.
	ErrResponseTimeout = errors.New("coap: response timeout")

	// ErrReset is delivered when the peer resets a request.
	ErrReset = errors.New("coap: reset by peer")

	// ErrAlreadyResponded is returned by a second Respond call.
	ErrAlreadyResponded = errors.New("coap: already responded")

	// ErrAborted is delivered to outstanding requests when the agent stops.
	ErrAborted = errors.New("coap: aborted")
)

// Defaults.
const (
	// DefaultMaxPending bounds the outstanding requests of one agent.
	DefaultMaxPending = 8

	// DefaultResponseTimeout is how long a request waits for its response,
	// in milliseconds.
	DefaultResponseTimeout uint32 = 10_000

	tokenLength = 4
)

// Endpoint sends datagrams for an agent.
type Endpoint interface {
	// Send transmits data to dst. It must not block.
	Send(dst netip.AddrPort, data []byte) error

	// LocalAddr returns the endpoint's own address.
	LocalAddr() netip.AddrPort
}

// Handler serves requests for one resource path.
type Handler interface {
	HandleRequest(req *Request)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *Request)

// HandleRequest calls f.
func (f HandlerFunc) HandleRequest(req *Request) { f(req) }

// ResponseHandler receives the outcome of a request. On failure resp is nil
// and err is ErrResponseTimeout, ErrReset or ErrAborted.
type ResponseHandler interface {
	HandleResponse(resp *Message, src netip.AddrPort, err error)
}

// ResponseHandlerFunc adapts a function to ResponseHandler.
type ResponseHandlerFunc func(resp *Message, src netip.AddrPort, err error)

// HandleResponse calls f.
func (f ResponseHandlerFunc) HandleResponse(resp *Message, src netip.AddrPort, err error) {
	f(resp, src, err)
}

// Request is an inbound request being served.
type Request struct {
	*Message

	// Source is the sender's address.
	Source netip.AddrPort

	agent     *Agent
	responded bool
}

// Respond sends the response for this request. A confirmable request gets a
// piggybacked acknowledgment; a non-confirmable one a non-confirmable reply.
func (r *Request) Respond(code Code, payload []byte) error {
	if r.responded {
		return ErrAlreadyResponded
	}
	r.responded = true

	typ := Acknowledgment
	mid := r.MessageID
	if !r.IsConfirmable() {
		typ = NonConfirmable
		mid = r.agent.nextMessageID()
	}

	return r.agent.send(&Message{
		Type:      typ,
		Code:      code,
		MessageID: mid,
		Token:     r.Token,
		Payload:   payload,
	}, r.Source)
}

// Responded reports whether Respond has been called.
func (r *Request) Responded() bool {
	return r.responded
}

// AgentConfig configures an Agent.
type AgentConfig struct {
	// Scheduler drives the response timers. Required.
	Scheduler *timer.Scheduler

	// Endpoint transmits datagrams. Required.
	Endpoint Endpoint

	// MaxPending bounds outstanding requests. Defaults to DefaultMaxPending.
	MaxPending int

	// ResponseTimeout in milliseconds. Defaults to DefaultResponseTimeout.
	ResponseTimeout uint32

	// Logger is the optional logger for operational messages.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// Events receives message capture events. May be nil.
	Events *log.Emitter
}

type pendingRequest struct {
	inUse   bool
	token   []byte
	mid     uint16
	dst     netip.AddrPort
	uri     string
	sentAt  uint32
	handler ResponseHandler
	timer   *timer.Timer
}

// Agent sends and serves requests over one Endpoint. It is not safe for
// concurrent use; all calls happen on the owning event loop.
type Agent struct {
	sched     *timer.Scheduler
	endpoint  Endpoint
	timeout   uint32
	logger    *slog.Logger
	events    *log.Emitter
	resources map[string]Handler
	pending   []pendingRequest

	nextMID   uint16
	nextToken uint32
}

// NewAgent creates an agent.
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	a := &Agent{
		sched:     cfg.Scheduler,
		endpoint:  cfg.Endpoint,
		timeout:   cfg.ResponseTimeout,
		logger:    logger,
		events:    cfg.Events,
		resources: make(map[string]Handler),
		pending:   make([]pendingRequest, cfg.MaxPending),
		nextMID:   uint16(rand.Uint32()),
		nextToken: rand.Uint32(),
	}
	for i := range a.pending {
		slot := i
		a.pending[i].timer = cfg.Scheduler.NewTimer(timer.HandlerFunc(func() {
			a.expire(slot)
		}))
	}
	return a
}

// LocalAddr returns the endpoint address.
func (a *Agent) LocalAddr() netip.AddrPort {
	return a.endpoint.LocalAddr()
}

// AddResource registers h for path, replacing any previous handler.
func (a *Agent) AddResource(path string, h Handler) {
	a.resources[path] = h
}

// RemoveResource unregisters path.
func (a *Agent) RemoveResource(path string) {
	delete(a.resources, path)
}

// Pending returns the number of outstanding requests.
func (a *Agent) Pending() int {
	n := 0
	for i := range a.pending {
		if a.pending[i].inUse {
			n++
		}
	}
	return n
}

// SendRequest sends msg to dst. When h is nil no response is awaited and no
// slot is used. Otherwise h is called exactly once with the response or an
// error. The message ID and token are assigned here.
func (a *Agent) SendRequest(msg *Message, dst netip.AddrPort, h ResponseHandler) error {
	msg.MessageID = a.nextMessageID()
	msg.Token = a.newToken()

	if h == nil {
		return a.send(msg, dst)
	}

	slot := -1
	for i := range a.pending {
		if !a.pending[i].inUse {
			slot = i
			break
		}
	}
	if slot < 0 {
		return ErrNoBufs
	}

	if err := a.send(msg, dst); err != nil {
		return err
	}

	p := &a.pending[slot]
	p.inUse = true
	p.token = msg.Token
	p.mid = msg.MessageID
	p.dst = dst
	p.uri = msg.URIPath
	p.sentAt = a.sched.Now()
	p.handler = h
	p.timer.Start(a.timeout)
	return nil
}

// AbortAll fails every outstanding request with ErrAborted.
func (a *Agent) AbortAll() {
	for i := range a.pending {
		if a.pending[i].inUse {
			a.finish(i, nil, netip.AddrPort{}, ErrAborted)
		}
	}
}

// Receive processes one inbound datagram. Malformed datagrams are dropped.
func (a *Agent) Receive(src netip.AddrPort, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		a.logger.Debug("dropping datagram", "src", src, "error", err)
		a.events.Error(log.LayerTransport, err, "decode from "+src.String())
		return
	}
	var match *pendingRequest
	if msg.Type != Reset && !msg.IsRequest() && msg.Code != CodeEmpty {
		if i := a.findPending(msg.Token); i >= 0 {
			match = &a.pending[i]
		}
	}
	a.capture(log.DirectionIn, msg, src, match)

	switch {
	case msg.Type == Reset:
		a.handleReset(msg, src)
	case msg.IsRequest():
		a.handleRequest(msg, src)
	case msg.Code == CodeEmpty:
		// Empty acknowledgments carry nothing this agent waits for.
	default:
		a.handleResponse(msg, src)
	}
}

func (a *Agent) handleRequest(msg *Message, src netip.AddrPort) {
	req := &Request{Message: msg, Source: src, agent: a}

	h, ok := a.resources[msg.URIPath]
	if !ok {
		a.logger.Debug("no resource", "uri", msg.URIPath, "src", src)
		if msg.IsConfirmable() {
			_ = req.Respond(CodeNotFound, nil)
		}
		return
	}

	h.HandleRequest(req)
}

func (a *Agent) handleResponse(msg *Message, src netip.AddrPort) {
	if i := a.findPending(msg.Token); i >= 0 {
		a.finish(i, msg, src, nil)
		return
	}
	a.logger.Debug("unmatched response", "src", src, "mid", msg.MessageID)
}

func (a *Agent) findPending(token []byte) int {
	for i := range a.pending {
		if a.pending[i].inUse && bytes.Equal(a.pending[i].token, token) {
			return i
		}
	}
	return -1
}

func (a *Agent) handleReset(msg *Message, src netip.AddrPort) {
	for i := range a.pending {
		p := &a.pending[i]
		if p.inUse && p.mid == msg.MessageID {
			a.finish(i, nil, src, ErrReset)
			return
		}
	}
}

func (a *Agent) expire(slot int) {
	if !a.pending[slot].inUse {
		return
	}
	a.logger.Debug("request timed out", "dst", a.pending[slot].dst, "mid", a.pending[slot].mid)
	a.finish(slot, nil, netip.AddrPort{}, ErrResponseTimeout)
}

// finish releases the slot before calling the handler so the handler may
// send a new request.
func (a *Agent) finish(slot int, msg *Message, src netip.AddrPort, err error) {
	p := &a.pending[slot]
	h := p.handler

	p.timer.Stop()
	p.inUse = false
	p.token = nil
	p.uri = ""
	p.handler = nil

	h.HandleResponse(msg, src, err)
}

func (a *Agent) send(msg *Message, dst netip.AddrPort) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := a.endpoint.Send(dst, data); err != nil {
		return fmt.Errorf("coap: send to %s: %w", dst, err)
	}
	a.capture(log.DirectionOut, msg, dst, nil)
	return nil
}

func (a *Agent) nextMessageID() uint16 {
	a.nextMID++
	return a.nextMID
}

func (a *Agent) newToken() []byte {
	a.nextToken++
	tok := make([]byte, tokenLength)
	binary.BigEndian.PutUint32(tok, a.nextToken)
	return tok
}

// capture emits a message event. For an inbound response, match is the
// request it answers and supplies the resource path and round-trip time.
func (a *Agent) capture(dir log.Direction, msg *Message, peer netip.AddrPort, match *pendingRequest) {
	if a.events == nil || a.events.Logger == nil {
		return
	}

	ev := &log.MessageEvent{
		Type:        log.MessageTypeResponse,
		MessageID:   msg.MessageID,
		Token:       msg.Token,
		URIPath:     msg.URIPath,
		Code:        uint8(msg.Code),
		PayloadSize: len(msg.Payload),
	}
	if msg.IsRequest() {
		ev.Type = log.MessageTypeRequest
	}
	if match != nil {
		ev.URIPath = match.uri
		rtt := time.Duration(a.sched.Now()-match.sentAt) * time.Millisecond
		ev.ResponseTime = &rtt
	}
	if tlvs, err := tlv.Decode(msg.Payload); err == nil {
		for _, t := range tlvs {
			ev.TLVTypes = append(ev.TLVTypes, t.Type)
			if meshcop.TLVType(t.Type) == meshcop.TLVState && len(t.Value) == 1 {
				s := int8(t.Value[0])
				ev.State = &s
			}
		}
	}

	a.events.Emit(log.Event{
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		RemoteAddr: peer.String(),
		Message:    ev,
	})
}
