package transport

import (
	"sync"

	"github.com/kboxdb/epaxoskv/internal/epaxoserr"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

// Registry is the shared address book every ChannelTransport endpoint in a
// test process registers into, so Send can resolve a destination id to its
// inbox channel without any real network.
type Registry struct {
	mu    sync.RWMutex
	boxes map[string]chan wire.Message
}

// NewRegistry builds an empty shared registry for a set of in-process
// endpoints (replicas and/or clients) to join.
func NewRegistry() *Registry {
	return &Registry{boxes: make(map[string]chan wire.Message)}
}

// ChannelTransport is an in-process Transport backed by buffered Go
// channels, used to exercise the single-threaded, message-driven
// concurrency model of section 5 in tests without sockets.
type ChannelTransport struct {
	reg  *Registry
	self string
	in   chan wire.Message
}

// NewChannelTransport registers id into reg and returns its endpoint.
func NewChannelTransport(reg *Registry, id string) *ChannelTransport {
	in := make(chan wire.Message, 256)
	reg.mu.Lock()
	reg.boxes[id] = in
	reg.mu.Unlock()
	return &ChannelTransport{reg: reg, self: id, in: in}
}

func (c *ChannelTransport) Send(dest string, msg wire.Message) error {
	c.reg.mu.RLock()
	box, ok := c.reg.boxes[dest]
	c.reg.mu.RUnlock()
	if !ok {
		return epaxoserr.NewSubstrateSendFailure(dest, errUnknownDestination(dest))
	}
	select {
	case box <- msg:
		return nil
	default:
		return epaxoserr.NewSubstrateSendFailure(dest, errUnknownDestination(dest))
	}
}

func (c *ChannelTransport) Inbox() <-chan wire.Message { return c.in }

func (c *ChannelTransport) Close() error {
	c.reg.mu.Lock()
	delete(c.reg.boxes, c.self)
	c.reg.mu.Unlock()
	return nil
}

type destErr string

func (e destErr) Error() string { return "unknown or full inbox for destination " + string(e) }

func errUnknownDestination(dest string) error { return destErr(dest) }
