package transport

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"net"
	"sync"

	"github.com/kboxdb/epaxoskv/internal/epaxoserr"
	"github.com/kboxdb/epaxoskv/internal/serializer"
	"github.com/kboxdb/epaxoskv/internal/telemetry"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

func init() {
	gob.Register(&wire.ClientRequest{})
	gob.Register(&wire.ClientResponse{})
	gob.Register(&wire.PreAccept{})
	gob.Register(&wire.PreAcceptOk{})
	gob.Register(&wire.Accept{})
	gob.Register(&wire.AcceptOk{})
	gob.Register(&wire.Commit{})
}

// envelope is the only concrete type ever framed on the wire; wire.Message
// travels inside its Msg field, which gob resolves via the concrete-type
// registrations above.
type envelope struct{ Msg wire.Message }

// TCPTransport is a real point-to-point Transport: each destination id is
// dialed lazily and the connection kept open, messages are gob-encoded and
// length-framed with internal/serializer (ported from the teacher's own
// field-framing convention).
type TCPTransport struct {
	self     string
	listener net.Listener
	peers    map[string]string // id -> host:port

	mu    sync.Mutex
	conns map[string]net.Conn

	in chan wire.Message
}

// Listen starts a TCPTransport for self, accepting inbound connections on
// listenAddr and resolving outbound destinations via peers (id -> addr).
func Listen(self, listenAddr string, peers map[string]string) (*TCPTransport, error) {
	l, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	t := &TCPTransport{
		self:     self,
		listener: l,
		peers:    peers,
		conns:    make(map[string]net.Conn),
		in:       make(chan wire.Message, 256),
	}
	go t.acceptLoop()
	return t, nil
}

func (t *TCPTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return // listener closed
		}
		go t.readLoop(conn)
	}
}

func (t *TCPTransport) readLoop(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		buf, err := serializer.ReadFieldBytes(r)
		if err != nil {
			return
		}
		var env envelope
		if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&env); err != nil {
			telemetry.Log.WithError(err).Warn("dropping malformed message")
			continue
		}
		t.in <- env.Msg
	}
}

func (t *TCPTransport) dial(dest string) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[dest]; ok {
		return conn, nil
	}
	addr, ok := t.peers[dest]
	if !ok {
		return nil, epaxoserr.NewSubstrateSendFailure(dest, errUnknownDestination(dest))
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, epaxoserr.NewSubstrateSendFailure(dest, err)
	}
	t.conns[dest] = conn
	return conn, nil
}

func (t *TCPTransport) Send(dest string, msg wire.Message) error {
	conn, err := t.dial(dest)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&envelope{Msg: msg}); err != nil {
		return epaxoserr.NewSubstrateSendFailure(dest, err)
	}

	w := bufio.NewWriter(conn)
	if err := serializer.WriteFieldBytes(w, buf.Bytes()); err != nil {
		t.mu.Lock()
		delete(t.conns, dest)
		t.mu.Unlock()
		return epaxoserr.NewSubstrateSendFailure(dest, err)
	}
	return nil
}

func (t *TCPTransport) Inbox() <-chan wire.Message { return t.in }

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	for _, conn := range t.conns {
		_ = conn.Close()
	}
	t.mu.Unlock()
	return t.listener.Close()
}
