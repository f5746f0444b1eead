// Package replica is the client-facing glue of section 4.6: it wires one
// replica's internal/consensus Machine, internal/execution Engine,
// internal/kvstore Store and internal/router Router behind the two
// operations the outside world (a client or another replica, indirectly
// via internal/transport) ever calls - Submit and Handle - and turns
// router dispositions into actual sends over a Transport. Nothing in this
// package blocks: every call runs the single-threaded, message-driven
// scheduling step of section 5 to completion and returns.
package replica

import (
	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/command"
	"github.com/kboxdb/epaxoskv/internal/consensus"
	"github.com/kboxdb/epaxoskv/internal/epaxoserr"
	"github.com/kboxdb/epaxoskv/internal/execution"
	"github.com/kboxdb/epaxoskv/internal/kvstore"
	"github.com/kboxdb/epaxoskv/internal/router"
	"github.com/kboxdb/epaxoskv/internal/telemetry"
	"github.com/kboxdb/epaxoskv/internal/transport"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

// Replica is one ensemble member: a consensus state machine, an execution
// engine sharing its log and leader bookkeeping, a key-value store only
// the engine ever writes to, and a router that turns produced messages
// into addressed sends over a transport.
type Replica struct {
	id     cmdlog.ReplicaID
	debug  bool
	mach   *consensus.Machine
	engine *execution.Engine
	router *router.Router
	tr     transport.Transport
}

// New builds a Replica for self within replicaList (self included, used
// both for quorum sizing and for broadcast fan-out), driving sends over
// tr.
func New(self cmdlog.ReplicaID, replicaList []cmdlog.ReplicaID, tr transport.Transport, debug bool) *Replica {
	mach := consensus.New(self, len(replicaList), debug)
	store := kvstore.New()
	return &Replica{
		id:     self,
		debug:  debug,
		mach:   mach,
		engine: execution.New(self, mach.Log(), mach.Leader(), store),
		router: router.New(self, replicaList),
		tr:     tr,
	}
}

// Store exposes the underlying key-value store for direct inspection
// (tests, a debug endpoint); internal/execution remains the only writer.
func (r *Replica) Store() *kvstore.Store { return r.engine.Store() }

// Submit implements section 4.3's ClientRequest for a command arriving at
// this replica directly from a client, becoming the command leader for the
// resulting instance. It returns the messages produced (already
// dispatched over the transport, same as Handle's return value) so a
// caller composing Replica with something other than Run can inspect or
// re-dispatch them.
func (r *Replica) Submit(cmd command.Command, clientID, msgID string) []wire.Message {
	_, msgs, err := r.mach.ClientRequest(cmd, clientID, msgID)
	if err != nil {
		telemetry.Replica(string(r.id)).WithError(err).Error("client request rejected")
		return nil
	}
	r.dispatch(msgs)
	return msgs
}

// Handle is the single entry point for every inbound wire.Message, whether
// it originated from a client or a peer replica: it dispatches to the
// matching internal/consensus handler, drives internal/execution when a
// Commit may have unblocked deferred reads, dispatches every resulting
// outbound message via the router and transport, and returns them. No
// goroutine is spawned per message - Run drives this one call at a time
// off the transport's inbound channel, matching section 5's
// single-threaded scheduling model.
func (r *Replica) Handle(msg wire.Message) []wire.Message {
	var out []wire.Message

	switch m := msg.(type) {
	case *wire.ClientRequest:
		out = r.Submit(m.Cmd, m.ClientID, m.MsgID)
		return out // already dispatched by Submit

	case *wire.PreAccept:
		reply, err := r.mach.HandlePreAccept(m)
		if err != nil {
			telemetry.Replica(string(r.id)).WithError(err).Error("message rejected")
			return nil
		}
		if reply != nil {
			out = []wire.Message{reply}
		}

	case *wire.PreAcceptOk:
		msgs, err := r.mach.HandlePreAcceptOk(m)
		if err != nil {
			telemetry.Replica(string(r.id)).WithError(err).Error("message rejected")
			return nil
		}
		out = msgs
		// A fast-path commit may be among msgs: this replica just
		// committed the instance itself, so resolve pending reads now
		// rather than waiting for a separate inbound Commit broadcast.
		out = append(out, r.tryExecute(msgs, m.Instance)...)

	case *wire.Accept:
		reply, err := r.mach.HandleAccept(m)
		if err != nil {
			telemetry.Replica(string(r.id)).WithError(err).Error("message rejected")
			return nil
		}
		if reply != nil {
			out = []wire.Message{reply}
		}

	case *wire.AcceptOk:
		msgs, err := r.mach.HandleAcceptOk(m)
		if err != nil {
			telemetry.Replica(string(r.id)).WithError(err).Error("message rejected")
			return nil
		}
		out = msgs
		out = append(out, r.tryExecute(msgs, m.Instance)...)

	case *wire.Commit:
		if err := r.mach.HandleCommit(m); err != nil {
			telemetry.Replica(string(r.id)).WithError(err).Error("commit rejected")
			return nil
		}
		out = r.engine.ResolvePendingReads(m.Instance)

	default:
		telemetry.Replica(string(r.id)).WithError(epaxoserr.NewProtocolViolation("unrecognized message type")).Warn("dropping unhandled message")
		return nil
	}

	r.dispatch(out)
	return out
}

// tryExecute runs ResolvePendingReads for inst when msgs contains a
// Commit, i.e. this replica just committed inst itself (fast or slow
// path) rather than learning of it from a peer's Commit broadcast.
func (r *Replica) tryExecute(msgs []wire.Message, inst cmdlog.Instance) []wire.Message {
	for _, m := range msgs {
		if _, ok := m.(*wire.Commit); ok {
			return r.engine.ResolvePendingReads(inst)
		}
	}
	return nil
}

// dispatch resolves each message's outbound disposition via the router and
// sends it over the transport, broadcasting to peers, replying to a
// single replica, or addressing a client directly. Send failures are
// logged and dropped per section 7's policy: retransmission, if any, is
// the substrate's concern.
func (r *Replica) dispatch(msgs []wire.Message) {
	for _, msg := range msgs {
		disp := r.router.Disposition(msg)
		switch {
		case len(disp.Peers) > 0:
			for _, sendErr := range transport.Broadcast(r.tr, idsToStrings(disp.Peers), msg) {
				if sendErr != nil {
					telemetry.Replica(string(r.id)).WithError(sendErr).Warn("broadcast send failed")
				}
			}
		case disp.Reply != "":
			if err := r.tr.Send(string(disp.Reply), msg); err != nil {
				telemetry.Replica(string(r.id)).WithError(err).Warn("reply send failed")
			}
		case disp.Single != "":
			if err := r.tr.Send(disp.Single, msg); err != nil {
				telemetry.Replica(string(r.id)).WithError(err).Warn("client send failed")
			}
		}
	}
}

func idsToStrings(ids []cmdlog.ReplicaID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// Run reads from tr's inbox until it is closed (or closeCh fires),
// handling one message at a time - the single goroutine per replica that
// section 5 requires. It is the loop cmd/epaxosd's main runs; tests
// instead call Handle directly or drive multiple replicas' inboxes from a
// shared test goroutine.
func (r *Replica) Run(closeCh <-chan struct{}) {
	for {
		select {
		case msg, ok := <-r.tr.Inbox():
			if !ok {
				return
			}
			r.Handle(msg)
		case <-closeCh:
			return
		}
	}
}
