// Package wire defines the logical message schema of section 6 of the
// specification. Messages carry a discriminant (their Go type) and are
// length-framed by internal/transport; this package owns only the payload
// shapes, not the framing.
package wire

import (
	"sort"

	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/command"
)

// Message is the common interface every wire type satisfies, so router and
// transport code can handle them uniformly.
type Message interface {
	// From identifies the replica that produced the message (empty for
	// ClientRequest, which originates outside the replica ensemble).
	From() cmdlog.ReplicaID
}

// Envelope carries the common "who sent this" field so message structs
// don't each repeat the From() plumbing. Exported (rather than the more
// natural lowercase "envelope") because gob only transmits promoted fields
// of embedded types that are themselves exported; an unexported embedded
// type silently drops Sender on the wire.
type Envelope struct {
	Sender cmdlog.ReplicaID
}

func (e Envelope) From() cmdlog.ReplicaID { return e.Sender }

// ClientRequest is a request from a client, addressed to whichever replica
// receives it (which becomes the command leader for the resulting
// instance).
type ClientRequest struct {
	ClientID string
	MsgID    string
	Cmd      command.Command
}

func (ClientRequest) From() cmdlog.ReplicaID { return "" }

// ClientResponse answers a ClientRequest. Result is Get{key,value_opt} or
// Set{key,status_bool}; CmdResult below models both without a sum type
// since Go structs are cheaper here than an interface per the teacher's
// own plain-struct response types (cluster/message_test.go).
type ClientResponse struct {
	Envelope
	ClientID string
	MsgID    string
	Result   CmdResult
}

// CmdResult is the outcome reported back to a client.
type CmdResult struct {
	Key   command.Key
	Value string // meaningful only when Kind == KindGet
	Found bool   // meaningful only when Kind == KindGet
	Kind  command.Kind
	OK    bool // meaningful only when Kind == KindSet; always true in this core
}

// PreAccept is the leader's initial broadcast for a new instance.
type PreAccept struct {
	Envelope
	Instance cmdlog.Instance
	Cmd      command.Command
	Seq      uint64
	Deps     []cmdlog.Instance
}

// PreAcceptOk is a follower's reply to PreAccept.
type PreAcceptOk struct {
	Envelope
	Instance cmdlog.Instance
	Seq      uint64
	Deps     []cmdlog.Instance
}

// Accept is the leader's slow-path broadcast.
type Accept struct {
	Envelope
	Instance cmdlog.Instance
	Cmd      command.Command
	Seq      uint64
	Deps     []cmdlog.Instance
}

// AcceptOk is a follower's reply to Accept.
type AcceptOk struct {
	Envelope
	Instance cmdlog.Instance
}

// Commit finalizes an instance's (cmd, seq, deps).
type Commit struct {
	Envelope
	Instance cmdlog.Instance
	Cmd      command.Command
	Seq      uint64
	Deps     []cmdlog.Instance
}

// DepSet converts a wire dependency slice to the set representation the
// command log and execution engine operate on.
func DepSet(deps []cmdlog.Instance) map[cmdlog.Instance]struct{} {
	out := make(map[cmdlog.Instance]struct{}, len(deps))
	for _, d := range deps {
		out[d] = struct{}{}
	}
	return out
}

// DepSlice converts a dependency set back to a deterministic-ish slice for
// wire transmission (order doesn't matter for correctness; sorted only for
// test stability).
func DepSlice(deps map[cmdlog.Instance]struct{}) []cmdlog.Instance {
	out := make([]cmdlog.Instance, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Less(out[b]) })
	return out
}
