// Package router implements the pure-function outbound-disposition policy
// of section 4.5: given a message type and replica list, decide whether it
// broadcasts to peers, replies to a sender, or is addressed to a single
// client. It holds no state beyond its constructor's replica list, which
// keeps the protocol's state space confined to internal/consensus.
package router

import (
	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

// Target is the resolved outbound disposition for one message.
type Target struct {
	// Broadcast peers, if non-empty; Reply/Single are empty in this case.
	Peers []cmdlog.ReplicaID
	// Reply destination, set for PreAcceptOk/AcceptOk.
	Reply cmdlog.ReplicaID
	// Single destination (a client id), set for ClientResponse.
	Single string
}

// Router resolves message dispositions against a fixed replica list.
type Router struct {
	self  cmdlog.ReplicaID
	peers []cmdlog.ReplicaID
}

// New builds a Router for self, given the full replica list including self.
func New(self cmdlog.ReplicaID, replicaList []cmdlog.ReplicaID) *Router {
	peers := make([]cmdlog.ReplicaID, 0, len(replicaList))
	for _, r := range replicaList {
		if r != self {
			peers = append(peers, r)
		}
	}
	return &Router{self: self, peers: peers}
}

// Disposition resolves msg's outbound target(s): broadcast to peers
// (PreAccept, Accept, Commit; falling back to self if the peer list is
// empty), reply to the sender (PreAcceptOk, AcceptOk), or single-address
// delivery to a client (ClientResponse).
func (r *Router) Disposition(msg wire.Message) Target {
	switch m := msg.(type) {
	case *wire.PreAccept, *wire.Accept, *wire.Commit:
		return r.broadcast()
	case *wire.PreAcceptOk:
		return Target{Reply: m.Instance.Replica}
	case *wire.AcceptOk:
		return Target{Reply: m.Instance.Replica}
	case *wire.ClientResponse:
		return Target{Single: m.ClientID}
	default:
		return Target{}
	}
}

func (r *Router) broadcast() Target {
	if len(r.peers) == 0 {
		return Target{Peers: []cmdlog.ReplicaID{r.self}}
	}
	peers := make([]cmdlog.ReplicaID, len(r.peers))
	copy(peers, r.peers)
	return Target{Peers: peers}
}
