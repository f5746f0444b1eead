package router

import (
	"testing"

	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/wire"
	"github.com/stretchr/testify/assert"
)

func replicaList() []cmdlog.ReplicaID { return []cmdlog.ReplicaID{"r1", "r2", "r3"} }

func TestBroadcastExcludesSelf(t *testing.T) {
	r := New("r1", replicaList())
	target := r.Disposition(&wire.PreAccept{Instance: cmdlog.Instance{Replica: "r1"}})
	assert.ElementsMatch(t, []cmdlog.ReplicaID{"r2", "r3"}, target.Peers)
}

func TestBroadcastFallsBackToSelfWhenAlone(t *testing.T) {
	r := New("r1", []cmdlog.ReplicaID{"r1"})
	target := r.Disposition(&wire.Commit{Instance: cmdlog.Instance{Replica: "r1"}})
	assert.Equal(t, []cmdlog.ReplicaID{"r1"}, target.Peers)
}

func TestReplyGoesToInstanceLeader(t *testing.T) {
	r := New("r2", replicaList())
	target := r.Disposition(&wire.PreAcceptOk{Instance: cmdlog.Instance{Replica: "r1", Num: 3}})
	assert.Equal(t, cmdlog.ReplicaID("r1"), target.Reply)
}

func TestClientResponseIsSingleAddressed(t *testing.T) {
	r := New("r1", replicaList())
	target := r.Disposition(&wire.ClientResponse{ClientID: "client-9"})
	assert.Equal(t, "client-9", target.Single)
}
