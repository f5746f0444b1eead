package replica

import (
	"testing"

	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/command"
	"github.com/kboxdb/epaxoskv/internal/transport"
	"github.com/kboxdb/epaxoskv/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness wires a small in-process ensemble over a shared channel
// registry and drains every replica's inbox to quiescence after each
// injected message, modeling the cooperative, single-threaded scheduling
// of section 5 without goroutines: the test goroutine itself is the only
// "thread" ever inside Handle.
type harness struct {
	ids  []cmdlog.ReplicaID
	reps map[cmdlog.ReplicaID]*Replica
	trs  map[cmdlog.ReplicaID]*transport.ChannelTransport
}

func newHarness(t *testing.T, n int, debug bool) *harness {
	t.Helper()
	reg := transport.NewRegistry()
	h := &harness{
		reps: make(map[cmdlog.ReplicaID]*Replica),
		trs:  make(map[cmdlog.ReplicaID]*transport.ChannelTransport),
	}
	for i := 0; i < n; i++ {
		id := cmdlog.ReplicaID(string(rune('a' + i)))
		h.ids = append(h.ids, id)
	}
	for _, id := range h.ids {
		h.trs[id] = transport.NewChannelTransport(reg, string(id))
	}
	for _, id := range h.ids {
		h.reps[id] = New(id, h.ids, h.trs[id], debug)
	}
	return h
}

// drain repeatedly polls every replica's inbox non-blockingly and hands
// each waiting message to that replica's Handle, until a full pass finds
// nothing left anywhere - the message-driven analogue of "run until
// idle".
func (h *harness) drain() {
	for {
		progressed := false
		for _, id := range h.ids {
			for {
				select {
				case msg := <-h.trs[id].Inbox():
					h.reps[id].Handle(msg)
					progressed = true
				default:
				}
				break
			}
		}
		if !progressed {
			return
		}
	}
}

// submit delivers cmd directly to leader's Submit (bypassing a
// ClientRequest wire hop, same as a client library would after dialing
// the leader) then drains the ensemble to quiescence.
func (h *harness) submit(leader cmdlog.ReplicaID, cmd command.Command, clientID, msgID string) {
	h.reps[leader].Submit(cmd, clientID, msgID)
	h.drain()
}

func TestSubmitSetReachesFastPathCommitAndExecutes(t *testing.T) {
	h := newHarness(t, 3, true)

	h.submit("a", command.Set("k1", "v1"), "client-1", "msg-1")

	for _, id := range h.ids {
		val, found := h.reps[id].Store().Get("k1")
		require.True(t, found, "replica %s should have executed the Set", id)
		assert.Equal(t, "v1", val)
	}
}

func TestSubmitGetAfterSetReturnsWrittenValue(t *testing.T) {
	h := newHarness(t, 3, true)

	h.submit("a", command.Set("k1", "v1"), "client-1", "msg-1")
	h.reps["a"].Submit(command.Get("k1"), "client-1", "msg-2")

	// Drain like h.drain, keeping the Get's ClientResponse, which the
	// leader returns from Handle once the read executes.
	var resp *wire.ClientResponse
	for progressed := true; progressed; {
		progressed = false
		for _, id := range h.ids {
			select {
			case msg := <-h.trs[id].Inbox():
				for _, out := range h.reps[id].Handle(msg) {
					if cr, ok := out.(*wire.ClientResponse); ok && cr.MsgID == "msg-2" {
						resp = cr
					}
				}
				progressed = true
			default:
			}
		}
	}
	require.NotNil(t, resp)
	assert.Equal(t, "v1", resp.Result.Value)
	assert.True(t, resp.Result.Found)

	val, found := h.reps["a"].Store().Get("k1")
	require.True(t, found)
	assert.Equal(t, "v1", val)
}

// Two non-interfering commands (different keys) submitted at different
// replicas never need each other's dependency closure, so both commit
// independently and every replica ends up with both writes applied.
func TestNonInterferingCommandsFromDifferentLeadersBothCommit(t *testing.T) {
	h := newHarness(t, 3, true)

	h.submit("a", command.Set("k1", "v1"), "client-1", "msg-1")
	h.submit("b", command.Set("k2", "v2"), "client-2", "msg-2")

	for _, id := range h.ids {
		v1, f1 := h.reps[id].Store().Get("k1")
		v2, f2 := h.reps[id].Store().Get("k2")
		require.True(t, f1)
		require.True(t, f2)
		assert.Equal(t, "v1", v1)
		assert.Equal(t, "v2", v2)
	}
}

// Two interfering Sets on the same key, submitted back to back at two
// different leaders, must serialize: every replica converges on the same
// final value regardless of which instance happened to be inserted into
// any one replica's log first, since the execution engine orders by seq
// then Instance within a cycle (scenario 3 of section 8, exercised here
// end-to-end rather than by hand-built log state as in
// internal/execution's test).
func TestInterferingCommandsFromDifferentLeadersConverge(t *testing.T) {
	h := newHarness(t, 3, true)

	h.reps["a"].Submit(command.Set("k1", "from-a"), "client-1", "msg-1")
	h.reps["b"].Submit(command.Set("k1", "from-b"), "client-2", "msg-2")
	h.drain()

	want, found := h.reps["a"].Store().Get("k1")
	require.True(t, found)
	for _, id := range h.ids {
		got, found := h.reps[id].Store().Get("k1")
		require.True(t, found)
		assert.Equal(t, want, got, "replica %s diverged from replica a", id)
	}
}

// A lone Get submitted with no prior Set still round-trips through the
// full PreAccept/Commit/Execute pipeline and resolves to not-found rather
// than hanging as a permanently pending read.
func TestGetWithNoPriorSetResolvesNotFound(t *testing.T) {
	h := newHarness(t, 3, true)

	h.submit("a", command.Get("missing"), "client-1", "msg-1")

	_, found := h.reps["a"].Store().Get("missing")
	assert.False(t, found)
	assert.Empty(t, h.reps["a"].mach.Leader().PendingReads)
}

// Re-delivering an already-handled Commit (duplicate, per section 1's
// tolerance of substrate duplicates) must not panic or corrupt state: the
// command log's overwrite policy treats an identical re-insert as a
// no-op, and execution's applyOne skips already-Executed slots.
func TestDuplicateCommitIsIdempotent(t *testing.T) {
	h := newHarness(t, 3, true)
	h.submit("a", command.Set("k1", "v1"), "client-1", "msg-1")

	inst := cmdlog.Instance{Replica: "a", Num: 0}
	entry := h.reps["a"].mach.Log().Get(inst)
	require.NotNil(t, entry)
	dup := &wire.Commit{Instance: inst, Cmd: entry.Cmd, Seq: entry.Seq, Deps: wire.DepSlice(entry.Deps)}

	require.NotPanics(t, func() {
		h.reps["a"].Handle(dup)
		h.reps["b"].Handle(dup)
	})

	val, found := h.reps["a"].Store().Get("k1")
	require.True(t, found)
	assert.Equal(t, "v1", val)
}

// A duplicate Commit arriving for an instance that has since been
// superseded by a later write on the same key must not resurrect the
// earlier value: Set(k,"old")=(a,0) executes first, then Set(k,"new")=(b,0)
// executes (the interference analyzer no longer ties it to (a,0), which is
// already Executed), so store[k]=="new" everywhere; a stale re-delivery of
// (a,0)'s Commit must be a no-op, not a downgrade from Executed back to
// Committed that would re-apply the old write and leave this replica
// diverged from its peers (spec.md §3 invariant 4, "status never
// reverses", and I5, "each Set applied exactly once").
func TestDuplicateCommitOfSupersededInstanceDoesNotRegressState(t *testing.T) {
	h := newHarness(t, 3, true)

	h.submit("a", command.Set("k1", "old"), "client-1", "msg-1")
	inst := cmdlog.Instance{Replica: "a", Num: 0}
	entry := h.reps["a"].mach.Log().Get(inst)
	require.NotNil(t, entry)
	require.Equal(t, cmdlog.Executed, entry.Status)
	staleCommit := &wire.Commit{Instance: inst, Cmd: entry.Cmd, Seq: entry.Seq, Deps: wire.DepSlice(entry.Deps)}

	h.submit("b", command.Set("k1", "new"), "client-2", "msg-2")

	for _, id := range h.ids {
		val, found := h.reps[id].Store().Get("k1")
		require.True(t, found)
		require.Equal(t, "new", val, "replica %s should hold the later write before the stale duplicate arrives", id)
	}

	// Re-deliver the superseded instance's Commit to every replica; none
	// of them may re-apply "old" over "new".
	for _, id := range h.ids {
		h.reps[id].Handle(staleCommit)
	}
	h.drain()

	for _, id := range h.ids {
		val, found := h.reps[id].Store().Get("k1")
		require.True(t, found)
		assert.Equal(t, "new", val, "replica %s regressed to the superseded value", id)
		assert.Equal(t, cmdlog.Executed, h.reps[id].mach.Log().Get(inst).Status)
	}
}
