package consensus

import (
	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/epaxoserr"
	"github.com/kboxdb/epaxoskv/internal/interference"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

// HandlePreAccept implements the follower side of section 4.3's PreAccept
// operation: recompute interference locally, widen with whatever the
// leader proposed, upsert the slot, and reply.
func (m *Machine) HandlePreAccept(msg *wire.PreAccept) (wire.Message, error) {
	ldeps, lseq := interference.Analyze(m.log, msg.Cmd)

	deps := wire.DepSet(msg.Deps)
	for d := range ldeps {
		deps[d] = struct{}{}
	}
	seq := msg.Seq
	if lseq > seq {
		seq = lseq
	}

	if err := m.log.Insert(msg.Instance, &cmdlog.Entry{
		Cmd: msg.Cmd, Seq: seq, Deps: deps, Status: cmdlog.PreAccepted,
	}); err != nil {
		return nil, err
	}

	reply := &wire.PreAcceptOk{Instance: msg.Instance, Seq: seq, Deps: wire.DepSlice(deps)}
	reply.Sender = m.self
	return reply, nil
}

// HandlePreAcceptOk implements the command-leader side of section 4.3's
// PreAcceptOk operation. It returns no messages, a single Accept
// broadcast request (slow path), or a Commit request plus, for Set
// commands, a ClientResponse (fast path).
func (m *Machine) HandlePreAcceptOk(msg *wire.PreAcceptOk) ([]wire.Message, error) {
	if !m.IsLeaderOf(msg.Instance) {
		return nil, epaxoserr.NewRoutingMisaddress(msg.Instance.String())
	}

	entry := m.log.Get(msg.Instance)
	if entry == nil {
		// The leader cannot have sent a request it did not log: this is
		// always fatal, independent of the debug/release policy that
		// gates ProtocolViolation.
		panic(epaxoserr.NewMissingSlot(msg.Instance.String()))
	}

	if entry.Status.AtLeast(cmdlog.Committed) {
		return nil, nil // late message, silently ignored
	}

	num := msg.Instance.Num

	if entry.Status == cmdlog.Accepted && m.leader.PreAcceptOkCount(num) >= m.majority() {
		return nil, nil // late message, silently ignored
	}

	replyDeps := wire.DepSet(msg.Deps)
	if entry.Seq != msg.Seq || !entry.DepsEqual(replyDeps) {
		if msg.Seq > entry.Seq {
			entry.Seq = msg.Seq
		}
		for d := range replyDeps {
			entry.Deps[d] = struct{}{}
		}
		entry.Status = cmdlog.Accepted
	}

	c := m.leader.IncPreAcceptOk(num)

	switch {
	case c == m.majority() && entry.Status == cmdlog.Accepted:
		accept := &wire.Accept{
			Instance: msg.Instance, Cmd: entry.Cmd, Seq: entry.Seq, Deps: wire.DepSlice(entry.Deps),
		}
		accept.Sender = m.self
		return []wire.Message{accept}, nil
	case c == m.fastQuorum() && entry.Status == cmdlog.PreAccepted:
		return m.commitLocally(msg.Instance, entry), nil
	default:
		return nil, nil
	}
}
