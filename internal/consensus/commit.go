package consensus

import (
	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/command"
	"github.com/kboxdb/epaxoskv/internal/epaxoserr"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

// HandleAccept implements the follower side of section 4.3's Accept
// operation: upsert the slot as Accepted with the leader's fields and
// reply.
func (m *Machine) HandleAccept(msg *wire.Accept) (wire.Message, error) {
	if err := m.log.Insert(msg.Instance, &cmdlog.Entry{
		Cmd: msg.Cmd, Seq: msg.Seq, Deps: wire.DepSet(msg.Deps), Status: cmdlog.Accepted,
	}); err != nil {
		return nil, err
	}
	reply := &wire.AcceptOk{Instance: msg.Instance}
	reply.Sender = m.self
	return reply, nil
}

// HandleAcceptOk implements the command-leader side of section 4.3's
// AcceptOk operation: once a majority of AcceptOks are in, commit.
func (m *Machine) HandleAcceptOk(msg *wire.AcceptOk) ([]wire.Message, error) {
	if !m.IsLeaderOf(msg.Instance) {
		return nil, epaxoserr.NewRoutingMisaddress(msg.Instance.String())
	}

	entry := m.log.Get(msg.Instance)
	if entry == nil {
		panic(epaxoserr.NewMissingSlot(msg.Instance.String()))
	}

	if entry.Status.AtLeast(cmdlog.Committed) {
		return nil, nil // already committed (or executed), idempotent no-op
	}

	c := m.leader.IncAcceptOk(msg.Instance.Num)
	if c < m.majority() {
		return nil, nil
	}

	return m.commitLocally(msg.Instance, entry), nil
}

// HandleCommit implements the follower side of section 4.3's Commit
// operation: upsert the slot as Committed. The caller (internal/replica)
// is responsible for then asking internal/execution to resolve any
// pending reads this commit may have unblocked, per section 4.4.
func (m *Machine) HandleCommit(msg *wire.Commit) error {
	return m.log.Insert(msg.Instance, &cmdlog.Entry{
		Cmd: msg.Cmd, Seq: msg.Seq, Deps: wire.DepSet(msg.Deps), Status: cmdlog.Committed,
	})
}

// commitLocally finalizes entry as Committed at inst (already present in
// this replica's own log, since only the command leader reaches this
// path) and builds the resulting outbound messages: a Commit broadcast
// always, plus - for Set commands only, per section 4.3.5 and section 9's
// resolved Open Question - a ClientResponse. Get responses are
// deliberately withheld here and produced instead by internal/execution
// once the instance actually executes.
func (m *Machine) commitLocally(inst cmdlog.Instance, entry *cmdlog.Entry) []wire.Message {
	entry.Status = cmdlog.Committed
	if err := m.log.Insert(inst, entry); err != nil {
		// entry was already resident at inst with the same command, so
		// this can only fail on a genuine safety violation.
		m.violation(err.Error())
	}

	commit := &wire.Commit{Instance: inst, Cmd: entry.Cmd, Seq: entry.Seq, Deps: wire.DepSlice(entry.Deps)}
	commit.Sender = m.self
	msgs := []wire.Message{commit}

	if entry.Cmd.Kind == command.KindSet {
		meta := m.leader.Metadata(inst.Num)
		resp := &wire.ClientResponse{
			ClientID: meta.ClientID,
			MsgID:    meta.MsgID,
			Result:   wire.CmdResult{Key: entry.Cmd.Key, Kind: command.KindSet, OK: true},
		}
		resp.Sender = m.self
		msgs = append(msgs, resp)
	}
	return msgs
}
