// Package consensus implements the PreAccept -> (Accept ->) Commit state
// machine of section 4.3 of the specification. A Machine is the per-replica
// consensus actor: it owns the command log and (when this replica is the
// command leader of some instance) that instance's quorum counters. Every
// handler here runs to completion without suspending, per section 5's
// cooperative scheduling model - it mutates state and returns the messages
// that resulted, leaving delivery to the caller (internal/replica).
//
// This is adapted from the teacher's Scope/Manager split
// (bdeggleston-kickboxerdb's src/consensus/scope*.go), but where the
// teacher blocks a goroutine on RPC round trips per key-scope, a Machine
// never blocks: PreAcceptOk/AcceptOk/Commit arrive as ordinary inbound
// messages and each handler returns synchronously.
package consensus

import (
	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/command"
	"github.com/kboxdb/epaxoskv/internal/epaxoserr"
	"github.com/kboxdb/epaxoskv/internal/interference"
	"github.com/kboxdb/epaxoskv/internal/telemetry"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

// Machine is one replica's consensus state machine.
type Machine struct {
	self  cmdlog.ReplicaID
	n     int // ensemble size, self included
	debug bool

	log    *cmdlog.Log
	leader *cmdlog.LeaderState
}

// New builds a Machine for self within an ensemble of n replicas (self
// included). debug makes violation panic instead of logging; it is used
// when re-inserting an entry being committed fails. Handlers that get a
// conflicting-command error from the log return it to the caller in
// either mode.
func New(self cmdlog.ReplicaID, n int, debug bool) *Machine {
	return &Machine{
		self:   self,
		n:      n,
		debug:  debug,
		log:    cmdlog.NewLog(),
		leader: cmdlog.NewLeaderState(),
	}
}

// Self returns this machine's replica id.
func (m *Machine) Self() cmdlog.ReplicaID { return m.self }

// Log returns the underlying command log, shared with internal/execution.
func (m *Machine) Log() *cmdlog.Log { return m.log }

// Leader returns the leader-only bookkeeping, shared with
// internal/execution so it can resolve deferred Get responses and clear
// PendingReads at execution time.
func (m *Machine) Leader() *cmdlog.LeaderState { return m.leader }

// IsLeaderOf reports whether self is the command leader of inst. The
// command leader of an instance is, by construction, whichever replica
// name the instance carries.
func (m *Machine) IsLeaderOf(inst cmdlog.Instance) bool { return inst.Replica == m.self }

// majority returns the number of peer acks (self excluded) required for
// the slow path: max(1, floor(N/2)).
func (m *Machine) majority() int {
	v := m.n / 2
	if v < 1 {
		v = 1
	}
	return v
}

// fastQuorum returns the number of matching peer PreAcceptOks required to
// commit on the fast path: max(1, N-2).
func (m *Machine) fastQuorum() int {
	v := m.n - 2
	if v < 1 {
		v = 1
	}
	return v
}

// violation reports a ProtocolViolation per the debug/release policy of
// section 7: panic in debug builds, log-and-drop in release builds.
func (m *Machine) violation(reason string) error {
	err := epaxoserr.NewProtocolViolation(reason)
	if m.debug {
		panic(err)
	}
	telemetry.Replica(string(m.self)).WithError(err).Error("protocol violation")
	return err
}

// ClientRequest implements section 4.3's ClientRequest operation for a new
// command arriving directly at this replica, which becomes the command
// leader for the resulting instance. Only Set is expected to arrive this
// way in ordinary operation, but Get is accepted too (it enters the same
// PreAccept pipeline per section 4.3.5; its response is deferred to
// execution time rather than produced here).
func (m *Machine) ClientRequest(cmd command.Command, clientID, msgID string) (cmdlog.Instance, []wire.Message, error) {
	num := m.log.NextInstanceNum(m.self)
	inst := cmdlog.Instance{Replica: m.self, Num: num}

	m.leader.Append(num, cmdlog.Metadata{ClientID: clientID, MsgID: msgID})

	deps, seq := interference.Analyze(m.log, cmd)
	if err := m.log.Insert(inst, &cmdlog.Entry{
		Cmd: cmd, Seq: seq, Deps: deps, Status: cmdlog.PreAccepted,
	}); err != nil {
		return inst, nil, err
	}

	if cmd.Kind == command.KindGet {
		m.leader.PendingReads[inst] = struct{}{}
	}

	msg := &wire.PreAccept{
		Instance: inst,
		Cmd:      cmd,
		Seq:      seq,
		Deps:     wire.DepSlice(deps),
	}
	msg.Sender = m.self
	return inst, []wire.Message{msg}, nil
}
