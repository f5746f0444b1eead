// Package cmdlog implements the per-replica command log described in
// section 4.1 of the specification: a dense, arena-style slot array per
// replica, addressed by the immutable (replica_id, instance_num) Instance
// pair. Representing the log as an arena of indices rather than a graph of
// pointers is what lets instances reference each other cyclically (the
// protocol's central structural feature) without any lifetime hazard: the
// dependency graph in internal/execution is built on demand from Instance
// indices, never from live pointers.
package cmdlog

import (
	"github.com/google/btree"
	"github.com/kboxdb/epaxoskv/internal/command"
	"github.com/kboxdb/epaxoskv/internal/epaxoserr"
)

// Log is the mapping from replica_id to that replica's dense sequence of
// optional CmdEntry slots. A nil entry at an index is a legal "learned out
// of order" hole.
type Log struct {
	slots map[ReplicaID][]*Entry

	// secondary index: per-key, ordered set of instances referencing that
	// key. Not required by the specification (O(total slots) scan is the
	// reference algorithm, kept available as ScanAllSlots for tests that
	// compare the two paths) but kept here the way bonedaddy-epaxos keeps
	// a github.com/google/btree index over its own instance set, to avoid
	// an O(log-size) scan per incoming command on every replica.
	byKey map[command.Key]*btree.BTree
}

// keyIndexItem is a single (instance) entry inside a per-key btree, ordered
// by the same lexicographic rule as Instance.Less.
type keyIndexItem struct{ Instance }

func (k keyIndexItem) Less(than btree.Item) bool {
	return k.Instance.Less(than.(keyIndexItem).Instance)
}

// NewLog constructs an empty command log.
func NewLog() *Log {
	return &Log{
		slots: make(map[ReplicaID][]*Entry),
		byKey: make(map[command.Key]*btree.BTree),
	}
}

// HasIndex reports whether the secondary per-key index is available,
// letting the interference analyzer choose its indexed path.
func (l *Log) HasIndex() bool { return l.byKey != nil }

// EnsureCapacity extends replica's slot sequence to length n, filling any
// newly-created slots with nil (empty).
func (l *Log) EnsureCapacity(replica ReplicaID, n int) {
	cur := l.slots[replica]
	if len(cur) >= n {
		return
	}
	grown := make([]*Entry, n)
	copy(grown, cur)
	l.slots[replica] = grown
}

// Insert places or overwrites the slot at inst. The overwrite policy is:
// an empty slot stores e unconditionally; a slot occupied by the same
// command accepts the write only if e's status is at least as advanced as
// the slot's current status, silently keeping the existing entry
// otherwise - this is the enforcement point for spec invariant I2/inv.4
// ("status never reverses"): the messaging substrate may reorder or
// duplicate PreAccept/Accept/Commit deliveries, and a stale message must
// never downgrade an instance that has already advanced past it (in
// particular, never un-Execute an Executed slot); a slot occupied by a
// different command is a safety violation.
func (l *Log) Insert(inst Instance, e *Entry) error {
	l.EnsureCapacity(inst.Replica, int(inst.Num)+1)
	slots := l.slots[inst.Replica]
	existing := slots[inst.Num]
	if existing != nil {
		if existing.Cmd != e.Cmd {
			return epaxoserr.NewProtocolViolation(
				"instance " + inst.String() + " already holds a different command")
		}
		if e.Status.Before(existing.Status) {
			return nil
		}
	}
	slots[inst.Num] = e
	l.indexInsert(inst, e.Cmd)
	return nil
}

func (l *Log) indexInsert(inst Instance, cmd command.Command) {
	if l.byKey == nil {
		return
	}
	tr, ok := l.byKey[cmd.Key]
	if !ok {
		tr = btree.New(32)
		l.byKey[cmd.Key] = tr
	}
	tr.ReplaceOrInsert(keyIndexItem{inst})
}

// Get returns the entry at inst, or nil if the slot is empty or the
// replica's sub-sequence hasn't grown that far yet.
func (l *Log) Get(inst Instance) *Entry {
	slots, ok := l.slots[inst.Replica]
	if !ok || int(inst.Num) >= len(slots) {
		return nil
	}
	return slots[inst.Num]
}

// GetMut is Get, named separately to mark call sites that intend to mutate
// the returned entry in place (the entry is a pointer either way; Go has no
// separate mutable-borrow syntax, but the distinct name documents intent
// the way the specification's get/get_mut pair does).
func (l *Log) GetMut(inst Instance) *Entry { return l.Get(inst) }

// InstancesForKey returns every instance on record that names key, in
// lexicographic (replica, instance_num) order, using the secondary index
// when present.
func (l *Log) InstancesForKey(key command.Key) []Instance {
	tr, ok := l.byKey[key]
	if !ok {
		return nil
	}
	out := make([]Instance, 0, tr.Len())
	tr.Ascend(func(it btree.Item) bool {
		out = append(out, it.(keyIndexItem).Instance)
		return true
	})
	return out
}

// ScanAllSlots calls fn for every filled slot across every replica's
// sub-sequence. This is the specification's reference O(total slots) scan,
// kept for tests that cross-check it against the indexed path.
func (l *Log) ScanAllSlots(fn func(Instance, *Entry)) {
	for replica, slots := range l.slots {
		for num, e := range slots {
			if e == nil {
				continue
			}
			fn(Instance{Replica: replica, Num: InstanceNum(num)}, e)
		}
	}
}

// NextInstanceNum returns the next dense index to assign for replica's own
// sub-sequence (0 for a replica's first instance).
func (l *Log) NextInstanceNum(replica ReplicaID) InstanceNum {
	return InstanceNum(len(l.slots[replica]))
}
