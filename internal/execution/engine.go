// Package execution implements section 4.4 of the specification: once an
// instance is committed, walk its dependency closure, find strongly
// connected components (cycles are the protocol's central structural
// feature - two commands can each name the other as a dependency), and
// apply commands in reverse topological order over the SCC condensation,
// breaking ties within an SCC by sequence number then by instance.
//
// Representing the dependency graph as built-on-demand Instance indices
// (rather than a live graph of pointers) avoids any cyclic-ownership
// hazard: internal/cmdlog is the arena, Instance is the stable index, and
// this package is the only place a graph is ever materialized.
package execution

import (
	"sort"

	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/command"
	"github.com/kboxdb/epaxoskv/internal/kvstore"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

// Engine applies committed instances to a replica's local key-value store
// in a deterministic, dependency-respecting order.
type Engine struct {
	self   cmdlog.ReplicaID
	log    *cmdlog.Log
	leader *cmdlog.LeaderState
	store  *kvstore.Store
}

// New builds an Engine for self, sharing log and leader bookkeeping with
// the internal/consensus Machine that owns them.
func New(self cmdlog.ReplicaID, log *cmdlog.Log, leader *cmdlog.LeaderState, store *kvstore.Store) *Engine {
	return &Engine{self: self, log: log, leader: leader, store: store}
}

// Store exposes the underlying key-value store for read access (e.g. a
// direct, non-consensus debug inspection); execution itself is the only
// writer.
func (e *Engine) Store() *kvstore.Store { return e.store }

// Execute walks root's dependency closure and, if every transitive
// dependency has reached at least Committed, applies the whole closure in
// dependency order. It returns any ClientResponses produced - only Get
// commands led by this replica produce one here; Set responses are
// produced at commit time by internal/consensus. If the closure isn't
// fully ready, Execute returns nil without side effects: the
// caller is expected to retry once more dependencies commit.
func (e *Engine) Execute(root cmdlog.Instance) []wire.Message {
	nodes, ready := e.collectClosure(root)
	if !ready {
		return nil
	}

	order := e.executionOrder(nodes)

	var responses []wire.Message
	for _, inst := range order {
		if resp := e.applyOne(inst, nodes[inst]); resp != nil {
			responses = append(responses, resp)
		}
	}
	return responses
}

// collectClosure performs the DFS of step 1: visit root and everything it
// transitively depends on. A dependency whose slot is empty aborts
// readiness for the whole call (its status is unknowable), matching the
// specification's "nodes whose slot is empty are omitted; execution is
// blocked".
func (e *Engine) collectClosure(root cmdlog.Instance) (map[cmdlog.Instance]*cmdlog.Entry, bool) {
	nodes := make(map[cmdlog.Instance]*cmdlog.Entry)
	ready := true

	var visit func(inst cmdlog.Instance)
	visit = func(inst cmdlog.Instance) {
		if _, seen := nodes[inst]; seen {
			return
		}
		entry := e.log.Get(inst)
		if entry == nil {
			ready = false
			return
		}
		nodes[inst] = entry
		if !entry.Status.AtLeast(cmdlog.Committed) {
			ready = false
		}
		for dep := range entry.Deps {
			visit(dep)
		}
	}
	visit(root)

	return nodes, ready
}

// executionOrder runs Tarjan's algorithm over nodes, condenses to a DAG,
// Kahn-sorts the condensation (components with no dependers first), then
// reverses that order so the deepest dependency executes first. Within an
// SCC, members are ordered by ascending seq, ties broken by instance
// lexicographic order.
func (e *Engine) executionOrder(nodes map[cmdlog.Instance]*cmdlog.Entry) []cmdlog.Instance {
	sccs := tarjanSCCs(nodes)

	compOf := make(map[cmdlog.Instance]int, len(nodes))
	for ci, comp := range sccs {
		for _, inst := range comp {
			compOf[inst] = ci
		}
	}

	// Condense: edge compOf[inst] -> compOf[dep] for every cross-component
	// dependency edge.
	outEdges := make([]map[int]struct{}, len(sccs))
	inDegree := make([]int, len(sccs))
	for ci := range sccs {
		outEdges[ci] = make(map[int]struct{})
	}
	for inst, entry := range nodes {
		from := compOf[inst]
		for dep := range entry.Deps {
			to, ok := compOf[dep]
			if !ok || to == from {
				continue
			}
			if _, exists := outEdges[from][to]; !exists {
				outEdges[from][to] = struct{}{}
				inDegree[to]++
			}
		}
	}

	// Kahn: components with no dependers (in-degree 0) come first.
	queue := make([]int, 0, len(sccs))
	for ci := range sccs {
		if inDegree[ci] == 0 {
			queue = append(queue, ci)
		}
	}
	topo := make([]int, 0, len(sccs))
	for len(queue) > 0 {
		ci := queue[0]
		queue = queue[1:]
		topo = append(topo, ci)
		for to := range outEdges[ci] {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	// Execute in reverse: deepest dependency first, root last.
	order := make([]cmdlog.Instance, 0, len(nodes))
	for i := len(topo) - 1; i >= 0; i-- {
		members := append([]cmdlog.Instance(nil), sccs[topo[i]]...)
		sort.Slice(members, func(a, b int) bool {
			ea, eb := nodes[members[a]], nodes[members[b]]
			if ea.Seq != eb.Seq {
				return ea.Seq < eb.Seq
			}
			return members[a].Less(members[b])
		})
		order = append(order, members...)
	}
	return order
}

// applyOne applies a single instance exactly once (idempotent re-entry:
// already-Executed members are skipped), producing a ClientResponse only
// for a Get command led by this replica.
func (e *Engine) applyOne(inst cmdlog.Instance, entry *cmdlog.Entry) wire.Message {
	if entry.Status == cmdlog.Executed {
		return nil
	}

	var resp wire.Message
	switch entry.Cmd.Kind {
	case command.KindSet:
		e.store.Set(entry.Cmd.Key, entry.Cmd.Value)
	case command.KindGet:
		if inst.Replica == e.self {
			if _, pending := e.leader.PendingReads[inst]; pending {
				val, found := e.store.Get(entry.Cmd.Key)
				meta := e.leader.Metadata(inst.Num)
				r := &wire.ClientResponse{
					ClientID: meta.ClientID,
					MsgID:    meta.MsgID,
					Result: wire.CmdResult{
						Key: entry.Cmd.Key, Value: val, Found: found, Kind: command.KindGet,
					},
				}
				r.Sender = e.self
				resp = r
				delete(e.leader.PendingReads, inst)
			}
		}
	}

	entry.Status = cmdlog.Executed
	_ = e.log.Insert(inst, entry)
	return resp
}

// ResolvePendingReads implements the "PendingReads handling on commit" of
// section 4.4: called after a Set at instance w commits, it retries w's
// own execution, then retries every pending read that depends on w and is
// now fully ready.
func (e *Engine) ResolvePendingReads(w cmdlog.Instance) []wire.Message {
	var out []wire.Message
	out = append(out, e.Execute(w)...)

	for r := range e.leader.PendingReads {
		entry := e.log.Get(r)
		if entry == nil {
			continue
		}
		if _, dependsOnW := entry.Deps[w]; !dependsOnW {
			continue
		}
		out = append(out, e.Execute(r)...)
	}
	return out
}
