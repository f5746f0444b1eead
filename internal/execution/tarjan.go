package execution

import "github.com/kboxdb/epaxoskv/internal/cmdlog"

// tarjanSCCs runs Tarjan's strongly-connected-components algorithm over
// the dependency graph implied by nodes (instance -> entry.Deps), and
// returns one slice of member instances per component in the order Tarjan
// discovers them. That order follows Go's map iteration over nodes and so
// can differ between calls: callers use seq / instance ordering within a
// component, and Kahn's algorithm over the condensation for
// cross-component ordering, so Tarjan's own emission order is never relied
// on directly.
func tarjanSCCs(nodes map[cmdlog.Instance]*cmdlog.Entry) [][]cmdlog.Instance {
	t := &tarjanState{
		nodes:   nodes,
		index:   make(map[cmdlog.Instance]int),
		lowlink: make(map[cmdlog.Instance]int),
		onStack: make(map[cmdlog.Instance]bool),
	}
	for inst := range nodes {
		if _, seen := t.index[inst]; !seen {
			t.strongConnect(inst)
		}
	}
	return t.sccs
}

type tarjanState struct {
	nodes   map[cmdlog.Instance]*cmdlog.Entry
	index   map[cmdlog.Instance]int
	lowlink map[cmdlog.Instance]int
	onStack map[cmdlog.Instance]bool
	stack   []cmdlog.Instance
	next    int
	sccs    [][]cmdlog.Instance
}

func (t *tarjanState) strongConnect(v cmdlog.Instance) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for dep := range t.nodes[v].Deps {
		if _, inGraph := t.nodes[dep]; !inGraph {
			continue
		}
		if _, seen := t.index[dep]; !seen {
			t.strongConnect(dep)
			if t.lowlink[dep] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[dep]
			}
		} else if t.onStack[dep] {
			if t.index[dep] < t.lowlink[v] {
				t.lowlink[v] = t.index[dep]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var comp []cmdlog.Instance
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, comp)
	}
}
