package cmdlog

import "github.com/kboxdb/epaxoskv/internal/command"

// Entry is one filled command-log slot.
type Entry struct {
	Cmd    command.Command
	Seq    uint64
	Deps   map[Instance]struct{}
	Status Status
}

// CloneDeps returns a defensive copy of Deps, since callers merge into a
// candidate set before deciding whether anything actually changed.
func (e *Entry) CloneDeps() map[Instance]struct{} {
	out := make(map[Instance]struct{}, len(e.Deps))
	for d := range e.Deps {
		out[d] = struct{}{}
	}
	return out
}

// DepsEqual reports whether e.Deps and other describe the same set.
func (e *Entry) DepsEqual(other map[Instance]struct{}) bool {
	if len(e.Deps) != len(other) {
		return false
	}
	for d := range other {
		if _, ok := e.Deps[d]; !ok {
			return false
		}
	}
	return true
}

// Metadata is kept parallel to the command leader's own slots only: it
// records where a ClientResponse must eventually be routed.
type Metadata struct {
	ClientID string
	MsgID    string
}
