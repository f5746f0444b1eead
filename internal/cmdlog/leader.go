package cmdlog

// LeaderState holds the bookkeeping that exists only on the command leader
// of an instance: the (client_id, msg_id) metadata needed to route a
// ClientResponse, and the two quorum-reply counters. It is kept separate
// from Log because followers never populate it - this mirrors the
// specification's note that "per-instance quorum counters... need not
// exist for followers", and the teacher's own split of leader-only fields
// (scope.go's commitNotify/statCommitCount-style bookkeeping) from the
// plain replicated instance state.
type LeaderState struct {
	metadata     []Metadata
	preAcceptOks []int
	acceptOks    []int

	// PendingReads holds instances naming a Get command whose
	// ClientResponse is withheld until internal/execution walks the
	// dependency closure and actually executes that instance.
	PendingReads map[Instance]struct{}
}

// NewLeaderState constructs empty per-leader bookkeeping.
func NewLeaderState() *LeaderState {
	return &LeaderState{
		PendingReads: make(map[Instance]struct{}),
	}
}

func (s *LeaderState) ensure(n int) {
	for len(s.metadata) < n {
		s.metadata = append(s.metadata, Metadata{})
		s.preAcceptOks = append(s.preAcceptOks, 0)
		s.acceptOks = append(s.acceptOks, 0)
	}
}

// Append records fresh leader bookkeeping for a newly allocated instance
// number: client metadata and zeroed quorum counters, per step 2-3 of
// ClientRequest.
func (s *LeaderState) Append(num InstanceNum, meta Metadata) {
	s.ensure(int(num) + 1)
	s.metadata[num] = meta
}

// Metadata returns the (client_id, msg_id) recorded for instance num.
func (s *LeaderState) Metadata(num InstanceNum) Metadata {
	if int(num) >= len(s.metadata) {
		return Metadata{}
	}
	return s.metadata[num]
}

// IncPreAcceptOk increments and returns the PreAcceptOk counter for num.
// The counter is never reset once incremented, by specification: this
// preserves the invariant that the same counter is used to reason about
// "at least majority PreAcceptOks observed".
func (s *LeaderState) IncPreAcceptOk(num InstanceNum) int {
	s.ensure(int(num) + 1)
	s.preAcceptOks[num]++
	return s.preAcceptOks[num]
}

// PreAcceptOkCount returns the current PreAcceptOk counter without
// incrementing it.
func (s *LeaderState) PreAcceptOkCount(num InstanceNum) int {
	if int(num) >= len(s.preAcceptOks) {
		return 0
	}
	return s.preAcceptOks[num]
}

// IncAcceptOk increments and returns the (separate, never-reset) AcceptOk
// counter for num.
func (s *LeaderState) IncAcceptOk(num InstanceNum) int {
	s.ensure(int(num) + 1)
	s.acceptOks[num]++
	return s.acceptOks[num]
}
