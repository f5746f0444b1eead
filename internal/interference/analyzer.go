// Package interference implements the dependency/sequence computation of
// section 4.2 of the specification: given a candidate Command, scan the
// command log for conflicting entries and return the set of instances it
// must depend on plus a sequence number guaranteed to exceed every
// conflicting predecessor's.
package interference

import (
	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/command"
)

// Analyze returns (deps, seq) for candidate command c against log. It picks
// the indexed per-key path when the log carries a secondary index,
// otherwise falls back to the full O(total slots) scan - both paths are
// exported separately so tests can assert they agree.
func Analyze(log *cmdlog.Log, c command.Command) (map[cmdlog.Instance]struct{}, uint64) {
	if log.HasIndex() {
		return AnalyzeIndexed(log, c)
	}
	return AnalyzeScan(log, c)
}

// AnalyzeScan is the specification's reference algorithm: scan every
// filled slot in every replica's sub-sequence.
func AnalyzeScan(log *cmdlog.Log, c command.Command) (map[cmdlog.Instance]struct{}, uint64) {
	deps := make(map[cmdlog.Instance]struct{})
	var maxSeq uint64
	log.ScanAllSlots(func(inst cmdlog.Instance, e *cmdlog.Entry) {
		if e.Status == cmdlog.Executed {
			return
		}
		if !command.Interferes(c, e.Cmd) {
			return
		}
		deps[inst] = struct{}{}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	})
	return deps, maxSeq + 1
}

// AnalyzeIndexed restricts the scan to the instances already on record for
// c's key, using the command log's secondary per-key index.
func AnalyzeIndexed(log *cmdlog.Log, c command.Command) (map[cmdlog.Instance]struct{}, uint64) {
	deps := make(map[cmdlog.Instance]struct{})
	var maxSeq uint64
	for _, inst := range log.InstancesForKey(c.Key) {
		e := log.Get(inst)
		if e == nil || e.Status == cmdlog.Executed {
			continue
		}
		if !command.Interferes(c, e.Cmd) {
			continue
		}
		deps[inst] = struct{}{}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	return deps, maxSeq + 1
}
