// Package transport stands in for the specification's out-of-scope
// "messaging substrate": it is assumed to deliver typed messages
// point-to-point, reliably enough that retransmission is the substrate's
// concern, and duplicates/reordering are tolerated by the core (section
// 1). Two implementations are provided: ChannelTransport for in-process
// tests that exercise the concurrency model of section 5 without real
// sockets, and TCPTransport for a real deployment.
package transport

import (
	"github.com/kboxdb/epaxoskv/internal/wire"
	"golang.org/x/sync/errgroup"
)

// Transport delivers wire messages point-to-point by destination id
// (either a replica id or a client id sharing the same namespace) and
// exposes a single inbound stream this endpoint's replica or client reads
// from.
type Transport interface {
	// Send delivers msg to dest. Errors are reported to the caller as
	// epaxoserr.SubstrateSendFailure; per section 7, the caller's policy
	// is to drop and rely on upper-level retransmission.
	Send(dest string, msg wire.Message) error
	// Inbox returns the channel this endpoint receives inbound messages
	// on. A single goroutine should ever read from it, matching section
	// 5's one-handler-at-a-time scheduling model.
	Inbox() <-chan wire.Message
	// Close releases the transport's resources.
	Close() error
}

// Broadcast sends msg to every destination in dests concurrently via
// golang.org/x/sync/errgroup, returning one error per destination (nil on
// success) after every send has been attempted. Used by internal/replica
// to fan out PreAccept/Accept/Commit broadcasts without serializing on one
// slow peer; a failed send becomes an epaxoserr.SubstrateSendFailure that
// the caller drops per section 7's policy.
func Broadcast(t Transport, dests []string, msg wire.Message) []error {
	errs := make([]error, len(dests))
	var g errgroup.Group
	for i, dest := range dests {
		i, dest := i, dest
		g.Go(func() error {
			errs[i] = t.Send(dest, msg)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
