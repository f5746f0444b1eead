// Package client is a minimal synchronous SDK for talking to one EPaxos
// replica: it sends a ClientRequest over a transport.Transport and blocks
// until the matching ClientResponse (by MsgID) arrives on the client's own
// inbox. It is deliberately thin - the specification's workload generator
// and connection-pooling concerns (section 6) stay out of scope; this is
// the one synchronous call a generator, or a human at a REPL, would build
// on.
package client

import (
	"context"

	"github.com/google/uuid"
	"github.com/kboxdb/epaxoskv/internal/command"
	"github.com/kboxdb/epaxoskv/internal/epaxoserr"
	"github.com/kboxdb/epaxoskv/internal/transport"
	"github.com/kboxdb/epaxoskv/internal/wire"
)

// Client addresses one replica (ordinarily a replica believed to be under
// light load, or simply the first one reachable; this package does not
// implement leader discovery or retry-on-misroute - every PreAccept
// pipeline entry works from any replica per section 4.3) and correlates
// responses by MsgID.
type Client struct {
	id     string
	leader string
	tr     transport.Transport
}

// New builds a Client identified as id, sending requests to leader over
// tr. tr's Inbox is where this client's ClientResponses arrive; id must be
// registered as tr's own endpoint address.
func New(id, leader string, tr transport.Transport) *Client {
	return &Client{id: id, leader: leader, tr: tr}
}

// Get issues a Get(key) and blocks for the response or ctx's cancellation.
func (c *Client) Get(ctx context.Context, key command.Key) (string, bool, error) {
	resp, err := c.roundTrip(ctx, command.Get(key))
	if err != nil {
		return "", false, err
	}
	return resp.Value, resp.Found, nil
}

// Set issues a Set(key, value) and blocks for the response or ctx's
// cancellation.
func (c *Client) Set(ctx context.Context, key command.Key, value string) error {
	_, err := c.roundTrip(ctx, command.Set(key, value))
	return err
}

func (c *Client) roundTrip(ctx context.Context, cmd command.Command) (wire.CmdResult, error) {
	msgID := uuid.NewString()
	req := &wire.ClientRequest{ClientID: c.id, MsgID: msgID, Cmd: cmd}
	if err := c.tr.Send(c.leader, req); err != nil {
		return wire.CmdResult{}, epaxoserr.NewSubstrateSendFailure(c.leader, err)
	}

	for {
		select {
		case <-ctx.Done():
			return wire.CmdResult{}, ctx.Err()
		case msg := <-c.tr.Inbox():
			resp, ok := msg.(*wire.ClientResponse)
			if !ok || resp.MsgID != msgID {
				continue // stale reply to an earlier call, or misdelivered message
			}
			return resp.Result, nil
		}
	}
}
