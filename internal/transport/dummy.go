package transport

import (
	"context"
	"fmt"

	"github.com/freeeve/freecol/server/pkg/protocol"
)

// DummyConn is one end of an in-process pair. Delivery calls the peer's
// handler directly on the sending goroutine, so an Ask has been fully
// handled by the time it returns.
type DummyConn struct {
	endpoint
	peer *DummyConn
}

// NewDummyPair returns two connected endpoints. By convention the first is
// kept by the server and the second is driven by the in-process player.
func NewDummyPair() (*DummyConn, *DummyConn) {
	a := &DummyConn{endpoint: newEndpoint(nil)}
	b := &DummyConn{endpoint: newEndpoint(nil)}
	a.peer, b.peer = b, a
	return a, b
}

// OnClose registers a callback fired once when this end closes.
func (c *DummyConn) OnClose(fn func(Connection)) { c.onClose = fn }

// Peer returns the other end of the pair.
func (c *DummyConn) Peer() *DummyConn { return c.peer }

func (c *DummyConn) IsDummy() bool { return true }

func (c *DummyConn) Send(msg protocol.Message) error {
	_, err := c.deliver(context.Background(), msg)
	return err
}

func (c *DummyConn) Ask(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.deliver(ctx, msg)
}

func (c *DummyConn) SendAndWait(ctx context.Context, msg protocol.Message) error {
	return sendAndWait(ctx, c, msg)
}

func (c *DummyConn) deliver(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	if c.closed() || c.peer.closed() {
		return nil, ErrClosed
	}
	h := c.peer.currentHandler()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, c.peer.id)
	}
	reply := h(ctx, c.peer, msg)
	c.peer.touch()
	return reply, nil
}

// Close closes this end. The peer stays open but can no longer deliver.
func (c *DummyConn) Close() error {
	if c.shutdown() && c.onClose != nil {
		c.onClose(c)
	}
	return nil
}
