package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/freecol/server/internal/transport"
	"github.com/freeeve/freecol/server/pkg/protocol"
)

// Client is a remote player talking to a server over its websocket.
type Client struct {
	name   string
	conn   *transport.SocketConn
	events chan protocol.Message

	mu       sync.Mutex
	playerID string
	token    string
	phase    string
	host     bool
}

// Dial connects a client to the server's websocket endpoint.
func Dial(ctx context.Context, url, name string) (*Client, error) {
	c := &Client{name: name, events: make(chan protocol.Message, 64)}
	conn, err := transport.Dial(ctx, url, transport.Options{})
	if err != nil {
		return nil, err
	}
	c.conn = conn
	conn.SetHandler(c.handlePush)
	conn.Start(ctx)
	return c, nil
}

// handlePush queues a server push for the play loop.
func (c *Client) handlePush(_ context.Context, _ transport.Connection, msg protocol.Message) protocol.Message {
	msgs := []protocol.Message{msg}
	if m, ok := msg.(*protocol.Multiple); ok {
		msgs = m.Messages
	}
	for _, m := range msgs {
		select {
		case c.events <- m:
		default:
			log.Warn().Str("bot", c.name).Str("tag", string(m.Tag())).Msg("Event buffer full, dropping push")
		}
	}
	return nil
}

// Name returns the bot name.
func (c *Client) Name() string { return c.name }

// PlayerID returns the seat after Join.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Token returns the reconnect token for the seat.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Phase returns the game phase reported at login.
func (c *Client) Phase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Host reports whether this client is the lobby host.
func (c *Client) Host() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Events delivers server pushes.
func (c *Client) Events() <-chan protocol.Message { return c.events }

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Ask sends a request and turns error replies into Go errors.
func (c *Client) Ask(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	reply, err := c.conn.Ask(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msg.Tag(), err)
	}
	if err := protocol.AsError(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Join takes a seat. With a token it reclaims an existing seat; otherwise
// it adds a new player, falling back to a login by name when the name is
// already seated in the lobby.
func (c *Client) Join(ctx context.Context, nation, token string) error {
	if token != "" {
		return c.login(ctx, token)
	}
	reply, err := c.Ask(ctx, &protocol.AddPlayer{Name: c.name, Nation: nation})
	var perr *protocol.Error
	if errors.As(err, &perr) && (perr.Code == protocol.CodeNotAllowed || perr.Code == protocol.CodeWrongPhase) {
		return c.login(ctx, "")
	}
	if err == nil && reply == nil {
		// the in-game handler set has no addPlayer
		return c.login(ctx, "")
	}
	if err != nil {
		return err
	}
	added, ok := reply.(*protocol.PlayerAdded)
	if !ok {
		return fmt.Errorf("unexpected reply %s to addPlayer", reply.Tag())
	}
	c.mu.Lock()
	c.playerID, c.token, c.host = added.PlayerID, added.Token, added.Host
	c.phase = "STARTING_GAME"
	c.mu.Unlock()
	return nil
}

func (c *Client) login(ctx context.Context, token string) error {
	reply, err := c.Ask(ctx, &protocol.Login{Username: c.name, Token: token})
	if err != nil {
		return err
	}
	var lr *protocol.LoginReply
	switch m := reply.(type) {
	case *protocol.LoginReply:
		lr = m
	case *protocol.Multiple:
		for _, child := range m.Messages {
			if r, ok := child.(*protocol.LoginReply); ok {
				lr = r
			}
		}
	}
	if lr == nil {
		return fmt.Errorf("unexpected reply %v to login", reply)
	}
	c.mu.Lock()
	c.playerID, c.token, c.host, c.phase = lr.PlayerID, lr.Token, lr.Host, lr.Phase
	c.mu.Unlock()
	return nil
}
