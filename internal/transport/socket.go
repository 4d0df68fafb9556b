package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/freeeve/freecol/server/internal/logger"
	"github.com/freeeve/freecol/server/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	defaultMsgSize = 1 << 20
	defaultSendBuf = 256
	inboxSize      = 64
)

// Options tune a socket connection. Zero values pick the defaults.
type Options struct {
	SendBuffer int
	ReadLimit  int64
	// MessageRate limits inbound requests per second. Zero disables it.
	MessageRate  float64
	MessageBurst int
	OnClose      func(Connection)
}

// Upgrader accepts websocket connections from any origin.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SocketConn is a connection over a websocket. Inbound requests are handled
// one at a time in arrival order on a dispatch goroutine, separate from the
// reader, so a handler may itself Ask the peer.
type SocketConn struct {
	endpoint
	ws      *websocket.Conn
	out     chan []byte
	inbox   chan protocol.Envelope
	limiter *rate.Limiter
	log     zerolog.Logger

	seq       atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan protocol.Envelope

	cancel context.CancelFunc
}

// NewSocketConn wraps an open websocket. Nothing is read or written until
// Start is called.
func NewSocketConn(ws *websocket.Conn, opts Options) *SocketConn {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuf
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultMsgSize
	}
	c := &SocketConn{
		endpoint: newEndpoint(opts.OnClose),
		ws:       ws,
		out:      make(chan []byte, opts.SendBuffer),
		inbox:    make(chan protocol.Envelope, inboxSize),
		pending:  make(map[int64]chan protocol.Envelope),
	}
	if opts.MessageRate > 0 {
		burst := max(opts.MessageBurst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(opts.MessageRate), burst)
	}
	c.log = logger.ForConnection(c.id, ws.RemoteAddr().String())
	ws.SetReadLimit(opts.ReadLimit)
	return c
}

// Dial opens a client connection to a server's websocket endpoint.
func Dial(ctx context.Context, url string, opts Options) (*SocketConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	return NewSocketConn(ws, opts), nil
}

// Start launches the read, write and dispatch loops. Handlers receive a
// context that is cancelled when the connection closes.
func (c *SocketConn) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.readPump()
	go c.writePump()
	go c.dispatchLoop(ctx)
}

func (c *SocketConn) IsDummy() bool { return false }

// RemoteAddr returns the peer's network address.
func (c *SocketConn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

func (c *SocketConn) Send(msg protocol.Message) error {
	data, err := protocol.Marshal(msg, 0, 0)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *SocketConn) Ask(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	seq := c.seq.Add(1)
	data, err := protocol.Marshal(msg, seq, 0)
	if err != nil {
		return nil, err
	}
	wait := make(chan protocol.Envelope, 1)
	c.pendingMu.Lock()
	c.pending[seq] = wait
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
	}()

	if err := c.enqueue(data); err != nil {
		return nil, err
	}
	select {
	case env := <-wait:
		reply, err := protocol.Decode(env)
		if errors.Is(err, protocol.ErrUnknownTag) {
			c.log.Debug().Str("tag", string(env.Tag)).Msg("Ignoring reply with unknown tag")
			return nil, nil
		}
		return reply, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *SocketConn) SendAndWait(ctx context.Context, msg protocol.Message) error {
	return sendAndWait(ctx, c, msg)
}

func (c *SocketConn) Close() error {
	if !c.shutdown() {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	err := c.ws.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
	return err
}

func (c *SocketConn) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

func (c *SocketConn) readPump() {
	defer c.Close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("WebSocket unexpected close")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		env, err := protocol.Unmarshal(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("Dropping malformed frame")
			continue
		}
		if env.ReplyTo != 0 {
			c.complete(env)
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.log.Warn().Str("tag", string(env.Tag)).Msg("Message rate exceeded")
			if env.Seq != 0 {
				c.reply(env.Seq, protocol.NewError(protocol.CodeNotAllowed, "too many messages"))
			}
			continue
		}
		select {
		case c.inbox <- env:
		case <-c.done:
			return
		}
	}
}

func (c *SocketConn) complete(env protocol.Envelope) {
	c.pendingMu.Lock()
	wait, ok := c.pending[env.ReplyTo]
	c.pendingMu.Unlock()
	if !ok {
		c.log.Debug().Int64("replyTo", env.ReplyTo).Msg("Reply for unknown request")
		return
	}
	select {
	case wait <- env:
	default:
	}
}

func (c *SocketConn) dispatchLoop(ctx context.Context) {
	for {
		select {
		case env := <-c.inbox:
			c.dispatch(ctx, env)
		case <-c.done:
			return
		}
	}
}

func (c *SocketConn) dispatch(ctx context.Context, env protocol.Envelope) {
	msg, err := protocol.Decode(env)
	switch {
	case errors.Is(err, protocol.ErrInvalid):
		c.log.Debug().Err(err).Msg("Rejecting invalid message")
		if env.Seq != 0 {
			c.reply(env.Seq, protocol.NewError(protocol.CodeInvalidRequest, "%s", env.Tag))
		}
		return
	case err != nil:
		// Unknown or undecodable messages are dropped. A waiting peer still
		// gets an empty reply so it is not left hanging.
		c.log.Debug().Err(err).Str("tag", string(env.Tag)).Msg("Ignoring message")
		if env.Seq != 0 {
			c.reply(env.Seq, nil)
		}
		return
	case msg == nil:
		return
	}

	h := c.currentHandler()
	if h == nil {
		c.log.Warn().Str("tag", string(env.Tag)).Msg("No handler for message")
		if env.Seq != 0 {
			c.reply(env.Seq, nil)
		}
		return
	}
	reply := h(ctx, c, msg)
	c.touch()
	if env.Seq != 0 {
		c.reply(env.Seq, reply)
	}
}

func (c *SocketConn) reply(seq int64, msg protocol.Message) {
	data, err := protocol.Marshal(msg, 0, seq)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to encode reply")
		data, _ = protocol.Marshal(protocol.NewError(protocol.CodeInternal, "reply could not be encoded"), 0, seq)
	}
	if err := c.enqueue(data); err != nil {
		c.log.Warn().Err(err).Int64("replyTo", seq).Msg("Dropping reply")
	}
}

func (c *SocketConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
