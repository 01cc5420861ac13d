package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	marketplace_errors "marketplace-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 256
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Rate limits per minute
type RateLimits struct {
	MaxTypingEvents int
	MaxReadReceipts int
	MaxStatusChecks int
	MaxPingMessages int
}

var DefaultRateLimits = RateLimits{
	MaxTypingEvents: 60,
	MaxReadReceipts: 120,
	MaxStatusChecks: 30,
	MaxPingMessages: 60,
}

// ClientRateLimiter throttles the chatty client events of one connection.
// Tokens refill once a minute. Events without a bucket are always allowed.
type ClientRateLimiter struct {
	limits            RateLimits
	typingTokens      int
	readReceiptTokens int
	statusTokens      int
	pingTokens        int
	lastRefill        time.Time
	now               func() time.Time
	mu                sync.Mutex
}

func NewClientRateLimiter(limits RateLimits) *ClientRateLimiter {
	rl := &ClientRateLimiter{limits: limits, now: time.Now}
	rl.refillTokens()
	rl.lastRefill = rl.now()
	return rl
}

func (rl *ClientRateLimiter) Allow(event string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.refillTokens()
		rl.lastRefill = now
	}

	var bucket *int
	switch event {
	case EventTyping:
		bucket = &rl.typingTokens
	case EventMarkAsRead:
		bucket = &rl.readReceiptTokens
	case EventCheckOnlineStatus:
		bucket = &rl.statusTokens
	case EventPing:
		bucket = &rl.pingTokens
	default:
		return true
	}
	if *bucket > 0 {
		*bucket--
		return true
	}
	return false
}

func (rl *ClientRateLimiter) refillTokens() {
	rl.typingTokens = rl.limits.MaxTypingEvents
	rl.readReceiptTokens = rl.limits.MaxReadReceipts
	rl.statusTokens = rl.limits.MaxStatusChecks
	rl.pingTokens = rl.limits.MaxPingMessages
}

// Client represents a single authenticated WebSocket connection
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	userID       uint
	clientID     string
	rateLimiter  *ClientRateLimiter
	connectedAt  time.Time
	lastActivity atomic.Int64
	logger       *WebSocketLogger
}

func NewClient(conn *websocket.Conn, userID uint, logger *WebSocketLogger) *Client {
	now := time.Now()
	c := &Client{
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		userID:      userID,
		clientID:    uuid.New().String(),
		rateLimiter: NewClientRateLimiter(DefaultRateLimits),
		connectedAt: now,
		logger:      logger,
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

func (c *Client) ID() string {
	return c.clientID
}

func (c *Client) UserID() uint {
	return c.userID
}

// Send queues an encoded frame without blocking. A slow consumer loses
// frames rather than stalling the sender.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.logger.Warn("send buffer full, dropping frame", c.userID, c.clientID)
		return ErrSendBufferFull
	}
}

func (c *Client) Emit(event string, data interface{}) error {
	frame, err := encodeFrame(event, "", data)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// Ack answers the client event with the given id. Events sent without an id
// get no ack.
func (c *Client) Ack(id string, data Ack) {
	if id == "" {
		return
	}
	frame, err := encodeFrame(EventAck, id, data)
	if err != nil {
		c.logger.Error("encode ack failed", c.userID, c.clientID, err)
		return
	}
	_ = c.Send(frame)
}

// Fail reports a failed event: an ack with the error and an error event to
// this connection only.
func (c *Client) Fail(id string, err error) {
	msg := marketplace_errors.Message(err)
	c.Ack(id, ackFailure(msg))
	_ = c.Emit(EventError, ErrorPayload{Message: msg})
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// CloseWith tells the peer why before dropping the connection.
func (c *Client) CloseWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.Close()
}

// readPump blocks until the connection fails, handing every frame to handle.
func (c *Client) readPump(handle func(ClientFrame)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity.Store(time.Now().UnixNano())
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.userID, c.clientID, err)
			}
			return
		}
		c.lastActivity.Store(time.Now().UnixNano())

		var frame ClientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.Fail("", marketplace_errors.BadRequest("Malformed frame"))
			continue
		}
		if !c.rateLimiter.Allow(frame.Event) {
			c.logger.Warn("rate limit exceeded", c.userID, c.clientID, zap.String("client_event", frame.Event))
			c.Fail(frame.ID, marketplace_errors.New(marketplace_errors.ErrRateLimited, "Too many events"))
			continue
		}
		handle(frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if time.Since(time.Unix(0, c.lastActivity.Load())) > pongWait*2 {
				c.logger.Info("client idle timeout", c.userID, c.clientID)
				return
			}
		}
	}
}
