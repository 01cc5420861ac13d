package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/redis"
	"marketplace-chat/internal/services"
	"marketplace-chat/internal/transport/httpdto"
	"marketplace-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	eventTimeout     = 10 * time.Second
)

// TokenVerifier is the part of services.AuthService the gateways need.
type TokenVerifier interface {
	ParseAccessToken(token string) (services.AccessClaims, error)
}

// ConnectLimiter throttles handshakes per client address.
type ConnectLimiter interface {
	AllowConnect(ctx context.Context, ip string) (*redis.RateLimitResult, error)
}

// gateway holds the handshake and connection lifecycle shared by both
// namespaces.
type gateway struct {
	namespace string
	greeting  string
	auth      TokenVerifier
	registry  Registry
	limiter   ConnectLimiter
	logger    *WebSocketLogger
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
	// active counts serve loops that may still run event handlers
	active sync.WaitGroup
}

func newGateway(namespace, greeting string, auth TokenVerifier, registry Registry, limiter ConnectLimiter, l *logger.Logger, metrics *observability.Metrics) *gateway {
	return &gateway{
		namespace: namespace,
		greeting:  greeting,
		auth:      auth,
		registry:  registry,
		limiter:   limiter,
		logger:    NewWebSocketLogger(l, namespace),
		metrics:   metrics,
		clients:   make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// serve runs one connection from upgrade to disconnect. It blocks for the
// lifetime of the socket.
func (g *gateway) serve(c *gin.Context, handle func(*Client, ClientFrame)) {
	if !g.allowConnect(c) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("too many connection attempts", "RATE_LIMITED"))
		return
	}

	token := extractToken(c)
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", 0, "", err)
		return
	}

	if token == "" {
		g.logger.Warn("connection without token", 0, "")
		closeWith(conn, websocket.ClosePolicyViolation, "authentication required")
		return
	}

	claims, err := g.auth.ParseAccessToken(token)
	if err != nil {
		g.logger.Warn("authentication failed", 0, "", zap.Error(err))
		if frame, encErr := encodeFrame(EventError, "", ErrorPayload{Message: "Authentication failed"}); encErr == nil {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.TextMessage, frame)
		}
		closeWith(conn, websocket.ClosePolicyViolation, "authentication failed")
		return
	}

	userID := claims.ResolvedUserID()
	client := NewClient(conn, userID, g.logger)
	if !g.track(client) {
		closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer g.untrack(client)

	g.registry.Register(userID, client)
	g.metrics.SocketConnected(g.namespace)
	g.logger.Info("connected", userID, client.ID())

	_ = client.Emit(EventConnected, ConnectedPayload{UserID: userID, Message: g.greeting})

	go client.writePump()
	client.readPump(func(frame ClientFrame) {
		handle(client, frame)
	})

	g.registry.Unregister(userID, client)
	g.metrics.SocketDisconnected(g.namespace)
	g.logger.Info("disconnected", userID, client.ID(),
		zap.Duration("connected_for", time.Since(client.connectedAt)))
}

// Shutdown refuses new sockets, closes the live ones and waits until none
// of them can run an event handler. Call it before draining the work those
// handlers schedule.
func (g *gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	clients := make([]*Client, 0, len(g.clients))
	for client := range g.clients {
		clients = append(clients, client)
	}
	g.mu.Unlock()

	for _, client := range clients {
		client.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.logger.Info("gateway closed", 0, "", zap.Int("sockets", len(clients)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gateway) track(client *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.clients[client] = struct{}{}
	g.active.Add(1)
	return true
}

func (g *gateway) untrack(client *Client) {
	g.mu.Lock()
	delete(g.clients, client)
	g.mu.Unlock()
	g.active.Done()
}

func (g *gateway) allowConnect(c *gin.Context) bool {
	if g.limiter == nil {
		return true
	}
	res, err := g.limiter.AllowConnect(c.Request.Context(), c.ClientIP())
	if err != nil {
		// fail open when redis is unavailable
		g.logger.Warn("connect rate limit check failed", 0, "", zap.Error(err))
		return true
	}
	return res.Allowed
}

// eventContext carries the caller into service calls made for one event.
func eventContext(client *Client) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	return services.WithUserContext(ctx, client.UserID()), cancel
}

func (g *gateway) record(client *Client, event string, err error) {
	g.metrics.SocketEvent(g.namespace, event, err == nil)
	if err != nil {
		g.logger.Warn("event failed", client.UserID(), client.ID(),
			zap.String("client_event", event), zap.Error(err))
	}
}

// handlePing answers the keepalive event both namespaces accept.
func (g *gateway) handlePing(client *Client, frame ClientFrame) {
	_ = client.Emit(EventPong, struct{}{})
	client.Ack(frame.ID, Ack{"success": true})
	g.record(client, frame.Event, nil)
}

func extractToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = conn.Close()
}
