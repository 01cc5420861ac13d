package websocket

import (
	"time"

	"marketplace-chat/internal/domain/notification"
	"marketplace-chat/internal/observability"
	marketplace_errors "marketplace-chat/pkg/errors"
	"marketplace-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const NotificationNamespace = "notifications"

// NotificationGateway pushes notification events to a user's devices. It
// accepts no client events beyond keepalive.
type NotificationGateway struct {
	*gateway
	now func() time.Time
}

type NotificationGatewayDeps struct {
	Auth           TokenVerifier
	Registry       Registry
	ConnectLimiter ConnectLimiter
	Logger         *logger.Logger
	Metrics        *observability.Metrics
}

func NewNotificationGateway(d NotificationGatewayDeps) *NotificationGateway {
	return &NotificationGateway{
		gateway: newGateway(NotificationNamespace, "Connected to notifications server",
			d.Auth, d.Registry, d.ConnectLimiter, d.Logger, d.Metrics),
		now: time.Now,
	}
}

// Handle upgrades GET /ws/notifications.
func (g *NotificationGateway) Handle(c *gin.Context) {
	g.serve(c, g.dispatch)
}

func (g *NotificationGateway) dispatch(client *Client, frame ClientFrame) {
	if frame.Event == EventPing {
		g.handlePing(client, frame)
		return
	}
	err := marketplace_errors.BadRequest("Unknown event")
	client.Fail(frame.ID, err)
	g.record(client, frame.Event, err)
}

func (g *NotificationGateway) IsOnline(userID uint) bool {
	return g.registry.IsOnline(userID)
}

func (g *NotificationGateway) EmitNewNotification(userID uint, n notification.Notification) error {
	delivered, err := g.registry.Emit(UserRoom(userID), EventNewNotification, NewNotificationPayload{
		Notification: n,
		Timestamp:    timestamp(g.now()),
	})
	if err != nil {
		return err
	}
	g.logger.Info("notification emitted", userID, "",
		zap.Uint("notification_id", n.ID), zap.Int("connections", delivered))
	return nil
}

func (g *NotificationGateway) EmitNotificationRead(userID, notificationID uint) error {
	_, err := g.registry.Emit(UserRoom(userID), EventNotificationRead, NotificationReadPayload{
		NotificationID: notificationID,
		Timestamp:      timestamp(g.now()),
	})
	return err
}

func (g *NotificationGateway) EmitAllNotificationsRead(userID uint) error {
	_, err := g.registry.Emit(UserRoom(userID), EventAllNotificationsRead, AllNotificationsReadPayload{
		Timestamp: timestamp(g.now()),
	})
	return err
}
