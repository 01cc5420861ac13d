package services

import (
	"context"
	"strings"

	"marketplace-chat/internal/background"
	"marketplace-chat/internal/domain/notification"
	"marketplace-chat/internal/domain/product"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/push"
	"marketplace-chat/internal/repository"
	marketplace_errors "marketplace-chat/pkg/errors"
	"marketplace-chat/pkg/logger"

	"go.uber.org/zap"
)

const defaultNotificationsLimit = 10

// NotificationEmitter pushes notification events to a user's live
// connections. The notifications socket namespace implements it.
type NotificationEmitter interface {
	EmitNewNotification(userID uint, n notification.Notification) error
	EmitNotificationRead(userID, notificationID uint) error
	EmitAllNotificationsRead(userID uint) error
}

// Pusher delivers best-effort mobile push. push.Dispatcher implements it.
type Pusher interface {
	SendToUser(ctx context.Context, userID uint, msg push.Message) push.Result
}

type NotificationService struct {
	notifications repository.NotificationRepository
	products      repository.ProductRepository
	tokens        repository.UserTokenRepository
	emitter       NotificationEmitter
	pusher        Pusher
	runner        background.Runner
	logger        *logger.Logger
	metrics       *observability.Metrics
}

type NotificationServiceDeps struct {
	Notifications repository.NotificationRepository
	Products      repository.ProductRepository
	Tokens        repository.UserTokenRepository
	Emitter       NotificationEmitter
	Pusher        Pusher
	Runner        background.Runner
	Logger        *logger.Logger
	Metrics       *observability.Metrics
}

func NewNotificationService(d NotificationServiceDeps) *NotificationService {
	return &NotificationService{
		notifications: d.Notifications,
		products:      d.Products,
		tokens:        d.Tokens,
		emitter:       d.Emitter,
		pusher:        d.Pusher,
		runner:        d.Runner,
		logger:        d.Logger.Named("notifications"),
		metrics:       d.Metrics,
	}
}

type CreateNotificationInput struct {
	UserID     uint
	Title      string
	Message    string
	Module     notification.Module
	ResourceID *uint
	Payload    map[string]interface{}
}

// NotificationView is a notification with its product projection attached
// when the module refers to a product.
type NotificationView struct {
	notification.Notification
	Product *product.Summary `json:"product,omitempty"`
}

type NotificationPage struct {
	Notifications []NotificationView `json:"notifications"`
	Total         int64              `json:"total"`
	Page          int                `json:"page"`
	Limit         int                `json:"limit"`
	TotalPages    int                `json:"totalPages"`
}

// CreateNotification persists a notification. The socket event and the push
// are best-effort and never fail the call.
func (s *NotificationService) CreateNotification(ctx context.Context, in CreateNotificationInput) (notification.Notification, error) {
	if in.UserID == 0 {
		return notification.Notification{}, marketplace_errors.BadRequest("Recipient is required")
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Message) == "" {
		return notification.Notification{}, marketplace_errors.BadRequest("Title and message are required")
	}
	if in.Module == "" {
		in.Module = notification.ModuleGeneral
	}
	if !in.Module.Valid() {
		return notification.Notification{}, marketplace_errors.BadRequest("Unknown notification module")
	}

	n := notification.Notification{
		UserID:     in.UserID,
		Title:      in.Title,
		Message:    in.Message,
		Module:     in.Module,
		ResourceID: in.ResourceID,
		Payload:    in.Payload,
	}
	if err := s.notifications.Create(ctx, &n); err != nil {
		return notification.Notification{}, err
	}
	s.metrics.NotificationCreated(string(n.Module))

	if s.emitter != nil {
		if err := s.emitter.EmitNewNotification(n.UserID, n); err != nil {
			s.logger.Warn("emit newNotification failed", zap.Uint("user_id", n.UserID), zap.Error(err))
		}
	}

	if s.pusher != nil {
		msg := pushMessageFor(n)
		s.runner.Go("notification.push", func(ctx context.Context) error {
			s.pusher.SendToUser(ctx, n.UserID, msg)
			return nil
		})
	}
	return n, nil
}

func (s *NotificationService) GetNotificationsByUserID(ctx context.Context, userID uint, page, limit int) (NotificationPage, error) {
	page, limit = normalizePage(page, limit, defaultNotificationsLimit)
	items, total, err := s.notifications.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return NotificationPage{}, err
	}

	var productIDs []uint
	for _, n := range items {
		if n.Module == notification.ModuleProduct && n.ResourceID != nil {
			productIDs = append(productIDs, *n.ResourceID)
		}
	}
	summaries, err := s.products.GetSummaries(ctx, productIDs)
	if err != nil {
		return NotificationPage{}, err
	}

	views := make([]NotificationView, 0, len(items))
	for _, n := range items {
		v := NotificationView{Notification: n}
		if n.Module == notification.ModuleProduct && n.ResourceID != nil {
			if sum, ok := summaries[*n.ResourceID]; ok {
				sum := sum
				v.Product = &sum
			}
		}
		views = append(views, v)
	}

	return NotificationPage{
		Notifications: views,
		Total:         total,
		Page:          page,
		Limit:         limit,
		TotalPages:    totalPages(total, limit),
	}, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID uint) (notification.Notification, error) {
	n, err := s.notifications.GetForUser(ctx, notificationID, userID)
	if err != nil {
		return notification.Notification{}, notFoundOr(err, "Notification not found")
	}
	if !n.IsRead {
		if err := s.notifications.MarkRead(ctx, notificationID, userID); err != nil {
			return notification.Notification{}, notFoundOr(err, "Notification not found")
		}
		n.IsRead = true
	}

	if s.emitter != nil {
		if err := s.emitter.EmitNotificationRead(userID, notificationID); err != nil {
			s.logger.Warn("emit notificationRead failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return n, nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.emitter != nil {
		if err := s.emitter.EmitAllNotificationsRead(userID); err != nil {
			s.logger.Warn("emit allNotificationsRead failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return n, nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.notifications.CountUnread(ctx, userID)
}

// UpdateFCMToken binds a device's push token to userID. Without a device id
// the token itself identifies the device.
func (s *NotificationService) UpdateFCMToken(ctx context.Context, userID uint, deviceID, fcmToken string) error {
	fcmToken = strings.TrimSpace(fcmToken)
	if fcmToken == "" {
		return marketplace_errors.BadRequest("fcmToken is required")
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = fcmToken
	}
	return s.tokens.Upsert(ctx, deviceID, fcmToken, &userID)
}

// RemoveFCMToken forgets one device, or every device of userID when
// deviceID is empty.
func (s *NotificationService) RemoveFCMToken(ctx context.Context, userID uint, deviceID string) (int64, error) {
	return s.tokens.DeleteForUser(ctx, userID, strings.TrimSpace(deviceID))
}

func pushMessageFor(n notification.Notification) push.Message {
	data := make(map[string]interface{}, len(n.Payload)+3)
	for k, v := range n.Payload {
		data[k] = v
	}
	data["notificationId"] = n.ID
	data["module"] = string(n.Module)
	if n.ResourceID != nil {
		data["resourceId"] = *n.ResourceID
	}
	return push.Message{Title: n.Title, Body: n.Message, Data: data}
}
