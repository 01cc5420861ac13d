package websocket

import (
	"marketplace-chat/pkg/logger"

	"go.uber.org/zap"
)

// WebSocketLogger provides structured logging for WebSocket events
type WebSocketLogger struct {
	logger *zap.Logger
}

func NewWebSocketLogger(l *logger.Logger, namespace string) *WebSocketLogger {
	return &WebSocketLogger{
		logger: l.Logger.With(zap.String("component", "websocket"), zap.String("namespace", namespace)),
	}
}

func (l *WebSocketLogger) Info(event string, userID uint, clientID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Uint("user_id", userID),
		zap.String("client_id", clientID),
	}, fields...)
	l.logger.Info("websocket_event", allFields...)
}

func (l *WebSocketLogger) Error(event string, userID uint, clientID string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Uint("user_id", userID),
		zap.String("client_id", clientID),
		zap.Error(err),
	}, fields...)
	l.logger.Error("websocket_error", allFields...)
}

func (l *WebSocketLogger) Warn(event string, userID uint, clientID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Uint("user_id", userID),
		zap.String("client_id", clientID),
	}, fields...)
	l.logger.Warn("websocket_warning", allFields...)
}
