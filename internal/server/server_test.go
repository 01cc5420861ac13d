package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"marketplace-chat/config"
	"marketplace-chat/internal/background"
	"marketplace-chat/internal/handler"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/push"
	"marketplace-chat/internal/repository"
	"marketplace-chat/internal/services"
	"marketplace-chat/internal/testutil"
	"marketplace-chat/internal/websocket"
	"marketplace-chat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiHarness struct {
	t      *testing.T
	server *Server
	auth   *services.AuthService
}

// newAPI builds the full router over an in-memory database. User 1 owns
// product 42, users 2 and 3 are buyers.
func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "Olivia", "Owner")
	testutil.SeedUser(t, db, 2, "Jane", "Doe")
	testutil.SeedUser(t, db, 3, "Sam", "Stranger")
	testutil.SeedProduct(t, db, 42, 1, "Bike")
	testutil.SeedMedia(t, db, 42, "https://cdn.example.com/bike.jpg", 0)

	cfg := &config.Config{
		App:       config.AppConfig{Port: "0", Mode: TestMode, AllowedOrigins: []string{"http://localhost:3000"}},
		JWT:       config.JWTConfig{Secret: "test-secret", ExpiryMin: 5},
		Telemetry: config.TelemetryConfig{ServiceName: "marketplace-chat-test"},
	}
	l := logger.NewNop()
	metrics := observability.NewMetrics()
	auth := services.NewAuthService(cfg.JWT)
	tokens := repository.NewUserTokenRepository(db)

	notifGateway := websocket.NewNotificationGateway(websocket.NotificationGatewayDeps{
		Auth: auth, Registry: websocket.NewMemoryRegistry(), Logger: l, Metrics: metrics,
	})
	notifications := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: repository.NewNotificationRepository(db),
		Products:      repository.NewProductRepository(db),
		Tokens:        tokens,
		Emitter:       notifGateway,
		Pusher:        push.NewDispatcher(nil, tokens, l, metrics),
		Runner:        background.Inline{},
		Logger:        l,
		Metrics:       metrics,
	})
	chats := services.NewChatService(services.ChatServiceDeps{
		Chats:    repository.NewChatRepository(db),
		Messages: repository.NewMessageRepository(db),
		Users:    repository.NewUserRepository(db),
		Products: repository.NewProductRepository(db),
		Notifier: notifications,
		Runner:   background.Inline{},
		Logger:   l,
		Metrics:  metrics,
	})
	chatGateway := websocket.NewChatGateway(websocket.ChatGatewayDeps{
		Auth: auth, Registry: websocket.NewMemoryRegistry(), Chats: chats, Logger: l, Metrics: metrics,
	})

	s := New(cfg, l)
	s.SetupRoutes(&Handlers{
		Chat:               handler.NewChatHandler(chats, chatGateway),
		Notification:       handler.NewNotificationHandler(notifications),
		ChatSocket:         chatGateway.Handle,
		NotificationSocket: notifGateway.Handle,
	}, Dependencies{DB: db, Auth: auth, Metrics: metrics})

	return &apiHarness{t: t, server: s, auth: auth}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (h *apiHarness) do(method, path string, userID uint, body interface{}) (int, envelope) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := h.auth.IssueAccessToken(userID)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" && path != "/metrics" {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestPingHealthAndMetrics(t *testing.T) {
	h := newAPI(t)

	code, env := h.do(http.MethodGet, "/ping", 0, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, env = h.do(http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", decode[map[string]interface{}](t, env)["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "abc123")
	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, rec.Header().Get("X-Request-Id"), 32)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	h := newAPI(t)
	for _, path := range []string{"/chat/heads", "/chat/unread-count", "/notifications"} {
		code, env := h.do(http.MethodGet, path, 0, nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "UNAUTHORIZED", env.Code, path)
	}
}

func TestChatFlowOverHTTP(t *testing.T) {
	h := newAPI(t)

	code, env := h.do(http.MethodPost, "/chat/initiate", 2, map[string]uint{"productId": 42, "userBId": 2})
	require.Equal(t, http.StatusCreated, code, env.Error)
	created := decode[map[string]interface{}](t, env)
	chatID := uint(created["id"].(float64))
	assert.EqualValues(t, 1, created["userAId"])

	code, env = h.do(http.MethodPost, "/chat/initiate", 1, map[string]uint{"productId": 42, "userBId": 2})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, chatID, decode[map[string]interface{}](t, env)["id"])

	for _, content := range []string{"Hi, is it available?", "Can you ship it?"} {
		code, env = h.do(http.MethodPost, "/chat/message", 2, map[string]interface{}{"chatId": chatID, "content": content})
		require.Equal(t, http.StatusCreated, code, env.Error)
	}

	code, env = h.do(http.MethodGet, "/chat/unread-count", 1, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":2}`, string(env.Data))

	code, env = h.do(http.MethodGet, "/chat/heads", 1, nil)
	require.Equal(t, http.StatusOK, code)
	heads := decode[services.ChatPage](t, env)
	require.Len(t, heads.Chats, 1)
	assert.Equal(t, "Can you ship it?", *heads.Chats[0].LastMessage)
	assert.Equal(t, 20, heads.Limit)

	code, env = h.do(http.MethodGet, "/chat/"+strconv.Itoa(int(chatID))+"/messages?limit=1&page=2", 1, nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[services.MessagePage](t, env)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "Hi, is it available?", page.Messages[0].Content)
	assert.Equal(t, 2, page.TotalPages)

	code, _ = h.do(http.MethodPatch, "/chat/mark-read", 1, map[string]uint{"chatId": chatID})
	require.Equal(t, http.StatusOK, code)

	_, env = h.do(http.MethodGet, "/chat/unread-count", 1, nil)
	assert.JSONEq(t, `{"count":0}`, string(env.Data))

	code, env = h.do(http.MethodGet, "/chat/"+strconv.Itoa(int(chatID)), 3, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Code)
}

func TestChatRequestValidation(t *testing.T) {
	h := newAPI(t)

	code, env := h.do(http.MethodGet, "/chat/abc", 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", env.Code)

	code, _ = h.do(http.MethodPost, "/chat/initiate", 1, map[string]uint{"productId": 42})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = h.do(http.MethodPost, "/chat/initiate", 1, map[string]uint{"productId": 99, "userBId": 2})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Product not found", env.Error)

	code, env = h.do(http.MethodPost, "/chat/initiate", 1, map[string]uint{"productId": 42, "userBId": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "You cannot chat with yourself", env.Error)

	code, _ = h.do(http.MethodPost, "/chat/message", 1, map[string]interface{}{"chatId": 1, "content": string(bytes.Repeat([]byte("a"), 5001))})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.do(http.MethodGet, "/chat/heads?limit=500", 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNotificationFlowOverHTTP(t *testing.T) {
	h := newAPI(t)

	code, env := h.do(http.MethodPost, "/chat/initiate", 2, map[string]uint{"productId": 42, "userBId": 2})
	require.Equal(t, http.StatusCreated, code)
	chatID := uint(decode[map[string]interface{}](t, env)["id"].(float64))
	code, _ = h.do(http.MethodPost, "/chat/message", 2, map[string]interface{}{"chatId": chatID, "content": "hello"})
	require.Equal(t, http.StatusCreated, code)

	code, env = h.do(http.MethodGet, "/notifications/unread-count", 1, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"unreadCount":1}`, string(env.Data))

	code, env = h.do(http.MethodGet, "/notifications", 1, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[map[string]interface{}](t, env)
	items := list["notifications"].([]interface{})
	require.Len(t, items, 1)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "New Message", first["title"])
	notificationID := int(first["id"].(float64))

	code, env = h.do(http.MethodPut, "/notifications/"+strconv.Itoa(notificationID)+"/read", 2, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Notification not found", env.Error)

	code, _ = h.do(http.MethodPut, "/notifications/"+strconv.Itoa(notificationID)+"/read", 1, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = h.do(http.MethodPut, "/notifications/mark-all-read", 1, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":0}`, string(env.Data))

	code, _ = h.do(http.MethodPut, "/notifications/fcm-token", 1, map[string]string{"fcmToken": "tok-1", "deviceId": "phone"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(http.MethodPut, "/notifications/fcm-token", 1, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = h.do(http.MethodDelete, "/notifications/fcm-token", 1, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"removed":1}`, string(env.Data))
}

func TestShutdownHooksRunInOrder(t *testing.T) {
	var order []string
	hook := func(name string) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	runHooks(context.Background(), logger.NewNop(), []func(context.Context) error{hook("runner"), hook("tracing")})
	assert.Equal(t, []string{"runner", "tracing"}, order)
}
