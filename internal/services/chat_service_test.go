package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"marketplace-chat/internal/background"
	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/domain/notification"
	"marketplace-chat/internal/repository"
	"marketplace-chat/internal/testutil"
	marketplace_errors "marketplace-chat/pkg/errors"
	"marketplace-chat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []CreateNotificationInput
	err   error
}

func (n *recordingNotifier) CreateNotification(_ context.Context, in CreateNotificationInput) (notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, in)
	if n.err != nil {
		return notification.Notification{}, n.err
	}
	return notification.Notification{UserID: in.UserID}, nil
}

type chatFixture struct {
	db       *gorm.DB
	svc      *ChatService
	notifier *recordingNotifier

	mu       sync.Mutex
	failures []string
}

func (f *chatFixture) failed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.failures...)
}

// newChatFixture seeds the owner (1), a buyer (2), a stranger (3) and
// product 42 owned by user 1.
func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "Olivia", "Owner")
	testutil.SeedUser(t, db, 2, "Jane", "Doe")
	testutil.SeedUser(t, db, 3, "Sam", "Stranger")
	testutil.SeedProduct(t, db, 42, 1, "Bike")

	f := &chatFixture{db: db, notifier: &recordingNotifier{}}
	f.svc = NewChatService(ChatServiceDeps{
		Chats:    repository.NewChatRepository(db),
		Messages: repository.NewMessageRepository(db),
		Users:    repository.NewUserRepository(db),
		Products: repository.NewProductRepository(db),
		Notifier: f.notifier,
		Runner: background.Inline{OnFailure: func(name string, _ error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.failures = append(f.failures, name)
		}},
		Logger: logger.NewNop(),
	})
	return f
}

func (f *chatFixture) reload(t *testing.T, id uint) chat.Chat {
	t.Helper()
	var c chat.Chat
	require.NoError(t, f.db.First(&c, id).Error)
	return c
}

func TestInitiateChatCreatesOnce(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	c, created, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint(1), c.UserAID)
	assert.Equal(t, uint(2), c.UserBID)
	assert.Equal(t, 0, c.UnreadCountUserA)
	assert.Equal(t, 0, c.UnreadCountUserB)
	assert.Nil(t, c.LastMessage)
	assert.Nil(t, c.LastMessageAt)
	assert.True(t, c.IsActive())

	again, created, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)

	// the owner may open the same conversation
	fromOwner, _, err := f.svc.InitiateChat(ctx, 42, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, c.ID, fromOwner.ID)

	var count int64
	require.NoError(t, f.db.Model(&chat.Chat{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInitiateChatValidation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		productID uint
		userBID   uint
		requester uint
		kind      error
		message   string
	}{
		{"missing product", 99, 2, 2, marketplace_errors.ErrNotFound, "Product not found"},
		{"missing user", 42, 99, 2, marketplace_errors.ErrNotFound, "User not found"},
		{"self chat", 42, 1, 1, marketplace_errors.ErrInvalidInput, "You cannot chat with yourself"},
		{"outsider", 42, 2, 3, marketplace_errors.ErrForbidden, ""},
		// product is checked before the user
		{"missing both", 99, 99, 2, marketplace_errors.ErrNotFound, "Product not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.InitiateChat(ctx, tt.productID, tt.userBID, tt.requester)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			if tt.message != "" {
				assert.Equal(t, tt.message, err.Error())
			}
		})
	}
}

func TestSendMessageScenario(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	sent, err := f.svc.SendMessage(ctx, c.ID, 2, "Is this available?")
	require.NoError(t, err)
	assert.NotZero(t, sent.Message.ID)
	assert.False(t, sent.Message.IsRead)
	assert.Equal(t, uint(1), sent.RecipientID())

	stored := f.reload(t, c.ID)
	assert.Equal(t, 1, stored.UnreadCountUserA)
	assert.Equal(t, 0, stored.UnreadCountUserB)
	require.NotNil(t, stored.LastMessage)
	assert.Equal(t, "Is this available?", *stored.LastMessage)
	assert.NotNil(t, stored.LastMessageAt)

	_, err = f.svc.MarkMessagesAsRead(ctx, c.ID, 1)
	require.NoError(t, err)

	stored = f.reload(t, c.ID)
	assert.Equal(t, 0, stored.UnreadCountUserA)
	assert.Equal(t, 0, stored.UnreadCountUserB)

	var m chat.Message
	require.NoError(t, f.db.First(&m, sent.Message.ID).Error)
	assert.True(t, m.IsRead)
	assert.NotNil(t, m.ReadAt)
}

func TestSendMessageIncrementsOnlyRecipient(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.SendMessage(ctx, c.ID, 2, fmt.Sprintf("buyer %d", i))
		require.NoError(t, err)
	}
	_, err = f.svc.SendMessage(ctx, c.ID, 1, "owner reply")
	require.NoError(t, err)

	stored := f.reload(t, c.ID)
	assert.Equal(t, 3, stored.UnreadCountUserA)
	assert.Equal(t, 1, stored.UnreadCountUserB)
	assert.Equal(t, "owner reply", *stored.LastMessage)
}

func TestSendMessageTruncatesPreview(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	content := strings.Repeat("é", 150)
	sent, err := f.svc.SendMessage(ctx, c.ID, 2, content)
	require.NoError(t, err)
	assert.Equal(t, content, sent.Message.Content)

	stored := f.reload(t, c.ID)
	assert.Equal(t, strings.Repeat("é", 100), *stored.LastMessage)
	assert.Equal(t, *stored.LastMessage, *sent.Chat.LastMessage)
}

func TestSendMessageRejections(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, c.ID, 3, "hi")
	assert.ErrorIs(t, err, marketplace_errors.ErrForbidden)

	_, err = f.svc.SendMessage(ctx, 999, 2, "hi")
	assert.ErrorIs(t, err, marketplace_errors.ErrNotFound)

	_, err = f.svc.SendMessage(ctx, c.ID, 2, "   ")
	assert.ErrorIs(t, err, marketplace_errors.ErrInvalidInput)

	_, err = f.svc.SendMessage(ctx, c.ID, 2, strings.Repeat("a", chat.MaxContentLength+1))
	assert.ErrorIs(t, err, marketplace_errors.ErrInvalidInput)

	var count int64
	require.NoError(t, f.db.Model(&chat.Message{}).Count(&count).Error)
	assert.Zero(t, count)
	stored := f.reload(t, c.ID)
	assert.Zero(t, stored.UnreadCountUserA)
}

func TestSendMessageAuthorizesBeforeValidatingContent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, c.ID, 3, "   ")
	assert.ErrorIs(t, err, marketplace_errors.ErrForbidden)

	_, err = f.svc.SendMessage(ctx, 999, 3, "")
	assert.ErrorIs(t, err, marketplace_errors.ErrNotFound)

	_, err = f.svc.SendMessage(ctx, c.ID, 3, strings.Repeat("a", chat.MaxContentLength+1))
	assert.ErrorIs(t, err, marketplace_errors.ErrForbidden)
}

func TestSendMessageNotifiesRecipient(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, c.ID, 2, "Is this available?")
	require.NoError(t, err)

	require.Len(t, f.notifier.calls, 1)
	in := f.notifier.calls[0]
	assert.Equal(t, uint(1), in.UserID)
	assert.Equal(t, "New Message", in.Title)
	assert.Equal(t, "You have a new message from Jane Doe", in.Message)
	assert.Equal(t, notification.ModuleMessage, in.Module)
	require.NotNil(t, in.ResourceID)
	assert.Equal(t, uint(2), *in.ResourceID)
	assert.Equal(t, c.ID, in.Payload["chatId"])
	assert.Equal(t, uint(2), in.Payload["senderId"])
	assert.Equal(t, "Jane Doe", in.Payload["senderName"])
	assert.Equal(t, "Is this available?", in.Payload["messageContent"])
	assert.Equal(t, uint(42), in.Payload["productId"])
}

func TestSendMessageSurvivesNotificationFailure(t *testing.T) {
	f := newChatFixture(t)
	f.notifier.err = errors.New("notifications table is gone")
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	sent, err := f.svc.SendMessage(ctx, c.ID, 2, "still delivered")
	require.NoError(t, err)
	assert.NotZero(t, sent.Message.ID)
	assert.Contains(t, f.failed(), "chat.notify_recipient")
	assert.Equal(t, 1, f.reload(t, c.ID).UnreadCountUserA)
}

func TestSendMessageRejectedOnInactiveChat(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, c.ID, 2, "before")
	require.NoError(t, err)

	n, err := f.svc.DeactivateProductChats(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.SendMessage(ctx, c.ID, 2, "after")
	assert.ErrorIs(t, err, marketplace_errors.ErrInvalidInput)

	page, err := f.svc.GetMessages(ctx, c.ID, 1, 1, 50)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)

	_, err = f.svc.MarkMessagesAsRead(ctx, c.ID, 1)
	assert.NoError(t, err)
}

func TestMarkMessagesAsReadLeavesOwnMessages(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	fromBuyer, err := f.svc.SendMessage(ctx, c.ID, 2, "hello")
	require.NoError(t, err)
	fromOwner, err := f.svc.SendMessage(ctx, c.ID, 1, "hi there")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, c.ID, 2, "price?")
	require.NoError(t, err)

	_, err = f.svc.MarkMessagesAsRead(ctx, c.ID, 1)
	require.NoError(t, err)

	stored := f.reload(t, c.ID)
	assert.Equal(t, 0, stored.UnreadCountUserA)
	assert.Equal(t, 1, stored.UnreadCountUserB)

	var buyerMsg, ownerMsg chat.Message
	require.NoError(t, f.db.First(&buyerMsg, fromBuyer.Message.ID).Error)
	require.NoError(t, f.db.First(&ownerMsg, fromOwner.Message.ID).Error)
	assert.True(t, buyerMsg.IsRead)
	assert.NotNil(t, buyerMsg.ReadAt)
	assert.False(t, ownerMsg.IsRead)
	assert.Nil(t, ownerMsg.ReadAt)

	_, err = f.svc.MarkMessagesAsRead(ctx, c.ID, 3)
	assert.ErrorIs(t, err, marketplace_errors.ErrForbidden)
}

func TestGetMessagesPagesChronologically(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	const n = 7
	for i := 1; i <= n; i++ {
		sender := uint(2)
		if i%2 == 0 {
			sender = 1
		}
		_, err := f.svc.SendMessage(ctx, c.ID, sender, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	first, err := f.svc.GetMessages(ctx, c.ID, 2, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(n), first.Total)
	assert.Equal(t, 3, first.TotalPages)
	assert.Equal(t, []string{"m5", "m6", "m7"}, contents(first.Messages))

	// walking pages from oldest to newest rebuilds the log exactly once
	var all []string
	for page := first.TotalPages; page >= 1; page-- {
		p, err := f.svc.GetMessages(ctx, c.ID, 1, page, 3)
		require.NoError(t, err)
		all = append(all, contents(p.Messages)...)
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"}, all)
}

func TestGetMessagesDefaultsAndAuthorization(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	page, err := f.svc.GetMessages(ctx, c.ID, 2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.Limit)
	assert.Empty(t, page.Messages)

	_, err = f.svc.GetMessages(ctx, c.ID, 3, 1, 50)
	assert.ErrorIs(t, err, marketplace_errors.ErrForbidden)

	_, err = f.svc.GetMessages(ctx, 999, 2, 1, 50)
	assert.ErrorIs(t, err, marketplace_errors.ErrNotFound)
}

func TestGetChatHeadsOrdering(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	testutil.SeedProduct(t, f.db, 43, 1, "Lamp")
	testutil.SeedProduct(t, f.db, 44, 1, "Desk")

	bike, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)
	desk, _, err := f.svc.InitiateChat(ctx, 44, 2, 2)
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, bike.ID, 2, "bike?")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, desk.ID, 2, "desk?")
	require.NoError(t, err)
	lamp, _, err := f.svc.InitiateChat(ctx, 43, 3, 3)
	require.NoError(t, err)

	heads, err := f.svc.GetChatHeads(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), heads.Total)
	assert.Equal(t, 20, heads.Limit)
	require.Len(t, heads.Chats, 3)
	assert.Equal(t, []uint{desk.ID, bike.ID, lamp.ID}, []uint{heads.Chats[0].ID, heads.Chats[1].ID, heads.Chats[2].ID})

	buyerHeads, err := f.svc.GetChatHeads(ctx, 2, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), buyerHeads.Total)
	assert.Equal(t, 2, buyerHeads.TotalPages)
	require.Len(t, buyerHeads.Chats, 1)
	assert.Equal(t, desk.ID, buyerHeads.Chats[0].ID)
}

func TestGetUnreadCountSumsRoleCounters(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	testutil.SeedProduct(t, f.db, 50, 3, "Guitar")

	asOwner, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)
	asBuyer, _, err := f.svc.InitiateChat(ctx, 50, 1, 1)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.svc.SendMessage(ctx, asOwner.ID, 2, "ping")
		require.NoError(t, err)
	}
	_, err = f.svc.SendMessage(ctx, asBuyer.ID, 3, "sold soon")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, asBuyer.ID, 1, "still there?")
	require.NoError(t, err)

	count, err := f.svc.GetUnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = f.svc.GetUnreadCount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = f.svc.GetUnreadCount(ctx, 99)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConcurrentSendsKeepEveryIncrement(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	c, _, err := f.svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)

	const senders = 10
	var wg sync.WaitGroup
	errs := make(chan error, senders*2)
	for i := 0; i < senders; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, c.ID, 2, fmt.Sprintf("b%d", i))
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, c.ID, 1, fmt.Sprintf("a%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored := f.reload(t, c.ID)
	assert.Equal(t, senders, stored.UnreadCountUserA)
	assert.Equal(t, senders, stored.UnreadCountUserB)
}

func TestSendMessageCreatesStoredNotification(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedUser(t, db, 1, "Olivia", "Owner")
	testutil.SeedUser(t, db, 2, "", "")
	testutil.SeedProduct(t, db, 42, 1, "Bike")

	emitter := &recordingEmitter{}
	notifications := NewNotificationService(NotificationServiceDeps{
		Notifications: repository.NewNotificationRepository(db),
		Products:      repository.NewProductRepository(db),
		Tokens:        repository.NewUserTokenRepository(db),
		Emitter:       emitter,
		Runner:        background.Inline{},
		Logger:        logger.NewNop(),
	})
	svc := NewChatService(ChatServiceDeps{
		Chats:    repository.NewChatRepository(db),
		Messages: repository.NewMessageRepository(db),
		Users:    repository.NewUserRepository(db),
		Products: repository.NewProductRepository(db),
		Notifier: notifications,
		Runner:   background.Inline{},
		Logger:   logger.NewNop(),
	})

	ctx := context.Background()
	c, _, err := svc.InitiateChat(ctx, 42, 2, 2)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, c.ID, 2, "hello")
	require.NoError(t, err)

	page, err := notifications.GetNotificationsByUserID(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	n := page.Notifications[0]
	assert.Equal(t, "You have a new message from Someone", n.Message)
	assert.Equal(t, notification.ModuleMessage, n.Module)
	assert.Equal(t, "Someone", n.Payload["senderName"])
	// numbers come back from the JSON column as json.Number
	assert.Equal(t, "42", fmt.Sprint(n.Payload["productId"]))
	assert.Len(t, emitter.created(), 1)
}

func contents(messages []chat.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Content)
	}
	return out
}
