package repository_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"marketplace-chat/internal/domain/chat"
	"marketplace-chat/internal/repository"
	"marketplace-chat/internal/testutil"
	marketplace_errors "marketplace-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newChat(t *testing.T, db *gorm.DB, productID, a, b uint) chat.Chat {
	t.Helper()
	c := chat.Chat{ProductID: productID, UserAID: a, UserBID: b, Status: chat.StatusActive}
	require.NoError(t, repository.NewChatRepository(db).Create(context.Background(), &c))
	return c
}

func TestChatCreateRejectsDuplicateTriple(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewChatRepository(db)
	newChat(t, db, 42, 1, 2)

	dup := chat.Chat{ProductID: 42, UserAID: 1, UserBID: 2, Status: chat.StatusActive}
	err := repo.Create(context.Background(), &dup)
	assert.ErrorIs(t, err, marketplace_errors.ErrAlreadyExists)

	_, err = repo.FindByParticipants(context.Background(), 42, 2, 1)
	assert.ErrorIs(t, err, marketplace_errors.ErrNotFound)
}

func TestRecordMessageUpdatesPreviewAndRecipientCounter(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewChatRepository(db)
	ctx := context.Background()
	c := newChat(t, db, 42, 1, 2)

	long := strings.Repeat("é", chat.PreviewLength+20)
	at := time.Now().Truncate(time.Millisecond)
	m := chat.Message{ChatID: c.ID, SenderID: 2, Content: long, CreatedAt: at}
	require.NoError(t, repo.RecordMessage(ctx, c, &m))
	require.NoError(t, repo.RecordMessage(ctx, c, &chat.Message{ChatID: c.ID, SenderID: 2, Content: "again"}))
	require.NoError(t, repo.RecordMessage(ctx, c, &chat.Message{ChatID: c.ID, SenderID: 1, Content: "reply"}))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadCountUserA)
	assert.Equal(t, 1, got.UnreadCountUserB)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "reply", *got.LastMessage)

	first, err := repository.NewMessageRepository(db).GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, long, first.Content)

	missing := chat.Chat{ID: 999, UserAID: 1, UserBID: 2}
	err = repo.RecordMessage(ctx, missing, &chat.Message{ChatID: 999, SenderID: 1, Content: "x"})
	assert.ErrorIs(t, err, marketplace_errors.ErrNotFound)
}

func TestRecordMessageKeepsNewestPreview(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewChatRepository(db)
	ctx := context.Background()
	c := newChat(t, db, 42, 1, 2)

	newer := time.Now().Truncate(time.Millisecond)
	older := newer.Add(-time.Second)
	require.NoError(t, repo.RecordMessage(ctx, c, &chat.Message{ChatID: c.ID, SenderID: 2, Content: "newer", CreatedAt: newer}))
	// commits after the newer one, as a racing send would
	require.NoError(t, repo.RecordMessage(ctx, c, &chat.Message{ChatID: c.ID, SenderID: 2, Content: "older", CreatedAt: older}))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "newer", *got.LastMessage)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(newer))
	assert.Equal(t, 2, got.UnreadCountUserA)
}

func TestMarkReadOnlyFlipsIncoming(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewChatRepository(db)
	ctx := context.Background()
	c := newChat(t, db, 42, 1, 2)

	for _, sender := range []uint{2, 2, 1} {
		require.NoError(t, repo.RecordMessage(ctx, c, &chat.Message{ChatID: c.ID, SenderID: sender, Content: "hi"}))
	}

	flipped, err := repo.MarkRead(ctx, c, 1, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, flipped)

	flipped, err = repo.MarkRead(ctx, c, 1, time.Now())
	require.NoError(t, err)
	assert.Zero(t, flipped)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UnreadCountUserA)
	assert.Equal(t, 1, got.UnreadCountUserB)

	var ownUnread int64
	require.NoError(t, db.Model(&chat.Message{}).Where("sender_id = ? AND is_read = ?", 1, false).Count(&ownUnread).Error)
	assert.EqualValues(t, 1, ownUnread)
}

func TestListByUserOrdersByActivity(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewChatRepository(db)
	ctx := context.Background()

	quiet := newChat(t, db, 1, 1, 2)
	older := newChat(t, db, 2, 1, 3)
	newer := newChat(t, db, 3, 4, 1)
	newChat(t, db, 4, 5, 6)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, repo.RecordMessage(ctx, older, &chat.Message{ChatID: older.ID, SenderID: 3, Content: "a", CreatedAt: base}))
	require.NoError(t, repo.RecordMessage(ctx, newer, &chat.Message{ChatID: newer.ID, SenderID: 4, Content: "b", CreatedAt: base.Add(time.Minute)}))

	chats, total, err := repo.ListByUser(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, chats, 3)
	assert.Equal(t, []uint{newer.ID, older.ID, quiet.ID}, []uint{chats[0].ID, chats[1].ID, chats[2].ID})

	page2, _, err := repo.ListByUser(ctx, 1, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, quiet.ID, page2[0].ID)

	sum, err := repo.SumUnread(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum)
}

func TestDeactivateByProduct(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewChatRepository(db)
	ctx := context.Background()
	a := newChat(t, db, 7, 1, 2)
	newChat(t, db, 7, 1, 3)
	other := newChat(t, db, 8, 1, 2)

	n, err := repo.DeactivateByProduct(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive())

	got, err = repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())
}
