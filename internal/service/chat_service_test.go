package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/memory"
	"github.com/cwrk-planet/feed-service/internal/mocks"
	"github.com/cwrk-planet/feed-service/internal/repository"
	"github.com/cwrk-planet/feed-service/internal/repository/storetest"
	"github.com/cwrk-planet/feed-service/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newChat(t *testing.T) (*service.ChatService, repository.EventStore) {
	t.Helper()
	store := memory.New(repository.Options{Now: storetest.NewClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)).Now})
	return service.NewChatService(store, service.DefaultLimits()), store
}

func TestChatService_Send(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	chat, _ := newChat(t)

	msg, err := chat.Send(ctx, " r1 ", " alice ", "  hi  ")
	req.NoError(err)
	req.Equal("r1", msg.Room)
	req.Equal("alice", msg.Username)
	req.Equal("hi", msg.Text)
	req.Empty(msg.SeenBy)
	req.NotEmpty(msg.Timestamp)
}

func TestChatService_SendValidation(t *testing.T) {
	ctx := context.Background()
	chat, store := newChat(t)

	cases := []struct {
		name             string
		room, user, text string
	}{
		{"empty text", "r1", "alice", "   "},
		{"empty room", "", "alice", "hi"},
		{"empty username", "r1", "", "hi"},
		{"too long", "r1", "alice", strings.Repeat("я", 4001)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chat.Send(ctx, tc.room, tc.user, tc.text)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	msgs, err := store.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestChatService_MaxLengthCountsRunes(t *testing.T) {
	chat, _ := newChat(t)
	_, err := chat.Send(context.Background(), "r1", "alice", strings.Repeat("я", 4000))
	require.NoError(t, err)
}

func TestChatService_EditKeepsCreatedAt(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	chat, _ := newChat(t)

	msg, err := chat.Send(ctx, "r1", "alice", "hi")
	req.NoError(err)

	_, err = chat.Edit(ctx, msg.ID, "bob", "hacked")
	req.ErrorIs(err, domain.ErrUnauthorized)

	edited, err := chat.Edit(ctx, msg.ID, "alice", "hello")
	req.NoError(err)
	req.Equal("hello", edited.Text)
	req.True(edited.CreatedAt.Equal(msg.CreatedAt))

	_, err = chat.Edit(ctx, msg.ID, "alice", " ")
	req.ErrorIs(err, domain.ErrValidation)
}

func TestChatService_DeleteTwice(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	chat, _ := newChat(t)

	msg, err := chat.Send(ctx, "r1", "alice", "bye")
	req.NoError(err)

	_, err = chat.Delete(ctx, msg.ID, "alice")
	req.NoError(err)

	_, err = chat.Delete(ctx, msg.ID, "bob")
	req.ErrorIs(err, domain.ErrMessageNotFound)
}

func TestChatService_MarkSeen(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	chat, _ := newChat(t)

	_, err := chat.Send(ctx, "r1", "alice", "one")
	req.NoError(err)
	_, err = chat.Send(ctx, "r1", "alice", "two")
	req.NoError(err)

	n, err := chat.MarkSeen(ctx, "r1", "bob")
	req.NoError(err)
	req.Equal(2, n)

	n, err = chat.MarkSeen(ctx, "r1", "bob")
	req.NoError(err)
	req.Zero(n)

	msgs, err := chat.Messages(ctx, "r1")
	req.NoError(err)
	for _, m := range msgs {
		req.Equal([]string{"bob"}, m.SeenBy)
	}
}

func TestChatService_WrapsStorageErrors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEventStore(ctrl)
	chat := service.NewChatService(store, service.DefaultLimits())

	store.EXPECT().AppendMessage(gomock.Any(), "r1", "alice", "hi").
		Return(nil, errors.New("connection refused"))
	store.EXPECT().EditMessage(gomock.Any(), "m1", "alice", "x").
		Return(nil, domain.ErrUnauthorized)

	_, err := chat.Send(ctx, "r1", "alice", "hi")
	req.ErrorIs(err, domain.ErrPersistence)
	req.NotContains(domain.Reason(err), "connection refused")

	_, err = chat.Edit(ctx, "m1", "alice", "x")
	req.ErrorIs(err, domain.ErrUnauthorized)
	req.NotErrorIs(err, domain.ErrPersistence)
}

func TestChatService_ValidationSkipsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEventStore(ctrl)
	chat := service.NewChatService(store, service.DefaultLimits())

	_, err := chat.Send(context.Background(), "r1", "alice", "")
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, "text is required", domain.Reason(err))
}
