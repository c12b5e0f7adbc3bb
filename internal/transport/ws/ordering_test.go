package ws_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/feed"
	"github.com/cwrk-planet/feed-service/internal/memory"
	"github.com/cwrk-planet/feed-service/internal/protocol"
	"github.com/cwrk-planet/feed-service/internal/repository"

	"github.com/stretchr/testify/require"
)

// pausingStore останавливает одну операцию хранилища после её выполнения,
// чтобы вклинить между коммитом и рассылкой конкурирующую команду.
type pausingStore struct {
	repository.EventStore

	pauseList atomic.Bool
	pauseVote atomic.Value // имя голосующего

	paused  chan struct{}
	release chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{
		EventStore: memory.New(repository.Options{}),
		paused:     make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *pausingStore) ListMessages(ctx context.Context, room string) ([]domain.Message, error) {
	msgs, err := s.EventStore.ListMessages(ctx, room)
	if s.pauseList.CompareAndSwap(true, false) {
		close(s.paused)
		<-s.release
	}
	return msgs, err
}

func (s *pausingStore) Vote(ctx context.Context, pollID, author, option string) (*domain.Poll, error) {
	p, err := s.EventStore.Vote(ctx, pollID, author, option)
	if s.pauseVote.CompareAndSwap(author, "") {
		close(s.paused)
		<-s.release
	}
	return p, err
}

func feedOf(t *testing.T, c *recConn) *feed.Feed {
	t.Helper()
	f := feed.New()
	for _, m := range c.all() {
		raw, err := json.Marshal(m.Payload)
		require.NoError(t, err)
		require.NoError(t, f.Apply(m.Type, raw))
	}
	return f
}

func goDo(h *harness, t *testing.T, c *recConn, typ string, payload any) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.do(t, c, typ, payload)
	}()
	return done
}

func closed(ch <-chan struct{}) func() bool {
	return func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}

// Сообщение, отправленное пока mark_seen читает историю, не стирается её снапшотом.
func TestMarkSeenSnapshotDoesNotEraseConcurrentSend(t *testing.T) {
	req := require.New(t)
	store := newPausingStore()
	h := newHarnessWithStore(store)

	alice, watcher := newRecConn("a"), newRecConn("w")
	h.join(t, alice, "r1", "alice")
	h.join(t, watcher, "r1", "watcher")
	h.do(t, alice, protocol.CmdSendMessage, protocol.SendMessagePayload{Room: "r1", Text: "first"})

	store.pauseList.Store(true)
	seen := goDo(h, t, alice, protocol.CmdMarkSeen, protocol.RoomPayload{Room: "r1"})
	<-store.paused

	sent := goDo(h, t, alice, protocol.CmdSendMessage, protocol.SendMessagePayload{Room: "r1", Text: "second"})
	req.Never(closed(sent), 50*time.Millisecond, 5*time.Millisecond, "send must wait for the room")

	close(store.release)
	<-seen
	<-sent

	server, err := store.EventStore.ListMessages(context.Background(), "r1")
	req.NoError(err)
	req.Len(server, 2)

	f := feedOf(t, watcher)
	req.Equal(2, f.Len())
	for i, ev := range f.Events() {
		req.Equal(server[i].ID, ev.ID())
		req.Equal(server[i].Text, ev.Message.Text)
	}
}

// Голоса по одному опросу рассылаются в порядке коммитов.
func TestConcurrentVotesPublishInCommitOrder(t *testing.T) {
	req := require.New(t)
	store := newPausingStore()
	h := newHarnessWithStore(store)

	alice, bob, watcher := newRecConn("a"), newRecConn("b"), newRecConn("w")
	h.join(t, alice, "r1", "alice")
	h.join(t, bob, "r1", "bob")
	h.join(t, watcher, "r1", "watcher")

	h.do(t, alice, protocol.CmdCreatePoll, protocol.CreatePollPayload{Room: "r1", Question: "Lunch?", Options: []string{"Pizza", "Salad"}})
	pollID := pollOf(t, alice.last(t)).ID

	store.pauseVote.Store("alice")
	first := goDo(h, t, alice, protocol.CmdVotePoll, protocol.VotePollPayload{PollID: pollID, Option: "Pizza", Room: "r1"})
	<-store.paused

	second := goDo(h, t, bob, protocol.CmdVotePoll, protocol.VotePollPayload{PollID: pollID, Option: "Salad", Room: "r1"})
	req.Never(closed(second), 50*time.Millisecond, 5*time.Millisecond, "vote must wait for the poll")

	close(store.release)
	<-first
	<-second

	polls, err := store.EventStore.ListPolls(context.Background(), "r1")
	req.NoError(err)
	req.Len(polls, 1)
	req.Equal(2, polls[0].TotalVotes())

	var totals []int
	for _, m := range watcher.all() {
		if m.Type == protocol.TypePollUpdated {
			totals = append(totals, pollOf(t, m).TotalVotes())
		}
	}
	req.Equal([]int{1, 2}, totals)

	got := feedOf(t, watcher).Events()
	req.Len(got, 1)
	req.Equal(polls[0].Options, got[0].Poll.Options)
}
