// Package storetest - общий набор проверок для реализаций repository.EventStore.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/repository"

	"github.com/stretchr/testify/require"
)

// Factory возвращает пустое хранилище. Закрытие - забота фабрики (t.Cleanup).
type Factory func(t *testing.T, opts repository.Options) repository.EventStore

// Clock - детерминированные часы: каждый вызов +1ms.
type Clock struct {
	mu  sync.Mutex
	cur time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{cur: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Millisecond)
	return c.cur
}

func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s repository.EventStore)
	}{
		{"EmptyRoomHistory", testEmptyRoomHistory},
		{"HistoryOrdering", testHistoryOrdering},
		{"EditOwnership", testEditOwnership},
		{"DeleteOwnership", testDeleteOwnership},
		{"MarkSeenIdempotent", testMarkSeenIdempotent},
		{"PollVoting", testPollVoting},
		{"ConcurrentVoteOnce", testConcurrentVoteOnce},
		{"ConcurrentDelete", testConcurrentDelete},
		{"RoomIsolation", testRoomIsolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock := NewClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
			s := newStore(t, repository.Options{Now: clock.Now})
			tc.fn(t, s)
		})
	}
}

func testEmptyRoomHistory(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	history, err := s.FetchHistory(ctx, "nowhere")
	require.NoError(t, err)
	require.Empty(t, history)
}

func testHistoryOrdering(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	m1, err := s.AppendMessage(ctx, "r1", "alice", "first")
	require.NoError(t, err)
	p1, err := s.CreatePoll(ctx, "r1", "Lunch?", []string{"Pizza", "Salad"})
	require.NoError(t, err)
	m2, err := s.AppendMessage(ctx, "r1", "bob", "second")
	require.NoError(t, err)

	require.NotEmpty(t, m1.ID)
	require.NotEqual(t, m1.ID, m2.ID)
	require.Empty(t, m1.SeenBy)
	require.NotEmpty(t, m1.Timestamp)

	history, err := s.FetchHistory(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, []string{m1.ID, p1.ID, m2.ID}, ids(history))
	require.Equal(t, domain.KindChat, history[0].Kind)
	require.Equal(t, domain.KindPoll, history[1].Kind)
	require.Equal(t, "second", history[2].Message.Text)
}

func testEditOwnership(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	m, err := s.AppendMessage(ctx, "r1", "alice", "hi")
	require.NoError(t, err)

	_, err = s.EditMessage(ctx, m.ID, "bob", "hacked")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = s.EditMessage(ctx, "missing-id", "alice", "x")
	require.ErrorIs(t, err, domain.ErrMessageNotFound)

	msgs, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "hi", msgs[0].Text)

	edited, err := s.EditMessage(ctx, m.ID, "alice", "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", edited.Text)
	require.Equal(t, "alice", edited.Username)
	require.WithinDuration(t, m.CreatedAt, edited.CreatedAt, 0)
	require.True(t, edited.UpdatedAt.After(m.UpdatedAt))
}

func testDeleteOwnership(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	m, err := s.AppendMessage(ctx, "r1", "alice", "bye")
	require.NoError(t, err)

	_, err = s.DeleteMessage(ctx, m.ID, "bob")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	deleted, err := s.DeleteMessage(ctx, m.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, "r1", deleted.Room)

	_, err = s.DeleteMessage(ctx, m.ID, "bob")
	require.ErrorIs(t, err, domain.ErrMessageNotFound)
	_, err = s.EditMessage(ctx, m.ID, "alice", "again")
	require.ErrorIs(t, err, domain.ErrMessageNotFound)

	msgs, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func testMarkSeenIdempotent(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	_, err := s.AppendMessage(ctx, "r1", "alice", "one")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "r1", "alice", "two")
	require.NoError(t, err)

	n, err := s.MarkSeen(ctx, "r1", "bob")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	once, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)

	n, err = s.MarkSeen(ctx, "r1", "bob")
	require.NoError(t, err)
	require.Zero(t, n)
	twice, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)

	for i := range once {
		require.Equal(t, []string{"bob"}, once[i].SeenBy)
		require.Equal(t, once[i].SeenBy, twice[i].SeenBy)
	}

	n, err = s.MarkSeen(ctx, "r1", "carol")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	after, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "carol"}, after[0].SeenBy)
}

func testPollVoting(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	p, err := s.CreatePoll(ctx, "r1", "Lunch?", []string{"Pizza", "Salad"})
	require.NoError(t, err)
	require.Len(t, p.Options, 2)
	for _, o := range p.Options {
		require.Zero(t, o.Votes)
		require.Empty(t, o.VotedBy)
	}

	updated, err := s.Vote(ctx, p.ID, "bob", "Pizza")
	require.NoError(t, err)
	require.Equal(t, 1, updated.Options[0].Votes)
	require.Equal(t, []string{"bob"}, updated.Options[0].VotedBy)

	_, err = s.Vote(ctx, p.ID, "bob", "Salad")
	require.ErrorIs(t, err, domain.ErrVoteConflict)
	_, err = s.Vote(ctx, p.ID, "bob", "Pizza")
	require.ErrorIs(t, err, domain.ErrVoteConflict)
	_, err = s.Vote(ctx, p.ID, "alice", "Soup")
	require.ErrorIs(t, err, domain.ErrOptionNotFound)
	_, err = s.Vote(ctx, "missing-poll", "alice", "Pizza")
	require.ErrorIs(t, err, domain.ErrPollNotFound)

	polls, err := s.ListPolls(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, polls, 1)
	require.Equal(t, "Pizza", polls[0].Options[0].Option)
	require.Equal(t, 1, polls[0].Options[0].Votes)
	require.Equal(t, 0, polls[0].Options[1].Votes)
	for _, o := range polls[0].Options {
		require.Equal(t, o.Votes, len(o.VotedBy))
	}
}

func testConcurrentVoteOnce(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	p, err := s.CreatePoll(ctx, "r1", "Lunch?", []string{"Pizza", "Salad"})
	require.NoError(t, err)

	const attempts = 32
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
		unexpect  = make(chan error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			option := "Pizza"
			if i%2 == 1 {
				option = "Salad"
			}
			_, err := s.Vote(ctx, p.ID, "bob", option)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrVoteConflict):
				conflicts.Add(1)
			default:
				unexpect <- err
			}
		}(i)
	}
	close(start)
	wg.Wait()
	close(unexpect)

	for err := range unexpect {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, succeeded.Load())
	require.EqualValues(t, attempts-1, conflicts.Load())

	polls, err := s.ListPolls(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 1, polls[0].TotalVotes())
}

func testConcurrentDelete(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	m, err := s.AppendMessage(ctx, "r1", "alice", "once")
	require.NoError(t, err)

	const attempts = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		notFound  atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.DeleteMessage(ctx, m.ID, "alice")
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrMessageNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, succeeded.Load())
	require.EqualValues(t, attempts-1, notFound.Load())
}

func testRoomIsolation(t *testing.T, s repository.EventStore) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.AppendMessage(ctx, "r1", "alice", fmt.Sprintf("r1-%d", i))
		require.NoError(t, err)
	}
	_, err := s.AppendMessage(ctx, "r2", "bob", "r2-0")
	require.NoError(t, err)

	n, err := s.MarkSeen(ctx, "r2", "carol")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	r1, err := s.ListMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, r1, 3)
	for _, m := range r1 {
		require.Empty(t, m.SeenBy)
	}
}

func ids(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID())
	}
	return out
}
