package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/memory"
	"github.com/cwrk-planet/feed-service/internal/repository"
	"github.com/cwrk-planet/feed-service/internal/service"

	"github.com/stretchr/testify/require"
)

func newPolls() *service.PollService {
	return service.NewPollService(memory.New(repository.Options{}), service.DefaultLimits())
}

func TestPollService_CreateNormalizesOptions(t *testing.T) {
	req := require.New(t)
	polls := newPolls()

	p, err := polls.Create(context.Background(), "r1", " Lunch? ", []string{" Pizza ", "", "  ", "Salad"})
	req.NoError(err)
	req.Equal("Lunch?", p.Question)
	req.Len(p.Options, 2)
	req.Equal("Pizza", p.Options[0].Option)
	req.Equal("Salad", p.Options[1].Option)
	for _, o := range p.Options {
		req.Zero(o.Votes)
		req.Empty(o.VotedBy)
	}
}

func TestPollService_CreateValidation(t *testing.T) {
	polls := newPolls()
	many := make([]string, 11)
	for i := range many {
		many[i] = fmt.Sprintf("opt-%d", i)
	}

	cases := []struct {
		name     string
		question string
		options  []string
	}{
		{"empty question", " ", []string{"a", "b"}},
		{"one option", "q", []string{"a"}},
		{"blank options", "q", []string{"a", " "}},
		{"duplicates", "q", []string{"a", " a"}},
		{"too many", "q", many},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := polls.Create(context.Background(), "r1", tc.question, tc.options)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestPollService_VoteOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	polls := newPolls()

	p, err := polls.Create(ctx, "r1", "Lunch?", []string{"Pizza", "Salad"})
	req.NoError(err)

	updated, err := polls.Vote(ctx, p.ID, "bob", "Pizza")
	req.NoError(err)
	req.Equal(1, updated.Options[0].Votes)
	req.Equal([]string{"bob"}, updated.Options[0].VotedBy)

	_, err = polls.Vote(ctx, p.ID, "bob", "Salad")
	req.ErrorIs(err, domain.ErrVoteConflict)

	_, err = polls.Vote(ctx, p.ID, "carol", "Soup")
	req.ErrorIs(err, domain.ErrOptionNotFound)

	_, err = polls.Vote(ctx, "missing", "carol", "Pizza")
	req.ErrorIs(err, domain.ErrPollNotFound)

	list, err := polls.List(ctx, "r1")
	req.NoError(err)
	req.Len(list, 1)
	req.Equal(1, list[0].TotalVotes())
}

func TestPollService_ConcurrentVotersDifferentUsers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	polls := newPolls()

	p, err := polls.Create(ctx, "r1", "Lunch?", []string{"Pizza", "Salad"})
	req.NoError(err)

	const voters = 20
	var wg sync.WaitGroup
	for i := range voters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = polls.Vote(ctx, p.ID, fmt.Sprintf("user-%d", i), []string{"Pizza", "Salad"}[i%2])
		}()
	}
	wg.Wait()

	list, err := polls.List(ctx, "r1")
	req.NoError(err)
	req.Equal(voters, list[0].TotalVotes())
	for _, o := range list[0].Options {
		req.Equal(o.Votes, len(o.VotedBy))
	}
}
