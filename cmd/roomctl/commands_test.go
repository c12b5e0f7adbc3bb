package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/feed"
)

func TestParseLine(t *testing.T) {
	req := require.New(t)

	cmd, err := parseLine("  hello there ")
	req.NoError(err)
	req.Equal(command{kind: cmdSend, text: "hello there"}, cmd)

	cmd, err = parseLine("/edit abc12345 fixed typo")
	req.NoError(err)
	req.Equal(command{kind: cmdEdit, id: "abc12345", text: "fixed typo"}, cmd)

	cmd, err = parseLine("/poll Lunch? | Pizza | Sushi ")
	req.NoError(err)
	req.Equal(command{kind: cmdPoll, text: "Lunch?", options: []string{"Pizza", "Sushi"}}, cmd)

	cmd, err = parseLine("/vote p1 Ice cream")
	req.NoError(err)
	req.Equal(command{kind: cmdVote, id: "p1", text: "Ice cream"}, cmd)

	cmd, err = parseLine("/seen")
	req.NoError(err)
	req.Equal(cmdSeen, cmd.kind)

	_, err = parseLine("   ")
	req.ErrorIs(err, errEmpty)

	for _, bad := range []string{"/edit abc", "/delete", "/poll only question", "/vote p1", "/shout hi"} {
		_, err := parseLine(bad)
		req.Error(err, bad)
	}
}

func TestResolveID(t *testing.T) {
	req := require.New(t)
	events := []domain.Event{
		domain.ChatEvent(domain.Message{ID: "aaaa1111"}),
		domain.ChatEvent(domain.Message{ID: "aaaa2222"}),
		domain.PollEvent(domain.Poll{ID: "aaaa3333"}),
	}

	id, err := resolveID(events, domain.KindChat, "aaaa1")
	req.NoError(err)
	req.Equal("aaaa1111", id)

	id, err = resolveID(events, domain.KindPoll, "aaaa")
	req.NoError(err)
	req.Equal("aaaa3333", id)

	_, err = resolveID(events, domain.KindChat, "aaaa")
	req.ErrorContains(err, "ambiguous")

	_, err = resolveID(events, domain.KindChat, "zz")
	req.Error(err)
}

func TestRenderFeed(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := feed.New()
	f.ReplaceAll([]domain.Event{
		domain.ChatEvent(domain.Message{ID: "m-0000001", Username: "alice", Text: "Hi", Timestamp: "12:00:00 PM", CreatedAt: at}),
		domain.PollEvent(domain.Poll{
			ID:       "p-0000001",
			Question: "Lunch?",
			Options: []domain.PollOption{
				{Option: "Pizza", Votes: 1, VotedBy: []string{"bob"}},
				{Option: "Sushi", VotedBy: []string{}},
			},
			CreatedAt: at.Add(time.Second),
		}),
	})
	f.MarkVotePending("p-0000001", "alice", "Sushi")

	var buf bytes.Buffer
	renderFeed(&buf, f, "alice")
	out := buf.String()

	require.Contains(t, out, "m-000000")
	require.Contains(t, out, "alice")
	require.Contains(t, out, "Hi")
	require.Contains(t, out, "Lunch?")
	require.Contains(t, out, "Pizza (1)")
	require.Contains(t, out, "Sushi (0) ...")
	require.Less(t, bytes.Index(buf.Bytes(), []byte("Hi")), bytes.Index(buf.Bytes(), []byte("Lunch?")))
}
