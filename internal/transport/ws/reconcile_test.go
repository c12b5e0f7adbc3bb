package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/protocol"
	"github.com/cwrk-planet/feed-service/internal/feed"

	"github.com/stretchr/testify/require"
)

// Лента наблюдателя после всех событий совпадает с историей сервера.
func TestFeedConvergesToServerHistory(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			req := require.New(t)
			h := newHarness(t)
			rnd := rand.New(rand.NewPCG(seed, seed))

			users := []*recConn{newRecConn("a"), newRecConn("b"), newRecConn("c")}
			names := []string{"alice", "bob", "carol"}
			for i, c := range users {
				h.join(t, c, "r1", names[i])
			}
			watcher := newRecConn("w")
			h.do(t, watcher, protocol.CmdJoinRoom, protocol.RoomPayload{Room: "r1", Username: "watcher"})

			var msgIDs, pollIDs []string
			for step := 0; step < 60; step++ {
				i := rnd.IntN(len(users))
				c := users[i]
				switch op := rnd.IntN(6); {
				case op <= 1 || len(msgIDs) == 0:
					h.do(t, c, protocol.CmdSendMessage, protocol.SendMessagePayload{Room: "r1", Text: fmt.Sprintf("m%d", step)})
					if last := c.last(t); last.Type == protocol.TypeReceiveMessage {
						msgIDs = append(msgIDs, messageOf(t, last).ID)
					}
				case op == 2:
					id := msgIDs[rnd.IntN(len(msgIDs))]
					h.do(t, c, protocol.CmdUpdateMessage, protocol.UpdateMessagePayload{MessageID: id, NewText: fmt.Sprintf("e%d", step), Room: "r1"})
				case op == 3:
					id := msgIDs[rnd.IntN(len(msgIDs))]
					h.do(t, c, protocol.CmdDeleteMessage, protocol.DeleteMessagePayload{MessageID: id, Room: "r1"})
				case op == 4:
					if len(pollIDs) == 0 || rnd.IntN(3) == 0 {
						h.do(t, c, protocol.CmdCreatePoll, protocol.CreatePollPayload{Room: "r1", Question: "Q", Options: []string{"A", "B"}})
						pollIDs = append(pollIDs, pollOf(t, c.last(t)).ID)
						continue
					}
					id := pollIDs[rnd.IntN(len(pollIDs))]
					h.do(t, c, protocol.CmdVotePoll, map[string]any{"pollId": id, "option": []string{"A", "B"}[rnd.IntN(2)]})
				default:
					h.do(t, c, protocol.CmdMarkSeen, protocol.RoomPayload{Room: "r1"})
				}
			}

			f := feed.New()
			positions := map[string]int{}
			for _, m := range watcher.all() {
				raw, err := json.Marshal(m.Payload)
				req.NoError(err)
				req.NoError(f.Apply(m.Type, raw))

				// правка не двигает сообщение относительно соседей
				if m.Type == protocol.TypeMessageUpdated {
					id := m.Payload.(protocol.MessageUpdatedPayload).MessageID
					if pos, ok := positions[id]; ok {
						req.Equal(pos, f.IndexOf(domain.KindChat, id))
					}
				}
				for i, ev := range f.Events() {
					positions[ev.ID()] = i
				}
			}

			history, err := h.store.FetchHistory(context.Background(), "r1")
			req.NoError(err)
			want, err := json.Marshal(withoutUpdatedAt(history))
			req.NoError(err)
			got, err := json.Marshal(withoutUpdatedAt(f.Events()))
			req.NoError(err)
			req.JSONEq(string(want), string(got))
		})
	}
}

// message_updated не несёт updatedAt, поэтому сравниваем без него.
func withoutUpdatedAt(events []domain.Event) []domain.Event {
	out := make([]domain.Event, len(events))
	for i, ev := range events {
		ev = ev.Clone()
		switch ev.Kind {
		case domain.KindChat:
			ev.Message.UpdatedAt = time.Time{}
		case domain.KindPoll:
			ev.Poll.UpdatedAt = time.Time{}
		}
		out[i] = ev
	}
	return out
}
