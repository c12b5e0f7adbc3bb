// Package client - клиент сокета комнаты: команды на сервер,
// входящие события в локальную ленту feed.Feed.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/feed-service/internal/protocol"
	"github.com/cwrk-planet/feed-service/internal/feed"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Update - что изменилось в ленте; Err заполнен для события error.
type Update struct {
	Type string
	Err  *protocol.ErrorPayload
}

type Client struct {
	conn     *websocket.Conn
	feed     *feed.Feed
	room     string
	username string

	writeMu sync.Mutex
	updates chan Update
	done    chan struct{}
}

// Dial подключается к base (например ws://localhost:8080) и сразу входит в комнату.
func Dial(ctx context.Context, base, room, username string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	u.Path += "/ws/rooms/" + url.PathEscape(room)
	u.RawQuery = url.Values{"username": {username}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return &Client{
		conn:     conn,
		feed:     feed.New(),
		room:     room,
		username: username,
		updates:  make(chan Update, 64),
		done:     make(chan struct{}),
	}, nil
}

func (c *Client) Feed() *feed.Feed { return c.feed }
func (c *Client) Room() string { return c.room }
func (c *Client) Username() string { return c.username }
func (c *Client) Updates() <-chan Update { return c.updates }

// Run читает события до закрытия соединения или отмены ctx.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)
	defer close(c.done)

	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-c.done:
		}
	}()

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		if err := c.feed.Apply(env.Type, env.Payload); err != nil {
			slog.Debug("client apply failed", "type", env.Type, "err", err)
			continue
		}

		u := Update{Type: env.Type}
		if env.Type == protocol.TypeError {
			var p protocol.ErrorPayload
			if json.Unmarshal(env.Payload, &p) == nil {
				u.Err = &p
			}
		}
		select {
		case c.updates <- u:
		default:
			// никто не читает - лента всё равно актуальна
		}
	}
}

func (c *Client) Send(text string) error {
	return c.command(protocol.CmdSendMessage, protocol.SendMessagePayload{Room: c.room, Username: c.username, Text: text})
}

func (c *Client) Edit(messageID, newText string) error {
	return c.command(protocol.CmdUpdateMessage, protocol.UpdateMessagePayload{
		MessageID: messageID, NewText: newText, Room: c.room, Username: c.username,
	})
}

func (c *Client) Delete(messageID string) error {
	return c.command(protocol.CmdDeleteMessage, protocol.DeleteMessagePayload{MessageID: messageID, Room: c.room, Username: c.username})
}

func (c *Client) MarkSeen() error {
	return c.command(protocol.CmdMarkSeen, protocol.RoomPayload{Room: c.room, Username: c.username})
}

func (c *Client) CreatePoll(question string, options []string) error {
	return c.command(protocol.CmdCreatePoll, protocol.CreatePollPayload{Room: c.room, Question: question, Options: options})
}

var ErrAlreadyVoted = errors.New("already voted on this poll")

// Vote сразу помечает голос локально; сервер подтвердит или откатит.
func (c *Client) Vote(pollID, option string) error {
	if c.feed.HasVoted(pollID, c.username) {
		return ErrAlreadyVoted
	}
	c.feed.MarkVotePending(pollID, c.username, option)
	return c.command(protocol.CmdVotePoll, protocol.VotePollPayload{
		PollID: pollID, Option: protocol.VoteOption(option), Room: c.room, Username: c.username,
	})
}

func (c *Client) Leave() error {
	return c.command(protocol.CmdLeaveRoom, protocol.RoomPayload{Room: c.room, Username: c.username})
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) command(typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(protocol.Envelope{Type: typ, Payload: raw})
}
