package ws_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/protocol"
	"github.com/cwrk-planet/feed-service/internal/memory"
	"github.com/cwrk-planet/feed-service/internal/repository"
	"github.com/cwrk-planet/feed-service/internal/repository/storetest"
	"github.com/cwrk-planet/feed-service/internal/service"
	"github.com/cwrk-planet/feed-service/internal/transport/ws"

	"github.com/stretchr/testify/require"
)

// recConn запоминает всё, что ему отправили.
type recConn struct {
	id string

	mu   sync.Mutex
	msgs []protocol.Message
}

func newRecConn(id string) *recConn { return &recConn{id: id} }

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recConn) Close() error { return nil }

func (c *recConn) all() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.msgs...)
}

func (c *recConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

func (c *recConn) types() []string {
	var out []string
	for _, m := range c.all() {
		out = append(out, m.Type)
	}
	return out
}

func (c *recConn) last(t *testing.T) protocol.Message {
	t.Helper()
	all := c.all()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

type harness struct {
	handler  *ws.Handler
	registry *ws.Registry
	store    repository.EventStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New(repository.Options{
		Now: storetest.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)).Now,
	})
	return newHarnessWithStore(store)
}

func newHarnessWithStore(store repository.EventStore) *harness {
	reg := ws.NewRegistry()
	h := ws.NewHandler(reg, ws.NewDispatcher(reg),
		service.NewChatService(store, service.DefaultLimits()),
		service.NewPollService(store, service.DefaultLimits()),
	)
	return &harness{handler: h, registry: reg, store: store}
}

func (h *harness) do(t *testing.T, c ws.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h.handler.Handle(context.Background(), c, protocol.Envelope{Type: typ, Payload: raw})
}

func (h *harness) join(t *testing.T, c *recConn, room, user string) {
	t.Helper()
	h.do(t, c, protocol.CmdJoinRoom, protocol.RoomPayload{Room: room, Username: user})
	require.Equal(t, []string{protocol.TypeChatHistory, protocol.TypePollHistory}, c.types())
	c.reset()
}

func errorOf(t *testing.T, msg protocol.Message) protocol.ErrorPayload {
	t.Helper()
	require.Equal(t, protocol.TypeError, msg.Type)
	p, ok := msg.Payload.(protocol.ErrorPayload)
	require.True(t, ok)
	return p
}

func messageOf(t *testing.T, msg protocol.Message) domain.Message {
	t.Helper()
	p, ok := msg.Payload.(domain.Message)
	require.True(t, ok, "payload %T", msg.Payload)
	return p
}

func pollOf(t *testing.T, msg protocol.Message) domain.Poll {
	t.Helper()
	p, ok := msg.Payload.(domain.Poll)
	require.True(t, ok, "payload %T", msg.Payload)
	return p
}
