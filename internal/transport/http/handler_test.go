package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/protocol"
	"github.com/cwrk-planet/feed-service/internal/memory"
	"github.com/cwrk-planet/feed-service/internal/mocks"
	"github.com/cwrk-planet/feed-service/internal/repository"
	"github.com/cwrk-planet/feed-service/internal/repository/storetest"
	"github.com/cwrk-planet/feed-service/internal/service"
	feedhttp "github.com/cwrk-planet/feed-service/internal/transport/http"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingPublisher struct {
	rooms  []string
	msgs   []protocol.Message
	locked []string
	held   bool
}

func (p *recordingPublisher) LockRoom(room string) func() {
	p.locked = append(p.locked, room)
	p.held = true
	return func() { p.held = false }
}

func (p *recordingPublisher) Publish(room string, msg protocol.Message) int {
	if !p.held {
		panic("publish outside of room lock")
	}
	p.rooms = append(p.rooms, room)
	p.msgs = append(p.msgs, msg)
	return 1
}

func newRouter(t *testing.T, store repository.EventStore) (http.Handler, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	chat := service.NewChatService(store, service.DefaultLimits())
	polls := service.NewPollService(store, service.DefaultLimits())
	return feedhttp.NewRouter(feedhttp.NewHandler(chat, polls, pub), nil, time.Second), pub
}

func memStore() repository.EventStore {
	return memory.New(repository.Options{Now: storetest.NewClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)).Now})
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostMessage_PersistsAndPublishes(t *testing.T) {
	req := require.New(t)
	store := memStore()
	h, pub := newRouter(t, store)

	rec := do(t, h, http.MethodPost, "/messages", feedhttp.PostMessageRequest{Room: "r1", Username: "alice", Text: "hi"})
	req.Equal(http.StatusCreated, rec.Code)

	var m domain.Message
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &m))
	req.Equal("hi", m.Text)
	req.Equal([]string{"r1"}, pub.rooms)
	req.Equal([]string{"r1"}, pub.locked)
	req.False(pub.held)
	req.Equal(protocol.TypeReceiveMessage, pub.msgs[0].Type)

	rec = do(t, h, http.MethodGet, "/rooms/r1/messages", nil)
	req.Equal(http.StatusOK, rec.Code)
	var list []domain.Message
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	req.Len(list, 1)
	req.Equal(m.ID, list[0].ID)
}

func TestPostMessage_Validation(t *testing.T) {
	h, pub := newRouter(t, memStore())

	rec := do(t, h, http.MethodPost, "/messages", feedhttp.PostMessageRequest{Room: "r1", Username: "alice", Text: "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"text is required"}`, rec.Body.String())
	require.Empty(t, pub.msgs)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMessages_EmptyRoomIsEmptyArray(t *testing.T) {
	h, _ := newRouter(t, memStore())
	for _, path := range []string{"/rooms/nowhere/messages", "/rooms/nowhere/polls", "/rooms/nowhere/history"} {
		rec := do(t, h, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.JSONEq(t, `[]`, rec.Body.String(), path)
	}
}

func TestGetMessages_Paginated(t *testing.T) {
	req := require.New(t)
	store := memStore()
	h, _ := newRouter(t, store)
	for i := range 3 {
		_, err := store.AppendMessage(context.Background(), "r1", "alice", fmt.Sprintf("m%d", i))
		req.NoError(err)
	}

	rec := do(t, h, http.MethodGet, "/rooms/r1/messages?limit=2", nil)
	req.Equal(http.StatusOK, rec.Code)
	next := rec.Header().Get(feedhttp.HeaderNextCursor)
	req.NotEmpty(next)

	rec = do(t, h, http.MethodGet, "/rooms/r1/messages?limit=2&cursor="+next, nil)
	var page []domain.Message
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &page))
	req.Len(page, 1)
	req.Equal("m2", page[0].Text)
	req.Empty(rec.Header().Get(feedhttp.HeaderNextCursor))

	rec = do(t, h, http.MethodGet, "/rooms/r1/messages?cursor=@@", nil)
	req.Equal(http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/rooms/r1/messages?limit=ten", nil)
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestGetHistory_Tagged(t *testing.T) {
	req := require.New(t)
	store := memStore()
	h, _ := newRouter(t, store)
	ctx := context.Background()

	_, err := store.AppendMessage(ctx, "r1", "alice", "hi")
	req.NoError(err)
	_, err = store.CreatePoll(ctx, "r1", "Lunch?", []string{"Pizza", "Salad"})
	req.NoError(err)

	rec := do(t, h, http.MethodGet, "/rooms/r1/history", nil)
	req.Equal(http.StatusOK, rec.Code)
	var events []map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &events))
	req.Len(events, 2)
	req.Equal("chat", events[0]["type"])
	req.Equal("poll", events[1]["type"])

	rec = do(t, h, http.MethodGet, "/rooms/r1/polls", nil)
	var polls []domain.Poll
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &polls))
	req.Len(polls, 1)
}

func TestStorageFailureHidesDetails(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEventStore(ctrl)
	store.EXPECT().ListMessages(gomock.Any(), "r1").Return(nil, errors.New("dial tcp 10.0.0.5:5432: refused"))

	h, _ := newRouter(t, store)
	rec := do(t, h, http.MethodGet, "/rooms/r1/messages", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestCORSAndHealth(t *testing.T) {
	h, _ := newRouter(t, memStore())

	req := httptest.NewRequest(http.MethodGet, "/rooms/r1/messages", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
