package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/protocol"
	"github.com/cwrk-planet/feed-service/internal/service"

	"github.com/go-chi/chi/v5"
)

type ChatSvc interface {
	Send(ctx context.Context, room, author, text string) (*domain.Message, error)
	Messages(ctx context.Context, room string) ([]domain.Message, error)
	MessagesPage(ctx context.Context, room string, limit int, cursor string) ([]domain.Message, string, error)
	History(ctx context.Context, room string) ([]domain.Event, error)
}

type PollSvc interface {
	List(ctx context.Context, room string) ([]domain.Poll, error)
}

// Publisher - рассылка живым участникам комнаты.
type Publisher interface {
	Publish(room string, msg protocol.Message) int
	LockRoom(room string) (unlock func())
}

const HeaderNextCursor = "X-Next-Cursor"

type Handler struct {
	chatSvc   ChatSvc
	pollSvc   PollSvc
	publisher Publisher
}

func NewHandler(chat ChatSvc, polls PollSvc, publisher Publisher) *Handler {
	return &Handler{
		chatSvc:   chat,
		pollSvc:   polls,
		publisher: publisher,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := mapErr(err)
	if status >= http.StatusInternalServerError {
		slog.Error("handler."+op+":", slog.Any("err", err))
	}
	writeJSON(w, status, ErrorResponse{Error: domain.Reason(err)})
}

func mapErr(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, service.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVoteConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GET /rooms/{room}/messages?limit=&cursor=
// Без limit отдаёт всю историю; следующий курсор - в заголовке X-Next-Cursor.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	q := r.URL.Query()

	if q.Get("limit") == "" && q.Get("cursor") == "" {
		msgs, err := h.chatSvc.Messages(r.Context(), room)
		if err != nil {
			writeError(w, "GetMessages", err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(msgs))
		return
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	msgs, next, err := h.chatSvc.MessagesPage(r.Context(), room, limit, q.Get("cursor"))
	if err != nil {
		writeError(w, "GetMessages", err)
		return
	}
	if next != "" {
		w.Header().Set(HeaderNextCursor, next)
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

// GET /rooms/{room}/polls
func (h *Handler) GetPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := h.pollSvc.List(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, "GetPolls", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(polls))
}

// GET /rooms/{room}/history - общая лента с полем type.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.chatSvc.History(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, "GetHistory", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// POST /messages
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("handler.PostMessage.Decode:", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	if h.publisher != nil {
		unlock := h.publisher.LockRoom(strings.TrimSpace(req.Room))
		defer unlock()
	}

	msg, err := h.chatSvc.Send(r.Context(), req.Room, req.Username, req.Text)
	if err != nil {
		writeError(w, "PostMessage", err)
		return
	}
	if h.publisher != nil {
		h.publisher.Publish(msg.Room, protocol.ReceiveMessage(*msg))
	}

	writeJSON(w, http.StatusCreated, msg)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
