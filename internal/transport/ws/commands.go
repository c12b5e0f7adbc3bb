package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/protocol"
	"github.com/cwrk-planet/feed-service/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ChatSvc interface {
	Send(ctx context.Context, room, author, text string) (*domain.Message, error)
	Edit(ctx context.Context, id, author, newText string) (*domain.Message, error)
	Delete(ctx context.Context, id, author string) (*domain.Message, error)
	MarkSeen(ctx context.Context, room, author string) (int, error)
	Messages(ctx context.Context, room string) ([]domain.Message, error)
}

type PollSvc interface {
	Create(ctx context.Context, room, question string, options []string) (*domain.Poll, error)
	Vote(ctx context.Context, pollID, author, option string) (*domain.Poll, error)
	List(ctx context.Context, room string) ([]domain.Poll, error)
}

type commandFunc func(ctx context.Context, c Conn, payload json.RawMessage) error

// Handler выполняет команды соединений: проверка, запись в хранилище, рассылка.
// Ошибка команды уходит только отправителю и не закрывает соединение.
type Handler struct {
	registry   *Registry
	dispatcher *Dispatcher
	chat       ChatSvc
	polls      PollSvc
	tracer     trace.Tracer

	commands map[string]commandFunc
}

func NewHandler(registry *Registry, dispatcher *Dispatcher, chat ChatSvc, polls PollSvc) *Handler {
	h := &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		chat:       chat,
		polls:      polls,
		tracer:     otel.Tracer("github.com/cwrk-planet/feed-service/internal/transport/ws"),
	}
	h.commands = map[string]commandFunc{
		protocol.CmdJoinRoom:      h.joinRoom,
		protocol.CmdLeaveRoom:     h.leaveRoom,
		protocol.CmdSendMessage:   h.sendMessage,
		protocol.CmdUpdateMessage: h.updateMessage,
		protocol.CmdDeleteMessage: h.deleteMessage,
		protocol.CmdMarkSeen:      h.markSeen,
		protocol.CmdCreatePoll:    h.createPoll,
		protocol.CmdVotePoll:      h.votePoll,
	}
	return h
}

// Handle выполняет одну команду. Паника ловится здесь же.
func (h *Handler) Handle(ctx context.Context, c Conn, env protocol.Envelope) {
	ctx, span := h.tracer.Start(ctx, "ws."+env.Type,
		trace.WithAttributes(
			attribute.String("ws.command", env.Type),
			attribute.String("ws.conn", c.ID()),
		))
	defer span.End()
	ctx = logger.WithConn(ctx, c.ID())

	err := h.run(ctx, c, env)
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attrs := append(logger.AttrsFromCtx(ctx),
		slog.String("cmd", env.Type),
		slog.Any("err", err),
	)
	level := slog.LevelWarn
	if errors.Is(err, domain.ErrPersistence) || errors.Is(err, errPanic) {
		level = slog.LevelError
	}
	slog.LogAttrs(ctx, level, "ws command failed", attrs...)

	_ = h.dispatcher.SendTo(c, protocol.Message{
		Type: protocol.TypeError,
		Payload: protocol.ErrorPayload{
			Message: domain.Reason(err),
			Command: env.Type,
			Ref:     refOf(err),
		},
	})
}

var errPanic = errors.New("command panicked")

func (h *Handler) run(ctx context.Context, c Conn, env protocol.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ws command panic", "cmd", env.Type, "conn", c.ID(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	fn, ok := h.commands[env.Type]
	if !ok {
		return domain.Invalid(fmt.Sprintf("unknown command %q", env.Type))
	}
	return fn(ctx, c, env.Payload)
}

// Disconnect - потеря соединения: только чистка реестра, без рассылки.
func (h *Handler) Disconnect(c Conn) {
	for _, s := range h.registry.Leave(c.ID()) {
		slog.Debug("ws session closed", "room", s.Room, "user", s.Identity, "conn", s.ConnID)
	}
}

func (h *Handler) joinRoom(ctx context.Context, c Conn, raw json.RawMessage) error {
	var p protocol.RoomPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	return h.Join(ctx, c, p.Room, p.Username)
}

// Join регистрирует сессию и отправляет историю только вошедшему:
// сначала chat_history, затем poll_history.
func (h *Handler) Join(ctx context.Context, c Conn, room, username string) error {
	room, username = strings.TrimSpace(room), strings.TrimSpace(username)
	if room == "" {
		return domain.Invalid("room is required")
	}
	if username == "" {
		return domain.Invalid("username is required")
	}

	// одна комната на соединение
	h.registry.Leave(c.ID())
	// регистрация до чтения истории: события после неё точно дойдут
	s := h.registry.Join(c, room, username)

	unlock := h.lockRoom(room)
	defer unlock()

	msgs, err := h.chat.Messages(ctx, room)
	if err != nil {
		h.registry.LeaveRoom(c.ID(), room)
		return err
	}
	polls, err := h.polls.List(ctx, room)
	if err != nil {
		h.registry.LeaveRoom(c.ID(), room)
		return err
	}

	slog.Info("ws joined", "room", s.Room, "user", s.Identity, "conn", s.ConnID)
	_ = h.dispatcher.SendTo(c, protocol.ChatHistory(msgs))
	_ = h.dispatcher.SendTo(c, protocol.PollHistory(polls))
	return nil
}

func (h *Handler) leaveRoom(_ context.Context, c Conn, raw json.RawMessage) error {
	var p protocol.RoomPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	room := strings.TrimSpace(p.Room)
	if room == "" {
		h.registry.Leave(c.ID())
		return nil
	}
	h.registry.LeaveRoom(c.ID(), room)
	return nil
}

func (h *Handler) sendMessage(ctx context.Context, c Conn, raw json.RawMessage) error {
	var p protocol.SendMessagePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	s, err := h.session(c, p.Room)
	if err != nil {
		return err
	}

	unlock := h.lockRoom(s.Room)
	defer unlock()

	msg, err := h.chat.Send(ctx, s.Room, s.Identity, p.Text)
	if err != nil {
		return err
	}
	h.dispatcher.Publish(msg.Room, protocol.ReceiveMessage(*msg))
	return nil
}

func (h *Handler) updateMessage(ctx context.Context, c Conn, raw json.RawMessage) error {
	var p protocol.UpdateMessagePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	s, err := h.session(c, p.Room)
	if err != nil {
		return withRef(err, p.MessageID)
	}

	unlock := h.lockRoom(s.Room)
	defer unlock()

	msg, err := h.chat.Edit(ctx, p.MessageID, s.Identity, p.NewText)
	if err != nil {
		return withRef(err, p.MessageID)
	}
	h.dispatcher.Publish(msg.Room, protocol.Message{
		Type: protocol.TypeMessageUpdated,
		Payload: protocol.MessageUpdatedPayload{
			MessageID: msg.ID,
			NewText:   msg.Text,
			Timestamp: msg.Timestamp,
		},
	})
	return nil
}

func (h *Handler) deleteMessage(ctx context.Context, c Conn, raw json.RawMessage) error {
	var p protocol.DeleteMessagePayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	s, err := h.session(c, p.Room)
	if err != nil {
		return withRef(err, p.MessageID)
	}

	unlock := h.lockRoom(s.Room)
	defer unlock()

	msg, err := h.chat.Delete(ctx, p.MessageID, s.Identity)
	if err != nil {
		return withRef(err, p.MessageID)
	}
	h.dispatcher.Publish(msg.Room, protocol.Message{
		Type:    protocol.TypeMessageDeleted,
		Payload: protocol.MessageDeletedPayload{MessageID: msg.ID},
	})
	return nil
}

// markSeen после изменения рассылает всей комнате полную chat_history.
// Снапшот читается и рассылается под блокировкой комнаты: новое сообщение
// не может проскочить между чтением и рассылкой.
func (h *Handler) markSeen(ctx context.Context, c Conn, raw json.RawMessage) error {
	var p protocol.RoomPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	s, err := h.session(c, p.Room)
	if err != nil {
		return err
	}

	unlock := h.lockRoom(s.Room)
	defer unlock()

	if _, err := h.chat.MarkSeen(ctx, s.Room, s.Identity); err != nil {
		return err
	}
	msgs, err := h.chat.Messages(ctx, s.Room)
	if err != nil {
		return err
	}
	h.dispatcher.Publish(s.Room, protocol.ChatHistory(msgs))
	return nil
}

func (h *Handler) createPoll(ctx context.Context, c Conn, raw json.RawMessage) error {
	var p protocol.CreatePollPayload
	if err := decode(raw, &p); err != nil {
		return err
	}

	unlock := h.lockRoom(strings.TrimSpace(p.Room))
	defer unlock()

	poll, err := h.polls.Create(ctx, p.Room, p.Question, p.Options)
	if err != nil {
		return err
	}
	h.dispatcher.Publish(poll.Room, protocol.Message{Type: protocol.TypePollCreated, Payload: *poll})
	return nil
}

func (h *Handler) votePoll(ctx context.Context, c Conn, raw json.RawMessage) error {
	var p protocol.VotePollPayload
	if err := decode(raw, &p); err != nil {
		return withRef(err, p.PollID)
	}

	// имя из сессии, если соединение в комнате; иначе из payload
	voter := p.Username
	if s, err := h.session(c, p.Room); err == nil {
		voter = s.Identity
	}

	unlock := h.dispatcher.lockPoll(p.PollID)
	defer unlock()

	poll, err := h.polls.Vote(ctx, p.PollID, voter, string(p.Option))
	if err != nil {
		return withRef(err, p.PollID)
	}
	h.dispatcher.Publish(poll.Room, protocol.Message{Type: protocol.TypePollUpdated, Payload: *poll})
	return nil
}

// lockRoom: запись в хранилище и рассылка по комнате идут под одной блокировкой,
// иначе клиенты получают события не в порядке коммитов.
func (h *Handler) lockRoom(room string) func() {
	return h.dispatcher.LockRoom(room)
}

// session ищет сессию соединения в комнате. Пустая room - единственная сессия.
func (h *Handler) session(c Conn, room string) (domain.Session, error) {
	room = strings.TrimSpace(room)
	if room != "" {
		if s, ok := h.registry.SessionOf(c.ID(), room); ok {
			return s, nil
		}
		return domain.Session{}, domain.ErrNotInRoom
	}
	if all := h.registry.SessionsOf(c.ID()); len(all) == 1 {
		return all[0], nil
	}
	return domain.Session{}, domain.ErrNotInRoom
}

// --- helpers ---

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return domain.Invalid("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.Invalid("malformed payload: " + err.Error())
	}
	return nil
}

type refError struct {
	err error
	ref string
}

func (e *refError) Error() string { return e.err.Error() }
func (e *refError) Unwrap() error { return e.err }

// withRef привязывает к ошибке id сущности, чтобы клиент откатил оптимистичное состояние.
func withRef(err error, ref string) error {
	if err == nil || ref == "" {
		return err
	}
	return &refError{err: err, ref: ref}
}

func refOf(err error) string {
	var re *refError
	if errors.As(err, &re) {
		return re.ref
	}
	return ""
}
