package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/repository"
)

type ChatService struct {
	store  repository.EventStore
	limits Limits
}

func NewChatService(store repository.EventStore, limits Limits) *ChatService {
	return &ChatService{store: store, limits: limits.withDefaults()}
}

type sendInput struct {
	Room     string `json:"room" validate:"required"`
	Username string `json:"username" validate:"required"`
	Text     string `json:"text" validate:"required"`
}

type editInput struct {
	MessageID string `json:"messageId" validate:"required"`
	Username  string `json:"username" validate:"required"`
	Text      string `json:"newText" validate:"required"`
}

type ownerInput struct {
	MessageID string `json:"messageId" validate:"required"`
	Username  string `json:"username" validate:"required"`
}

type roomInput struct {
	Room     string `json:"room" validate:"required"`
	Username string `json:"username" validate:"required"`
}

func (s *ChatService) Send(ctx context.Context, room, author, text string) (*domain.Message, error) {
	in := sendInput{
		Room:     strings.TrimSpace(room),
		Username: strings.TrimSpace(author),
		Text:     strings.TrimSpace(text),
	}
	if err := check(in); err != nil {
		return nil, err
	}
	if err := s.checkLength(in.Text); err != nil {
		return nil, err
	}

	msg, err := s.store.AppendMessage(ctx, in.Room, in.Username, in.Text)
	if err != nil {
		return nil, storeErr("append message", err)
	}
	return msg, nil
}

// Edit меняет текст; createdAt и автор остаются прежними.
func (s *ChatService) Edit(ctx context.Context, id, author, newText string) (*domain.Message, error) {
	in := editInput{
		MessageID: strings.TrimSpace(id),
		Username:  strings.TrimSpace(author),
		Text:      strings.TrimSpace(newText),
	}
	if err := check(in); err != nil {
		return nil, err
	}
	if err := s.checkLength(in.Text); err != nil {
		return nil, err
	}

	msg, err := s.store.EditMessage(ctx, in.MessageID, in.Username, in.Text)
	if err != nil {
		return nil, storeErr("edit message", err)
	}
	return msg, nil
}

func (s *ChatService) Delete(ctx context.Context, id, author string) (*domain.Message, error) {
	in := ownerInput{
		MessageID: strings.TrimSpace(id),
		Username:  strings.TrimSpace(author),
	}
	if err := check(in); err != nil {
		return nil, err
	}

	msg, err := s.store.DeleteMessage(ctx, in.MessageID, in.Username)
	if err != nil {
		return nil, storeErr("delete message", err)
	}
	return msg, nil
}

// MarkSeen идемпотентна: повторный вызов ничего не меняет и возвращает 0.
func (s *ChatService) MarkSeen(ctx context.Context, room, author string) (int, error) {
	in := roomInput{
		Room:     strings.TrimSpace(room),
		Username: strings.TrimSpace(author),
	}
	if err := check(in); err != nil {
		return 0, err
	}

	n, err := s.store.MarkSeen(ctx, in.Room, in.Username)
	if err != nil {
		return 0, storeErr("mark seen", err)
	}
	return n, nil
}

func (s *ChatService) Messages(ctx context.Context, room string) ([]domain.Message, error) {
	msgs, err := s.store.ListMessages(ctx, strings.TrimSpace(room))
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	return msgs, nil
}

// History - сообщения и опросы комнаты в одной ленте.
func (s *ChatService) History(ctx context.Context, room string) ([]domain.Event, error) {
	events, err := s.store.FetchHistory(ctx, strings.TrimSpace(room))
	if err != nil {
		return nil, storeErr("fetch history", err)
	}
	return events, nil
}

func (s *ChatService) checkLength(text string) error {
	if utf8.RuneCountInString(text) > s.limits.MaxMessageLength {
		return domain.Invalid(fmt.Sprintf("text must be at most %d characters", s.limits.MaxMessageLength))
	}
	return nil
}
