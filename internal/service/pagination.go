package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
)

var ErrInvalidCursor = errors.New("invalid cursor")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func EncodeCursor(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidCursor, err)
	}
	return &c, nil
}

// MessagesPage - страница сообщений по возрастанию createdAt.
// Пустой nextCursor означает, что дальше ничего нет.
func (s *ChatService) MessagesPage(ctx context.Context, room string, limit int, cursor string) ([]domain.Message, string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", errors.Join(domain.ErrValidation, err)
	}

	msgs, err := s.Messages(ctx, room)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if after != nil {
		start = startAfter(msgs, *after)
	}
	end := min(start+limit, len(msgs))
	page := msgs[start:end]

	next := ""
	if end < len(msgs) && len(page) > 0 {
		last := page[len(page)-1]
		next, err = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return nil, "", err
		}
	}
	return page, next, nil
}

// startAfter ищет позицию за курсором; если сообщение удалено - по времени.
func startAfter(msgs []domain.Message, c Cursor) int {
	for i, m := range msgs {
		if m.ID == c.ID {
			return i + 1
		}
	}
	for i, m := range msgs {
		if m.CreatedAt.After(c.CreatedAt) {
			return i
		}
	}
	return len(msgs)
}
