package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/repository"

	"github.com/jackc/pgx/v5"
)

type MessageRepository struct {
	q    querier
	opts repository.Options
}

func NewMessageRepository(q querier, opts repository.Options) *MessageRepository {
	return &MessageRepository{q: q, opts: opts.WithDefaults()}
}

func (r *MessageRepository) Append(ctx context.Context, room, author, text string) (*domain.Message, error) {
	now := r.opts.Now()
	m := domain.Message{
		ID:        r.opts.NewID(),
		Room:      room,
		Username:  author,
		Text:      text,
		Timestamp: r.opts.DisplayTime(now),
		SeenBy:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.q.Exec(ctx, QueryInsertMessage,
		m.ID, m.Room, m.Username, m.Text, m.Timestamp, m.SeenBy, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &m, nil
}

func (r *MessageRepository) ListByRoom(ctx context.Context, room string) ([]domain.Message, error) {
	rows, err := r.q.Query(ctx, QueryListMessagesByRoom, room)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, 32)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MessageRepository) Edit(ctx context.Context, id, author, newText string) (*domain.Message, error) {
	now := r.opts.Now()
	m, err := scanMessage(r.q.QueryRow(ctx, QueryUpdateMessageByAuthor,
		id, author, newText, r.opts.DisplayTime(now), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrForbidden(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id, author string) (*domain.Message, error) {
	m, err := scanMessage(r.q.QueryRow(ctx, QueryDeleteMessageByAuthor, id, author))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrForbidden(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) MarkSeen(ctx context.Context, room, author string) (int, error) {
	tag, err := r.q.Exec(ctx, QueryMarkSeen, room, author)
	if err != nil {
		return 0, mapPgError(err)
	}
	return int(tag.RowsAffected()), nil
}

// missOrForbidden - условный UPDATE/DELETE ничего не задел: либо записи нет, либо автор другой.
func (r *MessageRepository) missOrForbidden(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRow(ctx, QueryMessageExists, id).Scan(&exists); err != nil {
		return mapPgError(err)
	}
	if exists {
		return domain.ErrUnauthorized
	}
	return domain.ErrMessageNotFound
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.Room, &m.Username, &m.Text, &m.Timestamp, &m.SeenBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, mapPgError(err)
	}
	if m.SeenBy == nil {
		m.SeenBy = []string{}
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}
