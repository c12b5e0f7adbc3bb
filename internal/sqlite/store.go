// Package sqlite - EventStore на встроенном SQLite (modernc.org/sqlite, без cgo).
//
// Пул ограничен одним соединением, поэтому все транзакции выполняются
// последовательно: проверка автора/голоса и запись внутри одной транзакции атомарны.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/repository"

	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	opts repository.Options
}

var _ repository.EventStore = (*Store)(nil)

func Open(path string, opts repository.Options) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, opts: opts.WithDefaults()}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS room_messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	room         TEXT NOT NULL,
	username     TEXT NOT NULL,
	text         TEXT NOT NULL,
	display_time TEXT NOT NULL,
	seen_by      TEXT NOT NULL DEFAULT '[]',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_room_messages_room ON room_messages(room, created_at, seq);

CREATE TABLE IF NOT EXISTS polls (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	room       TEXT NOT NULL,
	question   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_polls_room ON polls(room, created_at, seq);

CREATE TABLE IF NOT EXISTS poll_options (
	poll_id  TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	label    TEXT NOT NULL,
	votes    INTEGER NOT NULL DEFAULT 0,
	voted_by TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (poll_id, position),
	UNIQUE (poll_id, label)
);
`

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FetchHistory(ctx context.Context, room string) ([]domain.Event, error) {
	msgs, err := s.ListMessages(ctx, room)
	if err != nil {
		return nil, err
	}
	polls, err := s.ListPolls(ctx, room)
	if err != nil {
		return nil, err
	}
	return domain.MergeTimeline(msgs, polls), nil
}

func (s *Store) ListMessages(ctx context.Context, room string) ([]domain.Message, error) {
	return listMessages(ctx, s.db, room)
}

func (s *Store) AppendMessage(ctx context.Context, room, author, text string) (*domain.Message, error) {
	now := s.opts.Now()
	m := domain.Message{
		ID:        s.opts.NewID(),
		Room:      room,
		Username:  author,
		Text:      text,
		Timestamp: s.opts.DisplayTime(now),
		SeenBy:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_messages (id, room, username, text, display_time, seen_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '[]', ?, ?)`,
		m.ID, m.Room, m.Username, m.Text, m.Timestamp, m.CreatedAt.UnixNano(), m.UpdatedAt.UnixNano())
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) EditMessage(ctx context.Context, id, author, newText string) (*domain.Message, error) {
	var out *domain.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := getMessage(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Username != author {
			return domain.ErrUnauthorized
		}
		now := s.opts.Now()
		m.Text = newText
		m.Timestamp = s.opts.DisplayTime(now)
		m.UpdatedAt = now
		if _, err := tx.ExecContext(ctx,
			`UPDATE room_messages SET text = ?, display_time = ?, updated_at = ? WHERE id = ?`,
			m.Text, m.Timestamp, now.UnixNano(), id); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

func (s *Store) DeleteMessage(ctx context.Context, id, author string) (*domain.Message, error) {
	var out *domain.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := getMessage(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Username != author {
			return domain.ErrUnauthorized
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM room_messages WHERE id = ?`, id); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

func (s *Store) MarkSeen(ctx context.Context, room, author string) (int, error) {
	updated := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		msgs, err := listMessages(ctx, tx, room)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if m.SeenByUser(author) {
				continue
			}
			seen, err := json.Marshal(append(m.SeenBy, author))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE room_messages SET seen_by = ? WHERE id = ?`, string(seen), m.ID); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (s *Store) CreatePoll(ctx context.Context, room, question string, options []string) (*domain.Poll, error) {
	now := s.opts.Now()
	p := domain.Poll{
		ID:        s.opts.NewID(),
		Room:      room,
		Question:  question,
		Options:   domain.NewPollOptions(options),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO polls (id, room, question, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Room, p.Question, now.UnixNano(), now.UnixNano()); err != nil {
			return err
		}
		for i, label := range options {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO poll_options (poll_id, position, label) VALUES (?, ?, ?)`,
				p.ID, i, label); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPolls(ctx context.Context, room string) ([]domain.Poll, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room, question, created_at, updated_at
		FROM polls WHERE room = ? ORDER BY created_at ASC, seq ASC`, room)
	if err != nil {
		return nil, err
	}
	polls, err := scanPolls(rows)
	if err != nil {
		return nil, err
	}
	for i := range polls {
		if polls[i].Options, err = listOptions(ctx, s.db, polls[i].ID); err != nil {
			return nil, err
		}
	}
	return polls, nil
}

func (s *Store) Vote(ctx context.Context, pollID, author, option string) (*domain.Poll, error) {
	var out *domain.Poll
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getPoll(ctx, tx, pollID)
		if err != nil {
			return err
		}
		now := s.opts.Now()
		if err := p.ApplyVote(author, option, now); err != nil {
			return err
		}
		i, _ := p.Option(option)
		votedBy, err := json.Marshal(p.Options[i].VotedBy)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE poll_options SET votes = ?, voted_by = ? WHERE poll_id = ? AND position = ?`,
			p.Options[i].Votes, string(votedBy), pollID, i); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE polls SET updated_at = ? WHERE id = ?`, now.UnixNano(), pollID); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// --- helpers ---

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const messageColumns = `id, room, username, text, display_time, seen_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m         domain.Message
		seenBy    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&m.ID, &m.Room, &m.Username, &m.Text, &m.Timestamp, &seenBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(seenBy), &m.SeenBy); err != nil {
		return nil, err
	}
	if m.SeenBy == nil {
		m.SeenBy = []string{}
	}
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	return &m, nil
}

func getMessage(ctx context.Context, q queryer, id string) (*domain.Message, error) {
	m, err := scanMessage(q.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM room_messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	return m, err
}

func listMessages(ctx context.Context, q queryer, room string) ([]domain.Message, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM room_messages WHERE room = ? ORDER BY created_at ASC, seq ASC`, room)
	if err != nil {
		return nil, err
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

func scanPolls(rows *sql.Rows) ([]domain.Poll, error) {
	defer rows.Close()

	var out []domain.Poll
	for rows.Next() {
		var (
			p                    domain.Poll
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&p.ID, &p.Room, &p.Question, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = fromNanos(createdAt)
		p.UpdatedAt = fromNanos(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func getPoll(ctx context.Context, q queryer, id string) (*domain.Poll, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, room, question, created_at, updated_at FROM polls WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	polls, err := scanPolls(rows)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, domain.ErrPollNotFound
	}
	p := polls[0]
	if p.Options, err = listOptions(ctx, q, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func listOptions(ctx context.Context, q queryer, pollID string) ([]domain.PollOption, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT label, votes, voted_by FROM poll_options WHERE poll_id = ? ORDER BY position`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PollOption, 0, 4)
	for rows.Next() {
		var (
			o       domain.PollOption
			votedBy string
		)
		if err := rows.Scan(&o.Option, &o.Votes, &votedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(votedBy), &o.VotedBy); err != nil {
			return nil, err
		}
		if o.VotedBy == nil {
			o.VotedBy = []string{}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
