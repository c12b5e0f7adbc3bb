package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PollRepository struct {
	db   *pgxpool.Pool
	opts repository.Options
}

func NewPollRepository(db *pgxpool.Pool, opts repository.Options) *PollRepository {
	return &PollRepository{db: db, opts: opts.WithDefaults()}
}

func (r *PollRepository) Create(ctx context.Context, room, question string, labels []string) (*domain.Poll, error) {
	now := r.opts.Now()
	p := domain.Poll{
		ID:        r.opts.NewID(),
		Room:      room,
		Question:  question,
		Options:   domain.NewPollOptions(labels),
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, QueryInsertPoll, p.ID, p.Room, p.Question, p.CreatedAt, p.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	for i, label := range labels {
		if _, err := tx.Exec(ctx, QueryInsertPollOption, p.ID, i, label); err != nil {
			return nil, optionErr(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PollRepository) ListByRoom(ctx context.Context, room string) ([]domain.Poll, error) {
	rows, err := r.db.Query(ctx, QueryListPollsByRoom, room)
	if err != nil {
		return nil, mapPgError(err)
	}
	polls, err := scanPolls(rows)
	if err != nil {
		return nil, err
	}
	if err := loadOptions(ctx, r.db, polls); err != nil {
		return nil, err
	}
	return polls, nil
}

// Vote - защищён от гонок: строка опроса блокируется до конца транзакции,
// поэтому проверка «уже голосовал» и запись голоса не разъезжаются.
func (r *PollRepository) Vote(ctx context.Context, pollID, author, label string) (*domain.Poll, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var id string
	if err := tx.QueryRow(ctx, QueryLockPoll, pollID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, mapPgError(err)
	}

	var voted bool
	if err := tx.QueryRow(ctx, QueryHasVoted, pollID, author).Scan(&voted); err != nil {
		return nil, mapPgError(err)
	}
	if voted {
		return nil, domain.ErrVoteConflict
	}

	tag, err := tx.Exec(ctx, QueryApplyVote, pollID, author, label)
	if err != nil {
		return nil, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrOptionNotFound
	}
	if _, err := tx.Exec(ctx, QueryTouchPoll, pollID, r.opts.Now()); err != nil {
		return nil, mapPgError(err)
	}

	p, err := getPoll(ctx, tx, pollID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func getPoll(ctx context.Context, q querier, id string) (*domain.Poll, error) {
	rows, err := q.Query(ctx, QueryGetPoll, id)
	if err != nil {
		return nil, mapPgError(err)
	}
	polls, err := scanPolls(rows)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, domain.ErrPollNotFound
	}
	if err := loadOptions(ctx, q, polls); err != nil {
		return nil, err
	}
	return &polls[0], nil
}

func scanPolls(rows pgx.Rows) ([]domain.Poll, error) {
	defer rows.Close()

	var out []domain.Poll
	for rows.Next() {
		var p domain.Poll
		if err := rows.Scan(&p.ID, &p.Room, &p.Question, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, mapPgError(err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		p.Options = []domain.PollOption{}
		out = append(out, p)
	}
	return out, rows.Err()
}

func loadOptions(ctx context.Context, q querier, polls []domain.Poll) error {
	if len(polls) == 0 {
		return nil
	}
	ids := make([]string, len(polls))
	byID := make(map[string]int, len(polls))
	for i, p := range polls {
		ids[i] = p.ID
		byID[p.ID] = i
	}

	rows, err := q.Query(ctx, QueryListPollOptions, ids)
	if err != nil {
		return mapPgError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pollID string
			o      domain.PollOption
		)
		if err := rows.Scan(&pollID, &o.Option, &o.Votes, &o.VotedBy); err != nil {
			return mapPgError(err)
		}
		if o.VotedBy == nil {
			o.VotedBy = []string{}
		}
		i := byID[pollID]
		polls[i].Options = append(polls[i].Options, o)
	}
	return rows.Err()
}
