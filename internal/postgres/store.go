package postgres

import (
	"context"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/repository"
)

// Store - EventStore поверх двух репозиториев (room_messages, polls).
type Store struct {
	db       *DB
	messages *MessageRepository
	polls    *PollRepository
}

var _ repository.EventStore = (*Store)(nil)

func NewStore(db *DB, opts repository.Options) *Store {
	return &Store{
		db:       db,
		messages: NewMessageRepository(db.Pool, opts),
		polls:    NewPollRepository(db.Pool, opts),
	}
}

func (s *Store) FetchHistory(ctx context.Context, room string) ([]domain.Event, error) {
	msgs, err := s.messages.ListByRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	polls, err := s.polls.ListByRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	return domain.MergeTimeline(msgs, polls), nil
}

func (s *Store) ListMessages(ctx context.Context, room string) ([]domain.Message, error) {
	return s.messages.ListByRoom(ctx, room)
}

func (s *Store) ListPolls(ctx context.Context, room string) ([]domain.Poll, error) {
	return s.polls.ListByRoom(ctx, room)
}

func (s *Store) AppendMessage(ctx context.Context, room, author, text string) (*domain.Message, error) {
	return s.messages.Append(ctx, room, author, text)
}

func (s *Store) EditMessage(ctx context.Context, id, author, newText string) (*domain.Message, error) {
	return s.messages.Edit(ctx, id, author, newText)
}

func (s *Store) DeleteMessage(ctx context.Context, id, author string) (*domain.Message, error) {
	return s.messages.Delete(ctx, id, author)
}

func (s *Store) MarkSeen(ctx context.Context, room, author string) (int, error) {
	return s.messages.MarkSeen(ctx, room, author)
}

func (s *Store) CreatePoll(ctx context.Context, room, question string, options []string) (*domain.Poll, error) {
	return s.polls.Create(ctx, room, question, options)
}

func (s *Store) Vote(ctx context.Context, pollID, author, option string) (*domain.Poll, error) {
	return s.polls.Vote(ctx, pollID, author, option)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
