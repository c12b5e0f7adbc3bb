// Package memory - EventStore в памяти процесса.
//
// Карта сущностей защищена общим RWMutex только на время поиска/вставки;
// проверка автора и «один голос» выполняются под мьютексом конкретной записи,
// поэтому операции над разными сообщениями и опросами идут параллельно.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/repository"
)

type messageRecord struct {
	mu      sync.Mutex
	msg     domain.Message
	deleted bool
}

type pollRecord struct {
	mu   sync.Mutex
	poll domain.Poll
}

type Store struct {
	opts repository.Options

	mu           sync.RWMutex
	messages     map[string]*messageRecord
	polls        map[string]*pollRecord
	roomMessages map[string][]*messageRecord
	roomPolls    map[string][]*pollRecord
}

var _ repository.EventStore = (*Store)(nil)

func New(opts repository.Options) *Store {
	return &Store{
		opts:         opts.WithDefaults(),
		messages:     make(map[string]*messageRecord),
		polls:        make(map[string]*pollRecord),
		roomMessages: make(map[string][]*messageRecord),
		roomPolls:    make(map[string][]*pollRecord),
	}
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

func (s *Store) ListMessages(_ context.Context, room string) ([]domain.Message, error) {
	s.mu.RLock()
	recs := slices.Clone(s.roomMessages[room])
	s.mu.RUnlock()

	out := make([]domain.Message, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.deleted {
			out = append(out, rec.msg.Clone())
		}
		rec.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPolls(_ context.Context, room string) ([]domain.Poll, error) {
	s.mu.RLock()
	recs := slices.Clone(s.roomPolls[room])
	s.mu.RUnlock()

	out := make([]domain.Poll, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.poll.Clone())
		rec.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, room, author, text string) (*domain.Message, error) {
	now := s.opts.Now()
	rec := &messageRecord{msg: domain.Message{
		ID:        s.opts.NewID(),
		Room:      room,
		Username:  author,
		Text:      text,
		Timestamp: s.opts.DisplayTime(now),
		SeenBy:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}}

	s.mu.Lock()
	s.messages[rec.msg.ID] = rec
	s.roomMessages[room] = append(s.roomMessages[room], rec)
	s.mu.Unlock()

	m := rec.msg.Clone()
	return &m, nil
}

func (s *Store) EditMessage(_ context.Context, id, author, newText string) (*domain.Message, error) {
	rec := s.message(id)
	if rec == nil {
		return nil, domain.ErrMessageNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.deleted {
		return nil, domain.ErrMessageNotFound
	}
	if rec.msg.Username != author {
		return nil, domain.ErrUnauthorized
	}
	now := s.opts.Now()
	rec.msg.Text = newText
	rec.msg.Timestamp = s.opts.DisplayTime(now)
	rec.msg.UpdatedAt = now

	m := rec.msg.Clone()
	return &m, nil
}

func (s *Store) DeleteMessage(_ context.Context, id, author string) (*domain.Message, error) {
	rec := s.message(id)
	if rec == nil {
		return nil, domain.ErrMessageNotFound
	}

	rec.mu.Lock()
	if rec.deleted {
		rec.mu.Unlock()
		return nil, domain.ErrMessageNotFound
	}
	if rec.msg.Username != author {
		rec.mu.Unlock()
		return nil, domain.ErrUnauthorized
	}
	rec.deleted = true
	m := rec.msg.Clone()
	rec.mu.Unlock()

	// запись уже помечена удалённой, чистим индексы без её мьютекса
	s.mu.Lock()
	delete(s.messages, id)
	s.roomMessages[m.Room] = slices.DeleteFunc(s.roomMessages[m.Room], func(r *messageRecord) bool {
		return r == rec
	})
	if len(s.roomMessages[m.Room]) == 0 {
		delete(s.roomMessages, m.Room)
	}
	s.mu.Unlock()

	return &m, nil
}

func (s *Store) MarkSeen(_ context.Context, room, author string) (int, error) {
	s.mu.RLock()
	recs := slices.Clone(s.roomMessages[room])
	s.mu.RUnlock()

	updated := 0
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.deleted && !rec.msg.SeenByUser(author) {
			rec.msg.SeenBy = append(rec.msg.SeenBy, author)
			updated++
		}
		rec.mu.Unlock()
	}
	return updated, nil
}

func (s *Store) CreatePoll(_ context.Context, room, question string, options []string) (*domain.Poll, error) {
	now := s.opts.Now()
	rec := &pollRecord{poll: domain.Poll{
		ID:        s.opts.NewID(),
		Room:      room,
		Question:  question,
		Options:   domain.NewPollOptions(options),
		CreatedAt: now,
		UpdatedAt: now,
	}}

	s.mu.Lock()
	s.polls[rec.poll.ID] = rec
	s.roomPolls[room] = append(s.roomPolls[room], rec)
	s.mu.Unlock()

	p := rec.poll.Clone()
	return &p, nil
}

func (s *Store) Vote(_ context.Context, pollID, author, option string) (*domain.Poll, error) {
	s.mu.RLock()
	rec := s.polls[pollID]
	s.mu.RUnlock()
	if rec == nil {
		return nil, domain.ErrPollNotFound
	}

	// проверка и запись под одним локом опроса
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := rec.poll.ApplyVote(author, option, s.opts.Now()); err != nil {
		return nil, err
	}
	p := rec.poll.Clone()
	return &p, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) message(id string) *messageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[id]
}
