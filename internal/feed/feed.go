// Package feed - локальная лента клиента: сообщения и опросы комнаты
// в порядке создания, собранные из push-событий сервера.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/protocol"

	"github.com/samber/lo"
)

var ErrUnknownEvent = errors.New("unknown event type")

type entry struct {
	ev  domain.Event
	seq uint64 // порядок прихода, разрешает равные createdAt
}

type pendingVote struct {
	option   string
	username string
}

// Feed упорядочена по createdAt; createdAt события не меняется после первой вставки,
// поэтому правка сообщения не сдвигает его в ленте.
type Feed struct {
	mu      sync.RWMutex
	entries []entry
	nextSeq uint64

	// оптимистичные голоса; перетираются первым авторитетным событием по опросу
	pending map[string]pendingVote
}

func New() *Feed {
	return &Feed{pending: make(map[string]pendingVote)}
}

// ReplaceAll - полный снапшот ленты.
func (f *Feed) ReplaceAll(events []domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	known := f.seqIndex(func(domain.EventKind) bool { return true })
	f.entries = f.entries[:0]
	for _, ev := range events {
		f.entries = append(f.entries, f.entryFor(ev, known))
	}
	f.sort()
}

// ReplaceKind заменяет события одного вида, остальные не трогает.
// chat_history не должна стирать опросы.
func (f *Feed) ReplaceKind(kind domain.EventKind, events []domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	known := f.seqIndex(func(k domain.EventKind) bool { return k == kind })
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.ev.Kind != kind {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	for _, ev := range events {
		if ev.Kind != kind {
			continue
		}
		f.entries = append(f.entries, f.entryFor(ev, known))
	}
	f.sort()
}

// Upsert вставляет новое событие на своё место или обновляет существующее,
// сохраняя его исходный createdAt и позицию. Снапшот опроса старше уже
// показанного отбрасывается.
func (f *Feed) Upsert(ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if i := f.indexOf(ev.Kind, ev.ID()); i >= 0 {
		if olderPoll(ev, f.entries[i].ev) {
			return
		}
		f.settle(ev)
		ev = ev.Clone()
		keepCreatedAt(&ev, f.entries[i].ev.CreatedAt())
		f.entries[i].ev = ev
		return
	}

	f.settle(ev)
	e := entry{ev: ev.Clone(), seq: f.seq()}
	at := sort.Search(len(f.entries), func(i int) bool {
		return less(e, f.entries[i])
	})
	f.entries = append(f.entries, entry{})
	copy(f.entries[at+1:], f.entries[at:])
	f.entries[at] = e
}

// Fields - изменяемые поля; nil означает «не трогать».
type Fields struct {
	Text      *string
	Timestamp *string
	SeenBy    []string
	Options   []domain.PollOption
}

// Patch меняет только заданные поля события.
func (f *Feed) Patch(kind domain.EventKind, id string, fields Fields) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.indexOf(kind, id)
	if i < 0 {
		return false
	}
	ev := &f.entries[i].ev
	switch kind {
	case domain.KindChat:
		if fields.Text != nil {
			ev.Message.Text = *fields.Text
		}
		if fields.Timestamp != nil {
			ev.Message.Timestamp = *fields.Timestamp
		}
		if fields.SeenBy != nil {
			ev.Message.SeenBy = append([]string(nil), fields.SeenBy...)
		}
	case domain.KindPoll:
		if fields.Options != nil {
			p := domain.Poll{Options: fields.Options}.Clone()
			ev.Poll.Options = p.Options
			delete(f.pending, id)
		}
	}
	return true
}

func (f *Feed) Remove(kind domain.EventKind, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.indexOf(kind, id)
	if i < 0 {
		return false
	}
	f.entries = append(f.entries[:i], f.entries[i+1:]...)
	return true
}

// Events - копия ленты; вызывающий может её менять.
func (f *Feed) Events() []domain.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]domain.Event, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.ev.Clone()
	}
	return out
}

func (f *Feed) IndexOf(kind domain.EventKind, id string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.indexOf(kind, id)
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// MarkVotePending - локально считаем, что username уже проголосовал,
// пока не придёт poll_updated или error по этому опросу.
func (f *Feed) MarkVotePending(pollID, username, option string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[pollID] = pendingVote{option: option, username: username}
}

func (f *Feed) PendingVote(pollID string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.pending[pollID]
	return v.option, ok
}

// HasVoted учитывает и авторитетный votedBy, и оптимистичный голос.
func (f *Feed) HasVoted(pollID, username string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if v, ok := f.pending[pollID]; ok && v.username == username {
		return true
	}
	i := f.indexOf(domain.KindPoll, pollID)
	return i >= 0 && f.entries[i].ev.Poll.HasVoted(username)
}

// Apply разбирает событие протокола и применяет его к ленте.
func (f *Feed) Apply(eventType string, payload json.RawMessage) error {
	switch eventType {
	case protocol.TypeChatHistory:
		var msgs []domain.Message
		if err := json.Unmarshal(payload, &msgs); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		f.ReplaceKind(domain.KindChat, toEvents(msgs, domain.ChatEvent))
	case protocol.TypePollHistory:
		var polls []domain.Poll
		if err := json.Unmarshal(payload, &polls); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		f.ReplaceKind(domain.KindPoll, toEvents(polls, domain.PollEvent))
	case protocol.TypeReceiveMessage:
		var m domain.Message
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		f.Upsert(domain.ChatEvent(m))
	case protocol.TypeMessageUpdated:
		var p protocol.MessageUpdatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		f.Patch(domain.KindChat, p.MessageID, Fields{Text: &p.NewText, Timestamp: &p.Timestamp})
	case protocol.TypeMessageDeleted:
		var p protocol.MessageDeletedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		f.Remove(domain.KindChat, p.MessageID)
	case protocol.TypePollCreated, protocol.TypePollUpdated:
		var p domain.Poll
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		f.Upsert(domain.PollEvent(p))
	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		if p.Ref != "" {
			f.mu.Lock()
			delete(f.pending, p.Ref)
			f.mu.Unlock()
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
	return nil
}

// --- helpers (под f.mu) ---

func (f *Feed) indexOf(kind domain.EventKind, id string) int {
	for i, e := range f.entries {
		if e.ev.Kind == kind && e.ev.ID() == id {
			return i
		}
	}
	return -1
}

func (f *Feed) seq() uint64 {
	f.nextSeq++
	return f.nextSeq
}

type key struct {
	kind domain.EventKind
	id   string
}

type known struct {
	seq uint64
	ev  domain.Event
}

func (f *Feed) seqIndex(match func(domain.EventKind) bool) map[key]known {
	out := make(map[key]known, len(f.entries))
	for _, e := range f.entries {
		if match(e.ev.Kind) {
			out[key{e.ev.Kind, e.ev.ID()}] = known{seq: e.seq, ev: e.ev}
		}
	}
	return out
}

// entryFor сохраняет seq и createdAt уже известных событий
// и не откатывает опрос к более старому снапшоту.
func (f *Feed) entryFor(ev domain.Event, idx map[key]known) entry {
	k, ok := idx[key{ev.Kind, ev.ID()}]
	if ok && olderPoll(ev, k.ev) {
		return entry{ev: k.ev, seq: k.seq}
	}
	f.settle(ev)
	ev = ev.Clone()
	if ok {
		keepCreatedAt(&ev, k.ev.CreatedAt())
		return entry{ev: ev, seq: k.seq}
	}
	return entry{ev: ev, seq: f.seq()}
}

// olderPoll: голоса только прибавляются, поэтому снапшот с меньшим
// числом голосов отстаёт от показанного.
func olderPoll(incoming, held domain.Event) bool {
	return incoming.Kind == domain.KindPoll && held.Kind == domain.KindPoll &&
		incoming.Poll.TotalVotes() < held.Poll.TotalVotes()
}

// settle - авторитетный опрос снимает оптимистичный голос.
func (f *Feed) settle(ev domain.Event) {
	if ev.Kind == domain.KindPoll {
		delete(f.pending, ev.ID())
	}
}

func (f *Feed) sort() {
	sort.SliceStable(f.entries, func(i, j int) bool {
		return less(f.entries[i], f.entries[j])
	})
}

func less(a, b entry) bool {
	ta, tb := a.ev.CreatedAt(), b.ev.CreatedAt()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.seq < b.seq
}

func keepCreatedAt(ev *domain.Event, t time.Time) {
	switch ev.Kind {
	case domain.KindChat:
		ev.Message.CreatedAt = t
	case domain.KindPoll:
		ev.Poll.CreatedAt = t
	}
}

func toEvents[T any](items []T, wrap func(T) domain.Event) []domain.Event {
	return lo.Map(items, func(it T, _ int) domain.Event { return wrap(it) })
}
