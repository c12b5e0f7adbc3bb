package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type EventKind string

const (
	KindChat EventKind = "chat"
	KindPoll EventKind = "poll"
)

// Event - элемент общей ленты комнаты: ровно одно из Message / Poll.
// Порядок ленты задаётся CreatedAt, который не меняется при редактировании.
type Event struct {
	Kind    EventKind
	Message *Message
	Poll    *Poll
}

func ChatEvent(m Message) Event { return Event{Kind: KindChat, Message: &m} }
func PollEvent(p Poll) Event    { return Event{Kind: KindPoll, Poll: &p} }

func (e Event) ID() string {
	switch e.Kind {
	case KindChat:
		return e.Message.ID
	case KindPoll:
		return e.Poll.ID
	}
	return ""
}

func (e Event) Room() string {
	switch e.Kind {
	case KindChat:
		return e.Message.Room
	case KindPoll:
		return e.Poll.Room
	}
	return ""
}

func (e Event) CreatedAt() time.Time {
	switch e.Kind {
	case KindChat:
		return e.Message.CreatedAt
	case KindPoll:
		return e.Poll.CreatedAt
	}
	return time.Time{}
}

// Clone - глубокая копия, чтобы локальная лента не делила слайсы с источником.
func (e Event) Clone() Event {
	switch e.Kind {
	case KindChat:
		m := e.Message.Clone()
		e.Message = &m
	case KindPoll:
		p := e.Poll.Clone()
		e.Poll = &p
	}
	return e
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindChat:
		return json.Marshal(struct {
			Type EventKind `json:"type"`
			*Message
		}{e.Kind, e.Message})
	case KindPoll:
		return json.Marshal(struct {
			Type EventKind `json:"type"`
			*Poll
		}{e.Kind, e.Poll})
	}
	return nil, fmt.Errorf("unknown event kind %q", e.Kind)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type EventKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case KindChat:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*e = ChatEvent(m)
	case KindPoll:
		var p Poll
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*e = PollEvent(p)
	default:
		return fmt.Errorf("unknown event kind %q", head.Type)
	}
	return nil
}

// SortEvents - стабильная сортировка по времени создания.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt().Before(events[j].CreatedAt())
	})
}

// MergeTimeline склеивает сообщения и опросы в одну ленту.
// При равном времени сообщение идёт раньше опроса.
func MergeTimeline(messages []Message, polls []Poll) []Event {
	out := make([]Event, 0, len(messages)+len(polls))
	for _, m := range messages {
		out = append(out, ChatEvent(m))
	}
	for _, p := range polls {
		out = append(out, PollEvent(p))
	}
	SortEvents(out)
	return out
}
