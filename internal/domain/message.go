package domain

import (
	"slices"
	"time"
)

// DisplayTimeLayout - формат «timestamp», который видит пользователь.
const DisplayTimeLayout = "3:04:05 PM"

type Message struct {
	ID        string    `json:"id" db:"id"`
	Room      string    `json:"room" db:"room"`
	Username  string    `json:"username" db:"username"`
	Text      string    `json:"text" db:"text"`
	Timestamp string    `json:"timestamp" db:"display_time"`
	SeenBy    []string  `json:"seenBy" db:"seen_by"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (m Message) SeenByUser(username string) bool {
	return slices.Contains(m.SeenBy, username)
}

// Clone - копия без общих слайсов.
func (m Message) Clone() Message {
	m.SeenBy = append(make([]string, 0, len(m.SeenBy)), m.SeenBy...)
	return m
}
