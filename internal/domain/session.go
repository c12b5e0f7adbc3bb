package domain

import "time"

// Session - связка «соединение - комната - имя». Не сохраняется в БД.
type Session struct {
	ConnID   string
	Room     string
	Identity string
	JoinedAt time.Time
}
