package ws

import (
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"
)

// Registry - кто, в какой комнате и через какое соединение.
//
// Дедупликация по соединению, а не по имени: имя не уникально.
// Registry сам никого не выселяет при join в другую комнату,
// это делает вызывающий (обработчик join_room сначала вызывает Leave).
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Conn                      // connID -> conn
	sessions map[string]map[string]domain.Session // connID -> room -> session
	rooms    map[string]map[string]struct{}       // room -> set of connIDs

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]Conn),
		sessions: make(map[string]map[string]domain.Session),
		rooms:    make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

func (r *Registry) Join(c Conn, room, identity string) domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := domain.Session{
		ConnID:   c.ID(),
		Room:     room,
		Identity: identity,
		JoinedAt: r.now(),
	}

	r.conns[c.ID()] = c

	bySession, ok := r.sessions[c.ID()]
	if !ok {
		bySession = make(map[string]domain.Session)
		r.sessions[c.ID()] = bySession
	}
	bySession[room] = s

	rs, ok := r.rooms[room]
	if !ok {
		rs = make(map[string]struct{})
		r.rooms[room] = rs
	}
	rs[c.ID()] = struct{}{}

	return s
}

// Leave удаляет все сессии соединения. Возвращает удалённые сессии.
func (r *Registry) Leave(connID string) []domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	bySession := r.sessions[connID]
	out := make([]domain.Session, 0, len(bySession))
	for room, s := range bySession {
		r.removeFromRoom(room, connID)
		out = append(out, s)
	}
	delete(r.sessions, connID)
	delete(r.conns, connID)
	return out
}

// LeaveRoom удаляет одну сессию; соединение остаётся известным, если есть другие.
func (r *Registry) LeaveRoom(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	bySession, ok := r.sessions[connID]
	if !ok {
		return false
	}
	if _, ok := bySession[room]; !ok {
		return false
	}
	delete(bySession, room)
	r.removeFromRoom(room, connID)
	if len(bySession) == 0 {
		delete(r.sessions, connID)
		delete(r.conns, connID)
	}
	return true
}

// MembersOf - снапшот соединений комнаты; безопасно итерировать без блокировки.
func (r *Registry) MembersOf(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs := r.rooms[room]
	out := make([]Conn, 0, len(rs))
	for id := range rs {
		out = append(out, r.conns[id])
	}
	return out
}

// Sessions - снапшот сессий комнаты по времени входа.
func (r *Registry) Sessions(room string) []domain.Session {
	r.mu.RLock()
	out := make([]domain.Session, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, r.sessions[id][room])
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ConnID < out[j].ConnID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (r *Registry) SessionOf(connID, room string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID][room]
	return s, ok
}

// SessionsOf - все сессии соединения (обычно ноль или одна).
func (r *Registry) SessionsOf(connID string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Session, 0, len(r.sessions[connID]))
	for _, s := range r.sessions[connID] {
		out = append(out, s)
	}
	return out
}

func (r *Registry) removeFromRoom(room, connID string) {
	if rs, ok := r.rooms[room]; ok {
		delete(rs, connID)
		if len(rs) == 0 {
			delete(r.rooms, room)
		}
	}
}
