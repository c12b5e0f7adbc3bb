package ws

import (
	"log/slog"

	"github.com/cwrk-planet/feed-service/internal/protocol"
)

// Dispatcher рассылает события участникам комнаты.
// Ошибка доставки одному участнику не мешает остальным.
type Dispatcher struct {
	registry *Registry
	locks    *keyedMutex
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry, locks: newKeyedMutex()}
}

// LockRoom упорядочивает «запись + рассылка» в комнате: пока блокировка взята,
// другие изменения этой комнаты не публикуются. Разные комнаты не мешают друг другу.
func (d *Dispatcher) LockRoom(room string) (unlock func()) {
	return d.locks.Lock("room:" + room)
}

// lockPoll - то же для голосов одного опроса.
func (d *Dispatcher) lockPoll(pollID string) (unlock func()) {
	return d.locks.Lock("poll:" + pollID)
}

// Publish отправляет msg всем, кто в комнате на момент вызова.
// Возвращает число успешных отправок.
func (d *Dispatcher) Publish(room string, msg protocol.Message) int {
	delivered := 0
	for _, c := range d.registry.MembersOf(room) {
		if err := c.Send(msg); err != nil {
			slog.Warn("ws publish failed", "room", room, "conn", c.ID(), "type", msg.Type, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo - только одному соединению (история при входе, ошибки).
func (d *Dispatcher) SendTo(c Conn, msg protocol.Message) error {
	if err := c.Send(msg); err != nil {
		slog.Warn("ws send failed", "conn", c.ID(), "type", msg.Type, "err", err)
		return err
	}
	return nil
}
