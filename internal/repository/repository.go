//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=../mocks/mock_event_store.go -package=mocks

package repository

import (
	"context"

	"github.com/cwrk-planet/feed-service/internal/domain"
)

// EventStore - хранилище сообщений и опросов комнаты.
//
// Реализации обязаны выполнять EditMessage/DeleteMessage (проверка автора)
// и Vote (проверка «один голос на опрос») атомарно относительно конкурентных
// вызовов по той же сущности.
type EventStore interface {
	// История комнаты: сообщения и опросы по возрастанию CreatedAt.
	// Для несуществующей комнаты - пустой результат без ошибки.
	FetchHistory(ctx context.Context, room string) ([]domain.Event, error)
	ListMessages(ctx context.Context, room string) ([]domain.Message, error)
	ListPolls(ctx context.Context, room string) ([]domain.Poll, error)

	AppendMessage(ctx context.Context, room, author, text string) (*domain.Message, error)
	// ErrMessageNotFound | ErrUnauthorized
	EditMessage(ctx context.Context, id, author, newText string) (*domain.Message, error)
	// ErrMessageNotFound | ErrUnauthorized
	DeleteMessage(ctx context.Context, id, author string) (*domain.Message, error)
	// Добавляет author в seenBy всех сообщений комнаты, где его ещё нет.
	// Возвращает число изменённых сообщений.
	MarkSeen(ctx context.Context, room, author string) (int, error)

	CreatePoll(ctx context.Context, room, question string, options []string) (*domain.Poll, error)
	// ErrPollNotFound | ErrVoteConflict | ErrOptionNotFound
	Vote(ctx context.Context, pollID, author, option string) (*domain.Poll, error)

	Close() error
}
