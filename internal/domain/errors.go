package domain

import "errors"

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMessageNotFound = errors.New("message not found")
	ErrPollNotFound    = errors.New("poll not found")
	ErrOptionNotFound  = errors.New("option not found")
	ErrVoteConflict    = errors.New("you have already voted on this poll")
	ErrPersistence     = errors.New("storage unavailable")
	ErrNotInRoom       = errors.New("connection has not joined the room")
)

// IsNotFound - сообщение/опрос/вариант не найден.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrPollNotFound) ||
		errors.Is(err, ErrOptionNotFound)
}

// Reason - человекочитаемая причина для события error.
// Детали ошибок хранилища наружу не отдаём.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPersistence):
		return "Something went wrong, please try again."
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrVoteConflict),
		errors.Is(err, ErrNotInRoom),
		IsNotFound(err):
		return err.Error()
	default:
		return "Something went wrong, please try again."
	}
}

// Invalid оборачивает ErrValidation с пояснением.
func Invalid(msg string) error {
	return &validationError{msg: msg}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return ErrValidation }
