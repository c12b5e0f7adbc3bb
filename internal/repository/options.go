package repository

import (
	"time"

	"github.com/cwrk-planet/feed-service/internal/domain"

	"github.com/google/uuid"
)

// Options - общие для всех хранилищ генераторы времени и id.
type Options struct {
	Now   func() time.Time
	NewID func() string
	// Формат «timestamp», пусто - domain.DisplayTimeLayout
	TimeLayout string
}

func (o Options) WithDefaults() Options {
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.TimeLayout == "" {
		o.TimeLayout = domain.DisplayTimeLayout
	}
	return o
}

// DisplayTime - строка «timestamp» для сообщения в локальном времени сервера.
func (o Options) DisplayTime(t time.Time) string {
	layout := o.TimeLayout
	if layout == "" {
		layout = domain.DisplayTimeLayout
	}
	return t.Local().Format(layout)
}
