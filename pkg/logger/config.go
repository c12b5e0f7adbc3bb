package logger

import (
	"io"
	"log/slog"
	"time"
)

type Backend string

const (
	BackendStd Backend = "std" // text в dev, JSON в stage/prod
	BackendZap Backend = "zap" // slog поверх zap
)

type Config struct {
	// Метаданные, попадают в каждую запись
	Service    string
	Version    string
	InstanceID string

	// Управление выводом
	Level   slog.Level
	Env     Env
	Backend Backend // по умолчанию zap для stage/prod, std для dev
	Debug   bool
	Output  io.Writer // по умолчанию os.Stdout

	// Zap sampling
	SampleInitial    int
	SampleThereafter int
	SampleTick       time.Duration

	AddSource bool
}
