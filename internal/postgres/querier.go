package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/feed-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

/*
общий интерфейс для *pgxpool.Pool и pgx.Tx,
чтобы одни и те же чтения работали и внутри транзакции
*/
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var errUniqueViolation = errors.New("postgres: unique violation")

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 - unique violation
		if pgErr.Code == "23505" {
			return errors.Join(errUniqueViolation, err)
		}
	}
	return err
}

// optionErr: UNIQUE (poll_id, label) срабатывает на повторяющийся вариант.
func optionErr(err error) error {
	err = mapPgError(err)
	if errors.Is(err, errUniqueViolation) {
		return domain.Invalid("duplicate option")
	}
	return err
}
