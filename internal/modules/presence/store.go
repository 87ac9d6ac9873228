package presence

import (
	"context"
	"database/sql"

	"github.com/eskrenkovic/tql"
)

type Store interface {
	// SetOnline reports whether the flag actually changed.
	SetOnline(ctx context.Context, displayName string, online bool) (bool, error)
	ResetAll(ctx context.Context) error
}

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SetOnline(ctx context.Context, displayName string, online bool) (bool, error) {
	const stmt = `
		UPDATE
			users
		SET
			is_online = $2
		WHERE
			name = $1 AND is_online <> $2;`

	result, err := tql.Exec(ctx, s.db, stmt, displayName, online)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (s *PostgresStore) ResetAll(ctx context.Context) error {
	const stmt = `
		UPDATE
			users
		SET
			is_online = false
		WHERE
			is_online;`

	_, err := tql.Exec(ctx, s.db, stmt)
	return err
}
