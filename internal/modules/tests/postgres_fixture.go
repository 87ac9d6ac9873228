package tests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/eskrenkovic/migrate-go"
	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresDatabase = "challenge"
	postgresUser     = "challenge"
	postgresPassword = "challenge"
)

// PostgresFixture is a migrated Postgres database shared by a test package.
// When SKIP_INFRASTRUCTURE=true the database at DATABASE_URL is used instead
// of a container.
type PostgresFixture struct {
	DB  *sql.DB
	DSN string

	container *postgres.PostgresContainer
	startErr  error
}

func StartPostgres(ctx context.Context) *PostgresFixture {
	f := &PostgresFixture{}

	loadLocalConfig()

	dsn, err := f.start(ctx)
	if err != nil {
		f.startErr = err
		return f
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		f.startErr = err
		return f
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		f.startErr = err
		return f
	}

	if err := migrate.Run(ctx, db, MigrationsPath()); err != nil {
		f.startErr = fmt.Errorf("failed to run migrations: %w", err)
		return f
	}

	f.DB = db
	f.DSN = dsn

	return f
}

func (f *PostgresFixture) start(ctx context.Context) (string, error) {
	if skip := os.Getenv("SKIP_INFRASTRUCTURE"); skip == "true" {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return "", errors.New("SKIP_INFRASTRUCTURE is set but DATABASE_URL is empty")
		}
		return dsn, nil
	}

	dbURL := func(host string, port nat.Port) string {
		return fmt.Sprintf(
			"postgres://%s:%s@%s/%s?sslmode=disable",
			postgresUser,
			postgresPassword,
			net.JoinHostPort(host, port.Port()),
			postgresDatabase,
		)
	}

	container, err := postgres.Run(
		ctx,
		postgresImage,
		postgres.WithDatabase(postgresDatabase),
		postgres.WithUsername(postgresUser),
		postgres.WithPassword(postgresPassword),
		testcontainers.WithWaitStrategy(
			wait.ForSQL(nat.Port("5432/tcp"), "postgres", dbURL).WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	f.container = container

	return container.ConnectionString(ctx, "sslmode=disable")
}

// Require returns the database or skips the test when no database could be started.
func (f *PostgresFixture) Require(t *testing.T) *sql.DB {
	t.Helper()

	if f.startErr != nil {
		t.Skipf("postgres unavailable: %s", f.startErr.Error())
	}

	return f.DB
}

// Reset removes every row so tests start from an empty store.
func (f *PostgresFixture) Reset(t *testing.T) {
	t.Helper()

	db := f.Require(t)

	if _, err := db.Exec("TRUNCATE users, challenges RESTART IDENTITY CASCADE;"); err != nil {
		t.Fatalf("failed to reset database: %s", err.Error())
	}
}

func (f *PostgresFixture) Stop(ctx context.Context) error {
	var errs []error

	if f.DB != nil {
		errs = append(errs, f.DB.Close())
	}

	if f.container != nil {
		errs = append(errs, f.container.Terminate(ctx))
	}

	return errors.Join(errs...)
}

// MigrationsPath resolves db/migrations relative to this source file.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "migrations")
}

func loadLocalConfig() {
	localConfigPath := filepath.Join(filepath.Dir(MigrationsPath()), "..", "config.local.env")
	if _, err := os.Stat(localConfigPath); err != nil {
		return
	}

	_ = godotenv.Load(localConfigPath)
}
