package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Database struct {
	pool    *pgxpool.Pool
	queries *store.Queries
}

func New(cfg *config.DatabaseConfig) (*Database, error) {
	pool, err := pgxpool.New(context.Background(), cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Activate and test the connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return FromPool(pool), nil
}

// FromPool wraps an existing pool, e.g. one pointing at a test container.
func FromPool(pool *pgxpool.Pool) *Database {
	return &Database{
		pool:    pool,
		queries: store.New(pool),
	}
}

func (d *Database) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

func (d *Database) Queries() *store.Queries {
	return d.queries
}

func (d *Database) Pool() *pgxpool.Pool {
	return d.pool
}

func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Migrate applies the embedded goose migrations.
func (d *Database) Migrate(ctx context.Context) error {
	return d.runMigrations(ctx, goose.UpContext)
}

// Reset rolls every migration back and applies them again.
func (d *Database) Reset(ctx context.Context) error {
	if err := d.runMigrations(ctx, goose.ResetContext); err != nil {
		return err
	}
	return d.Migrate(ctx)
}

func (d *Database) runMigrations(ctx context.Context, run func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error) error {
	sqlDB := stdlib.OpenDBFromPool(d.pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := run(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
