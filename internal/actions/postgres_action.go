package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"sitecrawl/pkg/crawl"
)

// SQLConfig configures the PostgresPageAction's connection.
type SQLConfig struct {
	DSN             string
	CreateIfMissing bool
	AutoMigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresPageAction is a reference crawl.Action (§6) persisting every
// fetched page into a `pages` table, keyed by URL. It is invoked on both
// success and failure; failures are logged by the caller and skipped here.
type PostgresPageAction struct {
	db          *sql.DB
	autoMigrate bool
}

// NewPostgresPageAction opens the connection, optionally creating the
// target database and applying the schema, mirroring the retry dance a
// crawl operator expects from a fire-and-forget sink: don't fail Navigate
// just because the schema hasn't been applied yet.
func NewPostgresPageAction(cfg SQLConfig) (*PostgresPageAction, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres action: missing dsn")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres action: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if cfg.CreateIfMissing && shouldAttemptCreateDatabase(err) {
			_ = db.Close()
			if err := createDatabase(ctx, cfg.DSN); err != nil {
				return nil, err
			}
			db, err = sql.Open("postgres", cfg.DSN)
			if err != nil {
				return nil, fmt.Errorf("postgres action: open: %w", err)
			}
			if err := db.PingContext(ctx); err != nil {
				return nil, fmt.Errorf("postgres action: ping: %w", err)
			}
		} else {
			return nil, fmt.Errorf("postgres action: ping: %w", err)
		}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	action := &PostgresPageAction{db: db, autoMigrate: cfg.AutoMigrate}
	if cfg.AutoMigrate {
		if err := action.ensureSchema(context.Background()); err != nil {
			return nil, err
		}
	}
	return action, nil
}

// Handle implements crawl.Action.
func (a *PostgresPageAction) Handle(ctx context.Context, outcome crawl.Outcome) {
	if a == nil || a.db == nil || outcome.Err != nil || outcome.Doc == nil {
		return
	}
	if err := a.upsertPage(ctx, outcome); err != nil {
		if a.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := a.ensureSchema(ctx); schemaErr == nil {
				_ = a.upsertPage(ctx, outcome)
			}
		}
	}
}

// Close releases the underlying connection pool.
func (a *PostgresPageAction) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *PostgresPageAction) upsertPage(ctx context.Context, outcome crawl.Outcome) error {
	const query = `
        INSERT INTO pages (url, final_url, status_code, fetched_at, raw_html)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (url) DO UPDATE SET
            final_url = EXCLUDED.final_url,
            status_code = EXCLUDED.status_code,
            fetched_at = EXCLUDED.fetched_at,
            raw_html = EXCLUDED.raw_html
    `
	doc := outcome.Doc
	_, err := a.db.ExecContext(ctx, query,
		outcome.URL,
		doc.FinalURL,
		doc.StatusCode,
		doc.FetchedAt,
		doc.Body,
	)
	return err
}

func (a *PostgresPageAction) ensureSchema(ctx context.Context) error {
	if a == nil || a.db == nil {
		return nil
	}
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pages (
		    url TEXT PRIMARY KEY,
		    final_url TEXT,
		    status_code INT,
		    fetched_at TIMESTAMPTZ,
		    raw_html BYTEA
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages (fetched_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("postgres action: apply schema: %w", err)
		}
	}
	return nil
}

func shouldAttemptCreateDatabase(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func createDatabase(ctx context.Context, dsn string) error {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return fmt.Errorf("postgres action: parse dsn: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return errors.New("postgres action: dsn missing database name")
	}
	if strings.EqualFold(dbName, "postgres") {
		return fmt.Errorf("postgres action: target database %q cannot be auto-created", dbName)
	}
	parsed.Path = "/postgres"
	adminDB, err := sql.Open("postgres", parsed.String())
	if err != nil {
		return fmt.Errorf("postgres action: connect admin database: %w", err)
	}
	defer adminDB.Close()
	if err := adminDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres action: ping admin database: %w", err)
	}
	stmt := fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return fmt.Errorf("postgres action: create database %q: %w", dbName, err)
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
