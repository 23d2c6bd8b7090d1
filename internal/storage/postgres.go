package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/lib/pq"
)

// DefaultPostgresTable holds index files for postgres:// locations.
const DefaultPostgresTable = "coachrag_index_files"

// Postgres stores files as rows keyed by (index_name, file_name). WriteFiles
// replaces every row of the index inside one transaction.
//
// The index name comes from the index_name query parameter of the location
// and defaults to "default"; the parameter is removed before connecting.
type Postgres struct {
	db        *sql.DB
	table     string
	indexName string
	display   string
}

// NewPostgres opens the database named by dsn and ensures the files table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	connDSN, indexName, display, err := splitPostgresDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", connDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	p := &Postgres{db: db, table: DefaultPostgresTable, indexName: indexName, display: display}
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// splitPostgresDSN extracts index_name from the DSN and returns a display
// form without credentials.
func splitPostgresDSN(dsn string) (string, string, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", "", fmt.Errorf("parse postgres location: %w", err)
	}
	q := u.Query()
	name := q.Get("index_name")
	if name == "" {
		name = "default"
	}
	q.Del("index_name")
	u.RawQuery = q.Encode()

	display := *u
	display.User = nil
	display.RawQuery = ""
	return u.String(), name, display.String() + "#" + name, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		index_name TEXT NOT NULL,
		file_name  TEXT NOT NULL,
		data       BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (index_name, file_name)
	)`, pq.QuoteIdentifier(p.table))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ensure index table: %w", err)
	}
	return nil
}

func (p *Postgres) String() string { return p.display }

// WriteFiles replaces the stored files of this index atomically.
func (p *Postgres) WriteFiles(ctx context.Context, files []File) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	table := pq.QuoteIdentifier(p.table)
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE index_name = $1`, table), p.indexName); err != nil {
		return fmt.Errorf("clear index rows: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (index_name, file_name, data) VALUES ($1, $2, $3)`, table)
	for _, f := range files {
		if _, err = tx.ExecContext(ctx, insert, p.indexName, f.Name, f.Data); err != nil {
			return fmt.Errorf("insert %s: %w", f.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit index rows: %w", err)
	}
	return nil
}

// ReadFile returns the stored file.
func (p *Postgres) ReadFile(ctx context.Context, name string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE index_name = $1 AND file_name = $2`, pq.QuoteIdentifier(p.table))
	var data []byte
	err := p.db.QueryRowContext(ctx, query, p.indexName, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", p.display, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Close releases the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}
