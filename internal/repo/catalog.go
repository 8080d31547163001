// File path: internal/repo/catalog.go
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Catalog is the durable registry of cloned repositories, backed by SQLite
// so registrations survive a restart.
type Catalog struct {
	db *sqlx.DB
}

// Record is one registered repository.
type Record struct {
	RepoID     string    `db:"repo_id" json:"repo_id"`
	Name       string    `db:"name" json:"name"`
	URL        string    `db:"url" json:"url"`
	Branch     string    `db:"branch" json:"branch"`
	Path       string    `db:"path" json:"-"`
	FilesCount int       `db:"files_count" json:"files_count"`
	Languages  string    `db:"languages" json:"languages"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS repos (
    repo_id     TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    url         TEXT NOT NULL,
    branch      TEXT NOT NULL DEFAULT 'main',
    path        TEXT NOT NULL,
    files_count INTEGER NOT NULL DEFAULT 0,
    languages   TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// OpenCatalog opens (and migrates) the catalog database at the given path.
func OpenCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("catalog path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", abs)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Insert registers a repository.
func (c *Catalog) Insert(ctx context.Context, rec Record) error {
	if c == nil || c.db == nil {
		return errors.New("catalog not initialized")
	}
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO repos (repo_id, name, url, branch, path, files_count, languages, created_at)
		VALUES (:repo_id, :name, :url, :branch, :path, :files_count, :languages, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("insert repo: %w", err)
	}
	return nil
}

// Get returns the record for the given repo id.
func (c *Catalog) Get(ctx context.Context, repoID string) (Record, error) {
	if c == nil || c.db == nil {
		return Record{}, errors.New("catalog not initialized")
	}
	var rec Record
	err := c.db.GetContext(ctx, &rec, `SELECT * FROM repos WHERE repo_id = ?`, repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRepoNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load repo: %w", err)
	}
	return rec, nil
}

// List returns every registered repository, newest first.
func (c *Catalog) List(ctx context.Context) ([]Record, error) {
	if c == nil || c.db == nil {
		return nil, errors.New("catalog not initialized")
	}
	var recs []Record
	if err := c.db.SelectContext(ctx, &recs, `SELECT * FROM repos ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	return recs, nil
}

// Delete removes a registration.
func (c *Catalog) Delete(ctx context.Context, repoID string) error {
	if c == nil || c.db == nil {
		return errors.New("catalog not initialized")
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM repos WHERE repo_id = ?`, repoID)
	return err
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
