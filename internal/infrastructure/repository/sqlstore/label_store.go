package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"github.com/kirillkom/comment-labeler/internal/infrastructure/cache"
)

const schemaLockKey = int64(2026101501)

// LabelStore persists the label cache in a label_cache table scoped by task.
type LabelStore struct {
	db      *sql.DB
	dialect Dialect
	task    string
	index   *cache.Index
	now     func() time.Time
}

func NewLabelStore(db *sql.DB, dialect Dialect, task string) *LabelStore {
	return &LabelStore{
		db:      db,
		dialect: dialect,
		task:    task,
		index:   cache.NewIndex(),
		now:     time.Now,
	}
}

func OpenDB(dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if dialect.Name == SQLite.Name {
		// A single writer avoids SQLITE_BUSY on the checkpoint transaction.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Open prepares the schema and loads every entry of the task.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, task string) (*LabelStore, error) {
	s := NewLabelStore(db, dialect, task)
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LabelStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if s.dialect.schemaLock != "" {
		if _, err := tx.ExecContext(ctx, s.dialect.schemaLock, schemaLockKey); err != nil {
			return fmt.Errorf("acquire schema lock: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *LabelStore) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, s.dialect.selectByTask, s.task)
	if err != nil {
		return fmt.Errorf("query label cache: %w", err)
	}
	defer rows.Close()

	var entries []domain.CacheEntry
	for rows.Next() {
		var fp, label, source string
		if err := rows.Scan(&fp, &label, &source); err != nil {
			return fmt.Errorf("scan label cache row: %w", err)
		}
		entries = append(entries, domain.CacheEntry{
			Fingerprint: fp,
			Label:       domain.Label(label),
			Source:      domain.LabelSource(source),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate label cache rows: %w", err)
	}
	s.index.Load(entries...)
	return nil
}

func (s *LabelStore) Get(fingerprint string) (domain.CacheEntry, bool) {
	return s.index.Get(fingerprint)
}

func (s *LabelStore) Put(entry domain.CacheEntry) bool {
	return s.index.Put(entry)
}

// Restrict lets labels outside the set be replaced on the next Put.
func (s *LabelStore) Restrict(labels domain.LabelSet) int {
	return s.index.Restrict(labels)
}

func (s *LabelStore) Len() int {
	return s.index.Len()
}

// Flush writes pending entries in one transaction.
func (s *LabelStore) Flush(ctx context.Context) error {
	pending := s.index.Pending()
	if len(pending) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := s.now().UTC()
	for _, e := range pending {
		query := s.dialect.upsertLabel
		switch {
		case s.index.Overwrites(e.Fingerprint):
			query = s.dialect.replaceLabel
		case e.Source == domain.SourceFallback:
			query = s.dialect.insertFallback
		}
		if _, err := tx.ExecContext(ctx, query, s.task, e.Fingerprint, string(e.Label), string(e.Source), now); err != nil {
			return fmt.Errorf("insert label %s: %w", e.Fingerprint, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush tx: %w", err)
	}
	s.index.MarkFlushed(pending)
	return nil
}

func (s *LabelStore) Close() error {
	return s.db.Close()
}
