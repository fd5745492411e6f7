package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

func newStoreWithMock(t *testing.T, dialect Dialect) (*LabelStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	store := NewLabelStore(db, dialect, "apoyo-daniel")
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return store, mock, func() { _ = db.Close() }
}

func TestOpenCreatesSchemaAndLoadsEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS label_cache").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT fingerprint, label, source").
		WithArgs("apoyo-daniel").
		WillReturnRows(sqlmock.NewRows([]string{"fingerprint", "label", "source"}).
			AddRow("aa", "FAVORABLE", "model").
			AddRow("bb", "NEUTRAL", "fallback"))

	store, err := Open(context.Background(), db, Postgres, "apoyo-daniel")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}
	if e, _ := store.Get("bb"); e.Source != domain.SourceFallback {
		t.Fatalf("unexpected entry %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFlushWritesPendingEntriesInOneTransaction(t *testing.T) {
	store, mock, done := newStoreWithMock(t, Postgres)
	defer done()

	store.Put(domain.CacheEntry{Fingerprint: "aa", Label: "FAVORABLE", Source: domain.SourceModel})
	store.Put(domain.CacheEntry{Fingerprint: "bb", Label: "NEUTRAL", Source: domain.SourceFallback})

	at := store.now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("ON CONFLICT \\(task, fingerprint\\) DO UPDATE").
		WithArgs("apoyo-daniel", "aa", "FAVORABLE", "model", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("ON CONFLICT \\(task, fingerprint\\) DO NOTHING").
		WithArgs("apoyo-daniel", "bb", "NEUTRAL", "fallback", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	// Nothing pending: no second transaction.
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFlushReplacesOutOfSetLabels(t *testing.T) {
	store, mock, done := newStoreWithMock(t, SQLite)
	defer done()

	store.index.Load(domain.CacheEntry{Fingerprint: "aa", Label: "MAYBE", Source: domain.SourceModel})
	if n := store.Restrict(domain.NewLabelSet("FAVORABLE", "CONTRARIO", "NEUTRAL")); n != 1 {
		t.Fatalf("Restrict() = %d, want 1", n)
	}
	if !store.Put(domain.CacheEntry{Fingerprint: "aa", Label: "NEUTRAL", Source: domain.SourceFallback}) {
		t.Fatalf("expected out-of-set label to be replaced")
	}

	at := store.now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("created_at = excluded.created_at$").
		WithArgs("apoyo-daniel", "aa", "NEUTRAL", "fallback", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFlushKeepsEntriesPendingOnFailure(t *testing.T) {
	store, mock, done := newStoreWithMock(t, SQLite)
	defer done()

	store.Put(domain.CacheEntry{Fingerprint: "aa", Label: "CONTRARIO", Source: domain.SourceModel})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO label_cache").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	if err := store.Flush(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
	if len(store.index.Pending()) != 1 {
		t.Fatalf("failed flush must keep entries pending")
	}
}

func TestDialectByName(t *testing.T) {
	for name, want := range map[string]string{"postgres": "pgx", "SQLite": "sqlite3", "pgx": "pgx"} {
		d, err := DialectByName(name)
		if err != nil || d.Driver != want {
			t.Fatalf("DialectByName(%q) = %+v, %v", name, d, err)
		}
	}
	if _, err := DialectByName("mysql"); err == nil {
		t.Fatalf("expected error for unsupported dialect")
	}
}
