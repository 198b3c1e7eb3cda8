package observability

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/typescope/dbopen"
	"github.com/hazyhaar/typescope/kit"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestInit_CreatesAuditTable(t *testing.T) {
	db := setupObsDB(t)
	var count int
	db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='audit_log'").Scan(&count)
	if count != 1 {
		t.Fatal("audit_log not found")
	}
}

func TestAuditLogger_LogSync(t *testing.T) {
	db := setupObsDB(t)
	al := NewAuditLogger(db, 16)
	defer al.Close()

	entry := &AuditEntry{Operation: "detect", Transport: "cli", DurationMs: 42}
	if err := al.Log(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	if entry.EntryID == "" {
		t.Fatal("entry_id not generated")
	}
	var op, status string
	db.QueryRow("SELECT operation, status FROM audit_log WHERE entry_id=?", entry.EntryID).Scan(&op, &status)
	if op != "detect" || status != StatusSuccess {
		t.Fatalf("row: got %q %q", op, status)
	}
}

func TestAuditLogger_LogAsync_FlushedOnClose(t *testing.T) {
	db := setupObsDB(t)
	al := NewAuditLogger(db, 16)
	al.LogAsync(&AuditEntry{Operation: "highlight"})
	al.LogAsync(&AuditEntry{Operation: "cleanup"})
	al.Close()

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&count)
	if count != 2 {
		t.Fatalf("async count: got %d, want 2", count)
	}
}

func TestAuditLogger_NewEntry(t *testing.T) {
	db := setupObsDB(t)
	al := NewAuditLogger(db, 16)
	defer al.Close()

	e := al.NewEntry("jump", map[string]int{"index": 3}, nil, 100*time.Millisecond)
	if e.Status != StatusSuccess || e.Parameters != `{"index":3}` || e.DurationMs != 100 {
		t.Fatalf("success entry: %+v", e)
	}
	e = al.NewEntry("jump", nil, errors.New("boom"), 0)
	if e.Status != StatusError || e.ErrorMessage != "boom" {
		t.Fatalf("error entry: %+v", e)
	}
	e = al.NewEntry("jump", nil, context.Canceled, 0)
	if e.Status != StatusCancelled {
		t.Fatalf("cancelled entry: %+v", e)
	}
}

func TestAuditLogger_Middleware(t *testing.T) {
	db := setupObsDB(t)
	al := NewAuditLogger(db, 16)

	ep := al.Middleware("styles", func() string { return "https://example.com/" })(
		func(context.Context, any) (any, error) { return "ok", nil })
	ctx := kit.WithRequestID(kit.WithTransport(context.Background(), "http"), "req_1")
	ctx = kit.WithRemoteAddr(ctx, "127.0.0.1:51000")
	if _, err := ep(ctx, map[string]string{"tag": "p"}); err != nil {
		t.Fatal(err)
	}
	al.Close()

	entries, err := al.Query(context.Background(), AuditFilter{Operation: "styles"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d", len(entries))
	}
	e := entries[0]
	if e.Transport != "http" || e.RemoteAddr != "127.0.0.1:51000" || e.RequestID != "req_1" || e.PageURL != "https://example.com/" || e.Parameters != `{"tag":"p"}` {
		t.Fatalf("entry: %+v", e)
	}
}

func TestAuditLogger_QueryFilters(t *testing.T) {
	db := setupObsDB(t)
	al := NewAuditLogger(db, 16)
	defer al.Close()
	ctx := context.Background()

	al.Log(ctx, &AuditEntry{Operation: "detect"})
	al.Log(ctx, &AuditEntry{Operation: "detect", ErrorMessage: "cannot access this page"})
	al.Log(ctx, &AuditEntry{Operation: "freeze"})

	entries, err := al.Query(ctx, AuditFilter{Operation: "detect", Status: StatusError})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ErrorMessage != "cannot access this page" {
		t.Fatalf("filtered: %+v", entries)
	}
	entries, _ = al.Query(ctx, AuditFilter{Limit: 2})
	if len(entries) != 2 {
		t.Fatalf("limit: got %d", len(entries))
	}
}

func TestAuditLogger_Cleanup(t *testing.T) {
	db := setupObsDB(t)
	al := NewAuditLogger(db, 16)
	defer al.Close()
	ctx := context.Background()

	al.Log(ctx, &AuditEntry{Operation: "old", Timestamp: time.Now().Add(-40 * 24 * time.Hour)})
	al.Log(ctx, &AuditEntry{Operation: "new"})

	deleted, err := al.Cleanup(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted: got %d", deleted)
	}
	if n, _ := al.Cleanup(ctx, 0); n != 0 {
		t.Fatalf("zero retention deleted %d", n)
	}
}

func TestAuditLogger_WithIDGenerator(t *testing.T) {
	db := setupObsDB(t)
	al := NewAuditLogger(db, 16, WithAuditIDGenerator(func() string { return "fixed_id" }))
	defer al.Close()

	entry := &AuditEntry{Operation: "state"}
	al.Log(context.Background(), entry)
	if entry.EntryID != "fixed_id" {
		t.Fatalf("custom ID: got %q", entry.EntryID)
	}
}
