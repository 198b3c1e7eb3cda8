// Package observability keeps the audit trail of every command a consumer
// sent to the controller: operation, parameters, outcome and duration.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/typescope/dbopen"
	"github.com/hazyhaar/typescope/idgen"
	"github.com/hazyhaar/typescope/kit"
)

// Statuses.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// AuditEntry is one command record.
type AuditEntry struct {
	EntryID   string    `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"` // "detect", "highlight", "cleanup", ...
	Transport string    `json:"transport"` // "mcp", "http", "cli"

	RequestID string `json:"request_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	PageURL    string `json:"page_url,omitempty"`

	Parameters   string `json:"parameters,omitempty"` // JSON
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// AuditFilter narrows Query.
type AuditFilter struct {
	Since     *time.Time
	Operation string
	Status    string
	Limit     int // default 100
}

// AuditLogger persists entries asynchronously in batches.
type AuditLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *AuditEntry
	stop   chan struct{}
	done   chan struct{}
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditIDGenerator sets the entry ID generator.
func WithAuditIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLogger) { a.newID = gen }
}

// WithAuditLogger sets the logger used for write failures.
func WithAuditLogger(l *slog.Logger) AuditOption {
	return func(a *AuditLogger) { a.logger = l }
}

// NewAuditLogger starts the flush goroutine. Recommended bufferSize: 256.
func NewAuditLogger(db *sql.DB, bufferSize int, opts ...AuditOption) *AuditLogger {
	a := &AuditLogger{
		db:     db,
		newID:  idgen.Command,
		logger: slog.Default(),
		ch:     make(chan *AuditEntry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.flushLoop()
	return a
}

// Log inserts an entry synchronously.
func (a *AuditLogger) Log(ctx context.Context, e *AuditEntry) error {
	a.fillDefaults(e)
	if err := a.insert(ctx, a.db, e); err != nil {
		return fmt.Errorf("observability: audit insert: %w", err)
	}
	return nil
}

// LogAsync queues an entry. A full buffer falls back to a synchronous insert.
func (a *AuditLogger) LogAsync(e *AuditEntry) {
	a.fillDefaults(e)
	select {
	case a.ch <- e:
	default:
		a.logger.Warn("observability: audit buffer full, sync fallback", "operation", e.Operation)
		if err := a.insert(context.Background(), a.db, e); err != nil {
			a.logger.Error("observability: audit sync fallback", "error", err)
		}
	}
}

// NewEntry builds an entry from a finished command. params is marshalled
// to JSON.
func (a *AuditLogger) NewEntry(op string, params any, err error, d time.Duration) *AuditEntry {
	e := &AuditEntry{
		EntryID:    a.newID(),
		Timestamp:  time.Now(),
		Operation:  op,
		DurationMs: d.Milliseconds(),
		Status:     StatusSuccess,
	}
	if params != nil {
		if b, merr := json.Marshal(params); merr == nil {
			e.Parameters = string(b)
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Status, e.ErrorMessage = StatusCancelled, err.Error()
	default:
		e.Status, e.ErrorMessage = StatusError, err.Error()
	}
	return e
}

// Middleware records every call of op. pageURL, when set, is called to tag
// the entry with the inspected page.
func (a *AuditLogger) Middleware(op string, pageURL func() string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			e := a.NewEntry(op, req, err, time.Since(start))
			e.Transport = kit.GetTransport(ctx)
			e.RequestID = kit.GetRequestID(ctx)
			e.SessionID = kit.GetSessionID(ctx)
			e.RemoteAddr = kit.GetRemoteAddr(ctx)
			if pageURL != nil {
				e.PageURL = pageURL()
			}
			a.LogAsync(e)
			return resp, err
		}
	}
}

// Query returns entries matching f, newest first.
func (a *AuditLogger) Query(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if f.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, f.Operation)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	q := `SELECT entry_id, timestamp, operation, transport, request_id, session_id,
		remote_addr, page_url, parameters, status, error_message, duration_ms FROM audit_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query audit log: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var (
			e                                    AuditEntry
			ts                                   int64
			reqID, sessID, remote, url, errorMsg sql.NullString
			dur                                  sql.NullInt64
		)
		if err := rows.Scan(&e.EntryID, &ts, &e.Operation, &e.Transport, &reqID, &sessID,
			&remote, &url, &e.Parameters, &e.Status, &errorMsg, &dur); err != nil {
			return nil, fmt.Errorf("observability: scan audit entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.RequestID, e.SessionID, e.PageURL = reqID.String, sessID.String, url.String
		e.RemoteAddr = remote.String
		e.ErrorMessage, e.DurationMs = errorMsg.String, dur.Int64
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retentionDays. Zero or negative keeps
// everything.
func (a *AuditLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	threshold := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := a.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup audit log: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine.
func (a *AuditLogger) Close() error {
	close(a.stop)
	<-a.done
	return nil
}

func (a *AuditLogger) fillDefaults(e *AuditEntry) {
	if e.EntryID == "" {
		e.EntryID = a.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.ErrorMessage != "" {
			e.Status = StatusError
		}
	}
}

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	batch := make([]*AuditEntry, 0, 64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := dbopen.RunTx(ctx, a.db, func(tx *sql.Tx) error {
			for _, e := range batch {
				if err := a.insert(ctx, tx, e); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			a.logger.Error("observability: audit flush", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-a.stop:
			for {
				select {
				case e := <-a.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-a.ch:
			batch = append(batch, e)
			if len(batch) >= 64 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (a *AuditLogger) insert(ctx context.Context, db execer, e *AuditEntry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO audit_log
		(entry_id, timestamp, operation, transport, request_id, session_id,
		 remote_addr, page_url, parameters, status, error_message, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp.UnixMilli(), e.Operation, e.Transport, e.RequestID, e.SessionID,
		e.RemoteAddr, e.PageURL, e.Parameters, e.Status, e.ErrorMessage, e.DurationMs)
	return err
}
