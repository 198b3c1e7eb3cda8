package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/typescope/dbopen"
	"github.com/hazyhaar/typescope/endpoints"
	"github.com/hazyhaar/typescope/observability"

	_ "modernc.org/sqlite"
)

var (
	auditSince  time.Duration
	auditOp     string
	auditStatus string
	auditLimit  int
	auditPrune  bool
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List the commands recorded in the audit database",
		RunE:  runAuditCmd,
	}
	cmd.Flags().DurationVar(&auditSince, "since", 0, "only entries newer than this, e.g. 24h")
	cmd.Flags().StringVar(&auditOp, "op", "", "filter by operation")
	cmd.Flags().StringVar(&auditStatus, "status", "", "filter by status: success, error, cancelled")
	cmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries")
	cmd.Flags().BoolVar(&auditPrune, "prune", false, "delete entries older than the retention period first")
	return cmd
}

// openAudit opens the audit database when one is configured and prunes it.
// Without one it returns a nil Auditor.
func openAudit(ctx context.Context) (endpoints.Auditor, func(), error) {
	if cfg.Audit.DBPath == "" {
		return nil, func() {}, nil
	}
	al, closeFn, err := openAuditLogger()
	if err != nil {
		return nil, nil, err
	}
	if n, err := al.Cleanup(ctx, cfg.Audit.RetentionDays); err != nil {
		logger.Warn("typescope: audit prune", "error", err)
	} else if n > 0 {
		logger.Info("typescope: audit pruned", "deleted", n)
	}
	return al, closeFn, nil
}

func openAuditLogger() (*observability.AuditLogger, func(), error) {
	db, err := dbopen.Open(cfg.Audit.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return nil, nil, fmt.Errorf("audit: %w", err)
	}
	if err := observability.Init(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("audit: %w", err)
	}
	al := observability.NewAuditLogger(db, cfg.Audit.BufferSize, observability.WithAuditLogger(logger))
	return al, func() {
		al.Close()
		db.Close()
	}, nil
}

func runAuditCmd(cmd *cobra.Command, _ []string) error {
	if cfg.Audit.DBPath == "" {
		return errors.New("audit: no audit.db_path configured")
	}
	al, closeFn, err := openAuditLogger()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	if auditPrune {
		n, err := al.Cleanup(ctx, cfg.Audit.RetentionDays)
		if err != nil {
			return err
		}
		logger.Info("typescope: audit pruned", "deleted", n)
	}
	f := observability.AuditFilter{Operation: auditOp, Status: auditStatus, Limit: auditLimit}
	if auditSince > 0 {
		since := time.Now().Add(-auditSince)
		f.Since = &since
	}
	entries, err := al.Query(ctx, f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
