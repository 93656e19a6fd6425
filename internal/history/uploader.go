package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/pipeline"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

const (
	tableName        = "leads_parceiros_upload_history"
	operationTimeout = 30 * time.Second
)

var ErrEmptyDSN = errors.New("empty database dsn")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Record is one row of the upload history table.
type Record struct {
	CNJ          string
	Negociador   string
	Mesa         string
	Error        bool
	ErrorMessage string
	Escritorio   string
}

// SplitRecords builds history rows from the "all leads" and "errors" sheets.
// Success rows skip every case number present in the errors sheet; rows
// without case number or negotiator are dropped.
func SplitRecords(success, failed *pipeline.Table, mesa string, logger *slog.Logger) (ok, bad []Record, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	sCNJ, sNeg, err := requiredColumns(success)
	if err != nil {
		return nil, nil, fmt.Errorf("success sheet: %w", err)
	}
	fCNJ, fNeg, err := requiredColumns(failed)
	if err != nil {
		return nil, nil, fmt.Errorf("errors sheet: %w", err)
	}
	fErr, err := failed.MustIndex("Erro")
	if err != nil {
		return nil, nil, fmt.Errorf("errors sheet: %w", err)
	}
	sOffice, fOffice := success.Index("Escritório"), failed.Index("Escritório")

	failedCNJs := map[string]bool{}
	for _, row := range failed.Rows {
		if cnj := cell(row, fCNJ); cnj != "" {
			failedCNJs[util.CanonicalCNJ(cnj)] = true
		}
	}

	for _, row := range success.Rows {
		cnj, neg := cell(row, sCNJ), cell(row, sNeg)
		if cnj == "" || neg == "" {
			logger.Warn("skipping row without case number or negotiator", "cnj", cnj, "negociador", neg)
			continue
		}
		if failedCNJs[util.CanonicalCNJ(cnj)] {
			continue
		}
		ok = append(ok, Record{CNJ: cnj, Negociador: neg, Mesa: mesa, Escritorio: cell(row, sOffice)})
	}

	for _, row := range failed.Rows {
		cnj, neg := cell(row, fCNJ), cell(row, fNeg)
		if cnj == "" || neg == "" {
			logger.Warn("skipping row without case number or negotiator", "cnj", cnj, "negociador", neg)
			continue
		}
		bad = append(bad, Record{
			CNJ:          cnj,
			Negociador:   neg,
			Mesa:         mesa,
			Error:        true,
			ErrorMessage: cell(row, fErr),
			Escritorio:   cell(row, fOffice),
		})
	}
	return ok, bad, nil
}

func requiredColumns(t *pipeline.Table) (cnj, negotiator int, err error) {
	if cnj, err = t.MustIndex("CNJ"); err != nil {
		return -1, -1, err
	}
	if negotiator, err = t.MustIndex("Negociador", "Responsável"); err != nil {
		return -1, -1, err
	}
	return cnj, negotiator, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Uploader upserts history rows into PostgreSQL.
type Uploader struct {
	dsn    string
	openDB sqlOpenFunc
	logger *slog.Logger
}

// NewUploader accepts an empty dsn so dry runs work without a database;
// a real upload then fails with ErrEmptyDSN.
func NewUploader(dsn string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{dsn: strings.TrimSpace(dsn), openDB: sql.Open, logger: logger.With("component", "history")}
}

// Upload writes all records in one transaction and returns how many were
// sent. A dry run only reports the count.
func (u *Uploader) Upload(ctx context.Context, records []Record, dryRun bool) (int, error) {
	if len(records) == 0 {
		u.logger.Warn("no history records to upload")
		return 0, nil
	}
	if dryRun {
		u.logger.Info("[DRY RUN] would upload history records", "records", len(records))
		return len(records), nil
	}
	if u.dsn == "" {
		return 0, ErrEmptyDSN
	}

	db, err := u.openDB("postgres", u.dsn)
	if err != nil {
		return 0, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO `+tableName+` (cnj, negociador, mesa, error, error_message, escritorio)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (cnj) DO UPDATE SET
  negociador = EXCLUDED.negociador,
  mesa = EXCLUDED.mesa,
  error = EXCLUDED.error,
  error_message = EXCLUDED.error_message,
  escritorio = EXCLUDED.escritorio
`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.CNJ, r.Negociador, r.Mesa, r.Error, nullString(r.ErrorMessage), nullString(r.Escritorio)); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", r.CNJ, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	u.logger.Info("history uploaded", "records", len(records))
	return len(records), nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
