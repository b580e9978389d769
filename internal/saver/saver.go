// Package saver exports the patent tables to Parquet files for downstream
// analysis tooling.
package saver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// patentSummaryMeta is the Parquet schema for the exported patent summary
// file. Everything is an optional UTF8 string; dates are already normalized
// to ISO form in the store.
var patentSummaryMeta = []string{
	"name=patent_number, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=filing_date, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=grant_date, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=status_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=type_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=title_en, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=title_fr, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
}

// ExportPatents writes every patents row to a Parquet file under exportDir
// and returns the file path.
func ExportPatents(ctx context.Context, db *sql.DB, exportDir string, logger *slog.Logger) (string, error) {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir '%s': %w", exportDir, err)
	}

	outPath := filepath.Join(exportDir, fmt.Sprintf("patents_%s.parquet", time.Now().Format("20060102_150405")))
	logger.Info("Exporting patents to Parquet.", slog.String("path", outPath))
	start := time.Now()

	fw, err := local.NewLocalFileWriter(outPath)
	if err != nil {
		return "", fmt.Errorf("create parquet file %s: %w", outPath, err)
	}

	pw, err := writer.NewCSVWriter(patentSummaryMeta, fw, 4)
	if err != nil {
		fw.Close()
		return "", fmt.Errorf("create parquet writer for %s: %w", outPath, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows, err := db.QueryContext(ctx, `
        SELECT patent_number,
               CAST(filing_date AS VARCHAR), CAST(grant_date AS VARCHAR),
               status_code, type_code, title_en, title_fr
        FROM patents ORDER BY patent_number;
    `)
	if err != nil {
		fw.Close()
		return "", fmt.Errorf("query patents for export: %w", err)
	}
	defer rows.Close()

	var exportErr error
	count := 0
	for rows.Next() {
		var number string
		var filing, grant, status, typ, titleEN, titleFR sql.NullString
		if err := rows.Scan(&number, &filing, &grant, &status, &typ, &titleEN, &titleFR); err != nil {
			exportErr = errors.Join(exportErr, fmt.Errorf("scan export row: %w", err))
			break
		}
		rec := make([]*string, 7)
		rec[0] = &number
		for i, col := range []sql.NullString{filing, grant, status, typ, titleEN, titleFR} {
			if col.Valid {
				v := col.String
				rec[i+1] = &v
			}
		}
		if err := pw.WriteString(rec); err != nil {
			exportErr = errors.Join(exportErr, fmt.Errorf("write export row for %s: %w", number, err))
			break
		}
		count++
	}
	exportErr = errors.Join(exportErr, rows.Err())

	if err := pw.WriteStop(); err != nil {
		exportErr = errors.Join(exportErr, fmt.Errorf("finalize parquet file %s: %w", outPath, err))
	}
	if err := fw.Close(); err != nil {
		exportErr = errors.Join(exportErr, fmt.Errorf("close parquet file %s: %w", outPath, err))
	}
	if exportErr != nil {
		os.Remove(outPath)
		return "", exportErr
	}

	logger.Info("Export complete.", slog.Int("rows", count),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return outPath, nil
}

// ExportChildTables runs DuckDB COPY TO for every child table, one Parquet
// file per table, and returns the written paths.
func ExportChildTables(ctx context.Context, db *sql.DB, exportDir string, logger *slog.Logger) ([]string, error) {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir '%s': %w", exportDir, err)
	}

	tables := []string{
		"patent_abstracts", "patent_claims", "patent_disclosures",
		"patent_parties", "patent_ipc", "patent_priority_claims",
	}
	var paths []string
	var exportErrs error
	for _, tableName := range tables {
		select {
		case <-ctx.Done():
			return paths, errors.Join(exportErrs, ctx.Err())
		default:
		}
		outPath := filepath.Join(exportDir, tableName+".parquet")
		copySQL := fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET);`,
			tableName, filepath.ToSlash(outPath))
		if _, err := db.ExecContext(ctx, copySQL); err != nil {
			logger.Error("Failed to export table.", slog.String("table", tableName), "error", err)
			exportErrs = errors.Join(exportErrs, fmt.Errorf("export %s: %w", tableName, err))
			continue
		}
		logger.Info("Table exported.", slog.String("table", tableName), slog.String("path", outPath))
		paths = append(paths, outPath)
	}
	return paths, exportErrs
}
