package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nben/cipofetch/internal/parse"
)

// Writer performs transactional record imports. All writes for one source
// file go through a single FileTx so that either the whole file commits or
// none of it lands.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// FileTx is the transaction covering one source file's records.
type FileTx struct {
	tx      *sql.Tx
	parents map[string]struct{}
	done    bool
}

// Begin opens the transaction for one source file.
func (w *Writer) Begin(ctx context.Context) (*FileTx, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrWriteFailed, err)
	}
	return &FileTx{tx: tx, parents: make(map[string]struct{})}, nil
}

// Write upserts one parsed record. Child records first ensure a parent row
// exists for their patent number, so referential integrity holds at write
// time regardless of file ordering.
func (t *FileTx) Write(ctx context.Context, rec parse.Record) error {
	var err error
	switch r := rec.(type) {
	case parse.MainRecord:
		err = t.upsertMain(ctx, r)
	case parse.TextRecord:
		err = t.insertText(ctx, r)
	case parse.PartyRecord:
		err = t.insertParty(ctx, r)
	case parse.IPCRecord:
		err = t.insertIPC(ctx, r)
	case parse.PriorityRecord:
		err = t.insertPriority(ctx, r)
	default:
		err = fmt.Errorf("unknown record type %T", rec)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// Commit commits the file's writes.
func (t *FileTx) Commit() error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrWriteFailed, err)
	}
	return nil
}

// Rollback discards the file's writes. Safe to call after Commit.
func (t *FileTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// upsertMain inserts a new patent row or updates the mutable fields of an
// existing one. COALESCE keeps previously known values when the incoming
// row lacks them. DuckDB rejects ON CONFLICT DO UPDATE assignments to
// indexed columns, so the upsert is an insert-if-absent plus a plain UPDATE.
func (t *FileTx) upsertMain(ctx context.Context, r parse.MainRecord) error {
	const insertQuery = `INSERT INTO patents (patent_number) VALUES (?) ON CONFLICT DO NOTHING;`
	if _, err := t.tx.ExecContext(ctx, insertQuery, r.PatentNumber); err != nil {
		return fmt.Errorf("insert patent %s: %w", r.PatentNumber, err)
	}

	const updateQuery = `
        UPDATE patents SET
            filing_date = COALESCE(?, filing_date),
            grant_date  = COALESCE(?, grant_date),
            status_code = COALESCE(?, status_code),
            type_code   = COALESCE(?, type_code),
            title_en    = COALESCE(?, title_en),
            title_fr    = COALESCE(?, title_fr),
            updated_at  = ?
        WHERE patent_number = ?;
    `
	_, err := t.tx.ExecContext(ctx, updateQuery,
		r.FilingDate, r.GrantDate, r.StatusCode, r.TypeCode,
		r.TitleEN, r.TitleFR, time.Now().UTC(), r.PatentNumber)
	if err != nil {
		return fmt.Errorf("update patent %s: %w", r.PatentNumber, err)
	}
	t.parents[r.PatentNumber] = struct{}{}
	return nil
}

// ensureParent inserts a stub patents row for a child's patent number if one
// does not exist yet. The stub is filled in when the main file arrives.
func (t *FileTx) ensureParent(ctx context.Context, patentNumber string) error {
	if _, ok := t.parents[patentNumber]; ok {
		return nil
	}
	const query = `INSERT INTO patents (patent_number) VALUES (?) ON CONFLICT DO NOTHING;`
	if _, err := t.tx.ExecContext(ctx, query, patentNumber); err != nil {
		return fmt.Errorf("ensure parent row for %s: %w", patentNumber, err)
	}
	t.parents[patentNumber] = struct{}{}
	return nil
}

var textTables = map[parse.Table]string{
	parse.TableAbstract:   "patent_abstracts",
	parse.TableClaim:      "patent_claims",
	parse.TableDisclosure: "patent_disclosures",
}

func (t *FileTx) insertText(ctx context.Context, r parse.TextRecord) error {
	tableName, ok := textTables[r.Kind]
	if !ok {
		return fmt.Errorf("no text table for kind %q", r.Kind)
	}
	if err := t.ensureParent(ctx, r.PatentNumber); err != nil {
		return err
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (patent_number, sequence, language, text)
        VALUES (?, ?, ?, ?)
        ON CONFLICT DO NOTHING;
    `, tableName)
	if _, err := t.tx.ExecContext(ctx, query, r.PatentNumber, r.Sequence, r.Language, r.Text); err != nil {
		return fmt.Errorf("insert %s row for %s: %w", tableName, r.PatentNumber, err)
	}
	return nil
}

func (t *FileTx) insertParty(ctx context.Context, r parse.PartyRecord) error {
	if err := t.ensureParent(ctx, r.PatentNumber); err != nil {
		return err
	}
	const query = `
        INSERT INTO patent_parties (patent_number, role_code, role, name, address, city, province, country)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT DO NOTHING;
    `
	_, err := t.tx.ExecContext(ctx, query,
		r.PatentNumber, r.RoleCode, r.Role, r.Name, r.Address, r.City, r.Province, r.Country)
	if err != nil {
		return fmt.Errorf("insert party row for %s: %w", r.PatentNumber, err)
	}
	return nil
}

func (t *FileTx) insertIPC(ctx context.Context, r parse.IPCRecord) error {
	if err := t.ensureParent(ctx, r.PatentNumber); err != nil {
		return err
	}
	const query = `
        INSERT INTO patent_ipc (patent_number, sequence, section_code, section_title, class_code, subclass_code, code)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT DO NOTHING;
    `
	_, err := t.tx.ExecContext(ctx, query,
		r.PatentNumber, r.Sequence, r.SectionCode, r.SectionTitle, r.ClassCode, r.SubclassCode, r.Code)
	if err != nil {
		return fmt.Errorf("insert ipc row for %s: %w", r.PatentNumber, err)
	}
	return nil
}

func (t *FileTx) insertPriority(ctx context.Context, r parse.PriorityRecord) error {
	if err := t.ensureParent(ctx, r.PatentNumber); err != nil {
		return err
	}
	const query = `
        INSERT INTO patent_priority_claims (patent_number, country_code, country, priority_date, foreign_number, kind_code)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT DO NOTHING;
    `
	_, err := t.tx.ExecContext(ctx, query,
		r.PatentNumber, r.CountryCode, r.Country, r.PriorityDate, r.ForeignNumber, r.KindCode)
	if err != nil {
		return fmt.Errorf("insert priority claim row for %s: %w", r.PatentNumber, err)
	}
	return nil
}
