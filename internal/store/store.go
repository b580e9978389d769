// Package store owns the DuckDB patent store: schema, transactional file
// imports, the import event journal, and the browse/analytics queries.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // driver
)

// ErrWriteFailed wraps any failure inside a file import transaction. The
// whole file's writes roll back and the resource stays eligible for retry.
var ErrWriteFailed = errors.New("store write failed")

// ErrNotFound is returned by detail queries for an unknown patent number.
var ErrNotFound = errors.New("patent not found")

// Open opens (or creates) the DuckDB database at path. ":memory:" maps to an
// in-memory database.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path == ":memory:" {
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb at %q: %w", path, err)
	}
	return db, nil
}

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS import_log_id_seq;`

const schemaTablesSQL = `
CREATE TABLE IF NOT EXISTS patents (
    patent_number VARCHAR PRIMARY KEY,
    filing_date   DATE,
    grant_date    DATE,
    status_code   VARCHAR,
    type_code     VARCHAR,
    title_en      VARCHAR,
    title_fr      VARCHAR,
    updated_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS patent_abstracts (
    patent_number VARCHAR NOT NULL,
    sequence      INTEGER NOT NULL,
    language      VARCHAR NOT NULL,
    text          VARCHAR,
    PRIMARY KEY (patent_number, sequence, language)
);

CREATE TABLE IF NOT EXISTS patent_claims (
    patent_number VARCHAR NOT NULL,
    sequence      INTEGER NOT NULL,
    language      VARCHAR NOT NULL,
    text          VARCHAR,
    PRIMARY KEY (patent_number, sequence, language)
);

CREATE TABLE IF NOT EXISTS patent_disclosures (
    patent_number VARCHAR NOT NULL,
    sequence      INTEGER NOT NULL,
    language      VARCHAR NOT NULL,
    text          VARCHAR,
    PRIMARY KEY (patent_number, sequence, language)
);

CREATE TABLE IF NOT EXISTS patent_parties (
    patent_number VARCHAR NOT NULL,
    role_code     VARCHAR,
    role          VARCHAR NOT NULL,
    name          VARCHAR NOT NULL,
    address       VARCHAR,
    city          VARCHAR,
    province      VARCHAR,
    country       VARCHAR,
    PRIMARY KEY (patent_number, role, name)
);

CREATE TABLE IF NOT EXISTS patent_ipc (
    patent_number VARCHAR NOT NULL,
    sequence      INTEGER NOT NULL,
    section_code  VARCHAR,
    section_title VARCHAR,
    class_code    VARCHAR,
    subclass_code VARCHAR,
    code          VARCHAR NOT NULL,
    PRIMARY KEY (patent_number, sequence, code)
);

CREATE TABLE IF NOT EXISTS patent_priority_claims (
    patent_number  VARCHAR NOT NULL,
    country_code   VARCHAR NOT NULL,
    country        VARCHAR,
    priority_date  DATE,
    foreign_number VARCHAR NOT NULL,
    kind_code      VARCHAR,
    PRIMARY KEY (patent_number, country_code, foreign_number)
);

CREATE TABLE IF NOT EXISTS import_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('import_log_id_seq'),
    filename        VARCHAR NOT NULL,
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    message         VARCHAR,
    records         BIGINT
);

CREATE INDEX IF NOT EXISTS idx_patents_status ON patents (status_code);
CREATE INDEX IF NOT EXISTS idx_patents_filing ON patents (filing_date);
CREATE INDEX IF NOT EXISTS idx_abstracts_patent ON patent_abstracts (patent_number);
CREATE INDEX IF NOT EXISTS idx_claims_patent ON patent_claims (patent_number);
CREATE INDEX IF NOT EXISTS idx_disclosures_patent ON patent_disclosures (patent_number);
CREATE INDEX IF NOT EXISTS idx_parties_patent ON patent_parties (patent_number);
CREATE INDEX IF NOT EXISTS idx_ipc_patent ON patent_ipc (patent_number);
CREATE INDEX IF NOT EXISTS idx_ipc_class ON patent_ipc (class_code);
CREATE INDEX IF NOT EXISTS idx_priority_patent ON patent_priority_claims (patent_number);
CREATE INDEX IF NOT EXISTS idx_import_log_file ON import_log (filename, event);
`

// InitializeSchema creates the sequence, tables, and indexes.
func InitializeSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSequenceSQL); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	if _, err := db.Exec(schemaTablesSQL); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}
