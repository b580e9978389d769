package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Import event types, one journal row each. A resource counts as imported
// only once it has an import_end row; anything less leaves it eligible for
// retry on the next run.
const (
	EventDiscovered    = "discovered"
	EventDownloadStart = "download_start"
	EventDownloadEnd   = "download_end"
	EventSkipDownload  = "skip_download"
	EventImportStart   = "import_start"
	EventImportEnd     = "import_end"
	EventError         = "error"
)

// LogEvent appends one event row to the import journal.
func LogEvent(ctx context.Context, db *sql.DB, filename, event, message string, records int64) error {
	const query = `
        INSERT INTO import_log (filename, event, event_timestamp, message, records)
        VALUES (?, ?, ?, ?, ?);
    `
	_, err := db.ExecContext(ctx, query,
		filename,
		event,
		time.Now().UTC(),
		sql.NullString{String: message, Valid: message != ""},
		sql.NullInt64{Int64: records, Valid: records > 0},
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", event, filename, err)
	}
	return nil
}

// ImportedSet reports which of the named resources have ever completed an
// import.
func ImportedSet(ctx context.Context, db *sql.DB, filenames []string) (map[string]bool, error) {
	imported := make(map[string]bool)
	if len(filenames) == 0 {
		return imported, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filenames)), ",")
	query := fmt.Sprintf(`
        SELECT DISTINCT filename FROM import_log
        WHERE event = ? AND filename IN (%s);
    `, placeholders)
	args := make([]any, 0, len(filenames)+1)
	args = append(args, EventImportEnd)
	for _, fn := range filenames {
		args = append(args, fn)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed query imported set: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fn string
		if err := rows.Scan(&fn); err != nil {
			return nil, fmt.Errorf("failed scanning imported set row: %w", err)
		}
		imported[fn] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating imported set rows: %w", err)
	}
	return imported, nil
}

// ImportEvent is one journal row as surfaced by history queries.
type ImportEvent struct {
	Filename  string    `json:"filename"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	Records   int64     `json:"records,omitempty"`
}

// ImportHistory returns the most recent journal rows, newest first.
func ImportHistory(ctx context.Context, db *sql.DB, limit int) ([]ImportEvent, error) {
	const query = `
        SELECT filename, event, event_timestamp, message, records
        FROM import_log
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT ?;
    `
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import history: %w", err)
	}
	defer rows.Close()

	var events []ImportEvent
	for rows.Next() {
		var ev ImportEvent
		var message sql.NullString
		var records sql.NullInt64
		if err := rows.Scan(&ev.Filename, &ev.Event, &ev.Timestamp, &message, &records); err != nil {
			return nil, fmt.Errorf("failed to scan import history row: %w", err)
		}
		ev.Message = message.String
		ev.Records = records.Int64
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import history rows: %w", err)
	}
	return events, nil
}
