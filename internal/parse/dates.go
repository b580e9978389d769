package parse

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// isoDate is the canonical date form all parsed dates are normalized to.
const isoDate = "2006-01-02"

// dateLayouts covers the forms seen across the bulk files. Tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// normalizeDate returns the ISO form of the raw date string. An empty input
// is absent, not an error; an unparseable non-empty input is an error and
// marks the whole row malformed.
func normalizeDate(raw string) (sql.NullString, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return sql.NullString{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return sql.NullString{String: t.Format(isoDate), Valid: true}, nil
		}
	}
	return sql.NullString{}, fmt.Errorf("unparseable date %q", raw)
}
