package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PatentSummary is the browse-level view of one patent, without any of the
// large child texts.
type PatentSummary struct {
	PatentNumber string `json:"patent_number"`
	FilingDate   string `json:"filing_date,omitempty"`
	GrantDate    string `json:"grant_date,omitempty"`
	StatusCode   string `json:"status_code,omitempty"`
	TypeCode     string `json:"type_code,omitempty"`
	TitleEN      string `json:"title_en,omitempty"`
	TitleFR      string `json:"title_fr,omitempty"`
}

// TextRow is one abstract, claim, or disclosure row.
type TextRow struct {
	Sequence int    `json:"sequence"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type Party struct {
	Role    string `json:"role"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

type IPCEntry struct {
	Sequence     int    `json:"sequence"`
	Code         string `json:"code"`
	SectionCode  string `json:"section_code,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`
}

type PriorityEntry struct {
	CountryCode   string `json:"country_code"`
	Country       string `json:"country,omitempty"`
	PriorityDate  string `json:"priority_date,omitempty"`
	ForeignNumber string `json:"foreign_number"`
}

// PatentDetail is the detail view: the main row plus every child table
// except claims and disclosures, which stay behind their own lazy queries.
type PatentDetail struct {
	PatentSummary
	Abstracts []TextRow       `json:"abstracts"`
	Parties   []Party         `json:"parties"`
	IPC       []IPCEntry      `json:"ipc"`
	Priority  []PriorityEntry `json:"priority_claims"`
}

// SearchFilters narrows and orders a patent search.
type SearchFilters struct {
	Query   string // matched against titles and patent number
	Status  string // status_code equality
	Section string // IPC section code
	SortBy  string // patent_number, filing_date, grant_date, title
	Order   string // asc or desc
	Page    int
	PerPage int
}

// SearchPage is one page of search results with the unpaginated total.
type SearchPage struct {
	Items   []PatentSummary `json:"items"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

var sortColumns = map[string]string{
	"patent_number": "patent_number",
	"filing_date":   "filing_date",
	"grant_date":    "grant_date",
	"title":         "title_en",
}

// SearchPatents returns one page of patent summaries matching the filters.
func SearchPatents(ctx context.Context, db *sql.DB, f SearchFilters) (SearchPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 200 {
		f.PerPage = 25
	}

	conditions := []string{}
	args := []any{}
	if f.Query != "" {
		conditions = append(conditions, "(title_en ILIKE ? OR title_fr ILIKE ? OR patent_number ILIKE ?)")
		like := "%" + f.Query + "%"
		args = append(args, like, like, f.Query+"%")
	}
	if f.Status != "" {
		conditions = append(conditions, "status_code = ?")
		args = append(args, f.Status)
	}
	if f.Section != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM patent_ipc i WHERE i.patent_number = patents.patent_number AND i.section_code = ?)")
		args = append(args, f.Section)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := SearchPage{Items: []PatentSummary{}, Page: f.Page, PerPage: f.PerPage}

	countQuery := "SELECT COUNT(*) FROM patents" + where
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("failed to count patents: %w", err)
	}

	sortCol, ok := sortColumns[f.SortBy]
	if !ok {
		sortCol = "patent_number"
	}
	order := "ASC"
	if strings.EqualFold(f.Order, "desc") {
		order = "DESC"
	}

	query := fmt.Sprintf(`
        SELECT patent_number, filing_date, grant_date, status_code, type_code, title_en, title_fr
        FROM patents%s
        ORDER BY %s %s NULLS LAST
        LIMIT ? OFFSET ?;
    `, where, sortCol, order)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return page, fmt.Errorf("failed to search patents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, summary)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("error iterating patent rows: %w", err)
	}
	return page, nil
}

func scanSummary(rows *sql.Rows) (PatentSummary, error) {
	var s PatentSummary
	var filing, grant sql.NullTime
	var status, typ, titleEN, titleFR sql.NullString
	if err := rows.Scan(&s.PatentNumber, &filing, &grant, &status, &typ, &titleEN, &titleFR); err != nil {
		return s, fmt.Errorf("failed to scan patent row: %w", err)
	}
	if filing.Valid {
		s.FilingDate = filing.Time.Format("2006-01-02")
	}
	if grant.Valid {
		s.GrantDate = grant.Time.Format("2006-01-02")
	}
	s.StatusCode = status.String
	s.TypeCode = typ.String
	s.TitleEN = titleEN.String
	s.TitleFR = titleFR.String
	return s, nil
}

// GetPatentDetail returns the main row plus abstracts, parties, IPC codes,
// and priority claims. Claims and disclosures stay behind GetClaims and
// GetDisclosures.
func GetPatentDetail(ctx context.Context, db *sql.DB, number string) (PatentDetail, error) {
	detail := PatentDetail{
		Abstracts: []TextRow{},
		Parties:   []Party{},
		IPC:       []IPCEntry{},
		Priority:  []PriorityEntry{},
	}

	const mainQuery = `
        SELECT patent_number, filing_date, grant_date, status_code, type_code, title_en, title_fr
        FROM patents WHERE patent_number = ?;
    `
	rows, err := db.QueryContext(ctx, mainQuery, number)
	if err != nil {
		return detail, fmt.Errorf("failed to query patent %s: %w", number, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return detail, fmt.Errorf("failed to query patent %s: %w", number, err)
		}
		return detail, fmt.Errorf("%w: %s", ErrNotFound, number)
	}
	if detail.PatentSummary, err = scanSummary(rows); err != nil {
		return detail, err
	}
	rows.Close()

	if detail.Abstracts, err = queryText(ctx, db, "patent_abstracts", number); err != nil {
		return detail, err
	}

	const partyQuery = `
        SELECT role, name, address, city, country FROM patent_parties
        WHERE patent_number = ? ORDER BY role, name;
    `
	prows, err := db.QueryContext(ctx, partyQuery, number)
	if err != nil {
		return detail, fmt.Errorf("failed to query parties for %s: %w", number, err)
	}
	defer prows.Close()
	for prows.Next() {
		var p Party
		var address, city, country sql.NullString
		if err := prows.Scan(&p.Role, &p.Name, &address, &city, &country); err != nil {
			return detail, fmt.Errorf("failed to scan party row: %w", err)
		}
		p.Address, p.City, p.Country = address.String, city.String, country.String
		detail.Parties = append(detail.Parties, p)
	}
	if err := prows.Err(); err != nil {
		return detail, fmt.Errorf("error iterating party rows: %w", err)
	}

	const ipcQuery = `
        SELECT sequence, code, section_code, section_title FROM patent_ipc
        WHERE patent_number = ? ORDER BY sequence;
    `
	irows, err := db.QueryContext(ctx, ipcQuery, number)
	if err != nil {
		return detail, fmt.Errorf("failed to query ipc for %s: %w", number, err)
	}
	defer irows.Close()
	for irows.Next() {
		var e IPCEntry
		var section, title sql.NullString
		if err := irows.Scan(&e.Sequence, &e.Code, &section, &title); err != nil {
			return detail, fmt.Errorf("failed to scan ipc row: %w", err)
		}
		e.SectionCode, e.SectionTitle = section.String, title.String
		detail.IPC = append(detail.IPC, e)
	}
	if err := irows.Err(); err != nil {
		return detail, fmt.Errorf("error iterating ipc rows: %w", err)
	}

	const priorityQuery = `
        SELECT country_code, country, priority_date, foreign_number FROM patent_priority_claims
        WHERE patent_number = ? ORDER BY country_code, foreign_number;
    `
	crows, err := db.QueryContext(ctx, priorityQuery, number)
	if err != nil {
		return detail, fmt.Errorf("failed to query priority claims for %s: %w", number, err)
	}
	defer crows.Close()
	for crows.Next() {
		var e PriorityEntry
		var country sql.NullString
		var date sql.NullTime
		if err := crows.Scan(&e.CountryCode, &country, &date, &e.ForeignNumber); err != nil {
			return detail, fmt.Errorf("failed to scan priority claim row: %w", err)
		}
		e.Country = country.String
		if date.Valid {
			e.PriorityDate = date.Time.Format("2006-01-02")
		}
		detail.Priority = append(detail.Priority, e)
	}
	if err := crows.Err(); err != nil {
		return detail, fmt.Errorf("error iterating priority claim rows: %w", err)
	}

	return detail, nil
}

// GetClaims returns the claims text rows for one patent.
func GetClaims(ctx context.Context, db *sql.DB, number string) ([]TextRow, error) {
	return queryText(ctx, db, "patent_claims", number)
}

// GetDisclosures returns the disclosure text rows for one patent.
func GetDisclosures(ctx context.Context, db *sql.DB, number string) ([]TextRow, error) {
	return queryText(ctx, db, "patent_disclosures", number)
}

func queryText(ctx context.Context, db *sql.DB, tableName, number string) ([]TextRow, error) {
	query := fmt.Sprintf(`
        SELECT sequence, language, text FROM %s
        WHERE patent_number = ? ORDER BY sequence, language;
    `, tableName)
	rows, err := db.QueryContext(ctx, query, number)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s for %s: %w", tableName, number, err)
	}
	defer rows.Close()

	out := []TextRow{}
	for rows.Next() {
		var r TextRow
		var text sql.NullString
		if err := rows.Scan(&r.Sequence, &r.Language, &text); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", tableName, err)
		}
		r.Text = text.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", tableName, err)
	}
	return out, nil
}

// TableCounts returns the current row count of every patent table.
func TableCounts(ctx context.Context, db *sql.DB) (map[string]int64, error) {
	tables := []string{
		"patents", "patent_abstracts", "patent_claims", "patent_disclosures",
		"patent_parties", "patent_ipc", "patent_priority_claims",
	}
	counts := make(map[string]int64, len(tables))
	for _, tableName := range tables {
		var n int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableName).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", tableName, err)
		}
		counts[tableName] = n
	}
	return counts, nil
}

// IsNotFound reports whether err is the not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
