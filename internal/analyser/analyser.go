// Package analyser runs the trend and opportunity queries over the patent
// store and renders text reports for the CLI and menu.
package analyser

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// LabelCount is one grouped aggregate row.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Trends summarizes filing activity across the store.
type Trends struct {
	TotalPatents  int64        `json:"total_patents"`
	RecentPatents int64        `json:"recent_patents"`
	TopSections   []LabelCount `json:"top_sections"`
	TopAssignees  []LabelCount `json:"top_assignees"`
	FilingsByYear []LabelCount `json:"filings_by_year"`
	Keywords      []LabelCount `json:"keywords"`
}

// Opportunities lists underexplored classes and the most active recent
// filers, as starting points for patent research.
type Opportunities struct {
	UnderexploredClasses []LabelCount `json:"underexplored_classes"`
	ActiveAssignees      []LabelCount `json:"active_assignees"`
}

// techKeywords are matched against recent patent titles to surface
// emerging-technology activity.
var techKeywords = []string{
	"artificial intelligence", "machine learning", "neural network",
	"blockchain", "quantum", "solar", "battery", "drone", "autonomous",
	"internet of things", "5g", "virtual reality", "augmented reality",
	"gene", "crispr", "nanotechnology", "carbon capture", "renewable",
	"electric vehicle", "hydrogen", "telemedicine",
}

// AnalyseTrends computes the trend aggregates.
func AnalyseTrends(ctx context.Context, db *sql.DB) (Trends, error) {
	var t Trends

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patents;`).Scan(&t.TotalPatents); err != nil {
		return t, fmt.Errorf("count patents: %w", err)
	}
	if t.TotalPatents == 0 {
		return t, nil
	}

	err := db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM patents
        WHERE filing_date >= current_date - INTERVAL 5 YEAR;
    `).Scan(&t.RecentPatents)
	if err != nil {
		return t, fmt.Errorf("count recent patents: %w", err)
	}

	if t.TopSections, err = queryCounts(ctx, db, `
        SELECT COALESCE(MAX(section_title), section_code) AS label, COUNT(DISTINCT patent_number) AS n
        FROM patent_ipc
        WHERE section_code IS NOT NULL AND section_code != ''
        GROUP BY section_code
        ORDER BY n DESC
        LIMIT 10;
    `); err != nil {
		return t, fmt.Errorf("top sections: %w", err)
	}

	if t.TopAssignees, err = queryCounts(ctx, db, `
        SELECT name AS label, COUNT(DISTINCT patent_number) AS n
        FROM patent_parties
        WHERE role ILIKE '%applicant%' OR role ILIKE '%owner%'
        GROUP BY name
        ORDER BY n DESC
        LIMIT 10;
    `); err != nil {
		return t, fmt.Errorf("top assignees: %w", err)
	}

	if t.FilingsByYear, err = queryCounts(ctx, db, `
        SELECT CAST(EXTRACT(year FROM filing_date) AS VARCHAR) AS label, COUNT(*) AS n
        FROM patents
        WHERE filing_date IS NOT NULL
        GROUP BY label
        ORDER BY label DESC
        LIMIT 15;
    `); err != nil {
		return t, fmt.Errorf("filings by year: %w", err)
	}

	if t.Keywords, err = keywordCounts(ctx, db); err != nil {
		return t, err
	}
	return t, nil
}

// keywordCounts scans recent titles for the fixed keyword list.
func keywordCounts(ctx context.Context, db *sql.DB) ([]LabelCount, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT LOWER(title_en) FROM patents
        WHERE title_en IS NOT NULL AND filing_date >= current_date - INTERVAL 2 YEAR
        ORDER BY filing_date DESC
        LIMIT 500;
    `)
	if err != nil {
		return nil, fmt.Errorf("query recent titles: %w", err)
	}
	defer rows.Close()

	hits := make(map[string]int64)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title row: %w", err)
		}
		for _, kw := range techKeywords {
			if strings.Contains(title, kw) {
				hits[kw]++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate title rows: %w", err)
	}

	out := make([]LabelCount, 0, len(hits))
	for kw, n := range hits {
		out = append(out, LabelCount{Label: kw, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

// SuggestOpportunities computes the opportunity aggregates.
func SuggestOpportunities(ctx context.Context, db *sql.DB) (Opportunities, error) {
	var o Opportunities
	var err error

	if o.UnderexploredClasses, err = queryCounts(ctx, db, `
        SELECT code AS label, COUNT(DISTINCT patent_number) AS n
        FROM patent_ipc
        WHERE code != ''
        GROUP BY code
        ORDER BY n ASC, label
        LIMIT 10;
    `); err != nil {
		return o, fmt.Errorf("underexplored classes: %w", err)
	}

	if o.ActiveAssignees, err = queryCounts(ctx, db, `
        SELECT pp.name AS label, COUNT(DISTINCT pp.patent_number) AS n
        FROM patent_parties pp
        JOIN patents p ON p.patent_number = pp.patent_number
        WHERE p.filing_date >= current_date - INTERVAL 2 YEAR
          AND (pp.role ILIKE '%applicant%' OR pp.role ILIKE '%owner%')
        GROUP BY pp.name
        ORDER BY n DESC
        LIMIT 5;
    `); err != nil {
		return o, fmt.Errorf("active assignees: %w", err)
	}
	return o, nil
}

func queryCounts(ctx context.Context, db *sql.DB, query string) ([]LabelCount, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LabelCount{}
	for rows.Next() {
		var lc LabelCount
		var label sql.NullString
		if err := rows.Scan(&label, &lc.Count); err != nil {
			return nil, err
		}
		lc.Label = label.String
		out = append(out, lc)
	}
	return out, rows.Err()
}
