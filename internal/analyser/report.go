package analyser

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nben/cipofetch/internal/store"
)

const ruleWidth = 60

func rule(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
}

// RenderTrends writes the trend summary as plain text.
func RenderTrends(w io.Writer, t Trends) {
	rule(w)
	fmt.Fprintln(w, "CANADIAN PATENT ANALYSIS & INSIGHTS")
	rule(w)
	fmt.Fprintf(w, "Total patents in database: %d\n", t.TotalPatents)
	if t.TotalPatents == 0 {
		fmt.Fprintln(w, "No patents found. Run a fetch first.")
		return
	}
	fmt.Fprintf(w, "Patents filed in last 5 years: %d\n", t.RecentPatents)

	fmt.Fprintln(w, "\nTop IPC sections:")
	renderCounts(w, t.TopSections)
	fmt.Fprintln(w, "\nTop assignees:")
	renderCounts(w, t.TopAssignees)

	fmt.Fprintln(w, "\nFilings by year:")
	for _, lc := range t.FilingsByYear {
		bar := strings.Repeat("#", int(min64(lc.Count/100+1, 50)))
		fmt.Fprintf(w, "  %s: %s (%d)\n", lc.Label, bar, lc.Count)
	}

	if len(t.Keywords) > 0 {
		fmt.Fprintln(w, "\nEmerging technology keywords in recent titles:")
		renderCounts(w, t.Keywords)
	}
}

// RenderOpportunities writes the opportunity summary as plain text.
func RenderOpportunities(w io.Writer, o Opportunities) {
	rule(w)
	fmt.Fprintln(w, "PATENT OPPORTUNITY SUGGESTIONS")
	rule(w)

	fmt.Fprintln(w, "Underexplored IPC classes (fewest filings):")
	renderCounts(w, o.UnderexploredClasses)

	if len(o.ActiveAssignees) > 0 {
		fmt.Fprintln(w, "\nMost active assignees in the last 2 years:")
		renderCounts(w, o.ActiveAssignees)
	}
}

// WriteReport renders the combined analysis report: table counts, trends,
// and opportunities.
func WriteReport(ctx context.Context, db *sql.DB, w io.Writer) error {
	rule(w)
	fmt.Fprintln(w, "CANADIAN PATENT ANALYSIS REPORT")
	fmt.Fprintf(w, "Generated: %s\n", time.Now().Format(time.RFC3339))
	rule(w)

	counts, err := store.TableCounts(ctx, db)
	if err != nil {
		return fmt.Errorf("table counts: %w", err)
	}
	fmt.Fprintln(w, "Row counts:")
	for _, tableName := range []string{
		"patents", "patent_abstracts", "patent_claims", "patent_disclosures",
		"patent_parties", "patent_ipc", "patent_priority_claims",
	} {
		fmt.Fprintf(w, "  %-24s %d\n", tableName, counts[tableName])
	}
	fmt.Fprintln(w)

	trends, err := AnalyseTrends(ctx, db)
	if err != nil {
		return fmt.Errorf("analyse trends: %w", err)
	}
	RenderTrends(w, trends)
	fmt.Fprintln(w)

	opportunities, err := SuggestOpportunities(ctx, db)
	if err != nil {
		return fmt.Errorf("suggest opportunities: %w", err)
	}
	RenderOpportunities(w, opportunities)
	return nil
}

func renderCounts(w io.Writer, counts []LabelCount) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "  (no data)")
		return
	}
	for i, lc := range counts {
		label := lc.Label
		if len(label) > 50 {
			label = label[:50]
		}
		fmt.Fprintf(w, "  %2d. %-50s (%d)\n", i+1, label, lc.Count)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
