package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nben/cipofetch/internal/parse"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitializeSchema(db))
	return db
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func writeAndCommit(t *testing.T, db *sql.DB, recs ...parse.Record) {
	t.Helper()
	ctx := context.Background()
	tx, err := NewWriter(db).Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	for _, rec := range recs {
		require.NoError(t, tx.Write(ctx, rec))
	}
	require.NoError(t, tx.Commit())
}

func TestUpsertMainIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := parse.MainRecord{
		PatentNumber: "CA100",
		FilingDate:   nullStr("2020-01-15"),
		StatusCode:   nullStr("PN"),
		TitleEN:      nullStr("Widget frobnicator"),
	}
	writeAndCommit(t, db, first)
	writeAndCommit(t, db, first)

	// A later row may update some fields and omit others. Omitted fields
	// keep their previously known values.
	second := parse.MainRecord{
		PatentNumber: "CA100",
		StatusCode:   nullStr("GR"),
		GrantDate:    nullStr("2023-04-01"),
	}
	writeAndCommit(t, db, second)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM patents").Scan(&count))
	assert.Equal(t, 1, count)

	detail, err := GetPatentDetail(ctx, db, "CA100")
	require.NoError(t, err)
	assert.Equal(t, "GR", detail.StatusCode)
	assert.Equal(t, "2023-04-01", detail.GrantDate)
	assert.Equal(t, "2020-01-15", detail.FilingDate)
	assert.Equal(t, "Widget frobnicator", detail.TitleEN)
}

func TestChildRowsDeduplicate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	abstract := parse.TextRecord{
		Kind:         parse.TableAbstract,
		PatentNumber: "CA200",
		Sequence:     1,
		Language:     "EN",
		Text:         "An improved device.",
	}
	writeAndCommit(t, db, abstract, abstract)
	writeAndCommit(t, db, abstract)

	detail, err := GetPatentDetail(ctx, db, "CA200")
	require.NoError(t, err)
	require.Len(t, detail.Abstracts, 1)
	assert.Equal(t, "An improved device.", detail.Abstracts[0].Text)
}

func TestChildWriteCreatesParentStub(t *testing.T) {
	db := openTestDB(t)

	claim := parse.TextRecord{
		Kind:         parse.TableClaim,
		PatentNumber: "CA300",
		Sequence:     1,
		Language:     "EN",
		Text:         "1. A device comprising a widget.",
	}
	writeAndCommit(t, db, claim)

	// The stub parent row exists so every child has a matching patent.
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM patents WHERE patent_number = 'CA300'").Scan(&count))
	assert.Equal(t, 1, count)

	// A later main record fills in the stub without losing the claim.
	writeAndCommit(t, db, parse.MainRecord{PatentNumber: "CA300", TitleEN: nullStr("Widget")})
	claims, err := GetClaims(context.Background(), db, "CA300")
	require.NoError(t, err)
	assert.Len(t, claims, 1)
}

func TestRollbackDiscardsFileWrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, err := NewWriter(db).Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Write(ctx, parse.MainRecord{PatentNumber: "CA400"}))
	require.NoError(t, tx.Rollback())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM patents").Scan(&count))
	assert.Zero(t, count)
}

func TestAllRecordTypes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	writeAndCommit(t, db,
		parse.MainRecord{PatentNumber: "CA500", FilingDate: nullStr("2021-03-10"), TitleEN: nullStr("Pump")},
		parse.TextRecord{Kind: parse.TableAbstract, PatentNumber: "CA500", Sequence: 1, Language: "EN", Text: "A pump."},
		parse.TextRecord{Kind: parse.TableDisclosure, PatentNumber: "CA500", Sequence: 1, Language: "EN", Text: "Detailed description."},
		parse.PartyRecord{PatentNumber: "CA500", Role: "Applicant", Name: "Acme Corp", Country: nullStr("CA")},
		parse.IPCRecord{PatentNumber: "CA500", Sequence: 1, SectionCode: "F", ClassCode: nullStr("04"), Code: "F04"},
		parse.PriorityRecord{PatentNumber: "CA500", CountryCode: "US", ForeignNumber: "12/345678", PriorityDate: nullStr("2020-03-11")},
	)

	detail, err := GetPatentDetail(ctx, db, "CA500")
	require.NoError(t, err)
	assert.Len(t, detail.Abstracts, 1)
	require.Len(t, detail.Parties, 1)
	assert.Equal(t, "Acme Corp", detail.Parties[0].Name)
	require.Len(t, detail.IPC, 1)
	assert.Equal(t, "F04", detail.IPC[0].Code)
	require.Len(t, detail.Priority, 1)
	assert.Equal(t, "2020-03-11", detail.Priority[0].PriorityDate)

	// Disclosures stay out of the detail view.
	disclosures, err := GetDisclosures(ctx, db, "CA500")
	require.NoError(t, err)
	assert.Len(t, disclosures, 1)

	counts, err := TableCounts(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["patents"])
	assert.Equal(t, int64(1), counts["patent_parties"])
	assert.Equal(t, int64(0), counts["patent_claims"])
}

func TestGetPatentDetailNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := GetPatentDetail(context.Background(), db, "CA999")
	assert.True(t, IsNotFound(err))
}

func TestSearchPatents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	writeAndCommit(t, db,
		parse.MainRecord{PatentNumber: "CA001", FilingDate: nullStr("2020-01-01"), StatusCode: nullStr("GR"), TitleEN: nullStr("Solar panel mount")},
		parse.MainRecord{PatentNumber: "CA002", FilingDate: nullStr("2021-06-01"), StatusCode: nullStr("PN"), TitleEN: nullStr("Battery charger")},
		parse.MainRecord{PatentNumber: "CA003", FilingDate: nullStr("2022-09-01"), StatusCode: nullStr("GR"), TitleEN: nullStr("Solar tracker")},
		parse.IPCRecord{PatentNumber: "CA001", Sequence: 1, SectionCode: "H", Code: "H02"},
	)

	bySolar, err := SearchPatents(ctx, db, SearchFilters{Query: "solar"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), bySolar.Total)
	assert.Len(t, bySolar.Items, 2)

	byStatus, err := SearchPatents(ctx, db, SearchFilters{Status: "PN"})
	require.NoError(t, err)
	require.Len(t, byStatus.Items, 1)
	assert.Equal(t, "CA002", byStatus.Items[0].PatentNumber)

	bySection, err := SearchPatents(ctx, db, SearchFilters{Section: "H"})
	require.NoError(t, err)
	require.Len(t, bySection.Items, 1)
	assert.Equal(t, "CA001", bySection.Items[0].PatentNumber)

	sorted, err := SearchPatents(ctx, db, SearchFilters{SortBy: "filing_date", Order: "desc"})
	require.NoError(t, err)
	require.Len(t, sorted.Items, 3)
	assert.Equal(t, "CA003", sorted.Items[0].PatentNumber)

	paged, err := SearchPatents(ctx, db, SearchFilters{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), paged.Total)
	require.Len(t, paged.Items, 1)
	assert.Equal(t, "CA003", paged.Items[0].PatentNumber)
}

func TestImportLog(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, LogEvent(ctx, db, "pt_main_1.zip", EventDiscovered, "", 0))
	require.NoError(t, LogEvent(ctx, db, "pt_main_1.zip", EventImportStart, "", 0))
	require.NoError(t, LogEvent(ctx, db, "pt_main_1.zip", EventImportEnd, "", 42))
	require.NoError(t, LogEvent(ctx, db, "pt_main_2.zip", EventError, "download failed", 0))

	imported, err := ImportedSet(ctx, db, []string{"pt_main_1.zip", "pt_main_2.zip", "pt_main_3.zip"})
	require.NoError(t, err)
	assert.True(t, imported["pt_main_1.zip"])
	assert.False(t, imported["pt_main_2.zip"])
	assert.False(t, imported["pt_main_3.zip"])

	history, err := ImportHistory(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, EventError, history[0].Event)
	assert.Equal(t, "download failed", history[0].Message)

	limited, err := ImportHistory(ctx, db, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
