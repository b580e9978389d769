package parse

import (
	"database/sql"
	"strings"
)

// Table identifies one of the seven relational tables a source file feeds.
type Table string

const (
	TableMain       Table = "main"
	TableAbstract   Table = "abstract"
	TableClaim      Table = "claim"
	TableDisclosure Table = "disclosure"
	TableParty      Table = "party"
	TableIPC        Table = "ipc"
	TablePriority   Table = "priority"
)

// AllTables lists every table in a stable order, parents before children.
var AllTables = []Table{
	TableMain, TableAbstract, TableClaim, TableDisclosure,
	TableParty, TableIPC, TablePriority,
}

// ClassifyFilename maps a source filename to the table it feeds. The bulk
// dataset names its files pt_main_*, pt_abstract_* and so on.
func ClassifyFilename(name string) (Table, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "pt_main"):
		return TableMain, true
	case strings.Contains(lower, "pt_abstract"):
		return TableAbstract, true
	case strings.Contains(lower, "pt_claim"):
		return TableClaim, true
	case strings.Contains(lower, "pt_disclosure"):
		return TableDisclosure, true
	case strings.Contains(lower, "pt_interested_party"):
		return TableParty, true
	case strings.Contains(lower, "pt_ipc_classification"):
		return TableIPC, true
	case strings.Contains(lower, "pt_priority_claim"):
		return TablePriority, true
	}
	return "", false
}

// Record is one typed row from a source file. Concrete types below, one per
// table; consumers type-switch.
type Record interface {
	RecordTable() Table
}

// MainRecord is one row of the main patents table. Optional fields are
// sql.Null* so that absent upstream data stays distinct from empty strings.
type MainRecord struct {
	PatentNumber string
	FilingDate   sql.NullString
	GrantDate    sql.NullString
	StatusCode   sql.NullString
	TypeCode     sql.NullString
	TitleEN      sql.NullString
	TitleFR      sql.NullString
}

func (MainRecord) RecordTable() Table { return TableMain }

// TextRecord is one abstract, claim, or disclosure row. Which of the three
// it is comes from the table it was parsed under.
type TextRecord struct {
	Kind         Table
	PatentNumber string
	Sequence     int
	Language     string
	Text         string
}

func (r TextRecord) RecordTable() Table { return r.Kind }

type PartyRecord struct {
	PatentNumber string
	RoleCode     sql.NullString
	Role         string
	Name         string
	Address      sql.NullString
	City         sql.NullString
	Province     sql.NullString
	Country      sql.NullString
}

func (PartyRecord) RecordTable() Table { return TableParty }

type IPCRecord struct {
	PatentNumber string
	Sequence     int
	SectionCode  string
	SectionTitle sql.NullString
	ClassCode    sql.NullString
	SubclassCode sql.NullString
	Code         string
}

func (IPCRecord) RecordTable() Table { return TableIPC }

type PriorityRecord struct {
	PatentNumber  string
	CountryCode   string
	Country       sql.NullString
	PriorityDate  sql.NullString
	ForeignNumber string
	KindCode      sql.NullString
}

func (PriorityRecord) RecordTable() Table { return TablePriority }

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
