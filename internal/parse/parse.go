// Package parse streams the pipe-delimited bulk files into typed records.
// Column headers in the source files are bilingual ("Patent Number - Numéro
// du brevet"); each table has a fixed header-to-field mapping below.
package parse

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Stats summarizes one file's parse: total data rows, records emitted, and
// rows skipped as malformed.
type Stats struct {
	Rows      int
	Records   int
	Malformed int
}

// Bilingual column headers used by the bulk files. Claims files have shipped
// under two spellings of the sequence column.
const (
	colPatentNumber = "Patent Number - Numéro du brevet"
	colFilingDate   = "Filing Date - Date de dépôt"
	colGrantDate    = "Grant Date - Date de l'octroi"
	colStatusCode   = "Application Status Code - Code du statut de la demande"
	colTypeCode     = "Application Type Code - Code du type de la demande"
	colTitleEN      = "Application/Patent Title English - Demande/Titre anglais du brevet"
	colTitleFR      = "Application/Patent Title French - Demande/Titre français du brevet"

	colFilingLanguage = "Language of Filing Code - Langue du type de dépôt"

	colAbstractSeq      = "Abstract text sequence number - Texte de l'abrégé numéro de séquence"
	colAbstractLanguage = "Abstract Language Code - Code de la langue du résumé"
	colAbstractText     = "Abstract Text - Texte de l'abrégé"

	colClaimsSeq    = "Claims text sequence number - Texte des revendications numéro de séquence"
	colClaimSeqAlt  = "Claim text sequence number - Texte des revendications numéro de séquence"
	colClaimsText   = "Claims Text - Texte des revendications"
	colDisclosueSeq = "Disclosure text sequence number - Texte de la divulgation numéro de séquence"
	colDisclosure   = "Disclosure Text - Texte de la divulgation"

	colPartyTypeCode = "Interested Party Type Code - Code du type de partie intéressée"
	colPartyType     = "Interested Party Type - Type de partie intéressée"
	colPartyName     = "Party Name - Nom de la partie"
	colPartyAddress1 = "Party Address Line 1 - Adresse de la partie ligne 1"
	colPartyCity     = "Party City - Ville de la partie"
	colPartyProvince = "Party Province - Province de la partie"
	colPartyCountry  = "Party Country - Pays de la partie"

	colIPCSeq      = "IPC Classification Sequence Number - Numéro de séquence de la classification de la CIB"
	colIPCSection  = "IPC Section Code - Code de la section de la CIB"
	colIPCSectionT = "IPC Section - Section de la CIB"
	colIPCClass    = "IPC Class Code - Code de la classe de la CIB"
	colIPCSubclass = "IPC Subclass Code - Code de la sous-classe de la CIB"
	colIPCGroup    = "IPC Main Group Code - Code du groupe principal de la CIB"
	colIPCSubgroup = "IPC Subgroup Code - Code du sous-groupe de la CIB"

	colPriorityForeign = "Foreign Application/Patent Number - Numéro du brevet étranger / national"
	colPriorityKind    = "Priority Claim Kind Code - Code de type de revendications de priorité"
	colPriorityCtryCd  = "Priority Claim Country Code - Code du pays d'origine de revendications de priorité"
	colPriorityCtry    = "Priority Claim Country - Pays d'origine de revendications de priorité"
	colPriorityDate    = "Priority Claim Calendar Dt - Date de revendications de priorité"
)

// Parser converts delimited source files into typed records.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseFile streams the file at path, emitting one Record per well-formed
// row. emit errors abort the parse immediately; malformed rows are counted
// and skipped. The returned Stats are valid even when an error is returned.
func (p *Parser) ParseFile(ctx context.Context, table Table, path string, emit func(Record) error) (Stats, error) {
	var stats Stats

	select {
	case <-ctx.Done():
		return stats, ctx.Err()
	default:
	}

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	l := p.logger.With(slog.String("file", filepath.Base(path)), slog.String("table", string(table)))

	r := csv.NewReader(f)
	r.Comma = '|'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return stats, fmt.Errorf("read header of %s: %w", path, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	mapRow, err := rowMapper(table)
	if err != nil {
		return stats, err
	}

	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// csv errors here are row-local (bare quote etc), count and move on
			stats.Rows++
			stats.Malformed++
			l.Warn("Skipping unreadable row.", slog.Int("row", stats.Rows), "error", err)
			continue
		}
		stats.Rows++
		if len(fields) != len(header) {
			stats.Malformed++
			l.Warn("Skipping row with wrong column count.",
				slog.Int("row", stats.Rows), slog.Int("got", len(fields)), slog.Int("want", len(header)))
			continue
		}
		rec, err := mapRow(rowView{cols: cols, fields: fields})
		if err != nil {
			stats.Malformed++
			l.Warn("Skipping malformed row.", slog.Int("row", stats.Rows), "error", err)
			continue
		}
		if err := emit(rec); err != nil {
			return stats, fmt.Errorf("emit record from %s row %d: %w", path, stats.Rows, err)
		}
		stats.Records++
	}

	l.Debug("File parsed.", slog.Int("rows", stats.Rows),
		slog.Int("records", stats.Records), slog.Int("malformed", stats.Malformed))
	return stats, nil
}

// rowView gives mappers named access into one row's fields.
type rowView struct {
	cols   map[string]int
	fields []string
}

// get returns the first named column present in the header, trimmed. Missing
// columns read as empty.
func (v rowView) get(names ...string) string {
	for _, name := range names {
		if i, ok := v.cols[name]; ok && i < len(v.fields) {
			return strings.TrimSpace(v.fields[i])
		}
	}
	return ""
}

func (v rowView) patentNumber() (string, error) {
	n := v.get(colPatentNumber)
	if n == "" {
		return "", errors.New("missing patent number")
	}
	return n, nil
}

func (v rowView) sequence(names ...string) (int, error) {
	raw := v.get(names...)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad sequence number %q", raw)
	}
	return n, nil
}

func rowMapper(table Table) (func(rowView) (Record, error), error) {
	switch table {
	case TableMain:
		return mapMain, nil
	case TableAbstract:
		return mapText(TableAbstract, colAbstractText, []string{colAbstractSeq}, []string{colAbstractLanguage, colFilingLanguage}), nil
	case TableClaim:
		return mapText(TableClaim, colClaimsText, []string{colClaimsSeq, colClaimSeqAlt}, []string{colFilingLanguage}), nil
	case TableDisclosure:
		return mapText(TableDisclosure, colDisclosure, []string{colDisclosueSeq}, []string{colFilingLanguage}), nil
	case TableParty:
		return mapParty, nil
	case TableIPC:
		return mapIPC, nil
	case TablePriority:
		return mapPriority, nil
	}
	return nil, fmt.Errorf("no row mapping for table %q", table)
}

func mapMain(v rowView) (Record, error) {
	number, err := v.patentNumber()
	if err != nil {
		return nil, err
	}
	filing, err := normalizeDate(v.get(colFilingDate))
	if err != nil {
		return nil, err
	}
	grant, err := normalizeDate(v.get(colGrantDate))
	if err != nil {
		return nil, err
	}
	return MainRecord{
		PatentNumber: number,
		FilingDate:   filing,
		GrantDate:    grant,
		StatusCode:   nullable(v.get(colStatusCode)),
		TypeCode:     nullable(v.get(colTypeCode)),
		TitleEN:      nullable(v.get(colTitleEN)),
		TitleFR:      nullable(v.get(colTitleFR)),
	}, nil
}

func mapText(kind Table, textCol string, seqCols, langCols []string) func(rowView) (Record, error) {
	return func(v rowView) (Record, error) {
		number, err := v.patentNumber()
		if err != nil {
			return nil, err
		}
		seq, err := v.sequence(seqCols...)
		if err != nil {
			return nil, err
		}
		return TextRecord{
			Kind:         kind,
			PatentNumber: number,
			Sequence:     seq,
			Language:     strings.ToUpper(v.get(langCols...)),
			Text:         v.get(textCol),
		}, nil
	}
}

func mapParty(v rowView) (Record, error) {
	number, err := v.patentNumber()
	if err != nil {
		return nil, err
	}
	name := v.get(colPartyName)
	if name == "" {
		return nil, errors.New("missing party name")
	}
	return PartyRecord{
		PatentNumber: number,
		RoleCode:     nullable(v.get(colPartyTypeCode)),
		Role:         v.get(colPartyType),
		Name:         name,
		Address:      nullable(v.get(colPartyAddress1)),
		City:         nullable(v.get(colPartyCity)),
		Province:     nullable(v.get(colPartyProvince)),
		Country:      nullable(v.get(colPartyCountry)),
	}, nil
}

func mapIPC(v rowView) (Record, error) {
	number, err := v.patentNumber()
	if err != nil {
		return nil, err
	}
	seq, err := v.sequence(colIPCSeq)
	if err != nil {
		return nil, err
	}
	section := v.get(colIPCSection)
	class := v.get(colIPCClass)
	subclass := v.get(colIPCSubclass)
	code := section + class + subclass
	if group := v.get(colIPCGroup); group != "" {
		code += " " + group
		if sub := v.get(colIPCSubgroup); sub != "" {
			code += "/" + sub
		}
	}
	return IPCRecord{
		PatentNumber: number,
		Sequence:     seq,
		SectionCode:  section,
		SectionTitle: nullable(v.get(colIPCSectionT)),
		ClassCode:    nullable(class),
		SubclassCode: nullable(subclass),
		Code:         code,
	}, nil
}

func mapPriority(v rowView) (Record, error) {
	number, err := v.patentNumber()
	if err != nil {
		return nil, err
	}
	date, err := normalizeDate(v.get(colPriorityDate))
	if err != nil {
		return nil, err
	}
	return PriorityRecord{
		PatentNumber:  number,
		CountryCode:   v.get(colPriorityCtryCd),
		Country:       nullable(v.get(colPriorityCtry)),
		PriorityDate:  date,
		ForeignNumber: v.get(colPriorityForeign),
		KindCode:      nullable(v.get(colPriorityKind)),
	}, nil
}
