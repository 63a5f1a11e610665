// Package export writes newsroom records to spreadsheets for editors.
package export

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"github.com/tealeg/xlsx/v2"

	"github.com/dailyworker/newsroom/internal/model"
)

// Sheet names in the reliability workbook.
const (
	SourcesSheet = "Sources"
	LogSheet     = "Log"
)

var (
	sourcesHeader = []string{"ID", "Name", "Domain", "Credibility", "Academic", "Updated"}
	logHeader     = []string{"Source", "Domain", "Correction", "Requested", "Applied", "Old", "New", "At"}
)

// WriteReliabilityWorkbook writes sources and their reliability log entries
// as an xlsx workbook. Log rows whose source is not in sources keep the raw
// source ID and an empty domain.
func WriteReliabilityWorkbook(w io.Writer, sources []model.Source, entries []model.ReliabilityEntry) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SourcesSheet)
	if err != nil {
		return eris.Wrap(err, "export: add sources sheet")
	}
	addHeader(sheet, sourcesHeader)
	for _, s := range sources {
		row := sheet.AddRow()
		row.AddCell().SetString(s.ID)
		row.AddCell().SetString(s.Name)
		row.AddCell().SetString(s.Domain)
		row.AddCell().SetFloat(s.Credibility)
		row.AddCell().SetBool(s.Academic)
		row.AddCell().SetString(stamp(s.UpdatedAt))
	}

	byID := lo.KeyBy(sources, func(s model.Source) string { return s.ID })

	sheet, err = f.AddSheet(LogSheet)
	if err != nil {
		return eris.Wrap(err, "export: add log sheet")
	}
	addHeader(sheet, logHeader)
	for _, e := range entries {
		name, domain := e.SourceID, ""
		if s, ok := byID[e.SourceID]; ok {
			name, domain = s.Name, s.Domain
		}
		row := sheet.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetString(domain)
		row.AddCell().SetString(e.CorrectionID)
		row.AddCell().SetFloat(e.RequestedDelta)
		row.AddCell().SetFloat(e.AppliedDelta)
		row.AddCell().SetFloat(e.OldScore)
		row.AddCell().SetFloat(e.NewScore)
		row.AddCell().SetString(stamp(e.CreatedAt))
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

func addHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		row.AddCell().SetString(c)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
