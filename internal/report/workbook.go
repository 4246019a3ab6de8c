// Package report renders plant data as Excel workbooks and ZIP bundles.
package report

import (
	"compliancedash/internal/ingest"
	"compliancedash/pkg/domain"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Sheet names used by the generated workbooks.
const (
	ExportSheet = "Compliance Data"
	PlantSheet  = "Plant Report"
)

const colClientNotes = "Client Notes"

// exportWidths are the column widths of the export sheet, in characters.
var exportWidths = []float64{25, 35, 15, 8, 15, 18, 15, 25, 20, 30, 30}

const dateLayout = "2006-01-02"

// ExportFilename names the full export workbook for day now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("Tier2_Compliance_Report_%s.xlsx", now.Format(dateLayout))
}

// PlantReportFilename names the single plant workbook.
func PlantReportFilename(p domain.Plant, now time.Time) string {
	return fmt.Sprintf("%s_Report_%s.xlsx", SafeName(p.Name), now.Format(dateLayout))
}

// SafeName makes s usable as a file or archive path segment.
func SafeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "plant"
	}
	return s
}

func newBook(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func setWidths(f *excelize.File, sheet string, widths []float64) error {
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// WriteExport writes every plant as one row of the "Compliance Data" sheet,
// using the import headers followed by Client Notes.
func WriteExport(w io.Writer, plants []domain.Plant) error {
	f, err := newBook(ExportSheet)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	header := make([]any, 0, len(ingest.Columns)+1)
	for _, c := range ingest.Columns {
		header = append(header, c)
	}
	header = append(header, colClientNotes)
	if err := setRow(f, ExportSheet, 1, header); err != nil {
		return err
	}
	for i, p := range plants {
		if err := setRow(f, ExportSheet, i+2, []any{
			p.Name, p.FullAddress, p.City, p.State, p.Reporter2025, p.ReportingStatus,
			p.FilingFee, p.AdditionalFee, p.AdditionalSteps, p.Notes, p.ClientNotes,
		}); err != nil {
			return err
		}
	}
	if err := setWidths(f, ExportSheet, exportWidths); err != nil {
		return err
	}
	return f.Write(w)
}

func orText(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// plantReportRows lays out the label/value pairs of a plant report.
func plantReportRows(p domain.Plant, files []domain.PlantFile, now time.Time) [][]any {
	rows := [][]any{
		{"Plant Information", "Value"},
		{"Plant Name", p.Name},
		{"Address", orText(p.AddressOnly, p.FullAddress)},
		{"City", p.City},
		{"State", p.State},
		{},
		{"Reporting Details", ""},
		{"Reporting Status", orText(p.ReportingStatus, domain.DefaultReportingStatus)},
		{"2025 Reporter?", orText(p.Reporter2025, "Unknown")},
		{"Filing Fee", fmt.Sprintf("$%.2f", p.FilingFee)},
		{"Additional Fee/Unpaid Fee", orText(p.AdditionalFee, "None")},
		{"Additional Steps", orText(p.AdditionalSteps, "None")},
		{},
		{"Notes", ""},
		{"Internal Notes", orText(p.Notes, "None")},
		{"Client Notes", orText(p.ClientNotes, "None")},
	}
	if len(files) > 0 {
		rows = append(rows, []any{}, []any{"Attached Files", ""})
		for _, file := range files {
			rows = append(rows, []any{file.OriginalName, fmt.Sprintf("%.1f KB", float64(file.Size)/1024)})
		}
	}
	return append(rows, []any{}, []any{"Report Generated", now.Format("2006-01-02 15:04:05 MST")})
}

// WritePlantReport writes the two-column "Plant Report" workbook for p.
func WritePlantReport(w io.Writer, p domain.Plant, files []domain.PlantFile, now time.Time) error {
	f, err := newBook(PlantSheet)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	for i, row := range plantReportRows(p, files, now) {
		if len(row) == 0 {
			continue
		}
		if err := setRow(f, PlantSheet, i+1, row); err != nil {
			return err
		}
	}
	if err := setWidths(f, PlantSheet, []float64{30, 40}); err != nil {
		return err
	}
	return f.Write(w)
}
