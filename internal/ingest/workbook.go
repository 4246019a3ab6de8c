// Package ingest turns an uploaded compliance workbook into plant records.
package ingest

import (
	"compliancedash/pkg/domain"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers expected on the first row of the first sheet.
const (
	ColPlantName       = "PLANT_LOCATION_NAME"
	ColFullAddress     = "FULL_ADDRESS"
	ColCity            = "CITY"
	ColState           = "STATE"
	ColReporter2025    = "2025 Reporter?"
	ColReportingStatus = "Reporting Status"
	ColFilingFee       = "Filing Fee"
	ColAdditionalFee   = "Additional Fee/ Unpaid Fee"
	ColAdditionalSteps = "Additional Steps"
	ColNotes           = "Notes"
)

// Columns lists the import headers in sheet order.
var Columns = []string{
	ColPlantName, ColFullAddress, ColCity, ColState, ColReporter2025,
	ColReportingStatus, ColFilingFee, ColAdditionalFee, ColAdditionalSteps, ColNotes,
}

// Workbook content types accepted for upload.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeXLS  = "application/vnd.ms-excel"
)

// Row maps a header to the cell text of one data row.
type Row map[string]string

// CheckContentType rejects uploads that are not Excel workbooks.
func CheckContentType(contentType string) error {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || (mt != ContentTypeXLSX && mt != ContentTypeXLS) {
		return domain.ValidationError{Field: "file", Reason: "Only Excel files are allowed"}
	}
	return nil
}

// ReadWorkbook reads the first sheet of the workbook in r. The first row is
// the header; every later row that is not entirely blank becomes a Row keyed
// by the trimmed header text. Unreadable input is a ValidationError.
func ReadWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.ValidationError{Field: "file", Reason: fmt.Sprintf("unreadable workbook: %v", err)}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.ValidationError{Field: "file", Reason: "workbook has no sheets"}
	}
	grid, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, domain.ValidationError{Field: "file", Reason: fmt.Sprintf("read sheet %q: %v", sheets[0], err)}
	}
	if len(grid) == 0 {
		return []Row{}, nil
	}
	header := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		header[i] = strings.TrimSpace(h)
	}
	rows := make([]Row, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := make(Row, len(header))
		blank := true
		for i, name := range header {
			if name == "" || i >= len(cells) {
				continue
			}
			v := strings.TrimSpace(cells[i])
			if v != "" {
				blank = false
			}
			row[name] = v
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
