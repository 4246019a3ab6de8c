package ingest

import (
	"compliancedash/pkg/domain"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// FeeWarning records a filing fee cell that held no leading number and was
// imported as 0. Row counts data rows from 1.
type FeeWarning struct {
	Row   int
	Value string
}

func (w FeeWarning) String() string {
	return fmt.Sprintf("%s (data row %d): %q is not a number, stored as 0", ColFilingFee, w.Row, w.Value)
}

// Convert maps rows to plants with ids 1..N in row order. Blank columns take
// the import defaults. Fee cells without a leading number become 0 and are
// reported as warnings.
func Convert(rows []Row) ([]domain.Plant, []FeeWarning) {
	plants := make([]domain.Plant, 0, len(rows))
	var warnings []FeeWarning
	for i, row := range rows {
		fee, ok := ParseFee(row[ColFilingFee])
		if !ok {
			warnings = append(warnings, FeeWarning{Row: i + 1, Value: row[ColFilingFee]})
		}
		full := row[ColFullAddress]
		plants = append(plants, domain.Plant{
			ID:              i + 1,
			Name:            row[ColPlantName],
			FullAddress:     full,
			AddressOnly:     domain.FirstAddress(full),
			City:            row[ColCity],
			State:           row[ColState],
			Reporter2025:    orDefault(row[ColReporter2025], domain.DefaultReporter),
			ReportingStatus: orDefault(row[ColReportingStatus], domain.DefaultReportingStatus),
			FilingFee:       fee,
			AdditionalFee:   orDefault(row[ColAdditionalFee], domain.DefaultAdditionalFee),
			AdditionalSteps: orDefault(row[ColAdditionalSteps], domain.DefaultAdditionalSteps),
			Notes:           row[ColNotes],
		})
	}
	return plants, warnings
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseFee reads the leading number of a filing fee cell after removing "$",
// thousands separators and spaces, so "500 (paid)" yields 500. Blank yields
// 0 and ok. A cell with no leading number yields 0 and !ok.
func ParseFee(s string) (float64, bool) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, true
	}
	num := leadingNumber.FindString(s)
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Parse reads and converts a workbook in one step.
func Parse(r io.Reader) ([]domain.Plant, []FeeWarning, error) {
	rows, err := ReadWorkbook(r)
	if err != nil {
		return nil, nil, err
	}
	plants, warnings := Convert(rows)
	return plants, warnings, nil
}
