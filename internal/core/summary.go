package core

import (
	"compliancedash/pkg/domain"
	"strings"
)

// Summary is the dashboard statistics block.
type Summary struct {
	TotalPlants     int                   `json:"total_plants"`
	ReportingStatus ReportingStatusCounts `json:"reporting_status"`
	FilingFeeStatus FilingFeeCounts       `json:"filing_fee_status"`
	FilingFeeTotal  float64               `json:"filing_fee_total"`
	Reporter2025    ReporterCounts        `json:"reporter_2025"`
	States          int                   `json:"states"`
}

// ReportingStatusCounts buckets plants by reporting status.
type ReportingStatusCounts struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	NotStarted int `json:"not_started"`
	// Overdue is always zero; every plant shares the March 1 deadline.
	Overdue int `json:"overdue"`
}

// FilingFeeCounts buckets plants by whether a filing fee was recorded.
type FilingFeeCounts struct {
	Paid    int `json:"paid"`
	Pending int `json:"pending"`
}

// ReporterCounts buckets plants by the 2025 reporter flag.
type ReporterCounts struct {
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Unknown int `json:"unknown"`
}

// Summarize computes the statistics for plants.
//
// Yes and No match the flag by substring while Unknown counts every flag
// that is not exactly "yes" or "no", so a value such as "Yes - pending" is
// counted both as Yes and as Unknown.
func Summarize(plants []domain.Plant) Summary {
	sum := Summary{TotalPlants: len(plants)}
	states := make(map[string]struct{})
	for _, p := range plants {
		switch p.ReportingStatus {
		case "Completed", "Complete":
			sum.ReportingStatus.Completed++
		case "In Progress", "Pending":
			sum.ReportingStatus.InProgress++
		case "Not Started", "":
			sum.ReportingStatus.NotStarted++
		}
		if p.FeePaid() {
			sum.FilingFeeStatus.Paid++
		} else if p.FilingFee == 0 {
			sum.FilingFeeStatus.Pending++
		}
		sum.FilingFeeTotal += p.FilingFee

		flag := strings.ToLower(p.Reporter2025)
		if flag != "" && strings.Contains(flag, "yes") {
			sum.Reporter2025.Yes++
		}
		if flag != "" && strings.Contains(flag, "no") {
			sum.Reporter2025.No++
		}
		if flag != "yes" && flag != "no" {
			sum.Reporter2025.Unknown++
		}
		states[p.State] = struct{}{}
	}
	sum.States = len(states)
	return sum
}
