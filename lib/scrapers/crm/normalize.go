package crm

import (
	"strconv"
	"strings"
	"time"

	"lenddash-backend/lib/chrono"
	"lenddash-backend/lib/timezone"
)

// Record is one normalized disbursed-loan event. Immutable once
// built; discarded when its cache entry is replaced.
type Record struct {
	Source        string      `json:"source"`
	DisbursalDate chrono.Date `json:"disbursal_date"`
	CreditBy      string      `json:"credit_by"`
	// nil when the source rendered something unparsable in the
	// amount column
	LoanAmount *float64 `json:"loan_amount"`
	Branch     string   `json:"branch"`
	State      string   `json:"state"`
	LoanNo     string   `json:"loan_no"`
	LeadID     string   `json:"lead_id"`
}

// candidate source-field names per normalized field, tried in order.
// the portals never agreed on a header vocabulary.
var (
	dateFields   = []string{"Disbursal Date", "Disbursed Date", "disbursal_date", "disbursed_date", "Date"}
	creditFields = []string{"Credit By", "credit_by", "CM", "Sales"}
	amountFields = []string{"Loan Amount", "loan_amount", "Amount", "Disbursed Amount", "disbursed_amount"}
	branchFields = []string{"Branch", "branch"}
	stateFields  = []string{"State", "state", "Region", "region"}
	loanNoFields = []string{"Loan No", "Loan No.", "loan_no", "Loan Number"}
	leadIDFields = []string{"LeadID", "Lead Id", "lead_id", "Lead ID"}
)

var dateFormats = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04",
	"2006-01-02T15:04:05",
	"02-01-2006 03:04:05 PM",
	"2006-01-02 03:04:05 PM",
	"02-01-2006 03:04 PM",
}

func getAny(row map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// ParseDate tries every known portal date format. Day-first formats
// come before their year-first twins only where unambiguous; strings
// that satisfy no format at all get one last chance with their time
// portion chopped off.
func ParseDate(s string) (chrono.Date, bool) {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.Trim(s, " ")
	if s == "" {
		return chrono.Date{}, false
	}

	for _, format := range dateFormats {
		t, err := time.ParseInLocation(format, s, timezone.Location)
		if err == nil {
			return chrono.DateOf(t), true
		}
	}

	// last resort: split off a time portion and parse the date head
	for _, sep := range []string{" ", "T"} {
		head, _, found := strings.Cut(s, sep)
		if found && head != s {
			if d, ok := ParseDate(head); ok {
				return d, true
			}
		}
	}
	return chrono.Date{}, false
}

// ParseAmount strips thousands separators (including lakh-style
// grouping like 1,23,456.50) and parses the remainder as a decimal.
func ParseAmount(s string) *float64 {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.Trim(s, " ")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// DropStats counts rows a normalization pass discarded, split by
// cause. Logged per adapter call as a diagnostic, never surfaced as
// an error.
type DropStats struct {
	ParseFailures int
	OutOfRange    int
}

// NormalizeRows turns raw header->cell rows into Records tagged with
// source, keeping only rows whose date parses and falls inside the
// requested month.
func NormalizeRows(raw []map[string]string, source string, year int, month time.Month) ([]Record, DropStats) {
	var out []Record
	var stats DropStats

	for _, row := range raw {
		date, ok := ParseDate(getAny(row, dateFields))
		if !ok {
			stats.ParseFailures++
			continue
		}
		if date.Year != year || date.Month != month {
			stats.OutOfRange++
			continue
		}

		branch := strings.Trim(getAny(row, branchFields), " ")
		state := strings.Trim(getAny(row, stateFields), " ")
		if state == "" {
			// some portals only report a branch/region
			state = branch
		}

		out = append(out, Record{
			Source:        source,
			DisbursalDate: date,
			CreditBy:      strings.Trim(getAny(row, creditFields), " "),
			LoanAmount:    ParseAmount(getAny(row, amountFields)),
			Branch:        branch,
			State:         state,
			LoanNo:        strings.Trim(getAny(row, loanNoFields), " "),
			LeadID:        strings.Trim(getAny(row, leadIDFields), " "),
		})
	}

	return out, stats
}
