package dashboard

import (
	"math"
	"sort"
	"strings"
	"time"

	"lenddash-backend/lib/chrono"
	"lenddash-backend/lib/scrapers/crm"
)

// TopPerformer is one crediting agent's monthly total. The field
// names are the ones the dashboard UI binds to.
type TopPerformer struct {
	CMName      string  `json:"CM_Name"`
	Achievement float64 `json:"Achievement"`
}

// top3 ranks crediting agents of one source by summed loan amount.
func top3(records []crm.Record, source string) []TopPerformer {
	totals := map[string]float64{}
	for _, r := range records {
		if r.Source != source || r.LoanAmount == nil {
			continue
		}
		totals[strings.Trim(r.CreditBy, " ")] += *r.LoanAmount
	}
	if len(totals) == 0 {
		return []TopPerformer{}
	}

	ranked := make([]TopPerformer, 0, len(totals))
	for name, total := range totals {
		ranked = append(ranked, TopPerformer{CMName: name, Achievement: total})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Achievement != ranked[j].Achievement {
			return ranked[i].Achievement > ranked[j].Achievement
		}
		// deterministic order for equal totals
		return ranked[i].CMName < ranked[j].CMName
	})

	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	return ranked
}

type StateTotal struct {
	State *string `json:"state"`
	Total float64 `json:"total"`
}

// topState finds the state with the highest summed loan amount for
// one source. State is null when the source has no usable rows.
func topState(records []crm.Record, source string) StateTotal {
	totals := map[string]float64{}
	for _, r := range records {
		if r.Source != source || r.LoanAmount == nil {
			continue
		}
		totals[strings.Trim(r.State, " ")] += *r.LoanAmount
	}
	if len(totals) == 0 {
		return StateTotal{}
	}

	var best string
	bestTotal := math.Inf(-1)
	for state, total := range totals {
		if total > bestTotal || (total == bestTotal && state < best) {
			best, bestTotal = state, total
		}
	}
	return StateTotal{State: &best, Total: bestTotal}
}

// dailyTotals sums one source's amounts per day of the month. Days
// with no activity report zero so charts always span the full month.
func dailyTotals(records []crm.Record, source string, year int, month time.Month) (days []int, totals []float64) {
	n := chrono.DaysInMonth(year, month)
	days = make([]int, n)
	totals = make([]float64, n)
	for i := range days {
		days[i] = i + 1
	}

	for _, r := range records {
		if r.Source != source || r.LoanAmount == nil {
			continue
		}
		day := r.DisbursalDate.Day
		if day < 1 || day > n {
			continue
		}
		totals[day-1] += *r.LoanAmount
	}
	return days, totals
}

// sourceTotal sums one source's loan amounts.
func sourceTotal(records []crm.Record, source string) float64 {
	var total float64
	for _, r := range records {
		if r.Source != source || r.LoanAmount == nil {
			continue
		}
		total += *r.LoanAmount
	}
	return total
}

// progressPct reports achievement against a target, capped at 100 and
// rounded to two decimals.
func progressPct(total, target float64) float64 {
	if target == 0 {
		return 0
	}
	pct := math.Min(100, total/target*100)
	return math.Round(pct*100) / 100
}
