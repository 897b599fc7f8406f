package dashboard

import (
	"testing"
	"time"

	"lenddash-backend/lib/chrono"
	"lenddash-backend/lib/scrapers/crm"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func amt(v float64) *float64 {
	return &v
}

func rec(source, creditBy string, day int, amount float64, state string) crm.Record {
	return crm.Record{
		Source:        source,
		DisbursalDate: chrono.Date{Year: 2026, Month: 2, Day: day},
		CreditBy:      creditBy,
		LoanAmount:    amt(amount),
		State:         state,
	}
}

func TestTop3(t *testing.T) {
	records := []crm.Record{
		rec("ELI", "Asha", 1, 100, "RJ"),
		rec("ELI", "Ravi", 2, 300, "RJ"),
		rec("ELI", "Asha", 3, 250, "RJ"),
		rec("ELI", "Meena", 4, 120, "RJ"),
		rec("ELI", "Kiran", 5, 80, "RJ"),
		rec("NBL", "Other", 6, 9999, "RJ"),
	}

	got := top3(records, "ELI")
	want := []TopPerformer{
		{CMName: "Asha", Achievement: 350},
		{CMName: "Ravi", Achievement: 300},
		{CMName: "Meena", Achievement: 120},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}

	require.Empty(t, top3(records, "CP"))
}

func TestTopState(t *testing.T) {
	records := []crm.Record{
		rec("NBL", "A", 1, 100, "Rajasthan"),
		rec("NBL", "B", 2, 500, "Madhya Pradesh"),
		rec("NBL", "C", 3, 450, "Rajasthan"),
	}

	got := topState(records, "NBL")
	require.NotNil(t, got.State)
	require.Equal(t, "Rajasthan", *got.State)
	require.Equal(t, 550.0, got.Total)

	empty := topState(records, "LR")
	require.Nil(t, empty.State)
	require.Equal(t, 0.0, empty.Total)
}

func TestDailyTotals(t *testing.T) {
	records := []crm.Record{
		rec("CP", "A", 1, 100, ""),
		rec("CP", "B", 1, 50, ""),
		rec("CP", "C", 28, 75, ""),
		rec("LR", "D", 2, 9999, ""),
	}

	days, totals := dailyTotals(records, "CP", 2026, time.February)
	require.Len(t, days, 28)
	require.Len(t, totals, 28)
	require.Equal(t, 1, days[0])
	require.Equal(t, 28, days[27])
	require.Equal(t, 150.0, totals[0])
	require.Equal(t, 0.0, totals[1])
	require.Equal(t, 75.0, totals[27])
}

func TestProgressPct(t *testing.T) {
	require.Equal(t, 50.0, progressPct(25_000_000, 50_000_000))
	require.Equal(t, 100.0, progressPct(60_000_000, 50_000_000))
	require.Equal(t, 0.0, progressPct(1, 0))
	require.Equal(t, 33.33, progressPct(1, 3))
}
