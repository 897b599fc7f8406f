package chrono

import (
	"fmt"
	"time"

	"lenddash-backend/lib/timezone"
)

// Date is a calendar date with no time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func Today() Date {
	return DateOf(timezone.Now())
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, timezone.Location)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	t, err := time.ParseInLocation(`"2006-01-02"`, string(data), timezone.Location)
	if err != nil {
		return err
	}
	*d = DateOf(t)
	return nil
}

func DaysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, timezone.Location).Day()
}

// MonthWindow returns the first and last day of the given month.
// For the current calendar month the end is clamped to today so
// refreshes always cover month-to-date.
func MonthWindow(year int, month time.Month) (Date, Date) {
	start := Date{Year: year, Month: month, Day: 1}
	end := Date{Year: year, Month: month, Day: DaysInMonth(year, month)}

	today := Today()
	if today.Year == year && today.Month == month {
		end = today
	}
	return start, end
}
