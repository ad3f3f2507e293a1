package core

import (
	"fmt"
	"time"
)

// MonthRange returns the half-open interval [first of month, first of next month)
// for a zero-based month. Out-of-range months roll into the adjacent years.
func MonthRange(year, month0 int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(year, time.Month(month0+1), 1, 0, 0, 0, 0, loc)
	end := time.Date(year, time.Month(month0+2), 1, 0, 0, 0, 0, loc)
	return start, end
}

// NormalizeMonth folds a zero-based month outside 0..11 into the right year.
func NormalizeMonth(year, month0 int) (int, int) {
	year += month0 / 12
	month0 %= 12
	if month0 < 0 {
		month0 += 12
		year--
	}
	return year, month0
}

// ShiftMonth moves a zero-based month by delta months.
func ShiftMonth(year, month0, delta int) (int, int) {
	return NormalizeMonth(year, month0+delta)
}

// MonthKey formats a zero-based month as "YYYY-MM".
func MonthKey(year, month0 int) string {
	year, month0 = NormalizeMonth(year, month0)
	return fmt.Sprintf("%04d-%02d", year, month0+1)
}

// QueryForMonth builds the month-scoped query for one owner.
func QueryForMonth(ownerID string, year, month0 int, loc *time.Location) ExpenseQuery {
	from, to := MonthRange(year, month0, loc)
	return ExpenseQuery{OwnerID: ownerID, From: from, To: to}
}
