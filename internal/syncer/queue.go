package syncer

import (
	"fmt"
	"time"
)

// BuildQueue returns every YYYYMM unit from fromYear/fromMonth through the
// month containing now, ascending. A start after now yields an empty queue.
func BuildQueue(fromYear, fromMonth int, now time.Time) []string {
	endYear, endMonth := now.Year(), int(now.Month())
	var units []string
	for year := fromYear; year <= endYear; year++ {
		first, last := 1, 12
		if year == fromYear {
			first = fromMonth
		}
		if year == endYear {
			last = endMonth
		}
		for month := first; month <= last; month++ {
			units = append(units, fmt.Sprintf("%04d%02d", year, month))
		}
	}
	return units
}

// DisplayUnit turns YYYYMM into YYYY-MM.
func DisplayUnit(unit string) string {
	if len(unit) != 6 {
		return unit
	}
	return unit[:4] + "-" + unit[4:]
}

// PeriodKey turns YYYYMM into the canonical YYYY.MM store key.
func PeriodKey(unit string) string {
	if len(unit) != 6 {
		return unit
	}
	return unit[:4] + "." + unit[4:]
}
