package calendar

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	monthsPerYear uint8 = 12
	// daysPerMonth is a fixed upper bound, not the true length of any
	// particular month; calendars with day=30 in February validate fine
	// here and are simply never matched. TODO: validate per-month length
	// once the scheduler needs to reject such calendars outright.
	daysPerMonth uint8 = 31
)

func parseDate(ymd string) (Year, Field, Field, error) {
	parts := strings.Split(ymd, "-")
	if len(parts) != 3 {
		return Year{}, Field{}, Field{}, fmt.Errorf("invalid date string: '%s'", ymd)
	}

	year, err := parseYear(parts[0])
	if err != nil {
		return Year{}, Field{}, Field{}, err
	}
	month, err := parseTimeChunk(parts[1], monthsPerYear, true, randMonth)
	if err != nil {
		return Year{}, Field{}, Field{}, err
	}
	day, err := parseTimeChunk(parts[2], daysPerMonth, true, randDay)
	if err != nil {
		return Year{}, Field{}, Field{}, err
	}
	return year, month, day, nil
}

func randMonth() uint8 { return uint8(rand.Intn(12) + 1) }

// randDay is bounded to 1..28 inclusive, mirroring the original
// implementation's random-day range even though daysPerMonth is 31.
func randDay() uint8 { return uint8(rand.Intn(28) + 1) }
