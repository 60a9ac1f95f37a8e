package calendar

import (
	"regexp"
	"strconv"
)

var yearRangeRe = regexp.MustCompile(`^(\d{1,2})\.\.(\d{1,2})$`)

// yearKind discriminates the Year tagged union. Repetition exists for
// parity with the grammar's design (a stepped year range) but the parser
// never constructs it directly from a calendar string.
type yearKind int

const (
	yearAll yearKind = iota
	yearRange
	yearRepetition
	yearSingle
)

// Year is the calendar's year field: All, a plain range, a stepped
// repetition, or one concrete year.
type Year struct {
	kind      yearKind
	single    int
	lo, hi    int
	repStart  int
	repEnd    *int
	repStep   uint8
}

// AllYear matches every year.
func AllYear() Year { return Year{kind: yearAll} }

// Matches reports whether given matches this year field.
func (y Year) Matches(given int) bool {
	switch y.kind {
	case yearAll:
		return true
	case yearRange:
		return y.lo <= given && given <= y.hi
	case yearRepetition:
		end := 9999
		if y.repEnd != nil {
			end = *y.repEnd
		}
		if given < y.repStart || given > end {
			return false
		}
		return (given-y.repStart)%int(y.repStep) == 0
	case yearSingle:
		return y.single == given
	default:
		return false
	}
}

// parseYear parses the year component of a calendar date field. Note: the
// range regex only accepts 1-2 digit bounds (inherited verbatim from the
// original grammar), so a 4-digit year range such as "2022..2024" never
// matches it and falls through to a plain integer parse, which fails for
// that input. This is a faithfully preserved quirk, not a bug introduced
// here.
func parseYear(yearish string) (Year, error) {
	if yearish == "*" {
		return AllYear(), nil
	}
	if caps := yearRangeRe.FindStringSubmatch(yearish); caps != nil {
		first, err := strconv.Atoi(caps[1])
		if err != nil {
			return Year{}, err
		}
		second, err := strconv.Atoi(caps[2])
		if err != nil {
			return Year{}, err
		}
		return Year{kind: yearRange, lo: first, hi: second}, nil
	}
	v, err := strconv.Atoi(yearish)
	if err != nil {
		return Year{}, err
	}
	return Year{kind: yearSingle, single: v}, nil
}
