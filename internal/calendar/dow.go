package calendar

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var dowRangeRe = regexp.MustCompile(`([a-zA-Z]{3,})\.\.([a-zA-Z]{3,})`)

// parseDayOfWeek parses a comma-separated list of weekday names and/or
// name..name ranges. Sunday=0 ... Saturday=6, matching time.Weekday.
func parseDayOfWeek(dowish string) (Field, error) {
	if dowish == "*" {
		return AllField(), nil
	}

	seen := make(map[uint8]struct{})
	for _, tok := range strings.Split(dowish, ",") {
		vals, err := parseRangeOrDow(tok)
		if err != nil {
			return Field{}, err
		}
		for _, v := range vals {
			seen[v] = struct{}{}
		}
	}
	out := make([]uint8, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return Field{values: out}, nil
}

func parseRangeOrDow(tok string) ([]uint8, error) {
	if dowRangeRe.MatchString(tok) {
		return parseDowRange(tok)
	}
	v, err := parseDow(tok)
	if err != nil {
		return nil, err
	}
	return []uint8{v}, nil
}

func parseDowRange(dowRange string) ([]uint8, error) {
	caps := dowRangeRe.FindStringSubmatch(dowRange)
	if caps == nil {
		return nil, fmt.Errorf("no valid captures in %q", dowRange)
	}
	first, err := parseDow(caps[1])
	if err != nil {
		return nil, err
	}
	second, err := parseDow(caps[2])
	if err != nil {
		return nil, err
	}
	if second < first {
		return nil, fmt.Errorf("invalid range: '%s'", dowRange)
	}
	out := make([]uint8, 0, int(second-first)+1)
	for v := first; v <= second; v++ {
		out = append(out, v)
	}
	return out, nil
}

func parseDow(dow string) (uint8, error) {
	switch strings.ToLower(dow) {
	case "sun", "sunday":
		return 0, nil
	case "mon", "monday":
		return 1, nil
	case "tue", "tuesday":
		return 2, nil
	case "wed", "wednesday":
		return 3, nil
	case "thu", "thursday":
		return 4, nil
	case "fri", "friday":
		return 5, nil
	case "sat", "saturday":
		return 6, nil
	default:
		return 0, fmt.Errorf("invalid day of week: %s", dow)
	}
}
