package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	rangeRe = regexp.MustCompile(`(\d{1,2})\.\.(\d{1,2})`)
	repRe   = regexp.MustCompile(`(\d{1,2})(\.\.(\d{1,2}))?/(\d{1,2})`)
)

// parseTimeChunk parses one numeric calendar field (month, day, hour,
// minute, or second) into a Field. max and oneBased bound range
// validation; randFn supplies the concrete value chosen for "R".
func parseTimeChunk(part string, max uint8, oneBased bool, randFn func() uint8) (Field, error) {
	switch part {
	case "*":
		return AllField(), nil
	case "R":
		return SetField([]uint8{randFn()}), nil
	}

	var values []uint8
	for _, tok := range strings.Split(part, ",") {
		v, err := parseRepRangeVal(tok, max, oneBased)
		if err != nil {
			return Field{}, err
		}
		values = append(values, v...)
	}
	return SetField(values), nil
}

func parseRepRangeVal(val string, max uint8, oneBased bool) ([]uint8, error) {
	switch {
	case repRe.MatchString(val):
		return parseRepetition(val, max)
	case rangeRe.MatchString(val):
		return parseRange(val, max, oneBased)
	default:
		return parseValue(val)
	}
}

func parseRange(rng string, max uint8, oneBased bool) ([]uint8, error) {
	caps := rangeRe.FindStringSubmatch(rng)
	if caps == nil {
		return nil, fmt.Errorf("no valid captures in %q", rng)
	}
	first, err := strconv.ParseUint(caps[1], 10, 8)
	if err != nil {
		return nil, err
	}
	second, err := strconv.ParseUint(caps[2], 10, 8)
	if err != nil {
		return nil, err
	}
	f, s := uint8(first), uint8(second)

	invalid := s < f ||
		(oneBased && f == 0) ||
		((oneBased && s > max) || (!oneBased && s >= max))
	if invalid {
		return nil, fmt.Errorf("invalid range: '%s'", rng)
	}

	out := make([]uint8, 0, int(s)-int(f)+1)
	for v := f; v <= s; v++ {
		out = append(out, v)
	}
	return out, nil
}

func parseRepetition(rep string, max uint8) ([]uint8, error) {
	caps := repRe.FindStringSubmatch(rep)
	if caps == nil {
		return nil, fmt.Errorf("no valid captures in %q", rep)
	}
	start64, err := strconv.ParseUint(caps[1], 10, 8)
	if err != nil {
		return nil, err
	}
	step64, err := strconv.ParseUint(caps[4], 10, 8)
	if err != nil {
		return nil, err
	}
	start := uint8(start64)
	step := int(step64)
	if step == 0 {
		return nil, fmt.Errorf("invalid repetition step in %q", rep)
	}

	if caps[3] != "" {
		end64, err := strconv.ParseUint(caps[3], 10, 8)
		if err != nil {
			return nil, err
		}
		end := uint8(end64)
		if end < start || end >= max {
			return nil, fmt.Errorf("invalid range: '%d..%d'", start, end)
		}
		var out []uint8
		for v := int(start); v <= int(end); v += step {
			out = append(out, uint8(v))
		}
		return out, nil
	}

	var out []uint8
	for v := int(start); v < int(max); v += step {
		out = append(out, uint8(v))
	}
	return out, nil
}

func parseValue(value string) ([]uint8, error) {
	v, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return nil, err
	}
	return []uint8{uint8(v)}, nil
}
