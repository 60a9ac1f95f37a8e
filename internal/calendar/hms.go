package calendar

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	hoursPerDay      uint8 = 24
	minutesPerHour   uint8 = 60
	secondsPerMinute uint8 = 60
)

func parseHMS(hms string) (Field, Field, Field, error) {
	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return Field{}, Field{}, Field{}, fmt.Errorf("invalid time string: '%s'", hms)
	}

	hour, err := parseTimeChunk(parts[0], hoursPerDay, false, randHour)
	if err != nil {
		return Field{}, Field{}, Field{}, err
	}
	minute, err := parseTimeChunk(parts[1], minutesPerHour, false, randMinuteOrSecond)
	if err != nil {
		return Field{}, Field{}, Field{}, err
	}
	second, err := parseTimeChunk(parts[2], secondsPerMinute, false, randMinuteOrSecond)
	if err != nil {
		return Field{}, Field{}, Field{}, err
	}
	return hour, minute, second, nil
}

func randHour() uint8 { return uint8(rand.Intn(24)) }

func randMinuteOrSecond() uint8 { return uint8(rand.Intn(60)) }
