package refinery

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLayDays parses a loading date range like "1-3 Oct" into its
// start and end day-of-horizon. The month label is carried through
// unparsed; scheduling works on day numbers only.
func ParseLayDays(text string) (LayDays, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return LayDays{}, fmt.Errorf("empty laydays range")
	}
	days := strings.SplitN(fields[0], "-", 2)
	if len(days) != 2 {
		return LayDays{}, fmt.Errorf("laydays range %q: want \"D1-D2 Mon\"", text)
	}
	start, err := strconv.Atoi(days[0])
	if err != nil {
		return LayDays{}, fmt.Errorf("laydays range %q: bad start day: %w", text, err)
	}
	end, err := strconv.Atoi(days[1])
	if err != nil {
		return LayDays{}, fmt.Errorf("laydays range %q: bad end day: %w", text, err)
	}
	if start < 1 || end < start {
		return LayDays{}, fmt.Errorf("laydays range %q: days out of order", text)
	}
	return LayDays{StartDay: start, EndDay: end, Text: text}, nil
}

// MonthLabel returns the month token of a laydays string ("Oct" from
// "1-3 Oct"), or empty when the text carries none.
func MonthLabel(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}
