package taskwarrior

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePart = regexp.MustCompile(`^(\d+)([WD])`)
	isoTimePart = regexp.MustCompile(`(\d+)([HMS])`)
)

// ParseDuration parses the ISO 8601 durations Taskwarrior exports for
// duration UDAs: PT1H30M, PT45M, P1D, P1DT2H. An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid ISO 8601 duration format: %s", s)
	}

	datePart, timePart, hasTime := strings.Cut(s[1:], "T")
	var total time.Duration

	for datePart != "" {
		m := isoDatePart.FindStringSubmatch(datePart)
		if m == nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration: %s", s)
		}
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "W":
			total += time.Duration(n) * 7 * 24 * time.Hour
		case "D":
			total += time.Duration(n) * 24 * time.Hour
		}
		datePart = datePart[len(m[0]):]
	}

	if hasTime {
		matches := isoTimePart.FindAllStringSubmatch(timePart, -1)
		if len(matches) == 0 {
			return 0, fmt.Errorf("invalid ISO 8601 duration (empty time part): %s", s)
		}
		for _, match := range matches {
			value, _ := strconv.Atoi(match[1])
			switch match[2] {
			case "H":
				total += time.Duration(value) * time.Hour
			case "M":
				total += time.Duration(value) * time.Minute
			case "S":
				total += time.Duration(value) * time.Second
			}
		}
	}

	if total == 0 {
		return 0, fmt.Errorf("invalid ISO 8601 duration: %s", s)
	}
	return total, nil
}
