// Package orgmode reads TODO headings with an :EFFORT: property from Org files.
package orgmode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Heading is one TODO-style heading of an Org file.
type Heading struct {
	Source   string
	Keyword  string
	Priority string
	Title    string
	Tags     []string
	ID       string
	// EffortMinutes is the :EFFORT: property, or zero when absent.
	EffortMinutes int
}

var (
	headingRegex = regexp.MustCompile(`^(\*+)\s+(TODO|NEXT|WAIT|DONE|CANCELLED)\s+(?:\[#([A-Z])\]\s*)?(.*?)(?:\s+(:[\w@:]+:))?\s*$`)
	idRegex      = regexp.MustCompile(`^:ID:\s+(\S+)`)
	effortRegex  = regexp.MustCompile(`(?i)^:EFFORT:\s+(.+)$`)
	effortUnit   = regexp.MustCompile(`^(\d+)\s*(h|min|m|d)`)
)

// ParseFiles parses multiple Org-mode files.
func ParseFiles(filePaths []string) ([]Heading, error) {
	var all []Heading
	for _, filePath := range filePaths {
		headings, err := parseFile(filePath)
		if err != nil {
			return nil, err
		}
		all = append(all, headings...)
	}
	return all, nil
}

func parseFile(filePath string) ([]Heading, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file, filePath)
}

// Parse reads every TODO-keyword heading and the properties in its drawer.
func Parse(r io.Reader, source string) ([]Heading, error) {
	scanner := bufio.NewScanner(r)
	var headings []Heading
	var current *Heading

	flush := func() {
		if current != nil && current.Title != "" {
			headings = append(headings, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "*") {
			flush()
			m := headingRegex.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			current = &Heading{
				Source:   source,
				Keyword:  m[2],
				Priority: m[3],
				Title:    strings.TrimSpace(m[4]),
			}
			if m[5] != "" {
				current.Tags = strings.Split(strings.Trim(m[5], ":"), ":")
			}
			continue
		}
		if current == nil {
			continue
		}

		if m := idRegex.FindStringSubmatch(line); m != nil {
			current.ID = m[1]
		} else if m := effortRegex.FindStringSubmatch(line); m != nil {
			minutes, err := ParseEffort(m[1])
			if err != nil {
				return nil, fmt.Errorf("%s: heading %q: %w", source, current.Title, err)
			}
			current.EffortMinutes = minutes
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return headings, nil
}

// ParseEffort reads Org effort values: "H:MM", "MM" or "1h30min"-style.
func ParseEffort(s string) (int, error) {
	s = strings.TrimSpace(s)
	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err1 := strconv.Atoi(h)
		mins, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil || hours < 0 || mins < 0 || mins > 59 {
			return 0, fmt.Errorf("invalid effort %q", s)
		}
		return hours*60 + mins, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n, nil
	}

	total := 0
	rest := strings.ToLower(s)
	for rest != "" {
		m := effortUnit.FindStringSubmatch(rest)
		if m == nil {
			return 0, fmt.Errorf("invalid effort %q", s)
		}
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "d":
			total += n * 24 * 60
		case "h":
			total += n * 60
		default:
			total += n
		}
		rest = strings.TrimSpace(rest[len(m[0]):])
	}
	return total, nil
}

// FilterTasks keeps headings carrying the given tag.
func FilterTasks(headings []Heading, tag string) []Heading {
	var filtered []Heading
	for _, h := range headings {
		for _, t := range h.Tags {
			if t == tag {
				filtered = append(filtered, h)
				break
			}
		}
	}
	return filtered
}
