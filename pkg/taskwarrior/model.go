package taskwarrior

import (
	"fmt"
	"strings"
	"time"
)

const (
	PENDING   = "pending"
	COMPLETED = "completed"
	WAITING   = "waiting"
	DELETED   = "deleted"
)

// exportTimeLayout is Taskwarrior's compact UTC timestamp.
const exportTimeLayout = "20060102T150405Z"

// Timestamp decodes the compact timestamps of `task export`.
type Timestamp struct {
	time.Time
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "0" {
		ts.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(exportTimeLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse Taskwarrior time string '%s': %w", s, err)
	}
	ts.Time = t
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + ts.Time.Format(exportTimeLayout) + `"`), nil
}

// Task holds the exported fields the importer reads.
type Task struct {
	UUID        string     `json:"uuid"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Project     string     `json:"project,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Due         *Timestamp `json:"due,omitempty"`
	Urgency     float64    `json:"urgency,omitempty"`
	// Est is the estimate UDA (uda.estimate.type=duration), exported as an
	// ISO 8601 duration such as "PT1H30M".
	Est string `json:"est,omitempty"`
}

// Open reports whether the task still needs doing.
func (t Task) Open() bool {
	return t.Status == PENDING || t.Status == WAITING
}
