package taskwarrior

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTasksExportArray(t *testing.T) {
	input := ` [
		{
			"uuid": "f45a05b3-c12e-42e5-9c9c-333333333333",
			"description": "Write quarterly report",
			"status": "pending",
			"due": "20230101T120000Z",
			"project": "Work",
			"tags": ["writing"],
			"urgency": 8.2,
			"est": "PT2H30M"
		},
		{"uuid": "b", "description": "Done already", "status": "completed", "est": "PT1H"}
	]`

	tasks, err := ParseTasks(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	task := tasks[0]
	assert.Equal(t, "f45a05b3-c12e-42e5-9c9c-333333333333", task.UUID)
	assert.Equal(t, "Write quarterly report", task.Description)
	assert.Equal(t, "PT2H30M", task.Est)
	assert.InDelta(t, 8.2, task.Urgency, 0.001)
	require.NotNil(t, task.Due)
	assert.True(t, task.Due.Equal(time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestParseTasksHookStream(t *testing.T) {
	input := `{"uuid": "a", "description": "one", "status": "pending"}
{"uuid": "b", "description": "two", "status": "waiting"}
`
	tasks, err := ParseTasks(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "two", tasks[1].Description)

	tasks, err = ParseTasks(strings.NewReader("   \n"))
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = ParseTasks(strings.NewReader(`{"uuid": `))
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"PT1H", time.Hour, false},
		{"PT45M", 45 * time.Minute, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"PT90S", 90 * time.Second, false},
		{"P1D", 24 * time.Hour, false},
		{"P1DT2H", 26 * time.Hour, false},
		{"P1W", 7 * 24 * time.Hour, false},
		{"1h", 0, true},
		{"PT", 0, true},
		{"PT0M", 0, true},
		{"P1X", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDrafts(t *testing.T) {
	tasks := []Task{
		{UUID: "low", Description: "tidy desk", Status: PENDING, Urgency: 1, Est: "PT30M"},
		{UUID: "high", Description: "write report", Status: PENDING, Urgency: 9, Est: "PT2H30M"},
		{UUID: "done", Description: "shipped", Status: COMPLETED, Urgency: 20, Est: "PT1H"},
		{UUID: "noest", Description: "someday", Status: PENDING, Urgency: 5},
		{UUID: "bad", Description: "typo", Status: PENDING, Urgency: 4, Est: "2 hours"},
		{UUID: "secs", Description: "quick call", Status: WAITING, Urgency: 3, Est: "PT10M30S"},
	}

	drafts := Drafts(tasks, log.New(io.Discard, "", 0))
	require.Len(t, drafts, 3)
	assert.Equal(t, "taskwarrior:high", drafts[0].Source)
	assert.Equal(t, 150, drafts[0].EstimatedMinutes)
	assert.Equal(t, "quick call", drafts[1].Name)
	assert.Equal(t, 11, drafts[1].EstimatedMinutes, "partial minutes round up")
	assert.Equal(t, "tidy desk", drafts[2].Name)
}
