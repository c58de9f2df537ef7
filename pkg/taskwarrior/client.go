package taskwarrior

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os/exec"
	"sort"

	"github.com/harrisonrobin/timebox/pkg/model"
)

type Client struct {
	// Binary is the Taskwarrior executable, "task" by default.
	Binary string
}

func NewClient() *Client {
	return &Client{Binary: "task"}
}

// GetTasks runs `task <filter> export` and decodes its output.
func (c *Client) GetTasks(ctx context.Context, filter []string) ([]Task, error) {
	args := append(append([]string{}, filter...), "export", "rc.hooks=0")
	cmd := exec.CommandContext(ctx, c.Binary, args...)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("taskwarrior command failed: exit code %d, %s, stderr: %s",
				exitErr.ExitCode(), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("taskwarrior command failed: %w", err)
	}
	return ParseTasks(bytes.NewReader(output))
}

// ParseTasks decodes either a JSON array (`task export`) or a stream of
// JSON objects, one per line (hook input).
func ParseTasks(r io.Reader) ([]Task, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(br)
	if first == '[' {
		var tasks []Task
		if err := decoder.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal taskwarrior export: %w", err)
		}
		return tasks, nil
	}

	var tasks []Task
	for {
		var task Task
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// Drafts converts open tasks that carry an estimate into backlog drafts,
// most urgent first. Tasks without a usable estimate are logged and skipped.
func Drafts(tasks []Task, logger *log.Logger) []model.Draft {
	open := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Open() {
			open = append(open, t)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Urgency > open[j].Urgency })

	drafts := make([]model.Draft, 0, len(open))
	for _, t := range open {
		est, err := ParseDuration(t.Est)
		if err != nil {
			logger.Printf("skipping task %s: %v", t.UUID, err)
			continue
		}
		if est <= 0 {
			continue
		}
		drafts = append(drafts, model.Draft{
			Source:           "taskwarrior:" + t.UUID,
			Name:             t.Description,
			EstimatedMinutes: int(math.Ceil(est.Minutes())),
		})
	}
	return drafts
}
