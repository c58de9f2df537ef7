package model

// Draft is a task read from another tool that has not entered the backlog yet.
type Draft struct {
	// Source identifies the original, e.g. "taskwarrior:<uuid>" or "org:<file>#<id>".
	Source           string
	Name             string
	EstimatedMinutes int
}
