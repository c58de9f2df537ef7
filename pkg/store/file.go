package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/model"
)

const tasksFile = "tasks.json"

type fileState struct {
	Tasks []*model.Task `json:"tasks"`
}

// FileStore keeps all tasks in a single JSON document, rewritten on every change.
type FileStore struct {
	Path string
	mu   sync.RWMutex
}

// NewFileStore opens (or prepares) tasks.json inside dataDir.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	fs := &FileStore{Path: filepath.Join(dataDir, tasksFile)}
	if _, err := fs.read(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) read() (fileState, error) {
	var st fileState
	f, err := os.Open(fs.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return st, fmt.Errorf("failed to decode %s: %w", fs.Path, err)
	}
	return st, nil
}

func (fs *FileStore) write(st fileState) error {
	dir := filepath.Dir(fs.Path)
	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(st); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode tasks: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fs.Path)
}

func (fs *FileStore) Load(_ context.Context, id string) (*model.Task, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	st, err := fs.read()
	if err != nil {
		return nil, err
	}
	for _, t := range st.Tasks {
		if t.ID == id {
			t.RecomputeStatus()
			return t, nil
		}
	}
	return nil, errs.NotFound("task", id)
}

func (fs *FileStore) Save(_ context.Context, task *model.Task) (*model.Task, error) {
	if task == nil || task.ID == "" {
		return nil, errs.Invalid("task has no id")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	st, err := fs.read()
	if err != nil {
		return nil, err
	}
	saved := task.Clone()
	replaced := false
	for i, t := range st.Tasks {
		if t.ID == task.ID {
			st.Tasks[i] = saved
			replaced = true
			break
		}
	}
	if !replaced {
		st.Tasks = append(st.Tasks, saved)
	}
	if err := fs.write(st); err != nil {
		return nil, err
	}
	return saved.Clone(), nil
}

func (fs *FileStore) Delete(_ context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	st, err := fs.read()
	if err != nil {
		return err
	}
	kept := st.Tasks[:0]
	for _, t := range st.Tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(st.Tasks) {
		return errs.NotFound("task", id)
	}
	st.Tasks = kept
	return fs.write(st)
}

func (fs *FileStore) List(_ context.Context) ([]*model.Task, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	st, err := fs.read()
	if err != nil {
		return nil, err
	}
	for _, t := range st.Tasks {
		t.RecomputeStatus()
	}
	return st.Tasks, nil
}
