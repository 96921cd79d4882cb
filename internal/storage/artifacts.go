package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/memorybank/internal/fileutil"
	"github.com/ternarybob/memorybank/internal/logger"
)

// WritePlan atomically writes a plan's markdown body and metadata.
func (s *Storage) WritePlan(meta PlanMeta, body string) error {
	if err := fileutil.EnsureDir(s.PlansDir()); err != nil {
		return err
	}
	mdPath := filepath.Join(s.PlansDir(), meta.Slug+".md")
	if err := fileutil.WriteAtomic(mdPath, []byte(body)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	metaPath := filepath.Join(s.PlansDir(), meta.Slug+".meta.json")
	return fileutil.WriteAtomic(metaPath, data)
}

// ReadPlan returns a plan's metadata and markdown body.
func (s *Storage) ReadPlan(slug string) (*PlanMeta, string, error) {
	metaPath := filepath.Join(s.PlansDir(), slug+".meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, "", err
	}
	var meta PlanMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, "", &StorageCorruption{Path: metaPath, Err: err}
	}
	body, err := os.ReadFile(filepath.Join(s.PlansDir(), slug+".md"))
	if err != nil {
		return nil, "", err
	}
	return &meta, string(body), nil
}

// ListPlans returns every plan's metadata sorted by created_at descending.
func (s *Storage) ListPlans() ([]PlanMeta, error) {
	entries, err := os.ReadDir(s.PlansDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var plans []PlanMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.json") {
			continue
		}
		slug := strings.TrimSuffix(e.Name(), ".meta.json")
		data, err := os.ReadFile(filepath.Join(s.PlansDir(), e.Name()))
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("slug", slug).Msg("skipping unreadable plan meta")
			continue
		}
		var meta PlanMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			logger.GetLogger().Warn().Err(err).Str("slug", slug).Msg("skipping corrupt plan meta")
			continue
		}
		plans = append(plans, meta)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt > plans[j].CreatedAt })
	return plans, nil
}

// WriteTodos atomically writes a session's full todo list.
func (s *Storage) WriteTodos(sessionID string, todos []TodoItem) error {
	data, err := json.MarshalIndent(todos, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(filepath.Join(s.TodosDir(), sessionID+".json"), data)
}

// ReadTodos reads one session's todo list.
func (s *Storage) ReadTodos(sessionID string) ([]TodoItem, error) {
	data, err := os.ReadFile(filepath.Join(s.TodosDir(), sessionID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var todos []TodoItem
	if err := json.Unmarshal(data, &todos); err != nil {
		return nil, &StorageCorruption{Path: filepath.Join(s.TodosDir(), sessionID+".json"), Err: err}
	}
	return todos, nil
}

// AllTodoSessionIDs lists every session that has a todo list artifact.
func (s *Storage) AllTodoSessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.TodosDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

// WriteTask atomically writes one task under a session's task directory.
func (s *Storage) WriteTask(sessionID string, task TaskItem) error {
	dir := filepath.Join(s.TasksDir(), sessionID)
	if err := fileutil.EnsureDir(dir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(filepath.Join(dir, task.ID+".json"), data)
}

// ReadTasks reads every task for a session.
func (s *Storage) ReadTasks(sessionID string) ([]TaskItem, error) {
	dir := filepath.Join(s.TasksDir(), sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var tasks []TaskItem
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("session_id", sessionID).Msg("skipping unreadable task")
			continue
		}
		var task TaskItem
		if err := json.Unmarshal(data, &task); err != nil {
			logger.GetLogger().Warn().Err(err).Str("session_id", sessionID).Msg("skipping corrupt task")
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// AllTaskSessionIDs lists every session that has task artifacts.
func (s *Storage) AllTaskSessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.TasksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
