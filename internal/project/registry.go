// Package project manages the global registry of known Memory Bank
// projects, persisted at ~/.memory-bank/projects.json (spec.md §4.3,
// §9's "global side-effectful singleton" note).
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/memorybank/internal/fileutil"
)

// Project is one entry in the global registry.
type Project struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry is a small file-backed store with atomic whole-file
// replacement. No in-process caching beyond the lifetime of one
// Load/Save pair — every CLI invocation reloads it fresh.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*Project
	path     string
}

// DefaultPath returns ~/.memory-bank/projects.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".memory-bank", "projects.json"), nil
}

// NewRegistry constructs a Registry backed by path.
func NewRegistry(path string) *Registry {
	return &Registry{projects: make(map[string]*Project), path: path}
}

// Load reads the registry file, tolerating its absence.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read registry: %w", err)
	}

	var projects []*Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return fmt.Errorf("parse registry: %w", err)
	}

	r.projects = make(map[string]*Project, len(projects))
	for _, p := range projects {
		r.projects[p.ID] = p
	}
	return nil
}

// Save atomically replaces the registry file's whole content.
func (r *Registry) Save() error {
	r.mu.RLock()
	projects := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		projects = append(projects, p)
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return fileutil.WriteAtomic(r.path, data)
}

// Register adds path to the registry (by absolute path, deduplicated),
// returning the existing entry if path is already registered.
func (r *Registry) Register(path, name string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.projects {
		if p.Path == abs {
			return p, nil
		}
	}

	proj := &Project{
		ID:           uuid.NewString(),
		Path:         abs,
		Name:         name,
		RegisteredAt: time.Now().UTC(),
	}
	r.projects[proj.ID] = proj
	return proj, nil
}

// Remove removes the project registered at path. Returns false if path
// was not registered.
func (r *Registry) Remove(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.projects {
		if p.Path == abs {
			delete(r.projects, id)
			return true, nil
		}
	}
	return false, nil
}

// GetByPath returns the project registered at path, if any.
func (r *Registry) GetByPath(path string) (*Project, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.projects {
		if p.Path == abs {
			return p, true
		}
	}
	return nil, false
}

// List returns all registered projects, newest first.
func (r *Registry) List() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		projects = append(projects, p)
	}
	for i := 1; i < len(projects); i++ {
		for j := i; j > 0 && projects[j].RegisteredAt.After(projects[j-1].RegisteredAt); j-- {
			projects[j], projects[j-1] = projects[j-1], projects[j]
		}
	}
	return projects
}
