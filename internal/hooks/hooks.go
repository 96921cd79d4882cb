// Package hooks installs and removes the stdin-driven hook commands that
// let the host AI CLI notify Memory Bank of transcript activity, by
// editing that CLI's own settings.json.
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/memorybank/internal/fileutil"
)

// hookEvents are the host AI CLI hook points this tool registers against.
// Stop fires once a turn's transcript is flushed to disk; SubagentStop
// covers the same for sidechain sessions. Both deliver the same
// session_id/transcript_path/cwd/source JSON payload on stdin.
var hookEvents = []string{"Stop", "SubagentStop"}

// Entry is one command hook as the host CLI's settings.json represents it.
type Entry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// Matcher groups hooks under an optional tool/event matcher expression.
type Matcher struct {
	Matcher string  `json:"matcher,omitempty"`
	Hooks   []Entry `json:"hooks"`
}

// Settings is the subset of the host CLI's settings.json this package
// edits. Unknown top-level keys are preserved via extra, so installing
// or removing hooks never disturbs the rest of the file.
type Settings struct {
	HookMap map[string][]Matcher
	extra   map[string]json.RawMessage
}

// DefaultSettingsPath returns the host AI CLI's global settings file,
// ~/.claude/settings.json, matching the project-directory convention
// used elsewhere for locating that CLI's own state.
func DefaultSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "settings.json"), nil
}

// Load reads settings.json, tolerating a missing file as an empty
// settings object.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Settings{HookMap: map[string][]Matcher{}, extra: map[string]json.RawMessage{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	s := &Settings{HookMap: map[string][]Matcher{}, extra: map[string]json.RawMessage{}}
	for k, v := range raw {
		if k == "hooks" {
			if err := json.Unmarshal(v, &s.HookMap); err != nil {
				return nil, fmt.Errorf("parse hooks: %w", err)
			}
			continue
		}
		s.extra[k] = v
	}
	return s, nil
}

// Save writes settings.json back atomically, merging HookMap into the
// preserved top-level keys.
func (s *Settings) Save(path string) error {
	out := map[string]json.RawMessage{}
	for k, v := range s.extra {
		out[k] = v
	}

	hooksJSON, err := json.Marshal(s.HookMap)
	if err != nil {
		return fmt.Errorf("marshal hooks: %w", err)
	}
	out["hooks"] = hooksJSON

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return fileutil.WriteAtomic(path, data)
}

// Install adds a command hook entry for every event in hookEvents,
// skipping any event that already carries an identical command so
// re-running install never duplicates entries.
func Install(path, command string) (changed bool, err error) {
	s, err := Load(path)
	if err != nil {
		return false, err
	}

	for _, event := range hookEvents {
		if hasCommand(s.HookMap[event], command) {
			continue
		}
		s.HookMap[event] = append(s.HookMap[event], Matcher{
			Hooks: []Entry{{Type: "command", Command: command}},
		})
		changed = true
	}

	if !changed {
		return false, nil
	}
	return true, s.Save(path)
}

// Uninstall removes every matcher entry whose hooks are solely the given
// command, leaving unrelated matchers and hooks untouched.
func Uninstall(path, command string) (changed bool, err error) {
	s, err := Load(path)
	if err != nil {
		return false, err
	}

	for _, event := range hookEvents {
		matchers := s.HookMap[event]
		if len(matchers) == 0 {
			continue
		}
		kept := matchers[:0]
		for _, m := range matchers {
			filtered := m.Hooks[:0]
			for _, h := range m.Hooks {
				if h.Command == command {
					changed = true
					continue
				}
				filtered = append(filtered, h)
			}
			if len(filtered) > 0 {
				m.Hooks = filtered
				kept = append(kept, m)
			} else if len(m.Hooks) > 0 {
				changed = true
			}
		}
		if len(kept) == 0 {
			delete(s.HookMap, event)
		} else {
			s.HookMap[event] = kept
		}
	}

	if !changed {
		return false, nil
	}
	return true, s.Save(path)
}

// Status reports, per hook event, whether command is currently installed.
func Status(path, command string) (map[string]bool, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	status := make(map[string]bool, len(hookEvents))
	for _, event := range hookEvents {
		status[event] = hasCommand(s.HookMap[event], command)
	}
	return status, nil
}

func hasCommand(matchers []Matcher, command string) bool {
	for _, m := range matchers {
		for _, h := range m.Hooks {
			if h.Command == command {
				return true
			}
		}
	}
	return false
}
