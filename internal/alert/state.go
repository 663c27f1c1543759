package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// State tracks when each (rule, module) key last fired, enforcing the
// cooldown window. It can be persisted to a JSON file so cooldowns survive
// process restarts.
type State struct {
	mu   sync.Mutex
	last map[string]time.Time
	path string // empty = in-memory only
}

// NewState creates cooldown state, loading any previously persisted file at
// path. An unreadable or corrupt file starts fresh rather than failing —
// losing cooldown state means at worst one duplicate alert.
func NewState(path string) *State {
	s := &State{last: make(map[string]time.Time), path: path}
	if path == "" {
		return s
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var stored map[string]time.Time
	if err := json.Unmarshal(data, &stored); err == nil {
		s.last = stored
	}
	return s
}

// ShouldFire reports whether the key is outside its cooldown window, and if
// so records the firing time.
func (s *State) ShouldFire(key string, cooldown time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.last[key]; ok && now.Sub(last) <= cooldown {
		return false
	}
	s.last[key] = now
	return true
}

// Save persists the state file. No-op for in-memory state.
func (s *State) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	data, err := json.Marshal(s.last)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("alert: marshal state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("alert: write state file: %w", err)
	}
	return nil
}
