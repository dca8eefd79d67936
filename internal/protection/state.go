package protection

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dagbolade/clipboard-guardian/internal/audit"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type persisted struct {
	Enabled bool `yaml:"enabled"`
}

// State is the process-wide protection switch. It only changes on explicit
// user action.
type State struct {
	enabled atomic.Bool
	path    string
	history *audit.Logger

	mu sync.Mutex
}

// Load reads the flag from path. A missing file, or an empty path, starts
// with protection enabled.
func Load(path string, history *audit.Logger) (*State, error) {
	s := &State{path: path, history: history}
	s.enabled.Store(true)

	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read protection state: %w", err)
	}

	p := persisted{Enabled: true}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse protection state: %w", err)
	}
	s.enabled.Store(p.Enabled)
	return s, nil
}

func (s *State) Enabled() bool {
	return s.enabled.Load()
}

func (s *State) Enable() error {
	return s.set(true)
}

func (s *State) Disable() error {
	return s.set(false)
}

func (s *State) Set(enabled bool) error {
	return s.set(enabled)
}

func (s *State) set(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled.Store(enabled)

	decision := audit.DecisionDisabled
	if enabled {
		decision = audit.DecisionEnabled
	}
	s.history.Log(audit.ActionToggle, decision, "", "Protection toggled by user")
	log.Info().Bool("enabled", enabled).Msg("protection toggled")

	return s.save(enabled)
}

func (s *State) save(enabled bool) error {
	if s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(persisted{Enabled: enabled})
	if err != nil {
		return fmt.Errorf("marshal protection state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write protection state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace protection state: %w", err)
	}
	return nil
}
