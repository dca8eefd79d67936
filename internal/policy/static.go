package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// BuiltinExemptions are system components that must never be prompted for.
var BuiltinExemptions = []string{
	"android",
	"com.android.systemui*",
	"com.google.android.permissioncontroller*",
}

type pattern struct {
	raw string
	g   glob.Glob
}

// StaticPolicy exempts the mediator itself, the built-in system actors and
// any extra glob patterns. '*' matches across dots.
type StaticPolicy struct {
	selfID string

	mu       sync.RWMutex
	patterns []pattern
}

func NewStaticPolicy(selfID string, extra ...string) (*StaticPolicy, error) {
	p := &StaticPolicy{selfID: selfID}
	if err := p.SetExtra(extra); err != nil {
		return nil, err
	}
	return p, nil
}

// SetExtra replaces the non-built-in patterns. On error the previous set is
// kept.
func (p *StaticPolicy) SetExtra(extra []string) error {
	compiled := make([]pattern, 0, len(BuiltinExemptions)+len(extra))
	for _, raw := range append(append([]string{}, BuiltinExemptions...), extra...) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		g, err := glob.Compile(raw)
		if err != nil {
			return fmt.Errorf("compile exemption %q: %w", raw, err)
		}
		compiled = append(compiled, pattern{raw: raw, g: g})
	}

	p.mu.Lock()
	p.patterns = compiled
	p.mu.Unlock()
	return nil
}

func (p *StaticPolicy) Evaluate(_ context.Context, req Request) (Response, error) {
	if req.ActorID == "" {
		return Response{Reason: "local actor"}, nil
	}
	if p.selfID != "" && req.ActorID == p.selfID {
		return Response{Exempt: true, Reason: "self"}, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, pat := range p.patterns {
		if pat.g.Match(req.ActorID) {
			return Response{Exempt: true, Reason: "matches " + pat.raw}, nil
		}
	}
	return Response{Reason: "no exemption matched"}, nil
}

type exemptFile struct {
	Exempt []string `yaml:"exempt"`
}

// LoadExemptFile reads the `exempt:` list from a YAML file. A missing file
// yields no patterns.
func LoadExemptFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read exemption file: %w", err)
	}

	var f exemptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse exemption file: %w", err)
	}
	return f.Exempt, nil
}
