package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/watch"
	"github.com/rs/zerolog/log"
)

const DefaultReloadDebounce = 500 * time.Millisecond

type EngineConfig struct {
	SelfID     string
	PolicyDir  string
	ExemptFile string
	Debounce   time.Duration
}

// Engine layers the static exemptions, the YAML patterns and any modules
// found in PolicyDir. Both the directory and the YAML file are watched and
// reloaded on change.
type Engine struct {
	static *StaticPolicy
	loader *WASMLoader
	cfg    EngineConfig

	mu       sync.RWMutex
	modules  map[string]Module
	watchers []*watch.FileWatcher
}

func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultReloadDebounce
	}

	static, err := NewStaticPolicy(cfg.SelfID)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		static:  static,
		cfg:     cfg,
		modules: make(map[string]Module),
	}

	if cfg.ExemptFile != "" {
		if err := engine.reloadExemptions(); err != nil {
			return nil, fmt.Errorf("initial exemption load: %w", err)
		}
		w, err := watch.New(filepath.Dir(cfg.ExemptFile), watch.Named(cfg.ExemptFile), cfg.Debounce, engine.handleExemptChange)
		if err != nil {
			return nil, fmt.Errorf("watch exemption file: %w", err)
		}
		engine.watchers = append(engine.watchers, w)
	}

	if cfg.PolicyDir != "" {
		engine.loader = NewWASMLoader()
		if err := engine.loadModules(ctx); err != nil {
			engine.Close()
			return nil, fmt.Errorf("initial load: %w", err)
		}
		w, err := watch.New(cfg.PolicyDir, watch.HasExt(".wasm", ".rego"), cfg.Debounce, engine.handlePolicyChange)
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("create watcher: %w", err)
		}
		engine.watchers = append(engine.watchers, w)
	}

	return engine, nil
}

// Evaluate returns the first exemption that matches. Module errors are
// logged and count as "not exempt".
func (e *Engine) Evaluate(ctx context.Context, req Request) (Response, error) {
	resp, err := e.static.Evaluate(ctx, req)
	if err == nil && resp.Exempt {
		return resp, nil
	}
	if req.ActorID == "" {
		return resp, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, name := range e.moduleNames() {
		resp, err := e.modules[name].Evaluate(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("policy", name).Str("actor", req.ActorID).Msg("exemption module failed")
			continue
		}
		if resp.Exempt {
			return resp, nil
		}
	}

	return Response{Reason: "no exemption matched"}, nil
}

func (e *Engine) Modules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.moduleNames()
}

func (e *Engine) Reload(ctx context.Context) error {
	if e.cfg.ExemptFile != "" {
		if err := e.reloadExemptions(); err != nil {
			return err
		}
	}
	if e.loader != nil {
		return e.loadModules(ctx)
	}
	return nil
}

func (e *Engine) Close() error {
	var firstErr error
	for _, w := range e.watchers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for name, mod := range e.modules {
		if err := mod.Close(); err != nil {
			log.Warn().Err(err).Str("policy", name).Msg("failed to close module")
		}
	}
	e.modules = make(map[string]Module)

	return firstErr
}

// moduleNames is sorted so evaluation order does not depend on map order.
// Callers hold e.mu.
func (e *Engine) moduleNames() []string {
	names := make([]string, 0, len(e.modules))
	for name := range e.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) loadModules(ctx context.Context) error {
	modules, err := e.loader.LoadFromDir(ctx, e.cfg.PolicyDir)
	if err != nil {
		return err
	}

	e.mu.Lock()
	old := e.modules
	e.modules = modules
	e.mu.Unlock()

	for _, mod := range old {
		mod.Close()
	}

	log.Info().Int("count", len(modules)).Str("dir", e.cfg.PolicyDir).Msg("exemption modules loaded")
	return nil
}

func (e *Engine) reloadExemptions() error {
	patterns, err := LoadExemptFile(e.cfg.ExemptFile)
	if err != nil {
		return err
	}
	if err := e.static.SetExtra(patterns); err != nil {
		return err
	}
	log.Info().Int("count", len(patterns)).Str("file", e.cfg.ExemptFile).Msg("exemption patterns loaded")
	return nil
}

func (e *Engine) handlePolicyChange(path string) {
	log.Info().Str("path", path).Msg("exemption module change detected")

	if err := e.loadModules(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to reload exemption modules")
	}
}

func (e *Engine) handleExemptChange(path string) {
	if err := e.reloadExemptions(); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to reload exemption patterns, keeping previous set")
	}
}
