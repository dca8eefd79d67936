package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytecodealliance/wasmtime-go/v3"
	"github.com/rs/zerolog/log"
)

// Module is a loaded exemption module, either WASM or Rego.
type Module interface {
	Evaluator
	Name() string
	Close() error
}

type WASMLoader struct {
	engine *wasmtime.Engine
	rego   *RegoLoader
}

func NewWASMLoader() *WASMLoader {
	config := wasmtime.NewConfig()
	config.SetWasmMultiMemory(true)
	config.SetWasmThreads(false)
	config.SetConsumeFuel(true)

	return &WASMLoader{
		engine: wasmtime.NewEngineWithConfig(config),
		rego:   NewRegoLoader(),
	}
}

// LoadFromDir loads every .wasm and .rego file in dir. Files that fail to
// load are skipped with a warning; an empty result is not an error.
func (l *WASMLoader) LoadFromDir(ctx context.Context, dir string) (map[string]Module, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	modules := make(map[string]Module)

	for _, entry := range entries {
		if entry.IsDir() || !isModuleFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		mod, err := l.loadFile(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("failed to load exemption module")
			continue
		}

		modules[extractPolicyName(entry.Name())] = mod
	}

	if len(modules) == 0 {
		log.Info().Str("dir", dir).Msg("no exemption modules found")
	}

	return modules, nil
}

func (l *WASMLoader) loadFile(ctx context.Context, path string) (Module, error) {
	name := extractPolicyName(filepath.Base(path))

	if isRegoFile(path) {
		return l.rego.LoadFromFile(ctx, name, path)
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return l.compile(name, wasmBytes)
}

func (l *WASMLoader) compile(name string, wasmBytes []byte) (*WASMEvaluator, error) {
	module, err := wasmtime.NewModule(l.engine, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}

	return NewWASMEvaluator(name, l.engine, module)
}

func isWASMFile(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".wasm")
}

func isRegoFile(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".rego")
}

func isModuleFile(filename string) bool {
	return isWASMFile(filename) || isRegoFile(filename)
}

func extractPolicyName(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.ToLower(name)
}
