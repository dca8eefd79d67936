package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/stretchr/testify/require"
)

func TestEngineStaticOnly(t *testing.T) {
	engine, err := NewEngine(context.Background(), EngineConfig{SelfID: "clipguard"})
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()

	resp, err := engine.Evaluate(ctx, Request{ActorID: "clipguard", Direction: approval.DirectionWrite})
	require.NoError(t, err)
	require.True(t, resp.Exempt)

	resp, err = engine.Evaluate(ctx, Request{ActorID: "com.example.app", Direction: approval.DirectionWrite})
	require.NoError(t, err)
	require.False(t, resp.Exempt)
	require.Empty(t, engine.Modules())
}

func TestEngineModulesFromDir(t *testing.T) {
	dir := t.TempDir()
	writeWAT(t, dir, "b_failing.wasm", failingWAT)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_trusted.rego"), []byte(trustedRego), 0o644))

	engine, err := NewEngine(context.Background(), EngineConfig{PolicyDir: dir})
	require.NoError(t, err)
	defer engine.Close()

	require.Equal(t, []string{"a_trusted", "b_failing"}, engine.Modules())

	resp, err := engine.Evaluate(context.Background(), Request{ActorID: "com.example.trusted", Direction: approval.DirectionRead})
	require.NoError(t, err)
	require.True(t, resp.Exempt)

	// The failing module is skipped, not treated as an exemption.
	resp, err = engine.Evaluate(context.Background(), Request{ActorID: "com.example.other", Direction: approval.DirectionRead})
	require.NoError(t, err)
	require.False(t, resp.Exempt)
}

func TestEngineLocalActorNeverExempt(t *testing.T) {
	dir := t.TempDir()
	writeWAT(t, dir, "exempt_all.wasm", exemptAllWAT)

	engine, err := NewEngine(context.Background(), EngineConfig{PolicyDir: dir})
	require.NoError(t, err)
	defer engine.Close()

	resp, err := engine.Evaluate(context.Background(), Request{Direction: approval.DirectionRead})
	require.NoError(t, err)
	require.False(t, resp.Exempt)

	resp, err = engine.Evaluate(context.Background(), Request{ActorID: "anything", Direction: approval.DirectionRead})
	require.NoError(t, err)
	require.True(t, resp.Exempt)
}

func TestEngineHotReloadsModules(t *testing.T) {
	dir := t.TempDir()

	engine, err := NewEngine(context.Background(), EngineConfig{PolicyDir: dir, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer engine.Close()

	require.Empty(t, engine.Modules())
	writeWAT(t, dir, "exempt_all.wasm", exemptAllWAT)

	require.Eventually(t, func() bool {
		return len(engine.Modules()) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestEngineHotReloadsExemptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exempt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exempt:\n  - com.example.first\n"), 0o644))

	engine, err := NewEngine(context.Background(), EngineConfig{ExemptFile: path, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()
	resp, _ := engine.Evaluate(ctx, Request{ActorID: "com.example.first"})
	require.True(t, resp.Exempt)

	require.NoError(t, os.WriteFile(path, []byte("exempt:\n  - com.example.second\n"), 0o644))

	require.Eventually(t, func() bool {
		resp, _ := engine.Evaluate(ctx, Request{ActorID: "com.example.second"})
		return resp.Exempt
	}, 3*time.Second, 20*time.Millisecond)

	resp, _ = engine.Evaluate(ctx, Request{ActorID: "com.example.first"})
	require.False(t, resp.Exempt)
}

func TestEngineReload(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewEngine(context.Background(), EngineConfig{PolicyDir: dir})
	require.NoError(t, err)
	defer engine.Close()

	writeWAT(t, dir, "exempt_all.wasm", exemptAllWAT)
	require.NoError(t, engine.Reload(context.Background()))
	require.Equal(t, []string{"exempt_all"}, engine.Modules())
}
