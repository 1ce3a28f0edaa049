package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/RuiFG/teleport/log"
	"github.com/RuiFG/teleport/store"
	"github.com/RuiFG/teleport/store/home"
	"github.com/RuiFG/teleport/store/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teleport.yml")
	content := fmt.Sprintf("data_dir: %s\nwrite_back_interval: 1h\npool_size: 1\nlog_format: console\n", filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	previous := configFile
	configFile = path
	t.Cleanup(func() { configFile = previous })
}

func TestHostLifecycle(t *testing.T) {
	useConfig(t)

	h, err := openHost()
	require.NoError(t, err)
	assert.Equal(t, []string{home.Name, permission.Name}, h.registry.Units())
	require.NoError(t, h.registry.PostLoad())
	require.NoError(t, h.registry.Start(h.application.WriteBackInterval))
	homes, ok := store.Lookup[*home.Unit](h.registry)
	require.True(t, ok)
	require.NoError(t, homes.AddHome("alice", home.Make("base", home.Position{X: 1}, 0)))
	require.NoError(t, h.registry.PostUnload())
	h.close()

	var out bytes.Buffer
	Command.SetOut(&out)
	Command.SetArgs([]string{"homes", "alice"})
	require.NoError(t, Command.Execute())
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "base")
}

func TestLookupUnitsMissingPermission(t *testing.T) {
	registry := store.NewRegistry(store.NewMemoryKV(), store.WithLogger(log.Nop()))
	defer registry.Close()
	require.NoError(t, store.Register(registry, home.New(home.DefaultOptions)))

	_, _, err := lookupUnits(registry)
	assert.ErrorContains(t, err, "permission unit not registered")
}
