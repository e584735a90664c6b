package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/auth"
)

func TestSetupComposesSystem(t *testing.T) {
	sys, err := Setup(Options{Root: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, sys.Store)
	require.NotNil(t, sys.Auth)
	require.NotNil(t, sys.RateLimit)
	require.NotNil(t, sys.Cache)
	require.NotNil(t, sys.Presets)
	require.NotNil(t, sys.Dispatcher)

	brains, err := sys.Store.ListBrains()
	require.NoError(t, err)
	require.Contains(t, brains, "default")

	presets, err := sys.Presets.List()
	require.NoError(t, err)
	require.Contains(t, presets, "context-unified")
	require.True(t, presets["context-unified"].Meta.ReadOnly)
}

func TestSetupIsIdempotent(t *testing.T) {
	root := t.TempDir()
	_, err := Setup(Options{Root: root})
	require.NoError(t, err)
	sys2, err := Setup(Options{Root: root})
	require.NoError(t, err)

	brains, err := sys2.Store.ListBrains()
	require.NoError(t, err)
	require.Len(t, brains, 1)
}

func TestSetupWiresAuthPersistence(t *testing.T) {
	sys, err := Setup(Options{Root: t.TempDir()})
	require.NoError(t, err)

	res, err := sys.Auth.Grant(auth.GrantOptions{Scope: auth.Scope{Mode: auth.ScopeRW, Projects: []string{"*"}}, Label: "test"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	block, err := sys.Store.GetAuthBlock()
	require.NoError(t, err)
	require.Contains(t, block.Keys, res.Hash)
}

func TestSetupFailsWhenRootIsUnusable(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	_, err := Setup(Options{Root: blocked})
	require.Error(t, err)
}

func TestDiagnoseReportsOK(t *testing.T) {
	sys, err := Setup(Options{Root: t.TempDir()})
	require.NoError(t, err)
	report := sys.Diagnose()
	require.Equal(t, true, report["ok"])
}
