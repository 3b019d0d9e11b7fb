package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-workspace-gateway/policy"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  a@example.com: {}\n"), 0o600))

	initial, err := policy.LoadFile(path)
	require.NoError(t, err)
	p := policy.New(initial)

	w := policy.NewWatcher(path, p, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.True(t, p.IsAllowed("a@example.com"))

	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  a@example.com:\n    enabled: false\n"), 0o600))
	require.Eventually(t, func() bool {
		return !p.IsAllowed("a@example.com")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ReloadsOnAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  a@example.com: {}\n"), 0o600))

	initial, err := policy.LoadFile(path)
	require.NoError(t, err)
	p := policy.New(initial)

	w := policy.NewWatcher(path, p, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	tmp := filepath.Join(dir, "policy.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("accounts:\n  a@example.com:\n    enabled: false\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		return !p.IsAllowed("a@example.com")
	}, 2*time.Second, 10*time.Millisecond)
}

// Mounted ConfigMaps expose the file through a ..data symlink that is swapped
// atomically; the file name itself never changes.
func TestWatcher_ReloadsOnSymlinkSwap(t *testing.T) {
	dir := t.TempDir()
	writeVersion := func(name, body string) {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name, "policy.yaml"), []byte(body), 0o600))
	}
	writeVersion("..v1", "accounts:\n  a@example.com: {}\n")
	require.NoError(t, os.Symlink("..v1", filepath.Join(dir, "..data")))
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.Symlink(filepath.Join("..data", "policy.yaml"), path))

	initial, err := policy.LoadFile(path)
	require.NoError(t, err)
	p := policy.New(initial)

	w := policy.NewWatcher(path, p, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	writeVersion("..v2", "accounts:\n  a@example.com:\n    enabled: false\n")
	require.NoError(t, os.Symlink("..v2", filepath.Join(dir, "..data_tmp")))
	require.NoError(t, os.Rename(filepath.Join(dir, "..data_tmp"), filepath.Join(dir, "..data")))

	require.Eventually(t, func() bool {
		return !p.IsAllowed("a@example.com")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_KeepsSnapshotOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  a@example.com: {}\n"), 0o600))

	initial, err := policy.LoadFile(path)
	require.NoError(t, err)
	p := policy.New(initial)
	version := p.Snapshot().Version()

	w := policy.NewWatcher(path, p, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("accounts: [broken"), 0o600))
	require.Error(t, w.Reload())
	require.Equal(t, version, p.Snapshot().Version())
	require.True(t, p.IsAllowed("a@example.com"))
}

func TestWatcher_StartStopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	w := policy.NewWatcher(path, policy.New(nil), 0)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
