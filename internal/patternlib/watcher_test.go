package patternlib

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))

	changes := make(chan *Library, 4)
	errs := make(chan error, 4)

	w, err := NewWatcher(path, func(lib *Library, loadErr error) {
		if loadErr != nil {
			errs <- loadErr
			return
		}
		changes <- lib
	})
	require.NoError(t, err)
	defer w.Close()

	updated := fixtureYAML + "\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case lib := <-changes:
		require.NotNil(t, lib)
		require.Equal(t, "1", lib.Version)
	case err := <-errs:
		t.Fatalf("unexpected reload error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))

	changes := make(chan *Library, 4)
	w, err := NewWatcher(path, func(lib *Library, loadErr error) {
		changes <- lib
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("noise"), 0o644))

	select {
	case <-changes:
		t.Fatal("watcher fired for a file it wasn't watching")
	case <-time.After(500 * time.Millisecond):
	}
}
