package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jking323/TaskHarvester/internal/extraction"
)

type loaded struct {
	path string
	docs []extraction.SourceDocument
}

func startWatcher(t *testing.T, dir string, opts ...WatcherOption) <-chan loaded {
	t.Helper()
	opts = append([]WatcherOption{WithDebounce(20 * time.Millisecond), WithWatcherLogger(zaptest.NewLogger(t))}, opts...)
	w, err := NewWatcher(dir, Defaults{}, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan loaded, 16)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, path string, docs []extraction.SourceDocument) {
			out <- loaded{path: path, docs: docs}
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return out
}

func waitLoaded(t *testing.T, ch <-chan loaded) loaded {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for file")
		return loaded{}
	}
}

func TestWatcher_LoadsNewFile(t *testing.T) {
	dir := t.TempDir()
	ch := startWatcher(t, dir)
	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "standup.txt")
	require.NoError(t, os.WriteFile(path, []byte("Alex will update the roadmap."), 0o600))

	got := waitLoaded(t, ch)
	assert.Equal(t, path, got.path)
	require.Len(t, got.docs, 1)
	assert.Equal(t, "standup.txt", got.docs[0].Ref)
	assert.Equal(t, "Alex will update the roadmap.", got.docs[0].Body)
}

func TestWatcher_IgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	ch := startWatcher(t, dir)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swap"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("y"), 0o600))

	got := waitLoaded(t, ch)
	assert.Equal(t, "visible.txt", filepath.Base(got.path))

	select {
	case extra := <-ch:
		t.Fatalf("unexpected load of %s", extra.path)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_ExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old.json", `[{"ref":"a","body":"one"},{"ref":"b","body":"two"}]`)
	writeFile(t, dir, "nested/skip.txt", "not top level")

	ch := startWatcher(t, dir, WithExisting(true))

	got := waitLoaded(t, ch)
	assert.Equal(t, "old.json", filepath.Base(got.path))
	assert.Len(t, got.docs, 2)
}

func TestWatcher_UnchangedFileLoadedOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "once.txt", "body")

	w, err := NewWatcher(dir, Defaults{})
	require.NoError(t, err)
	defer w.Close()

	var calls int
	handle := func(context.Context, string, []extraction.SourceDocument) { calls++ }
	w.load(context.Background(), path, handle)
	w.load(context.Background(), path, handle)
	assert.Equal(t, 1, calls)

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	w.load(context.Background(), path, handle)
	assert.Equal(t, 2, calls)

	w.forget(path)
	w.load(context.Background(), path, handle)
	assert.Equal(t, 3, calls)
}

func TestNewWatcher_Errors(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), Defaults{})
	assert.Error(t, err)

	file := writeFile(t, t.TempDir(), "f.txt", "x")
	_, err = NewWatcher(file, Defaults{})
	assert.ErrorContains(t, err, "not a directory")
}
