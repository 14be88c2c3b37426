package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

type seen struct {
	mu    sync.Mutex
	paths []string
}

func (s *seen) handle(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, filepath.Base(path))
	return nil
}

func (s *seen) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func TestWatcher_IngestsSupportedFilesOnce(t *testing.T) {
	dir := t.TempDir()
	got := &seen{}

	w, err := New(Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		Supports: func(p string) bool { return strings.HasSuffix(p, ".csv") },
		Handler:  got.handle,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := filepath.Join(dir, "people.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = f.WriteString("a,b\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	require.Eventually(t, func() bool { return len(got.list()) == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"people.csv"}, got.list())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_SkipsUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	got := &seen{}
	w, err := New(Config{Dir: dir, Handler: got.handle})
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("x\n1\n"), 0644))

	ctx := context.Background()
	w.handleChange(ctx, path)
	w.handleChange(ctx, path)
	assert.Equal(t, []string{"a.csv"}, got.list())

	require.NoError(t, os.WriteFile(path, []byte("x\n1\n2\n"), 0644))
	w.handleChange(ctx, path)
	assert.Equal(t, []string{"a.csv", "a.csv"}, got.list())
}

func TestNew_RequiresHandler(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir()})
	assert.Error(t, err)
}
