package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/logging"
)

func startWatcher(t *testing.T, files []string, debounce time.Duration, runOnStart bool) <-chan struct{} {
	t.Helper()
	calls := make(chan struct{}, 16)
	w := New(files, debounce, func(ctx context.Context) error {
		calls <- struct{}{}
		return nil
	}, logging.Discard())
	w.RunOnStart = runOnStart

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
	return calls
}

func expectCall(t *testing.T, calls <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(within):
		t.Fatal("expected a pipeline run")
	}
}

func expectNoCall(t *testing.T, calls <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-calls:
		t.Fatal("unexpected pipeline run")
	case <-time.After(within):
	}
}

func TestWatcherDebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "pbx.csv")
	if err := os.WriteFile(input, []byte("calldate\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	calls := startWatcher(t, []string{input}, 150*time.Millisecond, false)

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(input, []byte("calldate\nrow\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	expectCall(t, calls, 5*time.Second)
	expectNoCall(t, calls, 400*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "pbx.csv")
	calls := startWatcher(t, []string{input}, 50*time.Millisecond, false)

	if err := os.WriteFile(filepath.Join(dir, "xau.csv"), []byte("out\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNoCall(t, calls, 300*time.Millisecond)

	// Creating the watched file counts.
	if err := os.WriteFile(input, []byte("calldate\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectCall(t, calls, 5*time.Second)
}

func TestWatcherRunOnStart(t *testing.T) {
	dir := t.TempDir()
	calls := startWatcher(t, []string{filepath.Join(dir, "pbx.csv")}, time.Second, true)
	expectCall(t, calls, 5*time.Second)
}
