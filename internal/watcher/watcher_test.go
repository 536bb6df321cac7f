package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

const testDebounce = 50 * time.Millisecond

func startWatcher(t *testing.T, root string, handle func(Batch) error, excluded ...string) *Watcher {
	t.Helper()
	w, err := New(Options{
		Root:     root,
		Debounce: testDebounce,
		IsExcluded: func(dir string) bool {
			return slices.Contains(excluded, dir)
		},
		Handle: handle,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func collect() (chan Batch, func(Batch) error) {
	batches := make(chan Batch, 16)
	return batches, func(b Batch) error {
		batches <- b
		return nil
	}
}

func waitBatch(t *testing.T, batches <-chan Batch) Batch {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
		return Batch{}
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_CoalescesFileEvents(t *testing.T) {
	root := t.TempDir()
	batches, handle := collect()
	startWatcher(t, root, handle)

	a := filepath.Join(root, "a.JPG")
	b := filepath.Join(root, "b.JPG")
	writeFile(t, a)
	writeFile(t, b)
	writeFile(t, a)

	got := waitBatch(t, batches)
	if got.Full {
		t.Error("file events should not request a full run")
	}
	if !slices.Equal(got.Paths, []string{a, b}) {
		t.Errorf("Paths = %v, want [%s %s]", got.Paths, a, b)
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	batches, handle := collect()
	startWatcher(t, root, handle)

	sub := filepath.Join(root, "new")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * testDebounce)
	path := filepath.Join(sub, "c.JPG")
	writeFile(t, path)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case b := <-batches:
			if slices.Contains(b.Paths, path) {
				return
			}
		case <-deadline:
			t.Fatal("file in a new directory was not reported")
		}
	}
}

func TestWatcher_RemovedDirectoryRequestsFullRun(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "album")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	batches, handle := collect()
	startWatcher(t, root, handle)

	if err := os.RemoveAll(sub); err != nil {
		t.Fatal(err)
	}
	if b := waitBatch(t, batches); !b.Full {
		t.Errorf("batch = %+v, want a full run", b)
	}
}

func TestWatcher_IgnoresExcludedAndHidden(t *testing.T) {
	root := t.TempDir()
	excluded := filepath.Join(root, "skip")
	hidden := filepath.Join(root, ".cache")
	for _, dir := range []string{excluded, hidden} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	batches, handle := collect()
	w := startWatcher(t, root, handle, excluded)

	w.mu.Lock()
	watchedExcluded, watchedHidden := w.watched[excluded], w.watched[hidden]
	w.mu.Unlock()
	if watchedExcluded || watchedHidden {
		t.Error("excluded and hidden directories must not be watched")
	}

	writeFile(t, filepath.Join(root, ".hidden.JPG"))
	keep := filepath.Join(root, "keep.JPG")
	writeFile(t, keep)

	got := waitBatch(t, batches)
	if !slices.Equal(got.Paths, []string{keep}) {
		t.Errorf("Paths = %v, want only %s", got.Paths, keep)
	}
}

func TestWatcher_RefusedBatchIsRetried(t *testing.T) {
	root := t.TempDir()
	batches := make(chan Batch, 16)
	var attempts atomic.Int32
	startWatcher(t, root, func(b Batch) error {
		if attempts.Add(1) == 1 {
			return errors.New("busy")
		}
		batches <- b
		return nil
	})

	path := filepath.Join(root, "a.JPG")
	writeFile(t, path)

	got := waitBatch(t, batches)
	if !slices.Contains(got.Paths, path) {
		t.Errorf("retried batch = %v, want %s", got.Paths, path)
	}
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	w, err := New(Options{Root: filepath.Join(t.TempDir(), "missing"), Handle: func(Batch) error { return nil }})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()
	if err := w.Start(); err == nil {
		t.Error("expected an error for a missing root")
	}
}
