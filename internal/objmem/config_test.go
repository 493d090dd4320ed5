package objmem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/talkvm/core/internal/runtime/vfs"
)

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "objmem.json")

	initial, err := json.Marshal(Config{DebugAudit: false, GCNoWeakness: false, ZCTHighWater: 4096})
	if err != nil {
		t.Fatalf("marshal initial config: %v", err)
	}

	if err := os.WriteFile(path, initial, 0o644); err != nil {
		t.Fatalf("write initial config: %v", err)
	}

	cw, err := WatchConfigFile(h, path)
	if err != nil {
		t.Fatalf("WatchConfigFile: %v", err)
	}
	defer cw.Close()

	patch, err := json.Marshal(Config{DebugAudit: true, GCNoWeakness: true, ZCTHighWater: 128})
	if err != nil {
		t.Fatalf("marshal patch: %v", err)
	}

	if err := os.WriteFile(path, patch, 0o644); err != nil {
		t.Fatalf("write patch: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.RLock()
		reloaded := h.config.DebugAudit && h.gcNoWeakness && h.config.ZCTHighWater == 128
		h.mu.RUnlock()

		if reloaded {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("config was not hot-reloaded within the deadline")
}

func TestConfigWatcherReloadsFromMemFS(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)

	mem := vfs.NewMem()
	const path = "objmem.json"

	initial, err := json.Marshal(Config{DebugAudit: false, GCNoWeakness: false, ZCTHighWater: 4096})
	if err != nil {
		t.Fatalf("marshal initial config: %v", err)
	}

	f, err := mem.Create(path)
	if err != nil {
		t.Fatalf("create initial config: %v", err)
	}
	if _, err := f.Write(initial); err != nil {
		t.Fatalf("write initial config: %v", err)
	}
	f.Close()

	watcher := vfs.NewSimpleWatcher(mem)
	if err := watcher.StartPolling(context.Background(), path, 10*time.Millisecond); err != nil {
		t.Fatalf("StartPolling: %v", err)
	}

	cw, err := WatchConfigFile(h, path, WithFileSystem(mem), WithWatcher(watcher))
	if err != nil {
		t.Fatalf("WatchConfigFile: %v", err)
	}
	defer cw.Close()

	patch, err := json.Marshal(Config{DebugAudit: true, GCNoWeakness: true, ZCTHighWater: 128})
	if err != nil {
		t.Fatalf("marshal patch: %v", err)
	}

	f2, err := mem.Create(path)
	if err != nil {
		t.Fatalf("create patched config: %v", err)
	}
	if _, err := f2.Write(patch); err != nil {
		t.Fatalf("write patched config: %v", err)
	}
	f2.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.RLock()
		reloaded := h.config.DebugAudit && h.gcNoWeakness && h.config.ZCTHighWater == 128
		h.mu.RUnlock()

		if reloaded {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("config was not hot-reloaded from the in-memory filesystem within the deadline")
}
