package objmem

import (
	"encoding/json"
	"io"
	"log"
	"sync"

	"github.com/talkvm/core/internal/runtime/vfs"
)

// Config holds the heap's tunable knobs, in the same functional-options
// shape as internal/allocator's Config/Option.
type Config struct {
	NumPermanent  int
	DebugAudit    bool
	GCNoWeakness  bool
	ZCTHighWater  int
	TelemetryAddr string // stored only; no telemetry exporter is started from it
}

type Option func(*Config)

func DefaultConfig(opts ...Option) *Config {
	c := &Config{
		NumPermanent: 16,
		DebugAudit:   false,
		GCNoWeakness: false,
		ZCTHighWater: 4096,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func WithNumPermanent(n int) Option        { return func(c *Config) { c.NumPermanent = n } }
func WithDebugAudit(enabled bool) Option   { return func(c *Config) { c.DebugAudit = enabled } }
func WithGCNoWeakness(enabled bool) Option { return func(c *Config) { c.GCNoWeakness = enabled } }
func WithZCTHighWater(n int) Option        { return func(c *Config) { c.ZCTHighWater = n } }
func WithTelemetryAddr(addr string) Option { return func(c *Config) { c.TelemetryAddr = addr } }

// TraceStream is a mutex-guarded line logger so concurrent GC trace
// output from the async-protect path doesn't interleave, mirroring the
// source's tracelock/TRACESTREAM pattern.
type TraceStream struct {
	mu  sync.Mutex
	log *log.Logger
}

func NewTraceStream(l *log.Logger) *TraceStream {
	if l == nil {
		l = log.Default()
	}

	return &TraceStream{log: l}
}

func (t *TraceStream) Printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.Printf(format, args...)
}

// ConfigWatcher hot-reloads a heap's tunables from a JSON file between GC
// cycles, adapted from the teacher's internal/runtime/vfs file-watching
// package so the hosting process never has to restart the VM to change
// debug-audit enablement or the ZCT high-water mark.
type ConfigWatcher struct {
	heap *Heap
	fs   vfs.FileSystem
	w    vfs.Watcher
	path string
}

// WatchOption configures WatchConfigFile's filesystem and watcher
// backends. The defaults (OSFS + fsnotify) suit a real config file on
// disk; tests and embedded hosts can inject vfs.NewMem() with
// vfs.NewSimpleWatcher to hot-reload from an in-memory filesystem instead.
type WatchOption func(*watchOptions)

type watchOptions struct {
	fs      vfs.FileSystem
	watcher vfs.Watcher
}

func WithFileSystem(fsys vfs.FileSystem) WatchOption {
	return func(o *watchOptions) { o.fs = fsys }
}

func WithWatcher(w vfs.Watcher) WatchOption {
	return func(o *watchOptions) { o.watcher = w }
}

// WatchConfigFile starts watching path for writes, applying each new
// config to heap's tunables as it is parsed.
func WatchConfigFile(heap *Heap, path string, opts ...WatchOption) (*ConfigWatcher, error) {
	o := watchOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.fs == nil {
		o.fs = vfs.NewOS()
	}

	w := o.watcher
	if w == nil {
		fw, err := vfs.NewFSWatcher()
		if err != nil {
			return nil, err
		}

		if err := fw.Add(path); err != nil {
			_ = fw.Close()
			return nil, err
		}

		w = fw
	}

	cw := &ConfigWatcher{heap: heap, fs: o.fs, w: w, path: path}
	go cw.loop()

	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	for {
		select {
		case ev, ok := <-cw.w.Events():
			if !ok {
				return
			}

			if ev.Op&(vfs.OpWrite|vfs.OpCreate) != 0 {
				cw.reload()
			}
		case _, ok := <-cw.w.Errors():
			if !ok {
				return
			}
		}
	}
}

func (cw *ConfigWatcher) reload() {
	f, err := cw.fs.Open(cw.path)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return
	}

	var patch Config
	if err := json.Unmarshal(data, &patch); err != nil {
		return
	}

	cw.heap.applyConfigPatch(&patch)
}

func (cw *ConfigWatcher) Close() error { return cw.w.Close() }
