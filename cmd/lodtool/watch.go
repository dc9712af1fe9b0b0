package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/lod"
)

// reporter prints queue events.
type reporter struct {
	log *zap.Logger
}

func (r reporter) OnProgress(id string, progress float32, stage string) {
	r.log.Debug("progress", zap.String("asset", id), zap.Float32("progress", progress), zap.String("stage", stage))
}

func (r reporter) OnComplete(id string, res *lod.ProcessingResult) {
	counts := make([]string, 0, res.LevelCount())
	for i := 0; i < res.LevelCount(); i++ {
		counts = append(counts, fmt.Sprint(res.LODMeshes[i].TriangleCount()))
	}
	fmt.Printf("%s: %s triangles, %.1f%% memory reduction, %v\n",
		id, strings.Join(counts, " > "), res.MemoryReduction*100, res.ProcessingTime)
}

func (r reporter) OnError(id string, err error) {
	fmt.Printf("%s: %v\n", id, err)
}

func isModel(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		return true
	}
	return false
}

// watchSettle is how long a file must stay quiet before it is reprocessed.
// Exporters often write a file in several chunks per save.
const watchSettle = 250 * time.Millisecond

// debouncer coalesces repeated change events per path. It is owned by the
// watch loop and not safe for concurrent use.
type debouncer struct {
	delay   time.Duration
	pending map[string]time.Time
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, pending: make(map[string]time.Time)}
}

// touch records a change to path at now, pushing its deadline back.
func (d *debouncer) touch(path string, now time.Time) {
	d.pending[path] = now.Add(d.delay)
}

// due removes and returns, sorted, every path that has been quiet for the
// full delay at now.
func (d *debouncer) due(now time.Time) []string {
	var ready []string
	for path, deadline := range d.pending {
		if !deadline.After(now) {
			ready = append(ready, path)
			delete(d.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lodtool watch <dir>")
	}
	dir := args[0]

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	defer p.Close()
	defer p.Subscribe(reporter{log: a.log})()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*"))
	for _, path := range matches {
		if isModel(path) {
			a.enqueue(ctx, p, path)
		}
	}
	fmt.Printf("Watching %s (Ctrl+C to stop)\n", dir)

	changes := newDebouncer(watchSettle)
	tick := time.NewTicker(watchSettle / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isModel(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			changes.touch(event.Name, time.Now())
		case now := <-tick.C:
			for _, path := range changes.due(now) {
				a.assets.Invalidate(path)
				p.Discard(path)
				a.enqueue(ctx, p, path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (a *app) enqueue(ctx context.Context, p *lod.Pipeline, path string) {
	if _, err := p.AddAsset(ctx, path, path); err != nil {
		a.log.Warn("could not queue asset", zap.String("path", path), zap.Error(err))
	}
}
