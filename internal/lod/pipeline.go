package lod

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/engine/analysis"
	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/internal/engine/simplify"
	"github.com/Faultbox/midgard-lod/internal/errdefs"
	"github.com/Faultbox/midgard-lod/internal/logger"
)

// Loader reads source geometry for queued assets.
type Loader interface {
	Load(ctx context.Context, path string) (*model.Geometry, error)
}

// ProcessingResult holds every level generated for one source geometry.
// Level geometries may be shared with a renderer and must be treated as
// read-only.
type ProcessingResult struct {
	OriginalMesh *model.Geometry
	LODMeshes    map[int]*model.Geometry
	// LevelErrors is the simplification error of each level relative to
	// the source bounding box diagonal. Level 0 is always 0.
	LevelErrors     map[int]float32
	Analysis        *analysis.MeshAnalysis
	ProcessingTime  time.Duration
	MemoryReduction float32
}

// LevelCount returns the number of generated levels.
func (r *ProcessingResult) LevelCount() int {
	return len(r.LODMeshes)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithLoader sets the loader used by AddAsset.
func WithLoader(l Loader) Option {
	return func(p *Pipeline) { p.loader = l }
}

// WithThresholds sets the analyzer's complexity cut points.
func WithThresholds(t analysis.Thresholds) Option {
	return func(p *Pipeline) { p.thresholds = t }
}

// WithAutoIndex controls whether non-indexed geometry is welded before
// analysis. Enabled by default; when disabled such input is rejected with
// model.ErrNotIndexed.
func WithAutoIndex(on bool) Option {
	return func(p *Pipeline) { p.autoIndex = on }
}

// WithConcurrency sets the number of goroutines serving the asset queue.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.concurrency = n }
}

// WithQueueSize sets how many assets may wait in the queue before AddAsset
// blocks.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) { p.queueSize = n }
}

// Pipeline generates LOD chains. ProcessAsset may be called from any
// goroutine; AddAsset feeds a FIFO queue served in the background.
type Pipeline struct {
	cfg         Config
	thresholds  analysis.Thresholds
	analyzer    *analysis.Analyzer
	loader      Loader
	log         *zap.Logger
	autoIndex   bool
	concurrency int
	queueSize   int

	queue  chan *Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	observers map[int]Observer
	nextObs   int
	results   map[string]*ProcessingResult
	closeOnce sync.Once
}

// NewPipeline validates cfg and starts the queue goroutines. Close must be
// called to stop them.
func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg,
		thresholds:  analysis.DefaultThresholds(),
		autoIndex:   true,
		concurrency: 1,
		queueSize:   16,
		observers:   make(map[int]Observer),
		results:     make(map[string]*ProcessingResult),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		return nil, errdefs.Configf("queue.concurrency", "must be at least 1, got %d", p.concurrency)
	}
	if p.queueSize < 0 {
		return nil, errdefs.Configf("queue.buffer", "must not be negative, got %d", p.queueSize)
	}
	if p.log == nil {
		p.log = logger.Named("lod")
	}

	a, err := analysis.New(p.thresholds)
	if err != nil {
		return nil, err
	}
	p.analyzer = a

	p.queue = make(chan *Task, p.queueSize)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.serve()
	}
	return p, nil
}

// Config returns the level configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// ProcessAsset builds every configured level of g. Level 0 is a copy of g.
// Each further level simplifies the previous one, so triangle counts never
// increase from one level to the next.
func (p *Pipeline) ProcessAsset(ctx context.Context, g *model.Geometry) (*ProcessingResult, error) {
	return p.process(ctx, g, nil)
}

type progressFunc func(progress float32, stage string)

func (p *Pipeline) process(ctx context.Context, g *model.Geometry, progress progressFunc) (*ProcessingResult, error) {
	start := time.Now()
	if progress == nil {
		progress = func(float32, string) {}
	}
	if g == nil {
		return nil, fmt.Errorf("processing asset: nil geometry")
	}

	indexed := g
	if !g.IsIndexed() {
		if !p.autoIndex {
			return nil, fmt.Errorf("processing asset: %w", model.ErrNotIndexed)
		}
		indexed = model.Weld(g)
		p.log.Debug("welded non-indexed geometry",
			zap.Int("vertices", g.VertexCount()),
			zap.Int("welded", indexed.VertexCount()))
	}

	progress(0.1, "analyzing")
	an, err := p.analyzer.AnalyzeMesh(indexed)
	if err != nil {
		return nil, fmt.Errorf("processing asset: %w", err)
	}

	n := len(p.cfg.Levels)
	res := &ProcessingResult{
		OriginalMesh: g,
		LODMeshes:    make(map[int]*model.Geometry, n),
		LevelErrors:  make(map[int]float32, n),
		Analysis:     an,
	}
	res.LODMeshes[0] = g.Clone()
	res.LevelErrors[0] = 0

	diag := diagonal(an.BoundingBox)
	base := an.TriangleCount
	prev := indexed
	for i := 1; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(0.2+0.8*float32(i-1)/float32(n-1), fmt.Sprintf("simplifying level %d", i))

		target := int(math.Round(float64(p.cfg.Levels[i].TriangleRatio) * float64(base)))
		s := simplify.Simplify(prev.Positions, prev.Indices, target, simplify.Options{})
		level := prev.WithIndices(s.Indices)

		rel := float32(0)
		if diag > 0 {
			rel = s.Error / diag
		}
		// Errors accumulate along the cascade.
		rel += res.LevelErrors[i-1]
		if p.cfg.ErrorThreshold > 0 && rel > p.cfg.ErrorThreshold {
			p.log.Debug("level exceeds error threshold",
				zap.Int("level", i),
				zap.Float32("error", rel),
				zap.Float32("threshold", p.cfg.ErrorThreshold))
		}

		res.LODMeshes[i] = level
		res.LevelErrors[i] = rel
		prev = level
	}

	res.MemoryReduction = MemoryReduction(g, res.LODMeshes)
	res.ProcessingTime = time.Since(start)
	progress(1, "done")

	p.log.Debug("processed asset",
		zap.Int("triangles", base),
		zap.Int("levels", n),
		zap.Stringer("complexity", an.Complexity),
		zap.Float32("memoryReduction", res.MemoryReduction),
		zap.Duration("took", res.ProcessingTime))
	return res, nil
}

// MemoryReduction is 1 - (bytes of all levels) / (bytes of source * levels),
// clamped to [0, 1].
func MemoryReduction(src *model.Geometry, levels map[int]*model.Geometry) float32 {
	if src == nil || len(levels) == 0 {
		return 0
	}
	srcBytes := src.ByteSize()
	if srcBytes == 0 {
		return 0
	}
	total := 0
	for _, l := range levels {
		total += l.ByteSize()
	}
	r := 1 - float64(total)/(float64(srcBytes)*float64(len(levels)))
	return float32(math.Max(0, math.Min(1, r)))
}

func diagonal(b model.Bounds) float32 {
	s := b.Size()
	return math32.Sqrt(s[0]*s[0] + s[1]*s[1] + s[2]*s[2])
}
