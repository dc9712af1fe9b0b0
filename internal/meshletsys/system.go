// Package meshletsys owns the meshlet worker and turns its message stream
// back into request/response calls.
//
// A System that cannot start its worker keeps serving in fallback mode:
// builds return no meshlets and culls report every meshlet visible. Callers
// must treat fallback results as correct but slower, never as failures.
package meshletsys

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
	"github.com/Faultbox/midgard-lod/internal/errdefs"
	"github.com/Faultbox/midgard-lod/internal/logger"
	"github.com/Faultbox/midgard-lod/internal/worker"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// State is the lifecycle state of a System.
type State int

const (
	StateUninitialized State = iota
	StateWorkerReady
	StateWorkerFailed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWorkerReady:
		return "worker-ready"
	case StateWorkerFailed:
		return "worker-failed"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transport is the message channel to a worker. *worker.Worker implements it.
type Transport interface {
	Post(ctx context.Context, msg worker.Message) error
	Messages() <-chan worker.Message
	Terminate()
}

// TransportFactory starts a worker.
type TransportFactory func() (Transport, error)

// WorkerFactory starts in-process workers with opts.
func WorkerFactory(opts worker.Options) TransportFactory {
	return func() (Transport, error) {
		w, err := worker.Spawn(opts)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Options are the build and cull parameters sent with every request.
type Options struct {
	Limits         meshlet.Limits
	LODLevels      int
	ErrorThreshold float32
}

// DefaultOptions returns 64 vertices / 124 triangles per meshlet, four
// levels and a one pixel error budget.
func DefaultOptions() Options {
	return Options{
		Limits:         meshlet.DefaultLimits(),
		LODLevels:      meshlet.DefaultLODLevels,
		ErrorThreshold: 1,
	}
}

// Validate reports invalid options as *errdefs.ConfigError.
func (o Options) Validate() error {
	if err := o.Limits.Validate(); err != nil {
		return err
	}
	if o.LODLevels < 1 {
		return errdefs.Configf("meshlet.lod_levels", "must be at least 1, got %d", o.LODLevels)
	}
	if o.ErrorThreshold < 0 {
		return errdefs.Configf("meshlet.error_threshold", "must not be negative, got %g", o.ErrorThreshold)
	}
	return nil
}

// Option configures a System.
type Option func(*System)

// WithLogger sets the system logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *System) { s.log = l }
}

// BuildResult is the meshlet set of one geometry.
type BuildResult struct {
	MeshID      string
	Meshlets    []meshlet.Meshlet
	LODTree     meshlet.LODTree
	BuildTimeMs float64
	// Fallback is set when no worker was available.
	Fallback bool
}

// CullResult is the visible subset of one cull request.
type CullResult struct {
	VisibleMeshletIDs []int
	CulledCount       int
	CullTimeMs        float64
	Fallback          bool
}

// Stats are the figures of the most recent build and cull.
type Stats struct {
	TotalMeshlets   int
	VisibleMeshlets int
	CulledMeshlets  int
	BuildTimeMs     float64
	CullTimeMs      float64
}

// CullRatio is the share of meshlets culled by the last cull, in [0, 1].
func (s Stats) CullRatio() float32 {
	total := s.VisibleMeshlets + s.CulledMeshlets
	if total == 0 {
		return 0
	}
	return float32(s.CulledMeshlets) / float32(total)
}

type reply struct {
	msg worker.Message
	err error
}

type pendingRequest struct {
	kind   worker.MessageType
	meshID string
	// Buffered so the dispatcher never blocks on a caller.
	reply chan reply
}

// System is the meshlet façade. All methods are safe for concurrent use.
type System struct {
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	state     State
	transport Transport
	pending   map[uint64]*pendingRequest
	nextID    uint64
	stats     Stats

	dispatchDone chan struct{}
	disposeOnce  sync.Once
}

// New validates opts and starts a worker through factory. A factory error
// does not fail New: the system logs it once and runs in fallback mode.
func New(opts Options, factory TransportFactory, options ...Option) (*System, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &System{
		opts:         opts,
		state:        StateUninitialized,
		pending:      make(map[uint64]*pendingRequest),
		dispatchDone: make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}
	if s.log == nil {
		s.log = logger.Named("meshletsys")
	}

	var (
		t   Transport
		err error
	)
	if factory == nil {
		err = errors.New("no transport factory")
	} else {
		t, err = factory()
	}
	if err != nil {
		s.log.Warn("meshlet worker unavailable, using fallback mode",
			zap.Error(fmt.Errorf("%w: %v", errdefs.ErrWorkerUnavailable, err)))
		s.state = StateWorkerFailed
		close(s.dispatchDone)
		return s, nil
	}

	s.transport = t
	s.state = StateWorkerReady
	go s.dispatch(t.Messages())
	return s, nil
}

// State returns the current lifecycle state.
func (s *System) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the latest build and cull figures.
func (s *System) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Pending returns the number of requests awaiting a response.
func (s *System) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// BuildMeshlets partitions one geometry on the worker.
//
// vertices and indices are handed over to the worker: the caller must not
// read or modify them after the call, whatever its outcome.
func (s *System) BuildMeshlets(ctx context.Context, meshID string, vertices []float32, indices []uint32) (*BuildResult, error) {
	if err := meshlet.ValidateBuffers(vertices, indices); err != nil {
		return nil, fmt.Errorf("building meshlets for %q: %w", meshID, err)
	}

	msg, err := s.request(ctx, worker.TypeBuild, meshID, func(id uint64) worker.Message {
		return &worker.BuildRequest{
			RequestID:              id,
			MeshID:                 meshID,
			Vertices:               vertices,
			Indices:                indices,
			MaxVerticesPerMeshlet:  s.opts.Limits.MaxVertices,
			MaxTrianglesPerMeshlet: s.opts.Limits.MaxTriangles,
			LODLevels:              s.opts.LODLevels,
		}
	})
	if errors.Is(err, errFallback) {
		s.log.Warn("meshlet worker unavailable, returning no meshlets", zap.String("meshID", meshID))
		s.setBuildStats(0, 0)
		return &BuildResult{
			MeshID:   meshID,
			Meshlets: []meshlet.Meshlet{},
			LODTree:  meshlet.LODTree{},
			Fallback: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	resp := msg.(*worker.BuildResponse)
	s.setBuildStats(len(resp.Meshlets), resp.BuildTimeMs)
	return &BuildResult{
		MeshID:      resp.MeshID,
		Meshlets:    resp.Meshlets,
		LODTree:     resp.LODTree,
		BuildTimeMs: resp.BuildTimeMs,
	}, nil
}

// CullMeshlets selects the meshlets to draw for one camera. The worker only
// reads meshlets; the caller must not modify them until the call returns.
func (s *System) CullMeshlets(ctx context.Context, meshlets []meshlet.Meshlet, view, projection math.Mat4, width, height float32) (*CullResult, error) {
	msg, err := s.request(ctx, worker.TypeCull, "", func(id uint64) worker.Message {
		return &worker.CullRequest{
			RequestID:        id,
			Meshlets:         meshlets,
			ViewMatrix:       view,
			ProjectionMatrix: projection,
			ViewportWidth:    width,
			ViewportHeight:   height,
			ErrorThreshold:   s.opts.ErrorThreshold,
		}
	})
	if errors.Is(err, errFallback) {
		ids := make([]int, len(meshlets))
		for i := range meshlets {
			ids[i] = meshlets[i].ID
		}
		s.setCullStats(len(ids), 0, 0)
		return &CullResult{VisibleMeshletIDs: ids, Fallback: true}, nil
	}
	if err != nil {
		return nil, err
	}

	resp := msg.(*worker.CullResponse)
	s.setCullStats(len(resp.VisibleMeshletIDs), resp.CulledCount, resp.CullTimeMs)
	return &CullResult{
		VisibleMeshletIDs: resp.VisibleMeshletIDs,
		CulledCount:       resp.CulledCount,
		CullTimeMs:        resp.CullTimeMs,
	}, nil
}

// Dispose stops the worker and fails every pending request with
// errdefs.ErrDisposed. Later requests fail immediately with the same error.
// Safe to call more than once.
func (s *System) Dispose() {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateDisposed
		pending := s.takePending()
		t := s.transport
		s.transport = nil
		s.mu.Unlock()

		for _, p := range pending {
			p.reply <- reply{err: errdefs.ErrDisposed}
		}
		if t != nil {
			t.Terminate()
		}
		<-s.dispatchDone
		s.log.Debug("meshlet system disposed", zap.Int("failedRequests", len(pending)))
	})
}

func (s *System) setBuildStats(total int, ms float64) {
	s.mu.Lock()
	s.stats.TotalMeshlets = total
	s.stats.BuildTimeMs = ms
	s.mu.Unlock()
}

func (s *System) setCullStats(visible, culled int, ms float64) {
	s.mu.Lock()
	s.stats.VisibleMeshlets = visible
	s.stats.CulledMeshlets = culled
	s.stats.CullTimeMs = ms
	s.mu.Unlock()
}
