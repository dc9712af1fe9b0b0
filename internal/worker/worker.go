package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/engine/culling"
	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
	"github.com/Faultbox/midgard-lod/internal/logger"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// ErrTerminated is returned by Post after Terminate.
var ErrTerminated = errors.New("worker terminated")

// Options configures a worker.
type Options struct {
	// QueueSize is the number of requests that can wait for the worker.
	QueueSize int
	Logger    *zap.Logger
}

// DefaultQueueSize is used when Options.QueueSize is zero.
const DefaultQueueSize = 64

type envelope struct {
	ctx context.Context
	msg Message
}

// Worker owns one goroutine that handles requests one at a time. Handlers
// only see the message they were given and never touch the sender's state.
type Worker struct {
	in   chan envelope
	out  chan Message
	quit chan struct{}
	done chan struct{}
	log  *zap.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	// onHandle runs before each request; tests use it to inject faults.
	onHandle func(Message)
}

// Spawn starts a worker goroutine.
func Spawn(opts Options) (*Worker, error) {
	if opts.QueueSize < 0 {
		return nil, fmt.Errorf("spawning worker: negative queue size %d", opts.QueueSize)
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = DefaultQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("worker")
	}

	w := &Worker{
		in:   make(chan envelope, opts.QueueSize),
		out:  make(chan Message, opts.QueueSize),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		log:  log,
	}
	go w.run()
	return w, nil
}

// Post queues a request. The context travels with the request; if it is
// cancelled before the worker replies, the reply is dropped.
func (w *Worker) Post(ctx context.Context, msg Message) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrTerminated
	}

	select {
	case w.in <- envelope{ctx: ctx, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return ErrTerminated
	}
}

// Messages returns the channel of responses and error events. It is closed
// once the worker has stopped.
func (w *Worker) Messages() <-chan Message {
	return w.out
}

// Terminate stops the worker. Queued requests are dropped. Safe to call
// more than once.
func (w *Worker) Terminate() {
	w.closeOnce.Do(func() {
		close(w.quit)
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		<-w.done
	})
}

func (w *Worker) run() {
	defer close(w.done)
	defer close(w.out)

	for {
		select {
		case env := <-w.in:
			reply := w.handle(env)
			if reply == nil {
				continue
			}
			select {
			case w.out <- reply:
			case <-w.quit:
				return
			}
		case <-w.quit:
			return
		}
	}
}

// handle runs one request. A panic becomes an ErrorEvent.
func (w *Worker) handle(env envelope) (reply Message) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker handler panicked",
				zap.Uint64("requestID", env.msg.ID()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err := fmt.Errorf("panic handling %s request %d: %v", env.msg.Type(), env.msg.ID(), r)
			reply = &ErrorEvent{Err: err, RequestID: env.msg.ID(), Message: err.Error()}
		}
	}()

	if env.ctx.Err() != nil {
		return nil
	}
	if w.onHandle != nil {
		w.onHandle(env.msg)
	}

	switch m := env.msg.(type) {
	case *BuildRequest:
		return w.handleBuild(env.ctx, m)
	case *CullRequest:
		return w.handleCull(m)
	default:
		err := fmt.Errorf("unexpected %s message sent to worker", env.msg.Type())
		return &ErrorEvent{Err: err, RequestID: env.msg.ID(), Message: err.Error()}
	}
}

func (w *Worker) handleBuild(ctx context.Context, req *BuildRequest) Message {
	out, err := meshlet.Build(ctx, meshlet.BuildInput{
		MeshID:   req.MeshID,
		Vertices: req.Vertices,
		Indices:  req.Indices,
		Limits: meshlet.Limits{
			MaxVertices:  req.MaxVerticesPerMeshlet,
			MaxTriangles: req.MaxTrianglesPerMeshlet,
		},
		LODLevels: req.LODLevels,
	})
	if err != nil {
		if ctx.Err() != nil {
			w.log.Debug("build cancelled", zap.String("meshID", req.MeshID), zap.Uint64("requestID", req.RequestID))
			return nil
		}
		return &ErrorEvent{Err: err, RequestID: req.RequestID, Message: err.Error()}
	}

	w.log.Debug("built meshlets",
		zap.String("meshID", req.MeshID),
		zap.Int("meshlets", len(out.Meshlets)),
		zap.Duration("took", out.BuildTime))

	return &BuildResponse{
		RequestID:   req.RequestID,
		MeshID:      out.MeshID,
		Meshlets:    out.Meshlets,
		LODTree:     out.LODTree,
		Clusters:    out.Clusters,
		BuildTimeMs: millis(out.BuildTime),
	}
}

func (w *Worker) handleCull(req *CullRequest) Message {
	out := culling.Cull(culling.Input{
		Meshlets:       req.Meshlets,
		View:           math.Mat4(req.ViewMatrix),
		Projection:     math.Mat4(req.ProjectionMatrix),
		ViewportWidth:  req.ViewportWidth,
		ViewportHeight: req.ViewportHeight,
		ErrorThreshold: req.ErrorThreshold,
	})
	return &CullResponse{
		RequestID:         req.RequestID,
		VisibleMeshletIDs: out.VisibleMeshletIDs,
		CulledCount:       out.CulledCount,
		CullTimeMs:        millis(out.CullTime),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
