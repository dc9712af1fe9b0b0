package lod

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrPipelineClosed is returned by AddAsset after Close and delivered to
// tasks that were still queued when Close ran.
var ErrPipelineClosed = errors.New("lod pipeline closed")

// EventKind distinguishes task events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event reports the state of a queued asset. Complete and Error events are
// terminal: exactly one of them is the last event of every task.
type Event struct {
	Kind     EventKind
	AssetID  string
	Progress float32
	Stage    string
	Result   *ProcessingResult
	Err      error
}

// Observer receives events for every queued asset. Methods are called from
// queue goroutines, never from the goroutine that called AddAsset.
type Observer interface {
	OnProgress(assetID string, progress float32, stage string)
	OnComplete(assetID string, result *ProcessingResult)
	OnError(assetID string, err error)
}

// Task tracks one AddAsset call.
type Task struct {
	ID   string
	Path string

	ctx    context.Context
	events chan Event
	done   chan struct{}
	result *ProcessingResult
	err    error
}

// Events returns the task's event channel. It is created before the task is
// queued, so it carries every event of the task, and it is closed after the
// terminal event.
func (t *Task) Events() <-chan Event {
	return t.events
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (*ProcessingResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers o for events of all assets. The returned function
// removes it.
func (p *Pipeline) Subscribe(o Observer) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = o
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// AddAsset queues a load-then-process task. Tasks start in the order they
// were added. Cancelling ctx cancels the task. AddAsset blocks while the
// queue is full.
func (p *Pipeline) AddAsset(ctx context.Context, id, path string) (*Task, error) {
	if p.loader == nil {
		return nil, errors.New("adding asset: pipeline has no loader")
	}

	// One progress event per stage plus the terminal event always fit, so
	// sends on this channel never block.
	t := &Task{
		ID:     id,
		Path:   path,
		ctx:    ctx,
		events: make(chan Event, len(p.cfg.Levels)+4),
		done:   make(chan struct{}),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPipelineClosed
	}

	select {
	case p.queue <- t:
		p.log.Debug("asset queued", zap.String("asset", id), zap.String("path", path))
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPipelineClosed
	}
}

// Result returns the retained result of a completed asset.
func (p *Pipeline) Result(id string) (*ProcessingResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.results[id]
	return r, ok
}

// Discard drops the retained result of id and reports whether it existed.
func (p *Pipeline) Discard(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.results[id]
	delete(p.results, id)
	return ok
}

// Close stops the queue. Running tasks are cancelled and queued tasks fail
// with ErrPipelineClosed. Retained results are released. Safe to call more
// than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()

		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.wg.Wait()

		for {
			select {
			case t := <-p.queue:
				p.finish(t, nil, ErrPipelineClosed)
				continue
			default:
			}
			break
		}

		p.mu.Lock()
		p.results = make(map[string]*ProcessingResult)
		p.mu.Unlock()
	})
	return nil
}

func (p *Pipeline) serve() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case t := <-p.queue:
			p.run(t)
		}
	}
}

func (p *Pipeline) run(t *Task) {
	if p.ctx.Err() != nil {
		p.finish(t, nil, ErrPipelineClosed)
		return
	}

	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	res, err := p.load(ctx, t)
	if err != nil && p.ctx.Err() != nil {
		err = ErrPipelineClosed
	}
	p.finish(t, res, err)
}

func (p *Pipeline) load(ctx context.Context, t *Task) (*ProcessingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.progress(t, 0, "loading")

	g, err := p.loader.Load(ctx, t.Path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "loading asset %q", t.ID)
	}

	res, err := p.process(ctx, g, func(progress float32, stage string) {
		p.progress(t, progress, stage)
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "processing asset %q", t.ID)
	}
	return res, nil
}

func (p *Pipeline) progress(t *Task, progress float32, stage string) {
	t.events <- Event{Kind: EventProgress, AssetID: t.ID, Progress: progress, Stage: stage}
	for _, o := range p.snapshotObservers() {
		o.OnProgress(t.ID, progress, stage)
	}
}

func (p *Pipeline) finish(t *Task, res *ProcessingResult, err error) {
	t.result, t.err = res, err

	ev := Event{Kind: EventComplete, AssetID: t.ID, Result: res}
	if err != nil {
		ev = Event{Kind: EventError, AssetID: t.ID, Err: err}
		p.log.Warn("asset failed", zap.String("asset", t.ID), zap.Error(err))
	} else {
		p.mu.Lock()
		if !p.closed {
			p.results[t.ID] = res
		}
		p.mu.Unlock()
		p.log.Info("asset processed",
			zap.String("asset", t.ID),
			zap.Int("levels", res.LevelCount()),
			zap.Duration("took", res.ProcessingTime))
	}

	for _, o := range p.snapshotObservers() {
		if err != nil {
			o.OnError(t.ID, err)
		} else {
			o.OnComplete(t.ID, res)
		}
	}

	t.events <- ev
	close(t.events)
	close(t.done)
}

func (p *Pipeline) snapshotObservers() []Observer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	obs := make([]Observer, 0, len(p.observers))
	for _, o := range p.observers {
		obs = append(obs, o)
	}
	return obs
}
