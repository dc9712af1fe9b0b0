package meshletsys

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/errdefs"
	"github.com/Faultbox/midgard-lod/internal/worker"
)

// errFallback tells the public methods to answer without the worker.
var errFallback = errors.New("fallback")

var errWorkerStopped = errors.New("worker message stream closed")

// request registers a pending entry under a fresh id, posts the message
// built by newMsg and waits for the matching response.
func (s *System) request(ctx context.Context, kind worker.MessageType, meshID string, newMsg func(id uint64) worker.Message) (worker.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch s.state {
	case StateDisposed:
		s.mu.Unlock()
		return nil, errdefs.ErrDisposed
	case StateWorkerReady:
	default:
		s.mu.Unlock()
		return nil, errFallback
	}
	s.nextID++
	id := s.nextID
	p := &pendingRequest{kind: kind, meshID: meshID, reply: make(chan reply, 1)}
	s.pending[id] = p
	t := s.transport
	s.mu.Unlock()

	if err := t.Post(ctx, newMsg(id)); err != nil {
		if s.forget(id) {
			if errors.Is(err, worker.ErrTerminated) {
				return nil, errdefs.ErrDisposed
			}
			return nil, err
		}
		// Already answered by Dispose or a worker error.
		r := <-p.reply
		return r.msg, r.err
	}

	select {
	case r := <-p.reply:
		return r.msg, r.err
	case <-ctx.Done():
		if !s.forget(id) {
			// The response won the race; prefer it.
			r := <-p.reply
			return r.msg, r.err
		}
		return nil, ctx.Err()
	}
}

// forget removes a pending entry and reports whether it was still there.
func (s *System) forget(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	return ok
}

// takePending empties the pending map. s.mu must be held.
func (s *System) takePending() map[uint64]*pendingRequest {
	p := s.pending
	s.pending = make(map[uint64]*pendingRequest)
	return p
}

func (s *System) dispatch(messages <-chan worker.Message) {
	defer close(s.dispatchDone)

	for msg := range messages {
		s.route(msg)
	}

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.state = StateWorkerFailed
	pending := s.takePending()
	s.transport = nil
	s.mu.Unlock()

	s.log.Warn("meshlet worker stopped, switching to fallback mode", zap.Int("failedRequests", len(pending)))
	for _, p := range pending {
		p.reply <- reply{err: &errdefs.WorkerError{Err: errWorkerStopped}}
	}
}

func (s *System) route(msg worker.Message) {
	if ev, ok := msg.(*worker.ErrorEvent); ok {
		s.mu.Lock()
		pending := s.takePending()
		s.mu.Unlock()

		err := ev.Err
		if err == nil {
			err = errors.New(ev.Message)
		}
		s.log.Error("meshlet worker error, failing all pending requests",
			zap.Uint64("requestID", ev.RequestID),
			zap.Int("failedRequests", len(pending)),
			zap.Error(err))
		for _, p := range pending {
			p.reply <- reply{err: &errdefs.WorkerError{Err: err}}
		}
		return
	}

	id := msg.ID()
	s.mu.Lock()
	p, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		s.log.Debug("dropping response for unknown request",
			zap.Uint64("requestID", id),
			zap.String("type", string(msg.Type())))
		return
	}

	if err := validate(id, p, msg); err != nil {
		s.log.Warn("rejecting malformed response", zap.Error(err))
		p.reply <- reply{err: err}
		return
	}
	p.reply <- reply{msg: msg}
}

// validate checks that msg answers p.
func validate(id uint64, p *pendingRequest, msg worker.Message) error {
	want := worker.ResponseType(p.kind)
	if msg.Type() != want {
		return &errdefs.ProtocolError{RequestID: id, Reason: fmt.Sprintf("expected %s response, got %s", want, msg.Type())}
	}

	switch m := msg.(type) {
	case *worker.BuildResponse:
		if m.MeshID != p.meshID {
			return &errdefs.ProtocolError{RequestID: id, Reason: fmt.Sprintf("response for mesh %q, requested %q", m.MeshID, p.meshID)}
		}
	case *worker.CullResponse:
		if m.CulledCount < 0 {
			return &errdefs.ProtocolError{RequestID: id, Reason: fmt.Sprintf("negative culled count %d", m.CulledCount)}
		}
	default:
		return &errdefs.ProtocolError{RequestID: id, Reason: fmt.Sprintf("unexpected message %T", msg)}
	}
	return nil
}
