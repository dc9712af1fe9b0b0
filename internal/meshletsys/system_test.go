package meshletsys

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/internal/errdefs"
	"github.com/Faultbox/midgard-lod/internal/worker"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// fakeTransport hands posted messages to the test, which answers by hand.
type fakeTransport struct {
	posted chan worker.Message
	out    chan worker.Message
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		posted: make(chan worker.Message, 16),
		out:    make(chan worker.Message, 16),
	}
}

func (f *fakeTransport) Post(ctx context.Context, msg worker.Message) error {
	select {
	case f.posted <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Messages() <-chan worker.Message { return f.out }

func (f *fakeTransport) Terminate() {
	f.once.Do(func() { close(f.out) })
}

func (f *fakeTransport) factory() TransportFactory {
	return func() (Transport, error) { return f, nil }
}

func (f *fakeTransport) nextPosted(t *testing.T) worker.Message {
	t.Helper()
	select {
	case m := <-f.posted:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("nothing posted")
		return nil
	}
}

func newSystem(t *testing.T, factory TransportFactory) *System {
	t.Helper()
	s, err := New(DefaultOptions(), factory)
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return s
}

func sphere() ([]float32, []uint32) {
	g := model.NewUVSphere(1, 16, 12)
	return g.Positions, g.Indices
}

func camera() (math.Mat4, math.Mat4) {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100)
	return math.Mat4(view), math.Mat4(proj)
}

type outcome struct {
	build *BuildResult
	cull  *CullResult
	err   error
}

func goBuild(s *System, meshID string) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		v, i := sphere()
		r, err := s.BuildMeshlets(context.Background(), meshID, v, i)
		ch <- outcome{build: r, err: err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(10 * time.Second):
		t.Fatal("request hung")
		return outcome{}
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero vertex cap", func(o *Options) { o.Limits.MaxVertices = 0 }},
		{"zero triangle cap", func(o *Options) { o.Limits.MaxTriangles = 0 }},
		{"zero levels", func(o *Options) { o.LODLevels = 0 }},
		{"negative threshold", func(o *Options) { o.ErrorThreshold = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := New(opts, WorkerFactory(worker.Options{}))
			assert.True(t, errdefs.IsConfig(err), "got %v", err)
		})
	}
}

func TestFallbackWhenWorkerUnavailable(t *testing.T) {
	failing := func() (Transport, error) { return nil, errors.New("no threads") }

	for name, factory := range map[string]TransportFactory{"factory error": failing, "nil factory": nil} {
		t.Run(name, func(t *testing.T) {
			s := newSystem(t, factory)
			assert.Equal(t, StateWorkerFailed, s.State())

			v, i := sphere()
			built, err := s.BuildMeshlets(context.Background(), "A", v, i)
			require.NoError(t, err)
			assert.True(t, built.Fallback)
			assert.Equal(t, "A", built.MeshID)
			assert.NotNil(t, built.Meshlets)
			assert.Empty(t, built.Meshlets)

			meshlets := []meshlet.Meshlet{{ID: 3}, {ID: 5}, {ID: 8}}
			view, proj := camera()
			culled, err := s.CullMeshlets(context.Background(), meshlets, view, proj, 1280, 720)
			require.NoError(t, err)
			assert.True(t, culled.Fallback)
			assert.Equal(t, []int{3, 5, 8}, culled.VisibleMeshletIDs)
			assert.Zero(t, culled.CulledCount)
			assert.Equal(t, float32(0), s.Stats().CullRatio())
		})
	}
}

func TestConcurrentBuildsResolveIndependently(t *testing.T) {
	s := newSystem(t, WorkerFactory(worker.Options{}))
	require.Equal(t, StateWorkerReady, s.State())

	a := goBuild(s, "A")
	b := goBuild(s, "B")

	for id, ch := range map[string]<-chan outcome{"A": a, "B": b} {
		o := wait(t, ch)
		require.NoError(t, o.err)
		assert.Equal(t, id, o.build.MeshID)
		assert.NotEmpty(t, o.build.Meshlets)
		for _, m := range o.build.Meshlets {
			assert.LessOrEqual(t, m.VertexCount(), meshlet.DefaultMaxVertices)
			assert.LessOrEqual(t, m.TriangleCount(), meshlet.DefaultMaxTriangles)
		}
	}
	assert.Zero(t, s.Pending())
}

func TestConcurrentCullsResolveIndependently(t *testing.T) {
	s := newSystem(t, WorkerFactory(worker.Options{}))
	v, i := sphere()
	built, err := s.BuildMeshlets(context.Background(), "sphere", v, i)
	require.NoError(t, err)

	view, proj := camera()
	const n = 8
	results := make([]outcome, n)
	var wg sync.WaitGroup
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			r, err := s.CullMeshlets(context.Background(), built.Meshlets, view, proj, 1280, 720)
			results[k] = outcome{cull: r, err: err}
		}(k)
	}
	wg.Wait()

	for _, o := range results {
		require.NoError(t, o.err)
		assert.NotEmpty(t, o.cull.VisibleMeshletIDs)
		assert.Equal(t, len(built.Meshlets), len(o.cull.VisibleMeshletIDs)+o.cull.CulledCount)
		assert.Equal(t, results[0].cull.VisibleMeshletIDs, o.cull.VisibleMeshletIDs)
	}

	st := s.Stats()
	assert.Equal(t, len(built.Meshlets), st.TotalMeshlets)
	assert.Equal(t, len(built.Meshlets), st.VisibleMeshlets+st.CulledMeshlets)
	assert.GreaterOrEqual(t, st.CullRatio(), float32(0))
	assert.LessOrEqual(t, st.CullRatio(), float32(1))
	assert.GreaterOrEqual(t, st.BuildTimeMs, 0.0)
	assert.GreaterOrEqual(t, st.CullTimeMs, 0.0)
}

func TestWorkerErrorRejectsAllPending(t *testing.T) {
	ft := newFakeTransport()
	s := newSystem(t, ft.factory())

	a := goBuild(s, "A")
	b := goBuild(s, "B")
	ft.nextPosted(t)
	ft.nextPosted(t)

	ft.out <- &worker.ErrorEvent{Err: errors.New("out of memory"), Message: "out of memory"}

	for _, ch := range []<-chan outcome{a, b} {
		o := wait(t, ch)
		var we *errdefs.WorkerError
		require.ErrorAs(t, o.err, &we)
		assert.Contains(t, we.Error(), "out of memory")
	}
	assert.Zero(t, s.Pending())

	// The façade keeps serving.
	assert.Equal(t, StateWorkerReady, s.State())
	c := goBuild(s, "C")
	req := ft.nextPosted(t).(*worker.BuildRequest)
	ft.out <- &worker.BuildResponse{RequestID: req.RequestID, MeshID: "C", Meshlets: []meshlet.Meshlet{{ID: 0}}}
	o := wait(t, c)
	require.NoError(t, o.err)
	assert.Len(t, o.build.Meshlets, 1)
}

func TestProtocolErrorRejectsOnlyThatRequest(t *testing.T) {
	ft := newFakeTransport()
	s := newSystem(t, ft.factory())

	a := goBuild(s, "A")
	reqA := ft.nextPosted(t).(*worker.BuildRequest)
	b := goBuild(s, "B")
	reqB := ft.nextPosted(t).(*worker.BuildRequest)

	// Wrong mesh id for A.
	ft.out <- &worker.BuildResponse{RequestID: reqA.RequestID, MeshID: "B"}
	// Unknown ids are dropped.
	ft.out <- &worker.BuildResponse{RequestID: 999, MeshID: "B"}
	ft.out <- &worker.BuildResponse{RequestID: reqB.RequestID, MeshID: "B"}

	oa := wait(t, a)
	var pe *errdefs.ProtocolError
	require.ErrorAs(t, oa.err, &pe)
	assert.Equal(t, reqA.RequestID, pe.RequestID)

	ob := wait(t, b)
	require.NoError(t, ob.err)
	assert.Equal(t, "B", ob.build.MeshID)

	// A cull answered with a build result.
	view, proj := camera()
	ch := make(chan outcome, 1)
	go func() {
		r, err := s.CullMeshlets(context.Background(), nil, view, proj, 1, 1)
		ch <- outcome{cull: r, err: err}
	}()
	req := ft.nextPosted(t)
	assert.Equal(t, worker.TypeCull, req.Type())
	ft.out <- &worker.BuildResponse{RequestID: req.ID()}
	require.ErrorAs(t, wait(t, ch).err, &pe)
}

func TestRequestIDsAreUnique(t *testing.T) {
	ft := newFakeTransport()
	s := newSystem(t, ft.factory())

	goBuild(s, "A")
	goBuild(s, "A")
	first := ft.nextPosted(t)
	second := ft.nextPosted(t)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 2, s.Pending())
}

func TestCancelRemovesPending(t *testing.T) {
	ft := newFakeTransport()
	s := newSystem(t, ft.factory())

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan outcome, 1)
	go func() {
		v, i := sphere()
		r, err := s.BuildMeshlets(ctx, "A", v, i)
		ch <- outcome{build: r, err: err}
	}()
	ft.nextPosted(t)
	cancel()

	assert.ErrorIs(t, wait(t, ch).err, context.Canceled)
	assert.Zero(t, s.Pending())
}

func TestDispose(t *testing.T) {
	ft := newFakeTransport()
	s, err := New(DefaultOptions(), ft.factory())
	require.NoError(t, err)

	pending := goBuild(s, "A")
	ft.nextPosted(t)

	s.Dispose()
	s.Dispose()
	assert.Equal(t, StateDisposed, s.State())
	assert.ErrorIs(t, wait(t, pending).err, errdefs.ErrDisposed)

	assert.ErrorIs(t, wait(t, goBuild(s, "B")).err, errdefs.ErrDisposed)
	view, proj := camera()
	_, err = s.CullMeshlets(context.Background(), nil, view, proj, 1, 1)
	assert.ErrorIs(t, err, errdefs.ErrDisposed)
}

func TestDisposeRealWorkerNeverHangs(t *testing.T) {
	s, err := New(DefaultOptions(), WorkerFactory(worker.Options{}))
	require.NoError(t, err)

	chans := []<-chan outcome{goBuild(s, "A"), goBuild(s, "B"), goBuild(s, "C")}
	s.Dispose()
	for _, ch := range chans {
		o := wait(t, ch)
		if o.err != nil {
			assert.ErrorIs(t, o.err, errdefs.ErrDisposed)
		}
	}
}

func TestDisposeInFallbackMode(t *testing.T) {
	s, err := New(DefaultOptions(), nil)
	require.NoError(t, err)
	s.Dispose()

	_, err = s.BuildMeshlets(context.Background(), "A", nil, nil)
	assert.ErrorIs(t, err, errdefs.ErrDisposed)
}

func TestWorkerStreamClosingSwitchesToFallback(t *testing.T) {
	ft := newFakeTransport()
	s := newSystem(t, ft.factory())

	pending := goBuild(s, "A")
	ft.nextPosted(t)
	ft.Terminate()

	var we *errdefs.WorkerError
	require.ErrorAs(t, wait(t, pending).err, &we)

	require.Eventually(t, func() bool { return s.State() == StateWorkerFailed }, 5*time.Second, 10*time.Millisecond)
	o := wait(t, goBuild(s, "B"))
	require.NoError(t, o.err)
	assert.True(t, o.build.Fallback)
}

func TestBuildRejectsMalformedBuffers(t *testing.T) {
	ft := newFakeTransport()
	s := newSystem(t, ft.factory())

	_, err := s.BuildMeshlets(context.Background(), "A", []float32{0, 0}, nil)
	assert.Error(t, err)
	_, err = s.BuildMeshlets(context.Background(), "A", []float32{0, 0, 0}, []uint32{0, 0, 1})
	assert.Error(t, err)
	assert.Zero(t, s.Pending())
	assert.Empty(t, ft.posted)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "worker-ready", StateWorkerReady.String())
	assert.Equal(t, "disposed", StateDisposed.String())
}
