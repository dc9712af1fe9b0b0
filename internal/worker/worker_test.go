package worker

import (
	"context"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
	"github.com/Faultbox/midgard-lod/internal/engine/model"
)

func spawn(t *testing.T) *Worker {
	t.Helper()
	w, err := Spawn(Options{})
	require.NoError(t, err)
	t.Cleanup(w.Terminate)
	return w
}

func next(t *testing.T, w *Worker) Message {
	t.Helper()
	select {
	case msg, ok := <-w.Messages():
		require.True(t, ok, "message channel closed")
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker")
		return nil
	}
}

func sphereRequest(id uint64) *BuildRequest {
	g := model.NewUVSphere(1, 16, 12)
	return &BuildRequest{
		RequestID:              id,
		MeshID:                 "sphere",
		Vertices:               g.Positions,
		Indices:                g.Indices,
		MaxVerticesPerMeshlet:  meshlet.DefaultMaxVertices,
		MaxTrianglesPerMeshlet: meshlet.DefaultMaxTriangles,
		LODLevels:              3,
	}
}

func TestBuildRoundTrip(t *testing.T) {
	w := spawn(t)
	require.NoError(t, w.Post(context.Background(), sphereRequest(7)))

	msg := next(t, w)
	resp, ok := msg.(*BuildResponse)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, uint64(7), resp.ID())
	assert.Equal(t, "sphere", resp.MeshID)
	assert.NotEmpty(t, resp.Meshlets)
	assert.Len(t, resp.LODTree, 3)
	assert.GreaterOrEqual(t, resp.BuildTimeMs, 0.0)
}

func TestCullRoundTrip(t *testing.T) {
	w := spawn(t)
	require.NoError(t, w.Post(context.Background(), sphereRequest(1)))
	built := next(t, w).(*BuildResponse)

	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 16.0/9.0, 0.1, 100)
	require.NoError(t, w.Post(context.Background(), &CullRequest{
		RequestID:        2,
		Meshlets:         built.Meshlets,
		ViewMatrix:       view,
		ProjectionMatrix: proj,
		ViewportWidth:    1280,
		ViewportHeight:   720,
		ErrorThreshold:   1,
	}))

	resp, ok := next(t, w).(*CullResponse)
	require.True(t, ok)
	assert.Equal(t, uint64(2), resp.RequestID)
	assert.NotEmpty(t, resp.VisibleMeshletIDs)
	assert.Equal(t, len(built.Meshlets), len(resp.VisibleMeshletIDs)+resp.CulledCount)
}

func TestRequestsHandledInOrder(t *testing.T) {
	w := spawn(t)
	for id := uint64(1); id <= 3; id++ {
		require.NoError(t, w.Post(context.Background(), sphereRequest(id)))
	}
	for id := uint64(1); id <= 3; id++ {
		assert.Equal(t, id, next(t, w).ID())
	}
}

func TestInvalidBuildBecomesErrorEvent(t *testing.T) {
	w := spawn(t)
	req := sphereRequest(3)
	req.Indices = []uint32{0, 1}
	require.NoError(t, w.Post(context.Background(), req))

	ev, ok := next(t, w).(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(3), ev.RequestID)
	assert.Error(t, ev.Err)
	assert.NotEmpty(t, ev.Message)
}

func TestPanicBecomesErrorEvent(t *testing.T) {
	w := spawn(t)
	w.onHandle = func(m Message) {
		if m.ID() == 1 {
			panic("boom")
		}
	}

	require.NoError(t, w.Post(context.Background(), sphereRequest(1)))
	ev, ok := next(t, w).(*ErrorEvent)
	require.True(t, ok)
	assert.Contains(t, ev.Message, "boom")
	assert.Equal(t, uint64(1), ev.ID(), "error events carry the id of the failing request")

	// The worker keeps serving after a panic.
	require.NoError(t, w.Post(context.Background(), sphereRequest(2)))
	_, ok = next(t, w).(*BuildResponse)
	assert.True(t, ok)
}

func TestUnexpectedMessage(t *testing.T) {
	w := spawn(t)
	require.NoError(t, w.Post(context.Background(), &CullResponse{RequestID: 9}))

	ev, ok := next(t, w).(*ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(9), ev.RequestID)
}

func TestCancelledRequestIsDropped(t *testing.T) {
	w := spawn(t)
	block := make(chan struct{})
	w.onHandle = func(m Message) {
		if m.ID() == 1 {
			<-block
		}
	}

	require.NoError(t, w.Post(context.Background(), sphereRequest(1)))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Post(ctx, sphereRequest(2)))
	cancel()
	require.NoError(t, w.Post(context.Background(), sphereRequest(3)))
	close(block)

	assert.Equal(t, uint64(1), next(t, w).ID())
	assert.Equal(t, uint64(3), next(t, w).ID())
}

func TestTerminate(t *testing.T) {
	w, err := Spawn(Options{QueueSize: 1})
	require.NoError(t, err)

	w.Terminate()
	w.Terminate()

	_, open := <-w.Messages()
	assert.False(t, open)
	assert.ErrorIs(t, w.Post(context.Background(), sphereRequest(1)), ErrTerminated)
}

func TestSpawnRejectsNegativeQueue(t *testing.T) {
	_, err := Spawn(Options{QueueSize: -1})
	assert.Error(t, err)
}

func TestResponseType(t *testing.T) {
	assert.Equal(t, TypeBuildResult, ResponseType(TypeBuild))
	assert.Equal(t, TypeCullResult, ResponseType(TypeCull))
	assert.Equal(t, MessageType(""), ResponseType(TypeError))
}
