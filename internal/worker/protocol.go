// Package worker runs meshlet building and culling on a dedicated goroutine
// that talks to its owner only through messages.
package worker

import (
	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
)

// MessageType names a message on the worker channel.
type MessageType string

const (
	TypeBuild       MessageType = "build"
	TypeBuildResult MessageType = "build-result"
	TypeCull        MessageType = "cull"
	TypeCullResult  MessageType = "cull-result"
	TypeError       MessageType = "error"
)

// Message is anything sent to or received from the worker.
type Message interface {
	Type() MessageType
	// ID correlates a response with its request. An error event carries the
	// id of the request that was being handled when the worker failed.
	ID() uint64
}

// BuildRequest asks the worker to partition one geometry.
//
// Vertices and Indices are handed over to the worker: once posted, the
// sender must not read or modify them.
type BuildRequest struct {
	RequestID              uint64    `json:"requestId"`
	MeshID                 string    `json:"meshId"`
	Vertices               []float32 `json:"vertices"`
	Indices                []uint32  `json:"indices"`
	MaxVerticesPerMeshlet  int       `json:"maxVerticesPerMeshlet"`
	MaxTrianglesPerMeshlet int       `json:"maxTrianglesPerMeshlet"`
	LODLevels              int       `json:"lodLevels"`
}

// BuildResponse carries the meshlets of one geometry.
type BuildResponse struct {
	RequestID   uint64            `json:"requestId"`
	MeshID      string            `json:"meshId"`
	Meshlets    []meshlet.Meshlet `json:"meshlets"`
	LODTree     [][]int           `json:"lodTree"`
	Clusters    []meshlet.Cluster `json:"clusters,omitempty"`
	BuildTimeMs float64           `json:"buildTimeMs"`
}

// CullRequest asks the worker to select visible meshlets for a camera.
type CullRequest struct {
	RequestID        uint64            `json:"requestId"`
	Meshlets         []meshlet.Meshlet `json:"meshlets"`
	ViewMatrix       [16]float32       `json:"viewMatrix"`
	ProjectionMatrix [16]float32       `json:"projectionMatrix"`
	ViewportWidth    float32           `json:"viewportWidth"`
	ViewportHeight   float32           `json:"viewportHeight"`
	ErrorThreshold   float32           `json:"errorThreshold"`
}

// CullResponse lists the selected meshlets.
type CullResponse struct {
	RequestID         uint64  `json:"requestId"`
	VisibleMeshletIDs []int   `json:"visibleMeshletIds"`
	CulledCount       int     `json:"culledCount"`
	CullTimeMs        float64 `json:"cullTimeMs"`
}

// ErrorEvent reports a failure inside the worker. The worker's state can no
// longer be trusted for anything that was in flight.
type ErrorEvent struct {
	Err error `json:"-"`
	// RequestID is the request being handled when the failure happened.
	RequestID uint64 `json:"requestId"`
	Message   string `json:"message"`
}

func (m *BuildRequest) Type() MessageType  { return TypeBuild }
func (m *BuildResponse) Type() MessageType { return TypeBuildResult }
func (m *CullRequest) Type() MessageType   { return TypeCull }
func (m *CullResponse) Type() MessageType  { return TypeCullResult }
func (m *ErrorEvent) Type() MessageType    { return TypeError }

func (m *BuildRequest) ID() uint64  { return m.RequestID }
func (m *BuildResponse) ID() uint64 { return m.RequestID }
func (m *CullRequest) ID() uint64   { return m.RequestID }
func (m *CullResponse) ID() uint64  { return m.RequestID }
func (m *ErrorEvent) ID() uint64    { return m.RequestID }

// ResponseType returns the response type expected for a request type.
func ResponseType(t MessageType) MessageType {
	switch t {
	case TypeBuild:
		return TypeBuildResult
	case TypeCull:
		return TypeCullResult
	default:
		return ""
	}
}
