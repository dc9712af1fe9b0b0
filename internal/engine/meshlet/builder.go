package meshlet

import (
	"context"
	"fmt"
	gomath "math"
	"time"

	"github.com/Faultbox/midgard-lod/internal/engine/simplify"
	"github.com/Faultbox/midgard-lod/internal/errdefs"
	"github.com/Faultbox/midgard-lod/pkg/math"
)

// GroupSize is the number of finer clusters merged into one coarser cluster.
const GroupSize = 4

// boundsPadding inflates cluster bounds so a parent strictly encloses its
// children despite rounding, keeping projected error monotonic.
const boundsPadding = 1e-4

// BuildInput describes one geometry to partition.
type BuildInput struct {
	MeshID string
	// Vertices holds packed xyz positions.
	Vertices []float32
	Indices  []uint32
	Limits   Limits
	// LODLevels is the number of hierarchy levels, including level 0.
	LODLevels int
}

// BuildOutput is the result of Build.
type BuildOutput struct {
	MeshID    string
	Meshlets  []Meshlet
	LODTree   LODTree
	Clusters  []Cluster
	BuildTime time.Duration
}

// Build partitions the input into meshlets and builds the LOD hierarchy.
// Level 0 covers the input triangles exactly; each further level merges
// groups of neighbouring clusters, simplifies them to about half the
// triangles with the group border locked, and partitions the result again.
// Groups that cannot be simplified get no parent, so levels past the point
// where simplification stalls are left empty.
//
// Build only reads its input and keeps no state between calls.
func Build(ctx context.Context, in BuildInput) (*BuildOutput, error) {
	start := time.Now()

	if err := in.Limits.Validate(); err != nil {
		return nil, err
	}
	if in.LODLevels < 1 {
		return nil, errdefs.Configf("meshlet.lod_levels", "must be at least 1, got %d", in.LODLevels)
	}
	if err := ValidateBuffers(in.Vertices, in.Indices); err != nil {
		return nil, fmt.Errorf("mesh %q: %w", in.MeshID, err)
	}

	b := &hierarchyBuilder{
		positions: in.Vertices,
		limits:    in.Limits,
		out: &BuildOutput{
			MeshID:   in.MeshID,
			LODTree:  make(LODTree, in.LODLevels),
			Meshlets: []Meshlet{},
		},
	}

	groups, err := partition(ctx, in.Vertices, in.Indices, in.Limits)
	if err != nil {
		return nil, err
	}
	level := make([]int, 0, len(groups))
	for _, tris := range groups {
		id := b.addMeshlet(0, tris)
		level = append(level, b.addCluster(Cluster{
			Level:      0,
			MeshletIDs: []int{id},
			Bounds:     b.out.Meshlets[id].BoundingSphere,
		}, tris))
	}

	for lvl := 1; lvl < in.LODLevels && len(level) > 0; lvl++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := b.buildLevel(ctx, lvl, level)
		if err != nil {
			return nil, err
		}
		level = next
	}

	b.finish()
	b.out.BuildTime = time.Since(start)
	return b.out, nil
}

// ValidateBuffers checks that vertices holds xyz triples and indices forms
// whole triangles referencing existing vertices.
func ValidateBuffers(vertices []float32, indices []uint32) error {
	if len(vertices)%3 != 0 {
		return fmt.Errorf("vertex buffer length %d is not a multiple of 3", len(vertices))
	}
	if len(indices)%3 != 0 {
		return fmt.Errorf("index buffer length %d is not a multiple of 3", len(indices))
	}
	vertexCount := uint32(len(vertices) / 3)
	for i, idx := range indices {
		if idx >= vertexCount {
			return fmt.Errorf("index %d at %d out of range (%d vertices)", idx, i, vertexCount)
		}
	}
	return nil
}

type hierarchyBuilder struct {
	positions []float32
	limits    Limits
	out       *BuildOutput
	// clusterTris keeps each cluster's triangles for the next level.
	clusterTris [][]uint32
}

func (b *hierarchyBuilder) addMeshlet(level int, tris []uint32) int {
	id := len(b.out.Meshlets)
	b.out.Meshlets = append(b.out.Meshlets, newMeshlet(id, level, b.positions, tris))
	b.out.LODTree[level] = append(b.out.LODTree[level], id)
	return id
}

func (b *hierarchyBuilder) addCluster(c Cluster, tris []uint32) int {
	c.Parent = -1
	b.out.Clusters = append(b.out.Clusters, c)
	b.clusterTris = append(b.clusterTris, tris)
	return len(b.out.Clusters) - 1
}

func (b *hierarchyBuilder) buildLevel(ctx context.Context, lvl int, children []int) ([]int, error) {
	centers := make([]math.Vec3, len(children))
	for i, c := range children {
		centers[i] = b.out.Clusters[c].Bounds.Center
	}
	order := spatialOrder(centers)

	var next []int
	for start := 0; start < len(order); start += GroupSize {
		end := start + GroupSize
		if end > len(order) {
			end = len(order)
		}

		var merged []uint32
		group := make([]int, 0, end-start)
		bounds := b.out.Clusters[children[order[start]]].Bounds
		var childErr float32
		for _, o := range order[start:end] {
			c := children[o]
			group = append(group, c)
			merged = append(merged, b.clusterTris[c]...)
			bounds = bounds.Merge(b.out.Clusters[c].Bounds)
			if e := b.out.Clusters[c].Error; e > childErr {
				childErr = e
			}
		}
		bounds.Radius = bounds.Radius*(1+boundsPadding) + boundsPadding

		target := len(merged) / 3 / 2
		if target < 1 {
			target = 1
		}
		res := simplify.Simplify(b.positions, merged, target, simplify.Options{LockBorder: true})
		if res.Triangles() == 0 || res.Triangles() >= len(merged)/3 {
			// Nothing to remove inside the locked border. The children stay
			// roots rather than gaining a parent that repeats them.
			continue
		}
		// A coarser cluster must never look as accurate as its children.
		clusterErr := gomath.Nextafter32(childErr, gomath.MaxFloat32)
		if res.Error > clusterErr {
			clusterErr = res.Error
		}

		parts, err := partition(ctx, b.positions, res.Indices, b.limits)
		if err != nil {
			return nil, err
		}
		cluster := Cluster{
			Level:    lvl,
			Children: group,
			Error:    clusterErr,
			Bounds:   bounds,
		}
		for _, tris := range parts {
			cluster.MeshletIDs = append(cluster.MeshletIDs, b.addMeshlet(lvl, tris))
		}
		id := b.addCluster(cluster, res.Indices)
		for _, c := range group {
			b.out.Clusters[c].Parent = id
		}
		next = append(next, id)
	}
	return next, nil
}

// finish copies cluster error metadata onto the meshlets.
func (b *hierarchyBuilder) finish() {
	for _, c := range b.out.Clusters {
		parentErr, parentBounds := NoParent, c.Bounds
		if c.Parent >= 0 {
			p := b.out.Clusters[c.Parent]
			parentErr, parentBounds = p.Error, p.Bounds
		}
		for _, id := range c.MeshletIDs {
			m := &b.out.Meshlets[id]
			m.Error = c.Error
			m.LODBounds = c.Bounds
			m.ParentError = parentErr
			m.ParentBounds = parentBounds
		}
	}
	b.clusterTris = nil
}
