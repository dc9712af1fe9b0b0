package meshlet

import (
	"sort"

	"github.com/Faultbox/midgard-lod/pkg/math"
)

// spatialOrder returns point indices ordered by recursive median splits
// along the longest axis, so that neighbours in the order are neighbours
// in space.
func spatialOrder(points []math.Vec3) []int {
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	splitMedian(points, order)
	return order
}

func splitMedian(points []math.Vec3, items []int) {
	if len(items) <= 2 {
		return
	}

	lo, hi := points[items[0]], points[items[0]]
	for _, i := range items[1:] {
		lo = lo.Min(points[i])
		hi = hi.Max(points[i])
	}
	extent := hi.Sub(lo)
	axis := 0
	if extent.Y > extent.X && extent.Y > extent.Z {
		axis = 1
	} else if extent.Z > extent.X && extent.Z > extent.Y {
		axis = 2
	}

	sort.SliceStable(items, func(a, b int) bool {
		return points[items[a]].Axis(axis) < points[items[b]].Axis(axis)
	})

	mid := len(items) / 2
	splitMedian(points, items[:mid])
	splitMedian(points, items[mid:])
}

func triangleCentroids(positions []float32, indices []uint32) []math.Vec3 {
	out := make([]math.Vec3, len(indices)/3)
	for t := range out {
		a := math.Vec3At(positions, indices[t*3])
		b := math.Vec3At(positions, indices[t*3+1])
		c := math.Vec3At(positions, indices[t*3+2])
		out[t] = a.Add(b).Add(c).Scale(1.0 / 3)
	}
	return out
}
