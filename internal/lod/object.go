package lod

import (
	"sort"

	"github.com/Faultbox/midgard-lod/internal/engine/model"
)

// ObjectLevel is one switchable level of an LODObject.
type ObjectLevel struct {
	Level             int
	Geometry          *model.Geometry
	TextureScale      float32
	DistanceThreshold float32
}

// LODObject switches between levels by viewer distance. Material is passed
// through untouched for the renderer.
type LODObject struct {
	Levels   []ObjectLevel
	Material any
}

// CreateLODObject pairs every level of result with its configured distance
// threshold.
func (p *Pipeline) CreateLODObject(result *ProcessingResult, material any) *LODObject {
	obj := &LODObject{Material: material}
	for i, lc := range p.cfg.Levels {
		g, ok := result.LODMeshes[i]
		if !ok {
			continue
		}
		obj.Levels = append(obj.Levels, ObjectLevel{
			Level:             i,
			Geometry:          g,
			TextureScale:      lc.TextureScale,
			DistanceThreshold: lc.DistanceThreshold,
		})
	}
	return obj
}

// LevelFor returns the index into Levels of the deepest level whose
// distance threshold does not exceed distance. Distances below the first
// threshold select the first level. Returns -1 for an empty object.
func (o *LODObject) LevelFor(distance float32) int {
	if len(o.Levels) == 0 {
		return -1
	}
	i := sort.Search(len(o.Levels), func(i int) bool {
		return o.Levels[i].DistanceThreshold > distance
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// Select returns the level to draw at distance, or nil for an empty object.
func (o *LODObject) Select(distance float32) *ObjectLevel {
	i := o.LevelFor(distance)
	if i < 0 {
		return nil
	}
	return &o.Levels[i]
}
