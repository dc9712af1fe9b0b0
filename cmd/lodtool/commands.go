package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/assets"
	"github.com/Faultbox/midgard-lod/internal/engine/analysis"
	"github.com/Faultbox/midgard-lod/internal/engine/camera"
	"github.com/Faultbox/midgard-lod/internal/engine/debug"
	"github.com/Faultbox/midgard-lod/internal/engine/meshlet"
	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/internal/lod"
	"github.com/Faultbox/midgard-lod/internal/meshletsys"
	"github.com/Faultbox/midgard-lod/internal/worker"
)

func (a *app) load(ctx context.Context, path string) (*model.Geometry, error) {
	g, err := a.assets.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if !g.IsIndexed() {
		g = model.Weld(g)
	}
	return g, nil
}

func (a *app) pipeline() (*lod.Pipeline, error) {
	lc, err := a.cfg.LODConfig()
	if err != nil {
		return nil, err
	}
	opts := append(a.cfg.PipelineOptions(),
		lod.WithLoader(a.assets),
		lod.WithLogger(a.log.Named("lod")))
	return lod.NewPipeline(lc, opts...)
}

func (a *app) meshletSystem() (*meshletsys.System, error) {
	return meshletsys.New(a.cfg.MeshletOptions(),
		meshletsys.WorkerFactory(worker.Options{Logger: a.log.Named("worker")}),
		meshletsys.WithLogger(a.log.Named("meshletsys")))
}

func (a *app) cmdAnalyze(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lodtool analyze <file>")
	}
	g, err := a.load(ctx, args[0])
	if err != nil {
		return err
	}
	an, err := analysis.New(a.cfg.Thresholds())
	if err != nil {
		return err
	}
	res, err := an.AnalyzeMesh(g)
	if err != nil {
		return err
	}
	printAnalysis(args[0], res)
	return nil
}

func printAnalysis(name string, res *analysis.MeshAnalysis) {
	size := res.BoundingBox.Size()
	fmt.Printf("Mesh:        %s\n", name)
	fmt.Printf("Vertices:    %d\n", res.VertexCount)
	fmt.Printf("Triangles:   %d\n", res.TriangleCount)
	fmt.Printf("Normals:     %v\n", res.HasNormals)
	fmt.Printf("UVs:         %v\n", res.HasUVs)
	fmt.Printf("Size:        %.3f x %.3f x %.3f\n", size[0], size[1], size[2])
	fmt.Printf("Area:        %.3f\n", res.SurfaceArea)
	fmt.Printf("Complexity:  %s\n", res.Complexity)
}

func (a *app) cmdProcess(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lodtool process <file>")
	}
	g, err := a.load(ctx, args[0])
	if err != nil {
		return err
	}
	p, err := a.pipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.ProcessAsset(ctx, g)
	if err != nil {
		return err
	}
	printAnalysis(args[0], res.Analysis)
	fmt.Println()
	printLevels(p, res)
	return nil
}

func printLevels(p *lod.Pipeline, res *lod.ProcessingResult) {
	obj := p.CreateLODObject(res, nil)
	fmt.Printf("%-6s %10s %10s %10s %10s %8s\n", "Level", "Vertices", "Triangles", "Bytes", "Distance", "Error")
	for _, l := range obj.Levels {
		fmt.Printf("%-6d %10d %10d %10d %10.1f %8.4f\n",
			l.Level, l.Geometry.VertexCount(), l.Geometry.TriangleCount(), l.Geometry.ByteSize(),
			l.DistanceThreshold, res.LevelErrors[l.Level])
	}
	fmt.Printf("\nMemory reduction: %.1f%%\n", res.MemoryReduction*100)
	fmt.Printf("Processing time:  %v\n", res.ProcessingTime)
}

func (a *app) cmdMeshlets(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("meshlets", flag.ContinueOnError)
	bounds := fs.String("bounds", "", "Write meshlet bounding boxes per level to this .glb file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: lodtool meshlets [-bounds out.glb] <file>")
	}
	g, err := a.load(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	sys, err := a.meshletSystem()
	if err != nil {
		return err
	}
	defer sys.Dispose()

	src := g.Clone()
	built, err := sys.BuildMeshlets(ctx, fs.Arg(0), src.Positions, src.Indices)
	if err != nil {
		return err
	}
	printMeshlets(built)
	if *bounds == "" {
		return nil
	}
	return a.writeBounds(*bounds, filepath.Base(fs.Arg(0)), built)
}

func (a *app) writeBounds(path, name string, built *meshletsys.BuildResult) error {
	wires := make(map[string]*debug.Wireframe, len(built.LODTree))
	for level, ids := range built.LODTree {
		wires[fmt.Sprintf("lod%d", level)] = debug.MeshletBounds(built.Meshlets, ids, 0)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := assets.ExportWireframes(f, name, wires); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.log.Info("wrote meshlet bounds", zap.String("path", path), zap.Int("levels", len(wires)))
	return nil
}

func printMeshlets(built *meshletsys.BuildResult) {
	if built.Fallback {
		fmt.Println("Worker unavailable: no meshlets built")
		return
	}
	fmt.Printf("Meshlets:   %d\n", len(built.Meshlets))
	fmt.Printf("Build time: %.2f ms\n", built.BuildTimeMs)
	fmt.Printf("%-6s %8s %10s %10s\n", "Level", "Meshlets", "Triangles", "MaxVerts")
	for level, ids := range built.LODTree {
		tris, maxVerts := 0, 0
		for _, id := range ids {
			m := &built.Meshlets[id]
			tris += m.TriangleCount()
			if m.VertexCount() > maxVerts {
				maxVerts = m.VertexCount()
			}
		}
		fmt.Printf("%-6d %8d %10d %10d\n", level, len(ids), tris, maxVerts)
	}
}

func (a *app) cmdCull(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cull", flag.ContinueOnError)
	distance := fs.Float64("distance", 0, "Camera distance from the mesh center (0 = fit bounds)")
	yaw := fs.Float64("yaw", 0, "Camera yaw in degrees")
	pitch := fs.Float64("pitch", 0, "Camera pitch in degrees")
	width := fs.Int("width", 1280, "Viewport width")
	height := fs.Int("height", 720, "Viewport height")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: lodtool cull [-distance d] [-yaw deg] [-pitch deg] [-width w] [-height h] <file>")
	}

	g, err := a.load(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	sys, err := a.meshletSystem()
	if err != nil {
		return err
	}
	defer sys.Dispose()

	src := g.Clone()
	built, err := sys.BuildMeshlets(ctx, fs.Arg(0), src.Positions, src.Indices)
	if err != nil {
		return err
	}

	cam := camera.NewOrbitCamera()
	cam.FitToBounds(g.Bounds())
	cam.Orbit(degToRad(*yaw), degToRad(*pitch))
	distances := []float32{cam.Distance}
	if *distance > 0 {
		distances[0] = float32(*distance)
	}
	return cullAt(ctx, sys, built, cam, distances, *width, *height)
}

func degToRad(d float64) float32 {
	return float32(d * math.Pi / 180)
}

// cullAt culls built from cam at each of the given distances.
func cullAt(ctx context.Context, sys *meshletsys.System, built *meshletsys.BuildResult, cam *camera.OrbitCamera, distances []float32, width, height int) error {
	aspect := float32(width) / float32(height)
	fmt.Printf("%10s %8s %8s %10s  %s\n", "Distance", "Visible", "Culled", "Time(ms)", "Levels")
	for _, d := range distances {
		cam.SetDistance(d)
		if cam.Far < d*2 {
			cam.Far = d * 2
		}
		view, proj := cam.ViewMatrix(), cam.ProjectionMatrix(aspect)
		res, err := sys.CullMeshlets(ctx, built.Meshlets, view, proj, float32(width), float32(height))
		if err != nil {
			return err
		}
		fmt.Printf("%10.1f %8d %8d %10.3f  %s\n", d, len(res.VisibleMeshletIDs), res.CulledCount, res.CullTimeMs,
			levelHistogram(built.Meshlets, res.VisibleMeshletIDs))
	}
	return nil
}

func levelHistogram(meshlets []meshlet.Meshlet, ids []int) string {
	byID := make(map[int]int, len(meshlets))
	for i := range meshlets {
		byID[meshlets[i].ID] = meshlets[i].LODLevel
	}
	counts := map[int]int{}
	for _, id := range ids {
		counts[byID[id]]++
	}
	levels := make([]int, 0, len(counts))
	for l := range counts {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	out := ""
	for _, l := range levels {
		out += fmt.Sprintf("L%d:%d ", l, counts[l])
	}
	return out
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: lodtool export <file> <out.glb>")
	}
	g, err := a.load(ctx, args[0])
	if err != nil {
		return err
	}
	p, err := a.pipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.ProcessAsset(ctx, g)
	if err != nil {
		return err
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	if err := assets.ExportGLB(f, "lod", res); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.log.Info("exported LOD chain", zap.String("out", args[1]), zap.Int("levels", res.LevelCount()))
	return nil
}

func (a *app) cmdDemo(ctx context.Context, _ []string) error {
	g := model.NewUVSphere(10, 96, 64)

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	defer p.Close()
	res, err := p.ProcessAsset(ctx, g)
	if err != nil {
		return err
	}
	printAnalysis("sphere", res.Analysis)
	fmt.Println()
	printLevels(p, res)
	fmt.Println()

	sys, err := a.meshletSystem()
	if err != nil {
		return err
	}
	defer sys.Dispose()

	// The system takes ownership of the buffers it is given.
	src := g.Clone()
	built, err := sys.BuildMeshlets(ctx, "sphere", src.Positions, src.Indices)
	if err != nil {
		return err
	}
	printMeshlets(built)
	fmt.Println()

	cam := camera.NewOrbitCamera()
	cam.FitToBounds(g.Bounds())
	cam.Orbit(degToRad(30), degToRad(20))
	return cullAt(ctx, sys, built, cam, []float32{25, 100, 400, 1600, 6400}, 1280, 720)
}
