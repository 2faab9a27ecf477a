// Command tsdf-plot renders a horizontal slice of a persisted TSDF map
// as a PNG heatmap, for offline debugging of map quality without a
// live visualization client attached.
package main

import (
	"flag"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pahoffmann/fastsense-go/internal/slam/store"
)

var (
	mapPath = flag.String("map-db", "slam_map.db", "path to the sqlite-backed chunk/pose store")
	out     = flag.String("out", "tsdf_slice.png", "output PNG path")
	z       = flag.Int("z", 0, "world cell Z coordinate of the slice")
	half    = flag.Int("half-extent", 64, "cells to plot on each side of the origin, per axis")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("tsdf-plot: %v", err)
	}
}

func run() error {
	g, err := store.Open(store.Config{Path: *mapPath})
	if err != nil {
		return err
	}
	defer g.Close()

	data, err := sliceData(g, int32(*z), *half)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("TSDF slice z=%d", *z)
	heat := plotter.NewHeatMap(data, palette.Heat(12, 1))
	p.Add(heat)

	return p.Save(8*vg.Inch, 8*vg.Inch, *out)
}

// sliceGrid adapts a rectangular cell slice to gonum/plot's GridXYZ.
type sliceGrid struct {
	values     [][]float64
	halfExtent int
}

func (s *sliceGrid) Dims() (c, r int)   { return len(s.values[0]), len(s.values) }
func (s *sliceGrid) X(c int) float64    { return float64(c - s.halfExtent) }
func (s *sliceGrid) Y(r int) float64    { return float64(r - s.halfExtent) }
func (s *sliceGrid) Z(c, r int) float64 { return s.values[r][c] }

func sliceData(g *store.GlobalMap, z int32, halfExtent int) (*sliceGrid, error) {
	size := 2*halfExtent + 1
	values := make([][]float64, size)
	for row := range values {
		values[row] = make([]float64, size)
	}

	for dy := -halfExtent; dy <= halfExtent; dy++ {
		for dx := -halfExtent; dx <= halfExtent; dx++ {
			key := store.ChunkOf(int32(dx), int32(dy), z)
			chunk, err := g.GetChunk(key)
			if err != nil {
				return nil, err
			}
			lx := int(int32(dx) - key.X*store.ChunkSize)
			ly := int(int32(dy) - key.Y*store.ChunkSize)
			lz := int(z - key.Z*store.ChunkSize)
			entry := chunk.Cells[store.CellIndex(lx, ly, lz)]
			val := 0.0
			if entry.Weight != 0 {
				val = float64(entry.Value)
			}
			values[dy+halfExtent][dx+halfExtent] = val
		}
	}
	return &sliceGrid{values: values, halfExtent: halfExtent}, nil
}
