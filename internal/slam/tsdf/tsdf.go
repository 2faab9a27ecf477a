// Package tsdf implements the truncated signed distance field update:
// ray marching a scan into a staging buffer, then merging the staging
// buffer into a local map. The two-phase split is the correctness
// property that makes per-scan results independent of point
// processing order (and safe to shard across goroutines).
package tsdf

import (
	"math"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/geom"
	"github.com/pahoffmann/fastsense-go/internal/slam/localmap"
)

// WeightResolution is the unit weight a single fully-confident
// observation contributes; it exists so weight fields can express
// fractional confidence near the truncation boundary as small integers
// rather than needing a float field.
const WeightResolution = 100

// Params bundles the per-update constants carried from the config
// layer (slam.tau, slam.max_weight, slam.map_resolution and the
// derived ring constant dz_per_distance).
type Params struct {
	MapResolution  int32 // mm per cell
	Tau            int32 // truncation distance, mm
	MaxWeight      int32 // Wmax
	DzPerDistance  int32 // fixed-point (MatrixResolution-scaled) vertical spread per mm of ray length
}

// stagingEntry mirrors slam.TSDFEntry but tracks whether this scan's
// ray marching has written it yet, since an untouched staging cell
// must not participate in the merge.
type stagingEntry struct {
	slam.TSDFEntry
	touched bool
}

// Update ray-marches every point in cloud into a staging buffer sized
// like m, then merges the staging buffer into m. Ray cells outside m's
// window are skipped, and points coincident with the scanner position
// are skipped entirely.
func Update(m *localmap.Map, cloud slam.PointCloud, scanner geom.Vec3i, p Params) {
	size := m.SizeOf()
	staging := make([]stagingEntry, size.X*size.Y*size.Z)
	dMax := float64(size.X/2+size.Y/2+size.Z/2) * float64(p.MapResolution)

	for _, pt := range cloud.Points {
		if slam.IsInvalid(pt) {
			continue
		}
		marchPoint(m, staging, pt, scanner, p, dMax)
	}

	merge(m, staging, p.MaxWeight)
}

func marchPoint(m *localmap.Map, staging []stagingEntry, pt, scanner geom.Vec3i, p Params, dMax float64) {
	d := pt.Sub(scanner)
	dist := d.Norm()
	if dist == 0 {
		return
	}

	maxLen := dist + float64(p.Tau)
	if maxLen > dMax {
		maxLen = dMax
	}

	eps := float64(p.Tau) / 10

	var prevCellX, prevCellY, prevCellZ int32
	havePrev := false

	step := float64(p.MapResolution)
	for length := step; length <= maxLen; length += step / 2 {
		fx := float64(scanner.X) + float64(d.X)*length/dist
		fy := float64(scanner.Y) + float64(d.Y)*length/dist
		fz := float64(scanner.Z) + float64(d.Z)*length/dist

		cx := geom.MMToCell(int32(math.Round(fx)), p.MapResolution)
		cy := geom.MMToCell(int32(math.Round(fy)), p.MapResolution)
		cz := geom.MMToCell(int32(math.Round(fz)), p.MapResolution)

		if havePrev && cx == prevCellX && cy == prevCellY {
			continue
		}
		havePrev, prevCellX, prevCellY, prevCellZ = true, cx, cy, cz

		if !m.InBounds(cx, cy, cz) {
			continue
		}

		centerX := geom.CellToMM(cx, p.MapResolution)
		centerY := geom.CellToMM(cy, p.MapResolution)
		centerZ := geom.CellToMM(cz, p.MapResolution)
		cellDist := (geom.Vec3i{X: pt.X - centerX, Y: pt.Y - centerY, Z: pt.Z - centerZ}).Norm()

		v := clampF(cellDist, 0, float64(p.Tau))
		if length > dist {
			v = -v
		}

		w := weightFor(v, eps, float64(p.Tau))
		if w == 0 {
			continue
		}

		deltaZ := float64(p.DzPerDistance) * length / geom.MatrixResolution
		zLo := geom.MMToCell(int32(math.Round(float64(centerZ)-deltaZ)), p.MapResolution)
		zHi := geom.MMToCell(int32(math.Round(float64(centerZ)+deltaZ)), p.MapResolution)
		if zLo > zHi {
			zLo, zHi = zHi, zLo
		}
		for zc := zLo; zc <= zHi; zc++ {
			stageWrite(m, staging, cx, cy, zc, int32(math.Round(v)), w)
		}
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// weightFor implements step 5 of the TSDF update: full weight at or
// above -eps, linearly decayed to zero at -tau.
func weightFor(v, eps, tau float64) int32 {
	if v >= -eps {
		return WeightResolution
	}
	if v <= -tau {
		return 0
	}
	frac := (v + tau) / (tau - eps)
	w := int32(math.Round(frac * WeightResolution))
	if w < 0 {
		return 0
	}
	return w
}

func stageWrite(m *localmap.Map, staging []stagingEntry, x, y, z int32, v, w int32) {
	if !m.InBounds(x, y, z) {
		return
	}
	idx := stagingIndex(m, x, y, z)
	cur := &staging[idx]
	// Keep the sample closest to the surface; an equal-magnitude tie
	// goes to the higher weight, then the higher value, so the kept
	// sample does not depend on point order.
	newAbs, curAbs := absI32(v), absI32(cur.Value)
	if !cur.touched || newAbs < curAbs ||
		(newAbs == curAbs && (w > cur.Weight || (w == cur.Weight && v > cur.Value))) {
		cur.Value = v
		cur.Weight = w
		cur.touched = true
	}
}

func absI32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// stagingIndex flattens a world coordinate relative to the window's
// low corner (x fastest, then y, then z), covering the same cells as
// m's window. It intentionally does not use m's ring offset, so a
// staging index is not m's physical storage index; merge maps each
// staging index back to a world coordinate. The staging buffer is
// reset every call, so a simple origin-relative index avoids touching
// localmap internals.
func stagingIndex(m *localmap.Map, x, y, z int32) int {
	size := m.SizeOf()
	c := m.Center()
	hx, hy, hz := int32(size.X/2), int32(size.Y/2), int32(size.Z/2)
	lx := x - (c.X - hx)
	ly := y - (c.Y - hy)
	lz := z - (c.Z - hz)
	return (int(lz)*size.Y+int(ly))*size.X + int(lx)
}

func merge(m *localmap.Map, staging []stagingEntry, maxWeight int32) {
	size := m.SizeOf()
	c := m.Center()
	hx, hy, hz := int32(size.X/2), int32(size.Y/2), int32(size.Z/2)

	for lz := 0; lz < size.Z; lz++ {
		for ly := 0; ly < size.Y; ly++ {
			for lx := 0; lx < size.X; lx++ {
				idx := (lz*size.Y+ly)*size.X + lx
				s := staging[idx]
				if !s.touched {
					continue
				}
				wx := c.X - hx + int32(lx)
				wy := c.Y - hy + int32(ly)
				wz := c.Z - hz + int32(lz)

				cell, err := m.Value(wx, wy, wz)
				if err != nil {
					continue
				}
				sumWeight := cell.Weight + s.Weight
				if sumWeight == 0 {
					continue
				}
				cell.Value = (cell.Value*cell.Weight + s.Value*s.Weight) / sumWeight
				if sumWeight > maxWeight {
					sumWeight = maxWeight
				}
				cell.Weight = sumWeight
			}
		}
	}
}
