// Package localmap implements the sliding-window local TSDF map: a
// toroidal, flat-array view over a cubic region of world cells backed
// by a store.GlobalMap. The map thread is the only mutator; the cloud
// callback reads it under an external mutex snapshot (see
// internal/slam/pipeline).
package localmap

import (
	"fmt"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/store"
)

// Size is a 3-axis window extent; each axis must be odd so a center
// cell is unambiguous.
type Size struct {
	X, Y, Z int
}

// OutOfBoundsError is returned by Value for a coordinate outside the
// current window. Registration treats this as a per-point skip, not a
// fatal error.
type OutOfBoundsError struct {
	X, Y, Z int32
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("localmap: (%d,%d,%d) out of bounds", e.X, e.Y, e.Z)
}

// Map is the sliding-window local TSDF map. Zero value is not usable;
// construct with New.
type Map struct {
	global *store.GlobalMap
	size   Size
	cells  []slam.TSDFEntry // toroidal, flat, z-major then y then x

	center Vec3i // logical center, world cell coordinates
	offset Vec3i // ring offset per axis, 0 <= offset[i] < size[i]
}

// Vec3i is a 3-tuple of int32, used here for center/offset bookkeeping
// to avoid importing geom just for a triple of ints.
type Vec3i struct {
	X, Y, Z int32
}

// New creates a local map of the given size, centered at center, with
// every in-bounds cell loaded from global (or defaulted, per
// store.GlobalMap.GetChunk semantics).
func New(global *store.GlobalMap, size Size, center Vec3i) (*Map, error) {
	if size.X%2 == 0 || size.Y%2 == 0 || size.Z%2 == 0 {
		return nil, fmt.Errorf("localmap: size (%d,%d,%d) must be odd on every axis", size.X, size.Y, size.Z)
	}
	m := &Map{
		global: global,
		size:   size,
		cells:  make([]slam.TSDFEntry, size.X*size.Y*size.Z),
		center: center,
	}
	if err := m.fillAll(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Map) half() Vec3i {
	return Vec3i{X: int32(m.size.X / 2), Y: int32(m.size.Y / 2), Z: int32(m.size.Z / 2)}
}

// InBounds reports whether world cell (x,y,z) currently falls inside
// the window.
func (m *Map) InBounds(x, y, z int32) bool {
	h := m.half()
	return abs32(x-m.center.X) <= h.X && abs32(y-m.center.Y) <= h.Y && abs32(z-m.center.Z) <= h.Z
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// physIndex computes the toroidal flat index for world coordinate w on
// one axis, given that axis's center p, ring offset o, and size s:
// ((w - p + o) mod s + s) mod s.
func physIndex(w, p, o int32, s int) int {
	m := int32(s)
	idx := ((w-p+o)%m + m) % m
	return int(idx)
}

func (m *Map) flatIndex(x, y, z int32) int {
	px := physIndex(x, m.center.X, m.offset.X, m.size.X)
	py := physIndex(y, m.center.Y, m.offset.Y, m.size.Y)
	pz := physIndex(z, m.center.Z, m.offset.Z, m.size.Z)
	return (pz*m.size.Y+py)*m.size.X + px
}

// Value returns a pointer to the cell at world coordinate (x,y,z),
// letting the caller read or mutate it in place. Returns
// *OutOfBoundsError if the coordinate is outside the window.
func (m *Map) Value(x, y, z int32) (*slam.TSDFEntry, error) {
	if !m.InBounds(x, y, z) {
		return nil, &OutOfBoundsError{X: x, Y: y, Z: z}
	}
	return &m.cells[m.flatIndex(x, y, z)], nil
}

// Center returns the current logical center.
func (m *Map) Center() Vec3i { return m.center }

// SizeOf returns the window extent.
func (m *Map) SizeOf() Size { return m.size }

// Offset returns the current per-axis ring offset, exposed so the
// visualization bridge can reconstruct world coordinates from the
// local map's natural (ring-indexed) storage order.
func (m *Map) Offset() Vec3i { return m.offset }

// Cells returns the backing storage in its natural ring-indexed order
// (z-major, then y, then x), for bridge serialization. Callers must
// not retain the slice past the next Shift.
func (m *Map) Cells() []slam.TSDFEntry { return m.cells }

func (m *Map) fillAll() error {
	h := m.half()
	for z := m.center.Z - h.Z; z <= m.center.Z+h.Z; z++ {
		for y := m.center.Y - h.Y; y <= m.center.Y+h.Y; y++ {
			for x := m.center.X - h.X; x <= m.center.X+h.X; x++ {
				if err := m.loadCellFromGlobal(x, y, z); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// evictAll writes back every cell in the current window, touching
// each chunk it belongs to via PutChunk (dirty). Used before a
// fillAll refetch so a shift larger than the window on some axis
// doesn't silently discard dirty TSDF data from the outgoing window.
func (m *Map) evictAll() error {
	h := m.half()
	touched := make(map[store.ChunkKey]*store.Chunk)

	for z := m.center.Z - h.Z; z <= m.center.Z+h.Z; z++ {
		for y := m.center.Y - h.Y; y <= m.center.Y+h.Y; y++ {
			for x := m.center.X - h.X; x <= m.center.X+h.X; x++ {
				key := store.ChunkOf(x, y, z)
				chunk, ok := touched[key]
				if !ok {
					var err error
					chunk, err = m.global.GetChunk(key)
					if err != nil {
						return err
					}
					touched[key] = chunk
				}
				lx, ly, lz := localOffset(x, key.X), localOffset(y, key.Y), localOffset(z, key.Z)
				chunk.Cells[store.CellIndex(lx, ly, lz)] = m.cells[m.flatIndex(x, y, z)]
			}
		}
	}

	for key, chunk := range touched {
		m.global.PutChunk(key, chunk)
	}
	return nil
}

func (m *Map) loadCellFromGlobal(x, y, z int32) error {
	key := store.ChunkOf(x, y, z)
	chunk, err := m.global.GetChunk(key)
	if err != nil {
		return err
	}
	lx, ly, lz := localOffset(x, key.X), localOffset(y, key.Y), localOffset(z, key.Z)
	m.cells[m.flatIndex(x, y, z)] = chunk.Cells[store.CellIndex(lx, ly, lz)]
	return nil
}

func localOffset(world, chunkCoord int32) int {
	return int(world - chunkCoord*store.ChunkSize)
}

// Shift moves the logical center to newCenter. For each axis, cells
// that leave the window are written back to the global map and cells
// that enter are loaded from it (or defaulted); the ring offset
// advances so unchanged cells never move in memory. A shift of at
// least the window size on any axis is handled by writing back and
// refetching the whole window rather than stepping cell by cell.
func (m *Map) Shift(newCenter Vec3i) error {
	if err := m.shiftAxis(0, newCenter.X); err != nil {
		return err
	}
	if err := m.shiftAxis(1, newCenter.Y); err != nil {
		return err
	}
	if err := m.shiftAxis(2, newCenter.Z); err != nil {
		return err
	}
	return nil
}

func (m *Map) axisSize(axis int) int32 {
	switch axis {
	case 0:
		return int32(m.size.X)
	case 1:
		return int32(m.size.Y)
	default:
		return int32(m.size.Z)
	}
}

func (m *Map) axisCenter(axis int) int32 {
	switch axis {
	case 0:
		return m.center.X
	case 1:
		return m.center.Y
	default:
		return m.center.Z
	}
}

func (m *Map) setAxisCenter(axis int, v int32) {
	switch axis {
	case 0:
		m.center.X = v
	case 1:
		m.center.Y = v
	default:
		m.center.Z = v
	}
}

func (m *Map) axisOffset(axis int) int32 {
	switch axis {
	case 0:
		return m.offset.X
	case 1:
		return m.offset.Y
	default:
		return m.offset.Z
	}
}

func (m *Map) setAxisOffset(axis int, v int32) {
	switch axis {
	case 0:
		m.offset.X = v
	case 1:
		m.offset.Y = v
	default:
		m.offset.Z = v
	}
}

func (m *Map) shiftAxis(axis int, newCenter int32) error {
	s := m.axisSize(axis)
	oldCenter := m.axisCenter(axis)
	delta := newCenter - oldCenter
	if delta == 0 {
		return nil
	}
	if abs32(delta) >= s {
		if err := m.evictAll(); err != nil {
			return err
		}
		m.setAxisCenter(axis, newCenter)
		return m.fillAll()
	}
	step := int32(1)
	if delta < 0 {
		step = -1
	}
	for i := int32(0); i < abs32(delta); i++ {
		if err := m.stepAxisOnce(axis, step); err != nil {
			return err
		}
	}
	return nil
}

// stepAxisOnce evicts the single far-edge slice perpendicular to axis,
// advances the ring offset by one, moves the center by one, and fills
// the newly entered slice from the global map.
func (m *Map) stepAxisOnce(axis int, step int32) error {
	h := m.half() // in cells from center
	halfAxis := axisVal(h, axis)
	center := m.axisCenter(axis)

	var evictCoord int32
	if step > 0 {
		evictCoord = center - halfAxis // far edge in the trailing direction
	} else {
		evictCoord = center + halfAxis
	}
	if err := m.evictSlice(axis, evictCoord); err != nil {
		return err
	}

	m.setAxisOffset(axis, (m.axisOffset(axis)+step+m.axisSize(axis))%m.axisSize(axis))
	m.setAxisCenter(axis, center+step)

	var fillCoord int32
	if step > 0 {
		fillCoord = center + halfAxis + 1
	} else {
		fillCoord = center - halfAxis - 1
	}
	return m.fillSlice(axis, fillCoord)
}

func axisVal(v Vec3i, axis int) int32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// evictSlice writes back every cell in the plane perpendicular to
// axis at coordinate coord, touching each chunk it belongs to via
// PutChunk (dirty), leaving actual database I/O to the next
// WriteBack or cache eviction.
func (m *Map) evictSlice(axis int, coord int32) error {
	h := m.half()
	touched := make(map[store.ChunkKey]*store.Chunk)

	visit := func(x, y, z int32) error {
		key := store.ChunkOf(x, y, z)
		chunk, ok := touched[key]
		if !ok {
			var err error
			chunk, err = m.global.GetChunk(key)
			if err != nil {
				return err
			}
			touched[key] = chunk
		}
		lx, ly, lz := localOffset(x, key.X), localOffset(y, key.Y), localOffset(z, key.Z)
		chunk.Cells[store.CellIndex(lx, ly, lz)] = m.cells[m.flatIndex(x, y, z)]
		return nil
	}

	switch axis {
	case 0:
		for z := m.center.Z - h.Z; z <= m.center.Z+h.Z; z++ {
			for y := m.center.Y - h.Y; y <= m.center.Y+h.Y; y++ {
				if err := visit(coord, y, z); err != nil {
					return err
				}
			}
		}
	case 1:
		for z := m.center.Z - h.Z; z <= m.center.Z+h.Z; z++ {
			for x := m.center.X - h.X; x <= m.center.X+h.X; x++ {
				if err := visit(x, coord, z); err != nil {
					return err
				}
			}
		}
	default:
		for y := m.center.Y - h.Y; y <= m.center.Y+h.Y; y++ {
			for x := m.center.X - h.X; x <= m.center.X+h.X; x++ {
				if err := visit(x, y, coord); err != nil {
					return err
				}
			}
		}
	}

	for key, chunk := range touched {
		m.global.PutChunk(key, chunk)
	}
	return nil
}

func (m *Map) fillSlice(axis int, coord int32) error {
	h := m.half()
	switch axis {
	case 0:
		for z := m.center.Z - h.Z; z <= m.center.Z+h.Z; z++ {
			for y := m.center.Y - h.Y; y <= m.center.Y+h.Y; y++ {
				if err := m.loadCellFromGlobal(coord, y, z); err != nil {
					return err
				}
			}
		}
	case 1:
		for z := m.center.Z - h.Z; z <= m.center.Z+h.Z; z++ {
			for x := m.center.X - h.X; x <= m.center.X+h.X; x++ {
				if err := m.loadCellFromGlobal(x, coord, z); err != nil {
					return err
				}
			}
		}
	default:
		for y := m.center.Y - h.Y; y <= m.center.Y+h.Y; y++ {
			for x := m.center.X - h.X; x <= m.center.X+h.X; x++ {
				if err := m.loadCellFromGlobal(x, y, coord); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// WriteBack flushes all chunks touched by this local map's lifetime
// through the backing GlobalMap.
func (m *Map) WriteBack() error {
	return m.global.WriteBack()
}
