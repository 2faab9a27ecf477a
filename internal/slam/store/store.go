// Package store is the chunk-backed GlobalMap: a sparse key->chunk
// store persisted to a sqlite file (standing in for the HDF5-style
// hierarchical key-value store named in spec.md §6 — one dataset per
// occupied chunk, one group for the pose history), an in-memory LRU
// cache of recently touched chunks, and the default value/weight used
// to fill cells that have never been persisted.
package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pahoffmann/fastsense-go/internal/slam"
)

// sqlDB is a thin rename so migrate.go's helper doesn't need to import
// database/sql directly alongside this package's own symbol named DB.
type sqlDB = sql.DB

// ChunkSize is the edge length of one chunk, in cells.
const ChunkSize = 16

// ChunkKey identifies one chunk by its integer coordinate: the world
// cell coordinate divided by ChunkSize per axis.
type ChunkKey = slam.ChunkKey

// Chunk is a fixed cubic block of TSDF cells plus a dirty flag: dirty
// chunks must be written back before eviction.
type Chunk struct {
	Key   ChunkKey
	Cells []slam.TSDFEntry // len == ChunkSize^3, z-major then y then x
	Dirty bool
}

// CellIndex returns the flat index of cell (x,y,z) within a chunk,
// where x,y,z are local offsets in [0, ChunkSize).
func CellIndex(x, y, z int) int {
	return (z*ChunkSize+y)*ChunkSize + x
}

// ChunkOf returns the chunk key containing world cell (x,y,z).
func ChunkOf(x, y, z int32) ChunkKey {
	return ChunkKey{X: floorDivInt(x, ChunkSize), Y: floorDivInt(y, ChunkSize), Z: floorDivInt(z, ChunkSize)}
}

func floorDivInt(a, b int32) int32 {
	q := a / b
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		q--
	}
	return q
}

// GlobalMap is the shared owner of the persistent chunk store. It is
// safe for concurrent use by the cloud callback and the map thread:
// every chunk method takes the internal mutex (the pose methods rely
// on database/sql's own concurrency safety), and chunk
// reads/writes from the same goroutine observe their own writes
// (read-after-write) via the in-memory cache before falling through to
// the database.
type GlobalMap struct {
	mu             sync.Mutex
	db             *sql.DB
	cache          map[ChunkKey]*Chunk
	cacheOrder     []ChunkKey // recency order, most-recent last
	cacheCap       int
	defaultValue   int32
	defaultWeight  int32
	sessionID      string
	poseIdx        int64
}

// Config configures a GlobalMap.
type Config struct {
	// Path is the sqlite database file path. ":memory:" is valid for
	// tests.
	Path string
	// DefaultValue and DefaultWeight fill cells that have never been
	// touched in the persistent store.
	DefaultValue  int32
	DefaultWeight int32
	// CacheCapacity bounds the in-memory chunk LRU cache (chunks, not
	// bytes). Zero selects a sensible default.
	CacheCapacity int
}

// Open opens (creating if necessary) a sqlite-backed GlobalMap at
// cfg.Path and applies any pending schema migrations.
func Open(cfg Config) (*GlobalMap, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", cfg.Path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	cacheCap := cfg.CacheCapacity
	if cacheCap <= 0 {
		cacheCap = 256
	}

	return &GlobalMap{
		db:            db,
		cache:         make(map[ChunkKey]*Chunk),
		cacheCap:      cacheCap,
		defaultValue:  cfg.DefaultValue,
		defaultWeight: cfg.DefaultWeight,
		sessionID:     uuid.NewString(),
	}, nil
}

// Close flushes dirty chunks and closes the underlying database.
func (g *GlobalMap) Close() error {
	if err := g.WriteBack(); err != nil {
		return err
	}
	return g.db.Close()
}

// SessionID is the uuid stamped into every pose this GlobalMap
// persists, so pose history rows can be grouped by run.
func (g *GlobalMap) SessionID() string {
	return g.sessionID
}

func (g *GlobalMap) freshChunk(key ChunkKey) *Chunk {
	cells := make([]slam.TSDFEntry, ChunkSize*ChunkSize*ChunkSize)
	for i := range cells {
		cells[i] = slam.TSDFEntry{Value: g.defaultValue, Weight: g.defaultWeight}
	}
	return &Chunk{Key: key, Cells: cells}
}

// GetChunk returns the chunk at key: from the in-memory cache if
// present, otherwise loaded from the database, otherwise a fresh chunk
// filled with (defaultValue, defaultWeight). The returned chunk is
// owned by the cache; mutate it in place and rely on Dirty plus a
// later PutChunk/WriteBack to persist changes.
func (g *GlobalMap) GetChunk(key ChunkKey) (*Chunk, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getChunkLocked(key)
}

func (g *GlobalMap) getChunkLocked(key ChunkKey) (*Chunk, error) {
	if c, ok := g.cache[key]; ok {
		g.touchLocked(key)
		return c, nil
	}

	c, err := g.loadFromDB(key)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = g.freshChunk(key)
	}
	g.insertCacheLocked(key, c)
	return c, nil
}

func (g *GlobalMap) loadFromDB(key ChunkKey) (*Chunk, error) {
	row := g.db.QueryRow(`SELECT cell_blob FROM map_chunks WHERE chunk_key = ?`, key.KeyString())
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load chunk %s: %w", key.KeyString(), err)
	}
	return decodeChunk(key, blob)
}

// PutChunk writes a chunk into the cache (marking it dirty) so a
// subsequent WriteBack persists it. Write-through happens on
// eviction, not on every PutChunk, so repeated touches to a hot chunk
// do not thrash the database.
func (g *GlobalMap) PutChunk(key ChunkKey, c *Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.Dirty = true
	g.cache[key] = c
	g.touchLocked(key)
}

func (g *GlobalMap) touchLocked(key ChunkKey) {
	for i, k := range g.cacheOrder {
		if k == key {
			g.cacheOrder = append(g.cacheOrder[:i], g.cacheOrder[i+1:]...)
			break
		}
	}
	g.cacheOrder = append(g.cacheOrder, key)
}

func (g *GlobalMap) insertCacheLocked(key ChunkKey, c *Chunk) {
	g.cache[key] = c
	g.touchLocked(key)
	for len(g.cacheOrder) > g.cacheCap {
		evictKey := g.cacheOrder[0]
		g.cacheOrder = g.cacheOrder[1:]
		evictChunk := g.cache[evictKey]
		delete(g.cache, evictKey)
		if evictChunk != nil && evictChunk.Dirty {
			if err := g.persistChunkLocked(evictChunk); err != nil {
				log.Printf("store: eviction write-back failed for chunk %s: %v", evictKey.KeyString(), err)
			}
		}
	}
}

func (g *GlobalMap) persistChunkLocked(c *Chunk) error {
	blob := encodeChunk(c)
	_, err := g.db.Exec(`
		INSERT INTO map_chunks (chunk_key, cx, cy, cz, cell_blob, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_key) DO UPDATE SET cell_blob = excluded.cell_blob, updated_at = excluded.updated_at
	`, c.Key.KeyString(), c.Key.X, c.Key.Y, c.Key.Z, blob, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("store: persist chunk %s: %w", c.Key.KeyString(), err)
	}
	c.Dirty = false
	return nil
}

// WriteBack flushes all dirty chunks currently cached in memory and
// returns the first persistence error, leaving the remaining chunks
// unflushed. The map thread does not call it; Pipeline.Stop calls it
// through the local map at shutdown and only logs a failure, and Close
// returns it.
func (g *GlobalMap) WriteBack() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.cache {
		if c.Dirty {
			if err := g.persistChunkLocked(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// SavePose appends a pose to the ordered pose-history list, keyed by
// insertion index, persisting the rotation matrix and translation (12
// floats) rather than a quaternion or Euler triple: round-tripping a
// matrix needs no re-derivation of a possibly-degenerate quaternion at
// the next registration step (see DESIGN.md's Open Question decision).
func (g *GlobalMap) SavePose(p slam.Pose) (int64, error) {
	m := p.T.M
	res, err := g.db.Exec(`
		INSERT INTO poses (session_id, tx, ty, tz, r00, r01, r02, r10, r11, r12, r20, r21, r22, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.sessionID, m[3], m[7], m[11], m[0], m[1], m[2], m[4], m[5], m[6], m[8], m[9], m[10], time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: save pose: %w", err)
	}
	idx, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: save pose insert id: %w", err)
	}
	return idx, nil
}

// PoseHistory returns every persisted pose for this GlobalMap's
// session, in insertion order.
func (g *GlobalMap) PoseHistory() ([]slam.Pose, error) {
	rows, err := g.db.Query(`
		SELECT tx, ty, tz, r00, r01, r02, r10, r11, r12, r20, r21, r22
		FROM poses WHERE session_id = ? ORDER BY idx ASC
	`, g.sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: pose history: %w", err)
	}
	defer rows.Close()

	var out []slam.Pose
	for rows.Next() {
		var tx, ty, tz, r00, r01, r02, r10, r11, r12, r20, r21, r22 float64
		if err := rows.Scan(&tx, &ty, &tz, &r00, &r01, &r02, &r10, &r11, &r12, &r20, &r21, &r22); err != nil {
			return nil, fmt.Errorf("store: pose history scan: %w", err)
		}
		p := slam.IdentityPose()
		p.T.M[0], p.T.M[1], p.T.M[2], p.T.M[3] = r00, r01, r02, tx
		p.T.M[4], p.T.M[5], p.T.M[6], p.T.M[7] = r10, r11, r12, ty
		p.T.M[8], p.T.M[9], p.T.M[10], p.T.M[11] = r20, r21, r22, tz
		out = append(out, p)
	}
	return out, rows.Err()
}

// encodeChunk packs a chunk's cells into the single-field raw-type
// encoding spec.md §6 requires: each entry is (value int16, weight
// int16) packed into one int32 (value in the high 16 bits, weight in
// the low 16, two's complement), little-endian.
func encodeChunk(c *Chunk) []byte {
	buf := make([]byte, len(c.Cells)*4)
	for i, e := range c.Cells {
		packed := (uint32(uint16(int16(e.Value))) << 16) | uint32(uint16(int16(e.Weight)))
		binary.LittleEndian.PutUint32(buf[i*4:], packed)
	}
	return buf
}

func decodeChunk(key ChunkKey, blob []byte) (*Chunk, error) {
	const n = ChunkSize * ChunkSize * ChunkSize
	if len(blob) != n*4 {
		return nil, fmt.Errorf("store: chunk %s has %d bytes, want %d", key.KeyString(), len(blob), n*4)
	}
	cells := make([]slam.TSDFEntry, n)
	for i := range cells {
		packed := binary.LittleEndian.Uint32(blob[i*4:])
		cells[i] = slam.TSDFEntry{
			Value:  int32(int16(packed >> 16)),
			Weight: int32(int16(packed & 0xffff)),
		}
	}
	return &Chunk{Key: key, Cells: cells}, nil
}
