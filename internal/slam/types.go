// Package slam holds the data types shared across the TSDF map engine,
// the registration optimizer, and the concurrency fabric: the point
// and scan types, the TSDF cell representation, pose, and the
// Stamped[T] wrapper that crosses every ring-buffer boundary.
//
// Subpackages (store, localmap, tsdf, imu, registration, pipeline,
// bridge) alias these types rather than redefining them, the same
// pattern the teacher uses between internal/lidar and its l3grid/
// l4perception subpackages to avoid import cycles.
package slam

import (
	"fmt"
	"time"

	"github.com/pahoffmann/fastsense-go/internal/slam/geom"
)

// Point is a single LiDAR return in integer millimeters, scanner
// frame.
type Point = geom.Vec3i

// PointCloud is an ordered sequence of points from one scan. Ring
// count R groups points column-major: len(Points) % Rings == 0.
type PointCloud struct {
	Points []Point
	Rings  int
}

// InvalidPoint is the sentinel a PointCloud uses to mark a dropped
// point (e.g. zero return) without changing Rings' column-major
// layout; registration skips it.
var InvalidPoint = Point{X: 1<<31 - 1, Y: 1<<31 - 1, Z: 1<<31 - 1}

// IsInvalid reports whether p is the INVALID_POINT sentinel.
func IsInvalid(p Point) bool {
	return p == InvalidPoint
}

// ImuSample is a single inertial measurement.
type ImuSample struct {
	AngularRate  geom.Vec3 // rad/s
	LinearAccel  geom.Vec3 // m/s^2
	Magnetometer geom.Vec3
}

// Stamped wraps any payload crossing a thread boundary with a
// monotonic timestamp. Timestamps never decrease within one stream.
type Stamped[T any] struct {
	Value     T
	Timestamp time.Time
}

// NewStamped builds a Stamped[T] with the given value and timestamp.
func NewStamped[T any](v T, ts time.Time) Stamped[T] {
	return Stamped[T]{Value: v, Timestamp: ts}
}

// Pose is an SE(3) pose: a 4x4 row-major transform plus bookkeeping
// needed to persist and validate it.
type Pose struct {
	T geom.FloatTransform
}

// IdentityPose returns the pose at the world origin with no rotation.
func IdentityPose() Pose {
	return Pose{T: geom.FloatIdentity()}
}

// ChunkKey is the integer chunk coordinate: the world cell coordinate
// divided by ChunkSize per axis.
type ChunkKey struct {
	X, Y, Z int32
}

// KeyString renders a ChunkKey as the "<cx>_<cy>_<cz>" signed-decimal
// dataset name spec.md §6 specifies.
func (k ChunkKey) KeyString() string {
	return fmt.Sprintf("%d_%d_%d", k.X, k.Y, k.Z)
}

// TSDFEntry is one cell of the truncated signed distance field: a
// signed distance in millimeters, clamped to [-tau, +tau], and an
// integer weight. Weight == 0 means the cell has never been observed.
type TSDFEntry struct {
	Value  int32
	Weight int32
}

// Observed reports whether the cell has ever received a weighted
// observation.
func (e TSDFEntry) Observed() bool {
	return e.Weight != 0
}
