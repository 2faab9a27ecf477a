// Package pipeline wires the concurrency fabric together: the cloud
// callback thread (registration) and the map thread (shift + TSDF
// update + snapshot), handed off through the bounded ring buffers in
// internal/slam/ringbuf.
package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/geom"
	"github.com/pahoffmann/fastsense-go/internal/slam/imu"
	"github.com/pahoffmann/fastsense-go/internal/slam/localmap"
	"github.com/pahoffmann/fastsense-go/internal/slam/registration"
	"github.com/pahoffmann/fastsense-go/internal/slam/ringbuf"
	"github.com/pahoffmann/fastsense-go/internal/slam/tsdf"
)

// Config bundles the tuning knobs named in the external config
// (registration.*, slam.position_threshold, slam.period).
type Config struct {
	Registration      registration.Params
	TSDF              tsdf.Params
	PositionThreshold float64 // mm; activate the map thread if exceeded
	Period            int     // activate every Period registration calls if >= 1; 0 disables
}

// Pipeline owns the local map, the IMU accumulator, and the three
// worker goroutines (IMU loop, cloud callback, map thread) plus the
// ring buffers between them.
type Pipeline struct {
	cfg Config

	mapMu   sync.Mutex
	local   *localmap.Map
	imuAcc  *imu.Accumulator

	cloudIn  *ringbuf.Buffer[slam.Stamped[slam.PointCloud]]
	imuIn    *ringbuf.Buffer[slam.Stamped[slam.ImuSample]]
	poseOut  *ringbuf.Buffer[slam.Stamped[slam.Pose]]
	snapshotOut *ringbuf.Buffer[Snapshot]

	pose      slam.Pose
	poseMu    sync.Mutex
	callCount int

	// lastActivationPos is touched only from the cloud callback
	// goroutine, so it needs no lock of its own.
	lastActivationPos geom.Vec3i

	mapThread *mapThread

	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex
}

// Snapshot is the local map state pushed to the visualization buffer
// after each map thread activation.
type Snapshot struct {
	Center Vec3i
	Offset Vec3i
	Size   Vec3i
	Cells  []slam.TSDFEntry
}

// Vec3i mirrors localmap.Vec3i for the snapshot's public surface, so
// callers of this package don't need to import localmap just to read
// a snapshot header.
type Vec3i struct{ X, Y, Z int32 }

// New constructs a Pipeline around an already-populated local map.
func New(local *localmap.Map, cfg Config, cloudCap, imuCap, poseCap, snapshotCap int) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		local:       local,
		imuAcc:      imu.New(),
		cloudIn:     ringbuf.New[slam.Stamped[slam.PointCloud]](cloudCap),
		imuIn:       ringbuf.New[slam.Stamped[slam.ImuSample]](imuCap),
		poseOut:     ringbuf.New[slam.Stamped[slam.Pose]](poseCap),
		snapshotOut: ringbuf.New[Snapshot](snapshotCap),
		pose:        slam.IdentityPose(),
		mapThread:   newMapThread(),
	}
}

// CloudIn, ImuIn, PoseOut, and SnapshotOut expose the pipeline's ring
// buffers so sensor drivers and visualization bridges can be wired in
// without reaching into Pipeline internals.
func (p *Pipeline) CloudIn() *ringbuf.Buffer[slam.Stamped[slam.PointCloud]]    { return p.cloudIn }
func (p *Pipeline) ImuIn() *ringbuf.Buffer[slam.Stamped[slam.ImuSample]]       { return p.imuIn }
func (p *Pipeline) PoseOut() *ringbuf.Buffer[slam.Stamped[slam.Pose]]          { return p.poseOut }
func (p *Pipeline) SnapshotOut() *ringbuf.Buffer[Snapshot]                     { return p.snapshotOut }

// Start launches the IMU loop, cloud callback and map threads. Calling
// Start again without an intervening Stop is a no-op.
func (p *Pipeline) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return
	}
	p.running = true

	p.wg.Add(3)
	go p.runImuLoop()
	go p.runCloudLoop()
	go p.mapThread.run(p)
}

// Stop closes the input buffers and joins all three worker goroutines.
// It is idempotent.
func (p *Pipeline) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	p.running = false
	p.runMu.Unlock()

	p.cloudIn.Close()
	p.imuIn.Close()
	p.mapThread.stop()
	p.wg.Wait()

	if err := p.local.WriteBack(); err != nil {
		log.Printf("pipeline: final write-back failed: %v", err)
	}
}

func (p *Pipeline) runImuLoop() {
	defer p.wg.Done()
	for {
		s, ok := p.imuIn.Pop()
		if !ok {
			return
		}
		p.imuAcc.Update(s.Value, s.Timestamp)
	}
}

func (p *Pipeline) runCloudLoop() {
	defer p.wg.Done()
	for {
		s, ok := p.cloudIn.Pop()
		if !ok {
			return
		}
		p.handleCloud(s)
	}
}

func (p *Pipeline) handleCloud(s slam.Stamped[slam.PointCloud]) {
	cloud := preprocess(s.Value)
	initial := p.imuAcc.Reset()

	p.mapMu.Lock()
	res := registration.Register(p.local, cloud.Points, initial, p.cfg.Registration)
	p.mapMu.Unlock()

	if res.Failed {
		log.Printf("pipeline: registration failed on stamp %s, using identity", s.Timestamp)
	}
	registration.TransformPoints(cloud.Points, res.T)

	p.poseMu.Lock()
	newT := geom.MulFloat(res.T, p.pose.T)
	p.pose = slam.Pose{T: newT}
	pose := p.pose
	p.callCount++
	callCount := p.callCount
	p.poseMu.Unlock()

	p.poseOut.PushOverwrite(slam.NewStamped(pose, s.Timestamp))

	pos := translationOf(pose.T)
	if p.shouldActivate(pos, callCount) {
		p.mapThread.activate(pos, cloud, s.Timestamp)
	}
}

// preprocess rejects zero points and keeps everything else as-is; the
// ring-decoded driver layer already produced integer map-frame points.
func preprocess(c slam.PointCloud) slam.PointCloud {
	out := make([]slam.Point, 0, len(c.Points))
	for _, p := range c.Points {
		if p == (geom.Vec3i{}) {
			continue
		}
		out = append(out, p)
	}
	return slam.PointCloud{Points: out, Rings: c.Rings}
}

func translationOf(t geom.FloatTransform) geom.Vec3i {
	return geom.Vec3i{X: int32(t.M[3]), Y: int32(t.M[7]), Z: int32(t.M[11])}
}

func (p *Pipeline) shouldActivate(pos geom.Vec3i, callCount int) bool {
	if p.cfg.PositionThreshold > 0 {
		d := pos.Sub(p.lastActivationPos).Norm()
		if d > p.cfg.PositionThreshold {
			p.lastActivationPos = pos
			return true
		}
	}
	if p.cfg.Period >= 1 && callCount%p.cfg.Period == 0 {
		p.lastActivationPos = pos
		return true
	}
	return false
}

// mapThread implements the semaphore-style activation handshake named
// in spec.md §4.8: activate() stashes (pos, scan) and signals the worker
// loop, which otherwise sits parked. A single mutex + condition
// variable stand in for the reference's binary start_mutex: the
// worker waits on the condition instead of repeatedly trying to
// acquire a lock someone else holds.
type mapThread struct {
	mu      sync.Mutex
	cond    *sync.Cond
	job     activationJob
	hasJob  bool
	stopped bool
}

type activationJob struct {
	pos   geom.Vec3i
	cloud slam.PointCloud
	ts    time.Time
}

func newMapThread() *mapThread {
	t := &mapThread{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// activate stashes the next job and wakes the worker loop.
func (t *mapThread) activate(pos geom.Vec3i, cloud slam.PointCloud, ts time.Time) {
	t.mu.Lock()
	t.job = activationJob{pos: pos, cloud: cloud, ts: ts}
	t.hasJob = true
	t.mu.Unlock()
	t.cond.Signal()
}

func (t *mapThread) stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.cond.Signal()
}

func (t *mapThread) run(p *Pipeline) {
	defer p.wg.Done()
	for {
		t.mu.Lock()
		for !t.hasJob && !t.stopped {
			t.cond.Wait()
		}
		if t.stopped && !t.hasJob {
			t.mu.Unlock()
			return
		}
		job := t.job
		t.hasJob = false
		t.mu.Unlock()

		p.mapMu.Lock()
		if err := p.local.Shift(localmap.Vec3i{X: job.pos.X, Y: job.pos.Y, Z: job.pos.Z}); err != nil {
			log.Printf("pipeline: map shift failed: %v", err)
			p.mapMu.Unlock()
			continue
		}
		tsdf.Update(p.local, job.cloud, job.pos, p.cfg.TSDF)
		snap := snapshotOf(p.local)
		p.mapMu.Unlock()

		p.snapshotOut.PushOverwrite(snap)
	}
}

func snapshotOf(m *localmap.Map) Snapshot {
	c, o, s := m.Center(), m.Offset(), m.SizeOf()
	cells := m.Cells()
	cp := make([]slam.TSDFEntry, len(cells))
	copy(cp, cells)
	return Snapshot{
		Center: Vec3i{X: c.X, Y: c.Y, Z: c.Z},
		Offset: Vec3i{X: o.X, Y: o.Y, Z: o.Z},
		Size:   Vec3i{X: int32(s.X), Y: int32(s.Y), Z: int32(s.Z)},
		Cells:  cp,
	}
}
