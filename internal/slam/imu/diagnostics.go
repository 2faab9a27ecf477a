package imu

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pahoffmann/fastsense-go/internal/slam"
)

// WindowDiagnostics tracks a bounded history of recent angular-rate
// samples and reports their per-axis variance, used by bring-up
// tooling to flag a noisy or miscalibrated IMU before it poisons
// registration's initial guess.
type WindowDiagnostics struct {
	mu       sync.Mutex
	capacity int
	wx, wy, wz []float64
}

// NewWindowDiagnostics returns a diagnostics window holding up to
// capacity recent samples.
func NewWindowDiagnostics(capacity int) *WindowDiagnostics {
	return &WindowDiagnostics{capacity: capacity}
}

// Observe records one angular-rate sample, dropping the oldest once
// the window is full.
func (w *WindowDiagnostics) Observe(sample slam.ImuSample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wx = pushBounded(w.wx, sample.AngularRate.X, w.capacity)
	w.wy = pushBounded(w.wy, sample.AngularRate.Y, w.capacity)
	w.wz = pushBounded(w.wz, sample.AngularRate.Z, w.capacity)
}

func pushBounded(s []float64, v float64, cap int) []float64 {
	s = append(s, v)
	if len(s) > cap {
		s = s[len(s)-cap:]
	}
	return s
}

// AxisVariance is the per-axis sample variance and mean over the
// current window.
type AxisVariance struct {
	MeanX, MeanY, MeanZ float64
	VarX, VarY, VarZ    float64
}

// Variance computes AxisVariance over whatever samples are currently
// in the window. Returns the zero value if the window is empty.
func (w *WindowDiagnostics) Variance() AxisVariance {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out AxisVariance
	if len(w.wx) == 0 {
		return out
	}
	out.MeanX, out.VarX = stat.MeanVariance(w.wx, nil)
	out.MeanY, out.VarY = stat.MeanVariance(w.wy, nil)
	out.MeanZ, out.VarZ = stat.MeanVariance(w.wz, nil)
	return out
}
