// Package dashboard renders an HTML pose/IMU-variance dashboard for
// offline bring-up and tuning sessions, using go-echarts the same way
// the teacher's monitoring tooling builds browser-facing charts from
// in-process state rather than shipping a separate frontend build.
package dashboard

import (
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/pahoffmann/fastsense-go/internal/slam"
)

// PoseSample is one point on the trajectory/variance plots: a pose's
// translation and the IMU axis variance observed around that time.
type PoseSample struct {
	Label string
	X, Y  float64
	VarX, VarY, VarZ float64
}

// BuildPoseTrajectory renders the (x,y) trajectory traced by a pose
// history, most useful for a quick "did it drift" sanity check after
// a replay run.
func BuildPoseTrajectory(poses []slam.Pose) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Pose trajectory (X/Y, mm)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mm"}),
	)

	xs := make([]opts.LineData, 0, len(poses))
	ys := make([]opts.LineData, 0, len(poses))
	labels := make([]string, 0, len(poses))
	for i, p := range poses {
		labels = append(labels, strconv.Itoa(i))
		xs = append(xs, opts.LineData{Value: p.T.M[3]})
		ys = append(ys, opts.LineData{Value: p.T.M[7]})
	}

	line.SetXAxis(labels).
		AddSeries("x", xs).
		AddSeries("y", ys)
	return line
}

// BuildVarianceChart renders per-axis IMU angular-rate variance over
// a window history, flagging a noisy sensor before it poisons
// registration's initial guess.
func BuildVarianceChart(samples []PoseSample) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "IMU angular-rate variance"}),
	)

	labels := make([]string, 0, len(samples))
	vx := make([]opts.BarData, 0, len(samples))
	vy := make([]opts.BarData, 0, len(samples))
	vz := make([]opts.BarData, 0, len(samples))
	for _, s := range samples {
		labels = append(labels, s.Label)
		vx = append(vx, opts.BarData{Value: s.VarX})
		vy = append(vy, opts.BarData{Value: s.VarY})
		vz = append(vz, opts.BarData{Value: s.VarZ})
	}

	bar.SetXAxis(labels).
		AddSeries("var(wx)", vx).
		AddSeries("var(wy)", vy).
		AddSeries("var(wz)", vz)
	return bar
}

// Render writes a single-page HTML dashboard combining the trajectory
// and variance charts to w.
func Render(w io.Writer, poses []slam.Pose, samples []PoseSample) error {
	page := components.NewPage()
	page.AddCharts(BuildPoseTrajectory(poses), BuildVarianceChart(samples))
	return page.Render(w)
}
