// Package imuserial reads IMU samples off a serial link: a minimal
// line-oriented reader in the same spirit as the root-level RadarPort
// adapter, generalized behind the Porter interface so tests run
// against a fake port instead of real hardware.
package imuserial

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/pahoffmann/fastsense-go/internal/slam/geom"
)

// Porter is the minimal interface this package needs from a serial
// port: enough to read lines and close the connection. Real hardware
// satisfies it via go.bug.st/serial's Port; tests satisfy it with a
// plain io.ReadCloser over an in-memory buffer.
type Porter interface {
	io.Reader
	io.Closer
}

// Mode describes the serial connection parameters for an IMU link.
// Zero-valued fields are filled with IMU-appropriate defaults by
// Normalize, the same optional-field shape used for the radar link's
// PortOptions.
type Mode struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "N", "E", or "O"
}

// Normalize validates m and fills unset fields with defaults suited to
// IMU links, which typically run faster than the 19200 baud radar
// default.
func (m Mode) Normalize() (Mode, error) {
	out := m
	if out.BaudRate <= 0 {
		out.BaudRate = 115200
	}
	if out.DataBits == 0 {
		out.DataBits = 8
	}
	if out.DataBits < 5 || out.DataBits > 8 {
		return out, fmt.Errorf("imuserial: invalid data bits %d", out.DataBits)
	}
	if out.StopBits == 0 {
		out.StopBits = 1
	}
	if out.StopBits != 1 && out.StopBits != 2 {
		return out, fmt.Errorf("imuserial: invalid stop bits %d", out.StopBits)
	}
	parity := strings.ToUpper(strings.TrimSpace(out.Parity))
	if parity == "" {
		parity = "N"
	}
	if parity != "N" && parity != "E" && parity != "O" {
		return out, fmt.Errorf("imuserial: unsupported parity %q", out.Parity)
	}
	out.Parity = parity
	return out, nil
}

// serialMode converts m into go.bug.st/serial's wire Mode.
func (m Mode) serialMode() (*serial.Mode, error) {
	norm, err := m.Normalize()
	if err != nil {
		return nil, err
	}
	sm := &serial.Mode{BaudRate: norm.BaudRate, DataBits: norm.DataBits, StopBits: serial.OneStopBit}
	if norm.StopBits == 2 {
		sm.StopBits = serial.TwoStopBits
	}
	switch norm.Parity {
	case "N":
		sm.Parity = serial.NoParity
	case "E":
		sm.Parity = serial.EvenParity
	case "O":
		sm.Parity = serial.OddParity
	}
	return sm, nil
}

// Open opens a real serial IMU link at path.
func Open(path string, mode Mode) (Porter, error) {
	sm, err := mode.serialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, sm)
	if err != nil {
		return nil, fmt.Errorf("imuserial: open %s: %w", path, err)
	}
	return port, nil
}

// Sample is the raw line-decoded IMU reading, before being wrapped
// into a slam.Stamped[ImuSample] by the caller (which supplies the
// capture timestamp).
type Sample struct {
	AngularRate  geom.Vec3
	LinearAccel  geom.Vec3
	Magnetometer geom.Vec3
}

// LineReader scans CSV-formatted lines off a Porter: "wx,wy,wz,ax,ay,az,mx,my,mz".
// The exact wire format of any particular IMU model is a driver-layer
// concern out of scope for this module; this is the minimal plumbing
// an adapter for a real device would sit behind.
type LineReader struct {
	port Porter
	scan *bufio.Scanner
}

// NewLineReader wraps an already-open Porter.
func NewLineReader(port Porter) *LineReader {
	return &LineReader{port: port, scan: bufio.NewScanner(port)}
}

// Next blocks for the next line and parses it into a Sample. Returns
// io.EOF when the underlying port is closed and fully drained.
func (r *LineReader) Next() (Sample, error) {
	if !r.scan.Scan() {
		if err := r.scan.Err(); err != nil {
			return Sample{}, err
		}
		return Sample{}, io.EOF
	}
	return parseLine(r.scan.Text())
}

// Close closes the underlying port.
func (r *LineReader) Close() error {
	return r.port.Close()
}

func parseLine(line string) (Sample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 9 {
		return Sample{}, fmt.Errorf("imuserial: expected 9 fields, got %d: %q", len(fields), line)
	}
	var v [9]float64
	for i, f := range fields {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("imuserial: field %d %q: %w", i, f, err)
		}
		v[i] = parsed
	}
	return Sample{
		AngularRate:  geom.Vec3{X: v[0], Y: v[1], Z: v[2]},
		LinearAccel:  geom.Vec3{X: v[3], Y: v[4], Z: v[5]},
		Magnetometer: geom.Vec3{X: v[6], Y: v[7], Z: v[8]},
	}, nil
}
