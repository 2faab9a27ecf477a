// Package config is the builder/validator for every tuning knob named
// in spec.md §6: registration.*, slam.*, and bridge.* settings,
// loaded from an external JSON file with all-optional fields so a
// partial override file is always safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pahoffmann/fastsense-go/internal/slam/pipeline"
	"github.com/pahoffmann/fastsense-go/internal/slam/registration"
	"github.com/pahoffmann/fastsense-go/internal/slam/tsdf"
)

// Config is the fully-resolved, validated configuration for one SLAM
// engine instance.
type Config struct {
	LidarPort     string
	ImuPort       string
	ImuBufferSize int
	LidarBufferSize int

	Registration registration.Params
	TSDF         tsdf.Params
	Pipeline     pipeline.Config

	MapSizeX, MapSizeY, MapSizeZ int
	InitialMapWeight             int32

	TSDFBridgePort int
	ImuBridgePort  int
	CloudBridgePort int
}

// Default returns the reference tuning values; the map resolution and
// tau match the constants used in this module's own tests.
func Default() Config {
	reg := registration.DefaultParams()
	tp := tsdf.Params{MapResolution: 64, Tau: 192, MaxWeight: 100 * tsdf.WeightResolution, DzPerDistance: 0}
	return Config{
		ImuBufferSize:   64,
		LidarBufferSize: 8,
		Registration:    reg,
		TSDF:            tp,
		Pipeline:        pipeline.Config{Registration: reg, TSDF: tp, PositionThreshold: 500, Period: 1},
		MapSizeX:        129,
		MapSizeY:        129,
		MapSizeZ:        65,
		TSDFBridgePort:  9001,
		ImuBridgePort:   9002,
		CloudBridgePort: 9003,
	}
}

// Validate rejects a Config with out-of-range tuning values before it
// reaches the pipeline, the same defensive boundary the rest of this
// module's ancestry puts in front of its own Config types.
func (c *Config) Validate() error {
	if c.MapSizeX%2 == 0 || c.MapSizeY%2 == 0 || c.MapSizeZ%2 == 0 {
		return fmt.Errorf("config: map size (%d,%d,%d) must be odd on every axis", c.MapSizeX, c.MapSizeY, c.MapSizeZ)
	}
	if c.TSDF.MapResolution <= 0 {
		return fmt.Errorf("config: map_resolution must be positive, got %d", c.TSDF.MapResolution)
	}
	if c.TSDF.Tau <= 0 {
		return fmt.Errorf("config: tau must be positive, got %d", c.TSDF.Tau)
	}
	if c.TSDF.MaxWeight <= 0 {
		return fmt.Errorf("config: max_weight must be positive, got %d", c.TSDF.MaxWeight)
	}
	if c.Registration.MaxIterations <= 0 {
		return fmt.Errorf("config: registration.max_iterations must be positive, got %d", c.Registration.MaxIterations)
	}
	if c.Registration.Epsilon <= 0 {
		return fmt.Errorf("config: registration.epsilon must be positive, got %f", c.Registration.Epsilon)
	}
	if c.ImuBufferSize <= 0 || c.LidarBufferSize <= 0 {
		return fmt.Errorf("config: buffer sizes must be positive")
	}
	return nil
}

// overlay is the all-optional JSON shape an external config file uses
// to patch Default(): fields omitted from the file keep their
// Default() value, so a deployment only needs to spell out what it
// changes.
type overlay struct {
	LidarPort       *string  `json:"lidar_port,omitempty"`
	ImuPort         *string  `json:"imu_port,omitempty"`
	ImuBufferSize   *int     `json:"imu_buffer_size,omitempty"`
	LidarBufferSize *int     `json:"lidar_buffer_size,omitempty"`

	RegistrationMaxIterations *int     `json:"registration_max_iterations,omitempty"`
	RegistrationItWeightGrad  *float64 `json:"registration_it_weight_gradient,omitempty"`
	RegistrationEpsilon       *float64 `json:"registration_epsilon,omitempty"`

	MapSizeX         *int     `json:"map_size_x,omitempty"`
	MapSizeY         *int     `json:"map_size_y,omitempty"`
	MapSizeZ         *int     `json:"map_size_z,omitempty"`
	MapResolution    *int32   `json:"map_resolution,omitempty"`
	MaxDistance      *int32   `json:"max_distance,omitempty"` // parsed but not applied: no Config field carries it
	InitialMapWeight *int32   `json:"initial_map_weight,omitempty"`
	Tau              *int32   `json:"tau,omitempty"`
	MaxWeight        *int32   `json:"max_weight,omitempty"`
	PositionThreshold *float64 `json:"position_threshold,omitempty"`
	Period           *int     `json:"period,omitempty"`

	TSDFBridgePort  *int `json:"tsdf_port,omitempty"`
	ImuBridgePort   *int `json:"imu_port_bridge,omitempty"`
	CloudBridgePort *int `json:"cloud_port,omitempty"`
}

// Load reads path as a JSON overlay on top of Default() and validates
// the result.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	var ov overlay
	if err := json.Unmarshal(data, &ov); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyOverlay(&c, ov)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyOverlay(c *Config, ov overlay) {
	setString(&c.LidarPort, ov.LidarPort)
	setString(&c.ImuPort, ov.ImuPort)
	setInt(&c.ImuBufferSize, ov.ImuBufferSize)
	setInt(&c.LidarBufferSize, ov.LidarBufferSize)

	setInt(&c.Registration.MaxIterations, ov.RegistrationMaxIterations)
	setFloat64(&c.Registration.ItWeightGradient, ov.RegistrationItWeightGrad)
	setFloat64(&c.Registration.Epsilon, ov.RegistrationEpsilon)

	setInt(&c.MapSizeX, ov.MapSizeX)
	setInt(&c.MapSizeY, ov.MapSizeY)
	setInt(&c.MapSizeZ, ov.MapSizeZ)
	setInt32(&c.TSDF.MapResolution, ov.MapResolution)
	setInt32(&c.InitialMapWeight, ov.InitialMapWeight)
	setInt32(&c.TSDF.Tau, ov.Tau)
	setInt32(&c.TSDF.MaxWeight, ov.MaxWeight)
	setFloat64(&c.Pipeline.PositionThreshold, ov.PositionThreshold)
	setInt(&c.Pipeline.Period, ov.Period)

	setInt(&c.TSDFBridgePort, ov.TSDFBridgePort)
	setInt(&c.ImuBridgePort, ov.ImuBridgePort)
	setInt(&c.CloudBridgePort, ov.CloudBridgePort)

	c.Registration.MapResolution = c.TSDF.MapResolution
	c.Pipeline.Registration = c.Registration
	c.Pipeline.TSDF = c.TSDF
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setInt32(dst *int32, v *int32) {
	if v != nil {
		*dst = *v
	}
}

func setFloat64(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
