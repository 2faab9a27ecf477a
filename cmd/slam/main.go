// Command slam runs the realtime LiDAR+IMU TSDF mapping engine: it
// wires a chunk-backed GlobalMap, a sliding LocalMap, the
// registration/TSDF pipeline, and the visualization gRPC bridge, then
// blocks until SIGINT/SIGTERM triggers a graceful shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/pahoffmann/fastsense-go/internal/slam/bridge"
	"github.com/pahoffmann/fastsense-go/internal/slam/config"
	"github.com/pahoffmann/fastsense-go/internal/slam/localmap"
	"github.com/pahoffmann/fastsense-go/internal/slam/pipeline"
	"github.com/pahoffmann/fastsense-go/internal/slam/store"
)

var (
	configPath = flag.String("config", "", "path to a JSON config overlay (optional; defaults apply otherwise)")
	mapPath    = flag.String("map-db", "slam_map.db", "path to the sqlite-backed chunk/pose store")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Printf("slam: fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	global, err := store.Open(store.Config{
		Path:          *mapPath,
		DefaultValue:  0,
		DefaultWeight: 0,
		CacheCapacity: 512,
	})
	if err != nil {
		return err
	}
	defer global.Close()

	local, err := localmap.New(global, localmap.Size{X: cfg.MapSizeX, Y: cfg.MapSizeY, Z: cfg.MapSizeZ}, localmap.Vec3i{})
	if err != nil {
		return err
	}

	pipe := pipeline.New(local, cfg.Pipeline, cfg.LidarBufferSize, cfg.ImuBufferSize, 8, 2)
	pipe.Start()
	defer pipe.Stop()

	tsdfServer := bridge.NewTSDFServer(pipe, cfg.TSDF.Tau, cfg.TSDF.MapResolution)
	serveErr := make(chan error, 1)
	go func() { serveErr <- tsdfServer.Serve(cfg.TSDFBridgePort) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Printf("slam: shutdown signal received, draining pipeline")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	return nil
}
