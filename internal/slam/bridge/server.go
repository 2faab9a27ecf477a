// Package bridge serves TSDF map snapshots to visualization clients
// over gRPC (pose and IMU updates are not streamed), using a hand-registered service
// descriptor and the raw-bytes codec in codec.go: the wire payload is
// produced directly by internal/slam/bridge/wire, so there is no
// protoc-generated stub to keep in sync with this package.
package bridge

import (
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"

	"github.com/pahoffmann/fastsense-go/internal/slam/bridge/wire"
	"github.com/pahoffmann/fastsense-go/internal/slam/pipeline"
)

// Ports bundles the three listener ports named in spec.md §6
// (bridge.tsdf_port, bridge.imu_port, bridge.cloud_port). Only the
// TSDF snapshot stream has a concrete server below; see DESIGN.md for
// why the IMU/cloud ports are reserved but unserved.
type Ports struct {
	TSDFPort  int
	ImuPort   int
	CloudPort int
}

// TSDFServer streams TSDFBridgeMessage snapshots pulled from a
// pipeline's snapshot ring buffer to every connected client.
type TSDFServer struct {
	pipe *pipeline.Pipeline
	tau  int32
	res  int32
}

// NewTSDFServer builds a server that encodes snapshots using the
// given truncation distance and map resolution (needed in the wire
// header but not carried on the Snapshot type itself).
func NewTSDFServer(pipe *pipeline.Pipeline, tau, mapResolution int32) *TSDFServer {
	return &TSDFServer{pipe: pipe, tau: tau, res: mapResolution}
}

var tsdfServiceDesc = grpc.ServiceDesc{
	ServiceName: "slam.TSDFBridge",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSnapshots",
			ServerStreams: true,
			Handler:       tsdfStreamHandler,
		},
	},
}

func tsdfStreamHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*TSDFServer)
	var req []byte
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}

	for {
		snap, ok := s.pipe.SnapshotOut().Pop()
		if !ok {
			return nil
		}
		msg := wire.TSDFBridgeMessage{
			Tau:           s.tau,
			MapResolution: s.res,
			SizeX:         snap.Size.X, SizeY: snap.Size.Y, SizeZ: snap.Size.Z,
			CenterX: snap.Center.X, CenterY: snap.Center.Y, CenterZ: snap.Center.Z,
			OffsetX: snap.Offset.X, OffsetY: snap.Offset.Y, OffsetZ: snap.Offset.Z,
			Cells: snap.Cells,
		}
		if err := stream.SendMsg(wire.Encode(msg)); err != nil {
			return err
		}
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		default:
		}
	}
}

// Serve registers the TSDF bridge service on a new gRPC server and
// blocks serving connections on the configured port, until the
// listener errors or the process exits.
func (s *TSDFServer) Serve(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("bridge: listen on %d: %w", port, err)
	}
	grpcServer := grpc.NewServer(grpc.ForceServerCodec(rawBytesCodec{}))
	grpcServer.RegisterService(&tsdfServiceDesc, s)
	log.Printf("bridge: TSDF snapshot service listening on %s", lis.Addr())
	return grpcServer.Serve(lis)
}
