package ingest

import (
	"io"

	"github.com/pahoffmann/fastsense-go/internal/slam"
	"github.com/pahoffmann/fastsense-go/internal/slam/ringbuf"
)

// CloudDecoder turns one UDP payload into a point cloud. Returning
// ok=false drops the packet (e.g. a non-terminal frame fragment).
type CloudDecoder func(payload []byte) (cloud slam.PointCloud, ok bool)

// Replay reads every packet from r, decodes it with decode, and pushes
// the resulting clouds (blocking) onto out, stamped with each packet's
// capture timestamp. Returns nil at clean EOF.
func Replay(r PCAPReader, decode CloudDecoder, out *ringbuf.Buffer[slam.Stamped[slam.PointCloud]]) error {
	for {
		pkt, err := r.NextPacket()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		cloud, ok := decode(pkt.Data)
		if !ok {
			continue
		}
		if !out.Push(slam.NewStamped(cloud, pkt.Timestamp)) {
			return nil // buffer closed mid-replay
		}
	}
}
