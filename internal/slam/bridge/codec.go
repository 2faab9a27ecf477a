package bridge

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// rawBytesCodecName is registered with grpc's codec registry so this
// package's streaming service can move already-wire-encoded
// TSDFBridgeMessage payloads without a protoc-generated message type:
// the payload bytes produced by internal/slam/bridge/wire are the
// entire message, so the codec is an identity transform.
const rawBytesCodecName = "slam-raw"

type rawBytesCodec struct{}

func (rawBytesCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("bridge: rawBytesCodec: Marshal expects []byte, got %T", v)
	}
	return b, nil
}

func (rawBytesCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("bridge: rawBytesCodec: Unmarshal expects *[]byte, got %T", v)
	}
	*p = append((*p)[:0], data...)
	return nil
}

func (rawBytesCodec) Name() string { return rawBytesCodecName }

func init() {
	encoding.RegisterCodec(rawBytesCodec{})
}
