// Package wire hand-encodes the TSDFBridgeMessage on the protobuf wire
// format using the low-level protowire primitives directly, rather
// than through protoc-generated bindings: the message shape is fixed
// and small enough that a generated .pb.go buys nothing but a build
// step neither this package nor its caller needs.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pahoffmann/fastsense-go/internal/slam"
)

// Field numbers for TSDFBridgeMessage, chosen once and fixed for wire
// compatibility across versions of this package.
const (
	fieldTau           = 1
	fieldMapResolution = 2
	fieldSizeX         = 3
	fieldSizeY         = 4
	fieldSizeZ         = 5
	fieldCenterX       = 6
	fieldCenterY       = 7
	fieldCenterZ       = 8
	fieldOffsetX       = 9
	fieldOffsetY       = 10
	fieldOffsetZ       = 11
	fieldCells         = 12
)

// TSDFBridgeMessage is the visualization wire message described in
// spec.md §6: map geometry header plus a packed (value,weight)
// sequence in the local map's natural storage order (z-major, then y,
// then x).
type TSDFBridgeMessage struct {
	Tau           int32
	MapResolution int32
	SizeX, SizeY, SizeZ int32
	CenterX, CenterY, CenterZ int32
	OffsetX, OffsetY, OffsetZ int32
	Cells []slam.TSDFEntry
}

// Encode renders m as a protobuf-wire-format byte string.
func Encode(m TSDFBridgeMessage) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldTau, protowire.VarintType)
	b = protowire.AppendVarint(b, encodeZigZag(m.Tau))
	b = protowire.AppendTag(b, fieldMapResolution, protowire.VarintType)
	b = protowire.AppendVarint(b, encodeZigZag(m.MapResolution))
	b = appendVarintField(b, fieldSizeX, m.SizeX)
	b = appendVarintField(b, fieldSizeY, m.SizeY)
	b = appendVarintField(b, fieldSizeZ, m.SizeZ)
	b = appendVarintField(b, fieldCenterX, m.CenterX)
	b = appendVarintField(b, fieldCenterY, m.CenterY)
	b = appendVarintField(b, fieldCenterZ, m.CenterZ)
	b = appendVarintField(b, fieldOffsetX, m.OffsetX)
	b = appendVarintField(b, fieldOffsetY, m.OffsetY)
	b = appendVarintField(b, fieldOffsetZ, m.OffsetZ)

	cellBytes := make([]byte, 0, len(m.Cells)*8)
	for _, c := range m.Cells {
		cellBytes = protowire.AppendVarint(cellBytes, encodeZigZag(c.Value))
		cellBytes = protowire.AppendVarint(cellBytes, encodeZigZag(c.Weight))
	}
	b = protowire.AppendTag(b, fieldCells, protowire.BytesType)
	b = protowire.AppendBytes(b, cellBytes)
	return b
}

func appendVarintField(b []byte, field protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, field, protowire.VarintType)
	return protowire.AppendVarint(b, encodeZigZag(v))
}

func encodeZigZag(v int32) uint64 {
	return protowire.EncodeZigZag(int64(v))
}

func decodeZigZag(v uint64) int32 {
	return int32(protowire.DecodeZigZag(v))
}

// Decode parses a byte string produced by Encode. Unknown fields are
// skipped, not rejected, so a future field addition stays
// backward-compatible with older readers.
func Decode(data []byte) (TSDFBridgeMessage, error) {
	var m TSDFBridgeMessage
	var cellBytes []byte

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, fmt.Errorf("wire: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, fmt.Errorf("wire: bad varint: %w", protowire.ParseError(n))
			}
			data = data[n:]
			assignVarintField(&m, num, decodeZigZag(v))
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return m, fmt.Errorf("wire: bad bytes: %w", protowire.ParseError(n))
			}
			data = data[n:]
			if num == fieldCells {
				cellBytes = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return m, fmt.Errorf("wire: bad field: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if cellBytes != nil {
		cells, err := decodeCells(cellBytes)
		if err != nil {
			return m, err
		}
		m.Cells = cells
	}
	return m, nil
}

func assignVarintField(m *TSDFBridgeMessage, num protowire.Number, v int32) {
	switch num {
	case fieldTau:
		m.Tau = v
	case fieldMapResolution:
		m.MapResolution = v
	case fieldSizeX:
		m.SizeX = v
	case fieldSizeY:
		m.SizeY = v
	case fieldSizeZ:
		m.SizeZ = v
	case fieldCenterX:
		m.CenterX = v
	case fieldCenterY:
		m.CenterY = v
	case fieldCenterZ:
		m.CenterZ = v
	case fieldOffsetX:
		m.OffsetX = v
	case fieldOffsetY:
		m.OffsetY = v
	case fieldOffsetZ:
		m.OffsetZ = v
	}
}

func decodeCells(b []byte) ([]slam.TSDFEntry, error) {
	var cells []slam.TSDFEntry
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad cell value: %w", protowire.ParseError(n))
		}
		b = b[n:]
		w, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("wire: bad cell weight: %w", protowire.ParseError(n))
		}
		b = b[n:]
		cells = append(cells, slam.TSDFEntry{Value: decodeZigZag(v), Weight: decodeZigZag(w)})
	}
	return cells, nil
}
