// Package ingest replays recorded sensor traffic for offline testing
// of the pipeline: PCAP files are read with gopacket's pure-Go pcapgo
// reader (no cgo libpcap dependency, unlike gopacket/pcap) and handed
// to a caller-supplied decoder that turns UDP payloads into the point
// clouds and IMU samples the pipeline consumes. The wire format of any
// particular sensor's UDP payload is out of scope for this module;
// only the replay plumbing lives here.
package ingest

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func openFile(path string) (*os.File, error) {
	return os.Open(path)
}

// Packet is one decoded UDP payload plus its capture timestamp.
type Packet struct {
	Data      []byte
	Timestamp time.Time
}

// PCAPReader abstracts reading packets from a PCAP file so tests can
// inject a MockPCAPReader instead of a real capture file.
type PCAPReader interface {
	Open(filename string) error
	SetUDPPort(port int)
	NextPacket() (*Packet, error)
	Close() error
}

// FileReader is the pure-Go PCAPReader backed by pcapgo, filtering to
// UDP packets on one port (set via SetUDPPort) without needing a BPF
// filter or libpcap.
type FileReader struct {
	f      io.ReadCloser
	r      *pcapgo.Reader
	port   int
	opened bool
}

// NewFileReader returns an unopened FileReader.
func NewFileReader() *FileReader { return &FileReader{} }

func (fr *FileReader) Open(filename string) error {
	f, err := openFile(filename)
	if err != nil {
		return err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return err
	}
	fr.f, fr.r, fr.opened = f, r, true
	return nil
}

func (fr *FileReader) SetUDPPort(port int) { fr.port = port }

func (fr *FileReader) NextPacket() (*Packet, error) {
	if !fr.opened {
		return nil, errors.New("ingest: reader not opened")
	}
	for {
		data, ci, err := fr.r.ReadPacketData()
		if err != nil {
			return nil, err
		}
		pkt := gopacket.NewPacket(data, fr.r.LinkType(), gopacket.Lazy)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if fr.port != 0 && int(udp.DstPort) != fr.port {
			continue
		}
		return &Packet{Data: udp.Payload, Timestamp: ci.Timestamp}, nil
	}
}

func (fr *FileReader) Close() error {
	if fr.f == nil {
		return nil
	}
	return fr.f.Close()
}

// MockPCAPReader is an in-memory PCAPReader for pipeline tests,
// mirroring the driver layer's mock-reader pattern so replay logic can
// be exercised without a capture file on disk.
type MockPCAPReader struct {
	mu         sync.Mutex
	Packets    []Packet
	readIndex  int
	OpenedFile string
	Port       int
	Closed     bool
	OpenError  error
}

func NewMockPCAPReader(packets []Packet) *MockPCAPReader {
	return &MockPCAPReader{Packets: packets}
}

func (m *MockPCAPReader) Open(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenedFile = filename
	return m.OpenError
}

func (m *MockPCAPReader) SetUDPPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Port = port
}

func (m *MockPCAPReader) NextPacket() (*Packet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return nil, errors.New("ingest: reader closed")
	}
	if m.readIndex >= len(m.Packets) {
		return nil, io.EOF
	}
	pkt := m.Packets[m.readIndex]
	m.readIndex++
	return &pkt, nil
}

func (m *MockPCAPReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
