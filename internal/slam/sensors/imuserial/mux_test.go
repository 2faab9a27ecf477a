package imuserial

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeMuxPort is a small read/write/close port backed by an in-memory
// pipe, in the same spirit as the radar link's TestSerialPort.
type fakeMuxPort struct {
	mu      sync.Mutex
	r       *io.PipeReader
	w       *io.PipeWriter
	written bytes.Buffer
	closed  bool
}

func newFakeMuxPort() *fakeMuxPort {
	r, w := io.Pipe()
	return &fakeMuxPort{r: r, w: w}
}

func (p *fakeMuxPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakeMuxPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakeMuxPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.r.Close()
}

func (p *fakeMuxPort) feed(line string) { p.w.Write([]byte(line + "\n")) }

func TestMuxFansOutLinesToSubscribers(t *testing.T) {
	port := newFakeMuxPort()
	mux := NewMux[*fakeMuxPort](port)

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	port.feed("1.0,0,0,0,0,0,0,0,0")

	select {
	case line := <-ch:
		require.Equal(t, "1.0,0,0,0,0,0,0,0,0", line)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for line")
	}
}

func TestMuxSendCommandAppendsNewline(t *testing.T) {
	port := newFakeMuxPort()
	mux := NewMux[*fakeMuxPort](port)

	require.NoError(t, mux.SendCommand("RATE=100"))
	require.Equal(t, "RATE=100\n", port.written.String())
}

func TestMuxCloseClosesSubscriberChannels(t *testing.T) {
	port := newFakeMuxPort()
	mux := NewMux[*fakeMuxPort](port)

	_, ch := mux.Subscribe()
	require.NoError(t, mux.Close())

	_, ok := <-ch
	require.False(t, ok)
	require.True(t, port.closed)
}
