package imuserial

import (
	"bufio"
	"bytes"
	crand "crypto/rand"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

// ErrWriteFailed is returned by SendCommand when a partial write makes
// the underlying port's state ambiguous.
var ErrWriteFailed = fmt.Errorf("imuserial: failed to write to serial port")

// MuxPorter is the interface an IMU link must satisfy to back a Mux:
// enough to read lines, write commands, and close the connection.
type MuxPorter interface {
	io.Reader
	io.Writer
	io.Closer
}

// Mux fans a single IMU serial link out to multiple subscribers (e.g.
// the pipeline's ingest goroutine and a diagnostics tap), mirroring
// the radar link's single-writer/many-reader multiplexer so more than
// one consumer can observe the same device without contending for the
// file descriptor.
type Mux[T MuxPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewMux wraps an already-open port.
func NewMux[T MuxPorter](port T) *Mux[T] {
	return &Mux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a new channel receiving every line the Mux reads
// off the port, plus an ID to later Unsubscribe with.
func (m *Mux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscriber channel.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendCommand writes a newline-terminated command to the IMU, e.g. a
// sample-rate or output-mode change.
func (m *Mux[T]) SendCommand(command string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n"
	}
	n, err := m.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor scans lines off the port until ctx is cancelled or the port
// is exhausted, fanning each line out to every current subscriber.
// A slow subscriber drops lines rather than blocking the scan loop.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return err
		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}
			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

// Close closes every subscriber channel and the underlying port.
func (m *Mux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return m.port.Close()
}
