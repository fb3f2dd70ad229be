package sensor

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestablePort implements Porter with scripted reads for tests and demos.
// Reads block until data is added or the port is closed.
type TestablePort struct {
	mu   sync.Mutex
	cond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	eof      bool

	// ReadError is returned once by the next Read when set.
	ReadError error
	// WriteError is returned once by the next Write when set.
	WriteError error

	closed bool
}

// NewTestablePort returns an empty, open TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Read returns queued data, blocking while the queue is empty.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return 0, errPortClosed
		}
		if p.ReadError != nil {
			err := p.ReadError
			p.ReadError = nil
			return 0, err
		}
		if p.readBuf.Len() > 0 {
			return p.readBuf.Read(b)
		}
		if p.eof {
			return 0, io.EOF
		}
		p.cond.Wait()
	}
}

// Write records the bytes the source sent to the device.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.writeBuf.Write(b)
}

// Close marks the port closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// AddReadData queues bytes for subsequent reads.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
	p.cond.Broadcast()
}

// FailReads makes the next blocked or future Read return err.
func (p *TestablePort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadError = err
	p.cond.Broadcast()
}

// Unplug makes reads return io.EOF once the queued data is drained.
func (p *TestablePort) Unplug() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
	p.cond.Broadcast()
}

// Written returns everything written to the port so far.
func (p *TestablePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// Closed reports whether Close was called.
func (p *TestablePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
