package serialport

import (
	"bytes"
	"errors"
	"sync"

	"go.bug.st/serial"
)

// TestablePort implements Port with scripted behaviour for tests. Reads block
// until data is added or the port is closed, like a real device that has not
// sent anything yet.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Respond, if set, is called with every successful write and its result
	// is queued as read data. It plays the part of the pad firmware.
	Respond func(written []byte) []byte

	// Closed indicates whether Close was called
	Closed bool

	// CloseCalls records the number of Close calls
	CloseCalls int

	readCond *sync.Cond
}

// NewTestablePort creates a TestablePort with empty buffers.
func NewTestablePort() *TestablePort {
	p := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read blocks until data is available, then reads from the read buffer.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.Closed && p.ReadError == nil && p.ReadBuffer.Len() == 0 {
		p.readCond.Wait()
	}
	if p.Closed {
		return 0, errors.New("serial port closed")
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	return p.ReadBuffer.Read(b)
}

// Write records data written to the port.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Closed {
		return 0, errors.New("serial port closed")
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	n, err := p.WriteBuffer.Write(b)
	if p.Respond != nil {
		if reply := p.Respond(b); len(reply) > 0 {
			p.ReadBuffer.Write(reply)
			p.readCond.Broadcast()
		}
	}
	return n, err
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.CloseCalls++
	p.readCond.Broadcast()
	return p.CloseError
}

// AddReadData queues data for subsequent Read calls.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadBuffer.Write(data)
	p.readCond.Broadcast()
}

// FailRead makes the next Read return err.
func (p *TestablePort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadError = err
	p.readCond.Broadcast()
}

// Written returns everything written to the port so far.
func (p *TestablePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.WriteBuffer.String()
}

// IsClosed reports whether Close has been called.
func (p *TestablePort) IsClosed() (closed bool, calls int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.Closed, p.CloseCalls
}

// TestOpener returns an Opener that hands out port and records the mode it
// was asked for, or fails with err when err is non-nil.
func TestOpener(port Port, err error) (Opener, *[]*serial.Mode) {
	var modes []*serial.Mode
	return func(path string, mode *serial.Mode) (Port, error) {
		modes = append(modes, mode)
		if err != nil {
			return nil, err
		}
		return port, nil
	}, &modes
}
