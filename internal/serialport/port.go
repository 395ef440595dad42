// Package serialport opens the link to the signature pad and turns its byte
// stream into text lines with per-line deadlines.
package serialport

import (
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Port is the minimal surface needed from a serial device. It lets tests run
// without hardware.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Opener opens a serial device at path with the given framing.
type Opener func(path string, mode *serial.Mode) (Port, error)

var (
	// ErrTimeout is returned by ReadLine when no line arrives before the
	// deadline.
	ErrTimeout = errors.New("timed out waiting for line")
	// ErrWriteFailed is returned when a command is only partially written.
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("serial connection closed")
)

// OpenSerial is the default Opener backed by go.bug.st/serial.
func OpenSerial(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// ListPorts returns the serial device names currently present on the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
