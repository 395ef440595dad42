package serialport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Conn owns an open serial port for the lifetime of a capture run. A single
// goroutine scans the port and hands lines over an unbuffered channel, so a
// line is only taken off the wire side when a reader asks for it.
type Conn struct {
	port  Port
	clock clockwork.Clock

	lines   chan string
	done    chan struct{}
	stopped chan struct{}
	scanErr error // written before lines is closed

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Open opens the device at path with opener and starts reading lines from it.
func Open(opener Opener, path string, opts PortOptions, clock clockwork.Clock) (*Conn, error) {
	if opener == nil {
		opener = OpenSerial
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("invalid serial options: %w", err)
	}
	port, err := opener(path, mode)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("port", path).
		Int("baud_rate", mode.BaudRate).
		Msg("serial connection established")
	return NewConn(port, clock), nil
}

// NewConn wraps an already open port.
func NewConn(port Port, clock clockwork.Clock) *Conn {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Conn{
		port:    port,
		clock:   clock,
		lines:   make(chan string),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.scan()
	return c
}

func (c *Conn) scan() {
	defer close(c.stopped)
	defer close(c.lines)

	scan := bufio.NewScanner(c.port)
	for scan.Scan() {
		select {
		case c.lines <- scan.Text():
		case <-c.done:
			return
		}
	}
	c.scanErr = scan.Err()
	if c.scanErr == nil {
		c.scanErr = io.EOF
	}
}

// ReadLine blocks until the next line arrives, timeout elapses or ctx is done.
// Returned lines have trailing carriage returns removed.
func (c *Conn) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	timer := c.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", c.readErr()
		}
		return strings.TrimRight(line, "\r"), nil
	case <-timer.Chan():
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrClosed
	}
}

func (c *Conn) readErr() error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return fmt.Errorf("serial read failed: %w", c.scanErr)
}

// Drain discards lines left over from an earlier round and returns how many
// were dropped. With quiet > 0 it keeps reading until no line has arrived for
// quiet on the connection clock, so the tail of a frame that is still
// streaming in is swallowed whole. With quiet <= 0 only a line that is
// already waiting is dropped.
func (c *Conn) Drain(ctx context.Context, quiet time.Duration) (int, error) {
	n := 0
	if quiet <= 0 {
		for {
			select {
			case line, ok := <-c.lines:
				if !ok {
					return n, c.readErr()
				}
				n++
				log.Debug().Str("line", line).Msg("discarded stale line")
			default:
				return n, nil
			}
		}
	}

	for {
		line, err := c.ReadLine(ctx, quiet)
		switch {
		case errors.Is(err, ErrTimeout):
			return n, nil
		case err != nil:
			return n, err
		}
		n++
		log.Debug().Str("line", line).Msg("discarded stale line")
	}
}

// SendCommand writes command to the port, adding a newline if missing.
func (c *Conn) SendCommand(command string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := c.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("failed to write command %q: %w", strings.TrimSpace(command), err)
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Close releases the port and waits for the reader goroutine to exit. Only
// the first call closes the port; later calls return the same result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.port.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close serial port: %w", err)
		}
		<-c.stopped
		log.Info().Msg("serial port closed")
	})
	return c.closeErr
}
