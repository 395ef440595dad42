// Package capture implements the signature pad line protocol and drives
// capture rounds from trigger to saved image.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/signature.capture/internal/imaging"
)

// Protocol tokens.
const (
	TriggerCommand = "CAPTURE_SIGNATURE"
	startPrefix    = "START_SAVING:"
	dimPrefix      = "DIM:"
	endMarker      = "END_SAVING"
)

// State is the position of a Session in the protocol.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Frame is one complete, validated capture.
type Frame struct {
	Serial  string
	Width   int
	Height  int
	Samples []imaging.Sample
}

// Session assembles a Frame from protocol lines. A Session serves exactly one
// round; create a new one for the next.
type Session struct {
	state         State
	defaultWidth  int
	defaultHeight int
	frame         Frame
	err           error
	lines         int
}

// NewSession returns an idle session whose frame falls back to the given
// dimensions until a DIM line arrives.
func NewSession(defaultWidth, defaultHeight int) *Session {
	return &Session{
		defaultWidth:  defaultWidth,
		defaultHeight: defaultHeight,
	}
}

// State returns the current protocol state.
func (s *Session) State() State { return s.state }

// Err returns the failure that moved the session to StateFailed.
func (s *Session) Err() error { return s.err }

// Lines returns how many non-blank lines the session has consumed.
func (s *Session) Lines() int { return s.lines }

// Frame returns the finished frame once the session is complete.
func (s *Session) Frame() (Frame, bool) {
	if s.state != StateComplete {
		return Frame{}, false
	}
	return s.frame, true
}

// Feed processes one line. It returns done=true once the session reaches a
// terminal state; err is non-nil when that state is StateFailed. Blank lines
// are ignored.
func (s *Session) Feed(line string) (done bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	switch s.state {
	case StateComplete, StateFailed:
		return true, invalidLine(line, "session already %s", s.state)
	}

	s.lines++
	if err := s.step(line); err != nil {
		s.state = StateFailed
		s.err = err
		return true, err
	}
	return s.state == StateComplete, nil
}

func (s *Session) step(line string) error {
	if serial, ok := strings.CutPrefix(line, startPrefix); ok {
		return s.start(line, serial)
	}

	if s.state == StateIdle {
		if line == endMarker {
			return invalidLine(line, "end marker before start marker")
		}
		// chatter before the session starts
		return nil
	}

	if line == endMarker {
		return s.finish()
	}
	if dims, ok := strings.CutPrefix(line, dimPrefix); ok {
		return s.setDimensions(line, dims)
	}
	return s.addSample(line)
}

func (s *Session) start(line, serial string) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return invalidLine(line, "empty serial number")
	}
	width, height := s.defaultWidth, s.defaultHeight
	if s.state == StateCapturing {
		// a restart keeps dimensions already announced
		width, height = s.frame.Width, s.frame.Height
	}
	s.state = StateCapturing
	s.frame = Frame{
		Serial: serial,
		Width:  width,
		Height: height,
	}
	return nil
}

func (s *Session) setDimensions(line, dims string) error {
	parts := strings.Split(dims, ",")
	if len(parts) != 2 {
		return invalidLine(line, "expected 2 dimension fields, got %d", len(parts))
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return invalidLine(line, "failed to parse width: %w", err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return invalidLine(line, "failed to parse height: %w", err)
	}
	if w <= 0 || h <= 0 {
		return invalidLine(line, "dimensions must be positive, got %dx%d", w, h)
	}
	s.frame.Width, s.frame.Height = w, h
	return nil
}

func (s *Session) addSample(line string) error {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return invalidLine(line, "expected 3 pixel fields, got %d", len(parts))
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return invalidLine(line, "failed to parse x: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return invalidLine(line, "failed to parse y: %w", err)
	}
	hex := strings.TrimSpace(parts[2])
	if h, ok := strings.CutPrefix(hex, "0x"); ok {
		hex = h
	} else if h, ok := strings.CutPrefix(hex, "0X"); ok {
		hex = h
	}
	c, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		return invalidLine(line, "failed to parse color: %w", err)
	}
	if x < 0 || x >= s.frame.Width || y < 0 || y >= s.frame.Height {
		return invalidLine(line, "pixel (%d,%d) outside %dx%d frame", x, y, s.frame.Width, s.frame.Height)
	}
	s.frame.Samples = append(s.frame.Samples, imaging.Sample{X: x, Y: y, Color: uint16(c)})
	return nil
}

func (s *Session) finish() error {
	if s.frame.Width <= 0 || s.frame.Height <= 0 {
		return invalidLine(endMarker, "no valid dimensions (%dx%d)", s.frame.Width, s.frame.Height)
	}
	if len(s.frame.Samples) == 0 {
		return &Error{
			Kind: KindEmptySignature,
			Op:   "receive",
			Err:  errors.New("capture ended without pixel data"),
		}
	}
	s.state = StateComplete
	return nil
}
