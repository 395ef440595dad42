package serialport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the speed the pad firmware ships with.
const DefaultBaudRate = 115200

// PortOptions is the line framing for the pad. Zero fields mean 8N1 at
// DefaultBaudRate.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	// Parity is N, E or O; none, even and odd are accepted in any case.
	Parity string
}

var parityNames = map[string]string{
	"": "N", "N": "N", "NONE": "N",
	"E": "E", "EVEN": "E",
	"O": "O", "ODD": "O",
}

var parityModes = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

var stopBitModes = map[int]serial.StopBits{
	1: serial.OneStopBit,
	2: serial.TwoStopBits,
}

// Normalize fills in 8N1 and the default speed for unset fields and rejects
// framings the pad cannot use.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}

	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: want 5 to 8", o.DataBits)
	}
	if _, ok := stopBitModes[o.StopBits]; !ok {
		return o, fmt.Errorf("invalid stop bits %d: want 1 or 2", o.StopBits)
	}
	parity, ok := parityNames[strings.ToUpper(strings.TrimSpace(o.Parity))]
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: want N, E or O", o.Parity)
	}
	o.Parity = parity
	return o, nil
}

// SerialMode returns the go.bug.st/serial mode for the normalized options.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		StopBits: stopBitModes[n.StopBits],
		Parity:   parityModes[n.Parity],
	}, nil
}
