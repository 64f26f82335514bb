// Package serialdmx mirrors one universe to an Enttec DMX USB Pro
// compatible widget over a serial port.
package serialdmx

import (
	"fmt"
	"io"

	"go.bug.st/serial"

	"dmxpatch/internal/dmx"
	"dmxpatch/internal/logger"
)

const (
	// DefaultBaudRate is nominal; the widget's USB serial bridge ignores
	// the line speed.
	DefaultBaudRate = 57600

	frameStart     = 0x7E
	frameEnd       = 0xE7
	labelOutputDMX = 6
	dmxStartCode   = 0x00
)

// Port is the writable half of the serial device.
type Port interface {
	io.WriteCloser
}

// Config selects the serial device and the universe it mirrors.
type Config struct {
	Device   string
	BaudRate int
	Universe uint16
}

// Output forwards one universe's frames to the widget. Frames for every
// other universe pass through untouched.
type Output struct {
	log      *logger.Log
	port     Port
	universe uint16
}

var _ dmx.Sender = (*Output)(nil)

// Open opens the serial device in 8N1 mode and wraps it in an Output.
func Open(log logger.Logger, cfg Config) (*Output, error) {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device %s: %w", cfg.Device, err)
	}
	return NewOutput(log, port, cfg), nil
}

// NewOutput wraps an already open port.
func NewOutput(log logger.Logger, port Port, cfg Config) *Output {
	l := log.With(logger.Fields{"module": "serial-dmx"})
	l.Infof("mirroring universe %d to %s", cfg.Universe, cfg.Device)
	return &Output{
		log:      l,
		port:     port,
		universe: cfg.Universe,
	}
}

// SendDMX writes the buffer to the widget as one Output Only Send DMX
// message when the universe matches the mirrored one.
func (o *Output) SendDMX(universe uint16, data *[dmx.UniverseSize]byte) error {
	if universe != o.universe {
		return nil
	}
	if _, err := o.port.Write(buildFrame(data)); err != nil {
		return &dmx.TransportError{Universe: universe, Err: err}
	}
	return nil
}

// Close closes the underlying port.
func (o *Output) Close() error {
	return o.port.Close()
}

// buildFrame wraps the payload in the widget message envelope. The
// payload is the DMX start code followed by all 512 channel bytes, and
// its length travels little endian.
func buildFrame(data *[dmx.UniverseSize]byte) []byte {
	const payload = dmx.UniverseSize + 1
	frame := make([]byte, 0, payload+5)
	frame = append(frame, frameStart, labelOutputDMX, byte(payload&0xff), byte(payload>>8), dmxStartCode)
	frame = append(frame, data[:]...)
	return append(frame, frameEnd)
}
