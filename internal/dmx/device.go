package dmx

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DeviceConfig describes a device before registration.
type DeviceConfig struct {
	// Name doubles as the fixture ID. Empty names get a generated one.
	Name       string
	Channels   int
	Mode       Mode
	UpdateRate float64
	Preferred  Placement

	// Provider supplies output channel bytes each time the controller
	// polls the device. It runs on the controller goroutine and must be
	// safe to call concurrently with the rest of the application.
	Provider func() []byte
	// Consumer receives a copy of the device's channel slice whenever an
	// inbound frame covering it is dispatched. It runs on the controller
	// goroutine.
	Consumer func([]byte)
}

// Device is the stock Fixture implementation. Output data comes from the
// Provider callback when one is set, otherwise from levels stored with
// SetOutput. Inbound data is kept for LastInput and handed to the Consumer
// callback.
type Device struct {
	id         string
	channels   int
	mode       Mode
	updateRate float64
	preferred  Placement
	provider   func() []byte
	consumer   func([]byte)

	mu       sync.Mutex
	assigned bool
	universe uint16
	start    int
	output   []byte
	input    []byte
}

var _ Fixture = (*Device)(nil)

// NewDevice validates the config and builds a Device.
func NewDevice(cfg DeviceConfig) (*Device, error) {
	if cfg.Channels < 1 || cfg.Channels > UniverseSize {
		return nil, &ConfigError{
			Fixture: cfg.Name,
			Reason:  fmt.Sprintf("channel count %d outside 1..%d", cfg.Channels, UniverseSize),
		}
	}
	id := cfg.Name
	if id == "" {
		id = uuid.NewString()
	}
	rate := cfg.UpdateRate
	if rate <= 0 {
		rate = DefaultUpdateRate
	}
	return &Device{
		id:         id,
		channels:   cfg.Channels,
		mode:       cfg.Mode,
		updateRate: rate,
		preferred:  cfg.Preferred,
		provider:   cfg.Provider,
		consumer:   cfg.Consumer,
		output:     make([]byte, cfg.Channels),
	}, nil
}

func (d *Device) ID() string { return d.id }

func (d *Device) NumChannels() int { return d.channels }

func (d *Device) Mode() Mode { return d.mode }

func (d *Device) UpdateRate() float64 { return d.updateRate }

func (d *Device) PreferredPlacement() Placement { return d.preferred }

// OnPlacementAssigned records where the registry put the device.
func (d *Device) OnPlacementAssigned(universe uint16, start int) {
	d.mu.Lock()
	d.assigned = true
	d.universe = universe
	d.start = start
	d.mu.Unlock()
}

// Placement reports the device's current address. ok is false until the
// registry has assigned one.
func (d *Device) Placement() (universe uint16, start int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.universe, d.start, d.assigned
}

// SetOutput stores levels to publish on the next poll. Extra bytes beyond
// the device's channel count are dropped.
func (d *Device) SetOutput(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(d.output, data)
	for i := n; i < len(d.output); i++ {
		d.output[i] = 0
	}
}

// GetOutputData returns the device's current channel bytes. A Provider
// result longer than the channel count is truncated.
func (d *Device) GetOutputData() []byte {
	if d.provider != nil {
		data := d.provider()
		if len(data) > d.channels {
			data = data[:d.channels]
		}
		return data
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.output))
	copy(out, d.output)
	return out
}

// SetInputData stores the latest inbound slice and forwards it to the
// Consumer callback.
func (d *Device) SetInputData(data []byte) {
	d.mu.Lock()
	d.input = append(d.input[:0], data...)
	d.mu.Unlock()
	if d.consumer != nil {
		d.consumer(data)
	}
}

// LastInput returns a copy of the most recent inbound channel bytes, or
// nil when nothing has arrived yet.
func (d *Device) LastInput() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.input == nil {
		return nil
	}
	out := make([]byte, len(d.input))
	copy(out, d.input)
	return out
}
