package dmx

import "fmt"

// Segment is one externally drawn run of device slots. A layout tool
// interpolates a drawn line into Devices equally spaced slots starting
// at StartChannel, each ChannelsPerDevice wide. This core only consumes
// the result.
type Segment struct {
	StartChannel      int
	Devices           int
	ChannelsPerDevice int
}

func (s Segment) validate() error {
	if s.Devices < 1 {
		return fmt.Errorf("segment: %d device slots, want at least 1", s.Devices)
	}
	if s.ChannelsPerDevice < 1 {
		return fmt.Errorf("segment: %d channels per device, want at least 1", s.ChannelsPerDevice)
	}
	last := s.StartChannel + (s.Devices-1)*s.ChannelsPerDevice + s.ChannelsPerDevice - 1
	if s.StartChannel < 1 || last > UniverseSize {
		return fmt.Errorf("segment: slots %d..%d outside 1..%d", s.StartChannel, last, UniverseSize)
	}
	return nil
}

// UserDrawn assigns fixtures to the supplied segment slots in
// registration order, walking segment by segment, slot by slot.
type UserDrawn struct {
	segments []Segment
	total    int
}

// NewUserDrawn validates the segments and returns the strategy.
func NewUserDrawn(segments []Segment) (*UserDrawn, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("userdrawn: no segments")
	}
	total := 0
	for _, s := range segments {
		if err := s.validate(); err != nil {
			return nil, err
		}
		total += s.Devices
	}
	return &UserDrawn{segments: segments, total: total}, nil
}

func (d *UserDrawn) Name() string { return "userdrawn" }

// slot returns the channel of device slot index across all segments, or
// 0 when the segments are exhausted.
func (d *UserDrawn) slot(index int) int {
	for _, s := range d.segments {
		if index < s.Devices {
			return s.StartChannel + index*s.ChannelsPerDevice
		}
		index -= s.Devices
	}
	return 0
}

// NextStart is the channel of the slot the next member would take.
func (d *UserDrawn) NextStart(u *Universe) int {
	return d.slot(len(u.members))
}

// CanFit checks a slot remains and the candidate ends inside the
// universe.
func (d *UserDrawn) CanFit(u *Universe, channels int) bool {
	if channels < 1 {
		return false
	}
	ch := d.slot(len(u.members))
	return ch >= 1 && ch+channels-1 <= UniverseSize
}

// Assign re-flows every member onto the segment slots in registration
// order.
func (d *UserDrawn) Assign(u *Universe) []Fixture {
	return slotAssign(u, d.slot)
}
