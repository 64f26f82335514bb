// Package dmx implements the channel-allocation core for DMX512
// universes: fixture registration with overlap resolution, per-universe
// frame buffering and the fixed-rate controller that feeds transports.
package dmx

import (
	"fmt"
	"strings"
)

const (
	// UniverseSize is the number of channels in a DMX512 universe.
	UniverseSize = 512

	// DefaultUpdateRate is the per-fixture output polling rate in Hz
	// used when a fixture does not declare its own.
	DefaultUpdateRate = 30.0

	// DefaultSendRate is the universe flush rate in Hz. A full 512
	// channel universe refreshes at most ~44 times per second on the
	// wire, so pushing faster only burns packets.
	DefaultSendRate = 44.0

	// DefaultMaxUniverses bounds how many universes the registry will
	// open before registrations fail.
	DefaultMaxUniverses = 16

	// maxUniverseCount is the size of the universe id space. Ids are
	// 16 bit on the wire, so a larger table could never be addressed.
	maxUniverseCount = 1 << 16
)

// Mode selects which directions a fixture participates in.
type Mode int

const (
	// ModeInput delivers received universe data to the fixture.
	ModeInput Mode = iota
	// ModeOutput publishes fixture state to the wire on the fixture's
	// update rate.
	ModeOutput
	// ModeBidirectional does both.
	ModeBidirectional
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeBidirectional:
		return "bidirectional"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "in":
		return ModeInput, nil
	case "output", "out", "":
		return ModeOutput, nil
	case "bidirectional", "both":
		return ModeBidirectional, nil
	}
	return ModeOutput, fmt.Errorf("unknown fixture mode %q", s)
}

// receives reports whether the mode consumes inbound universe data.
func (m Mode) receives() bool { return m == ModeInput || m == ModeBidirectional }

// sends reports whether the mode publishes output data.
func (m Mode) sends() bool { return m == ModeOutput || m == ModeBidirectional }

// Placement locates a fixture inside a universe. Start is 1-based.
// A fixture expresses a preferred Placement; the registry commits an
// actual one, possibly different.
type Placement struct {
	Universe uint16
	Start    int
	// AutoAssign allows the registry to move the fixture to the first
	// free slot when the preferred range is taken. Start 0 with
	// AutoAssign means "anywhere".
	AutoAssign bool
	// Priority arbitrates contested exact placements. The incoming
	// fixture preempts only when strictly greater than every holder.
	Priority int
}

// Fixture is the contract the core consumes. Collaborators implement it
// directly or use Device. The registry reports the committed placement
// through OnPlacementAssigned; the controller polls GetOutputData on the
// fixture's update rate and delivers received frames via SetInputData.
type Fixture interface {
	ID() string
	NumChannels() int
	Mode() Mode
	UpdateRate() float64
	PreferredPlacement() Placement
	OnPlacementAssigned(universe uint16, start int)
	// GetOutputData returns the fixture's current channel bytes, or nil
	// when there is nothing to publish.
	GetOutputData() []byte
	SetInputData(data []byte)
}

// PlacementInfo describes one committed placement, used for status
// reporting and tests.
type PlacementInfo struct {
	Fixture  string `json:"fixture"`
	Universe uint16 `json:"universe"`
	Start    int    `json:"start"`
	Channels int    `json:"channels"`
	Mode     string `json:"mode"`
}

// Sender pushes one universe frame to an output transport. A failed send
// must return the error; the controller keeps the universe dirty so the
// frame is retried next tick. Implementations must not retain data past
// the call.
type Sender interface {
	SendDMX(universe uint16, data *[UniverseSize]byte) error
}
