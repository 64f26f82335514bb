package dmx

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dmxpatch/internal/config"
	"dmxpatch/internal/logger"
)

func newTestLogger(t *testing.T) *logger.Log {
	t.Helper()
	log, err := logger.NewLogger(config.LogConf{Level: "error"})
	require.NoError(t, err)
	return log
}

func newTestDevice(t *testing.T, name string, channels int, pref Placement) *Device {
	t.Helper()
	dev, err := NewDevice(DeviceConfig{
		Name:      name,
		Channels:  channels,
		Mode:      ModeOutput,
		Preferred: pref,
	})
	require.NoError(t, err)
	return dev
}

// stubFixture implements Fixture directly so tests can hand the registry
// values a Device would refuse to construct.
type stubFixture struct {
	id       string
	channels int
	mode     Mode
	pref     Placement
	onAssign func(universe uint16, start int)
}

func (s *stubFixture) ID() string { return s.id }

func (s *stubFixture) NumChannels() int { return s.channels }

func (s *stubFixture) Mode() Mode { return s.mode }

func (s *stubFixture) UpdateRate() float64 { return 0 }

func (s *stubFixture) PreferredPlacement() Placement { return s.pref }

func (s *stubFixture) GetOutputData() []byte { return nil }

func (s *stubFixture) SetInputData([]byte) {}

func (s *stubFixture) OnPlacementAssigned(universe uint16, start int) {
	if s.onAssign != nil {
		s.onAssign(universe, start)
	}
}

// captureSender records every flushed frame and can fail on demand.
type captureSender struct {
	mu       sync.Mutex
	sent     []sentFrame
	attempts int
	err      error
}

type sentFrame struct {
	universe uint16
	data     [UniverseSize]byte
}

func (s *captureSender) SendDMX(universe uint16, data *[UniverseSize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.err != nil {
		return &TransportError{Universe: universe, Err: s.err}
	}
	s.sent = append(s.sent, sentFrame{universe: universe, data: *data})
	return nil
}

func (s *captureSender) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *captureSender) frames() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentFrame, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *captureSender) tries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// assertNoOverlap fails when any two placements in the same universe
// intersect or a universe runs past its channel count.
func assertNoOverlap(t *testing.T, placements []PlacementInfo) {
	t.Helper()
	byUniverse := map[uint16][]PlacementInfo{}
	for _, p := range placements {
		byUniverse[p.Universe] = append(byUniverse[p.Universe], p)
	}
	for id, ps := range byUniverse {
		sort.Slice(ps, func(i, j int) bool { return ps[i].Start < ps[j].Start })
		total := 0
		for i, p := range ps {
			require.GreaterOrEqual(t, p.Start, 1, "universe %d fixture %s", id, p.Fixture)
			require.LessOrEqual(t, p.Start+p.Channels-1, UniverseSize, "universe %d fixture %s", id, p.Fixture)
			if i > 0 {
				prev := ps[i-1]
				require.GreaterOrEqual(t, p.Start, prev.Start+prev.Channels,
					"universe %d: %s overlaps %s", id, p.Fixture, prev.Fixture)
			}
			total += p.Channels
		}
		require.LessOrEqual(t, total, UniverseSize, "universe %d over capacity", id)
	}
}
