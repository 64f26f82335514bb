package dmx

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dmxpatch/internal/logger"
)

// Config holds the controller's timing and batching knobs.
type Config struct {
	// SendRate is the flush loop frequency in Hz.
	SendRate float64
	// UpdateRate is the poll frequency in Hz for fixtures that do not
	// carry their own.
	UpdateRate float64
	// EnableBatching makes fixture writes wait for the next flush tick.
	// When false every write sends its universe immediately.
	EnableBatching bool
	// MaxUniverses bounds the universe table.
	MaxUniverses int
}

// DefaultConfig returns the stock controller configuration.
func DefaultConfig() Config {
	return Config{
		SendRate:       DefaultSendRate,
		UpdateRate:     DefaultUpdateRate,
		EnableBatching: true,
		MaxUniverses:   DefaultMaxUniverses,
	}
}

type fixtureState struct {
	fixture  Fixture
	interval time.Duration
	nextPoll time.Time
}

// Controller drives the frame pipeline: inbound dispatch, per-fixture
// output polling and the batched universe flush, in that order, once per
// tick. Registration and strategy changes share the tick mutex, so they
// never interleave with a sweep in progress.
type Controller struct {
	mu       sync.Mutex
	log      *logger.Log
	cfg      Config
	registry *Registry
	senders  []Sender
	fixtures []*fixtureState

	// staged holds at most one pending inbound frame per universe,
	// written by the receive path and swapped out by the tick loop.
	// Latest value wins.
	staged []atomic.Pointer[[UniverseSize]byte]
}

// NewController builds a controller around a fresh registry. Zero rates
// and limits in cfg fall back to the package defaults.
func NewController(log logger.Logger, strategy Strategy, cfg Config) *Controller {
	if cfg.SendRate <= 0 {
		cfg.SendRate = DefaultSendRate
	}
	if cfg.UpdateRate <= 0 {
		cfg.UpdateRate = DefaultUpdateRate
	}
	if cfg.MaxUniverses <= 0 {
		cfg.MaxUniverses = DefaultMaxUniverses
	}
	if cfg.MaxUniverses > maxUniverseCount {
		cfg.MaxUniverses = maxUniverseCount
	}
	return &Controller{
		log:      log.With(logger.Fields{"module": "dmx"}),
		cfg:      cfg,
		registry: NewRegistry(log, strategy, cfg.MaxUniverses),
		staged:   make([]atomic.Pointer[[UniverseSize]byte], cfg.MaxUniverses),
	}
}

// AddSender attaches a transport that receives every flushed universe.
func (c *Controller) AddSender(s Sender) {
	c.mu.Lock()
	c.senders = append(c.senders, s)
	c.mu.Unlock()
}

// Register places the fixture and starts polling it on its update rate.
func (c *Controller) Register(f Fixture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.registry.Register(f); err != nil {
		return err
	}
	rate := f.UpdateRate()
	if rate <= 0 {
		rate = c.cfg.UpdateRate
	}
	c.fixtures = append(c.fixtures, &fixtureState{
		fixture:  f,
		interval: time.Duration(float64(time.Second) / rate),
	})
	return nil
}

// Unregister removes the fixture from its universe and from the poll list.
func (c *Controller) Unregister(f Fixture) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registry.Unregister(f) {
		return false
	}
	c.dropFixture(f)
	return true
}

// SetStrategy swaps the allocation strategy and re-flows every universe.
// Fixtures that fit nowhere under the new layout are unregistered and
// returned.
func (c *Controller) SetStrategy(s Strategy) []Fixture {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := c.registry.SetStrategy(s)
	for _, f := range dropped {
		c.dropFixture(f)
	}
	return dropped
}

// Placements lists every registered fixture in universe and channel order.
func (c *Controller) Placements() []PlacementInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Placements()
}

// IsAvailable reports whether a channel range is free.
func (c *Controller) IsAvailable(universe uint16, start, channels int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.IsAvailable(universe, start, channels)
}

// FindGap returns the lowest free start channel for the given width, or 0.
func (c *Controller) FindGap(universe uint16, channels int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.FindGap(universe, channels)
}

// StageInbound hands a received universe payload to the tick loop. Short
// payloads are zero padded, frames for universes beyond the table are
// dropped. Safe to call from any goroutine; only the newest frame per
// universe survives until the next tick.
func (c *Controller) StageInbound(universe uint16, data []byte) {
	if int(universe) >= len(c.staged) {
		return
	}
	frame := new([UniverseSize]byte)
	copy(frame[:], data)
	c.staged[universe].Store(frame)
}

// Run drives Tick at the configured send rate until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / c.cfg.SendRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.log.Infof("controller running, flushing at %.1f Hz", c.cfg.SendRate)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("controller stopped")
			return
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Tick runs one pipeline pass: dispatch staged inbound frames, poll due
// fixtures for output, then flush dirty universes.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchInbound()
	c.pollOutputs(now)
	c.flush()
}

// dispatchInbound swaps out each staged frame and hands every receiving
// member fixture its channel slice. Cleared on dispatch, so a frame is
// never delivered twice.
func (c *Controller) dispatchInbound() {
	for id := range c.staged {
		frame := c.staged[id].Swap(nil)
		if frame == nil {
			continue
		}
		u := c.registry.universes[id]
		if u == nil {
			continue
		}
		for _, m := range u.members {
			if !m.fixture.Mode().receives() {
				continue
			}
			lo := m.start - 1
			hi := lo + m.fixture.NumChannels()
			if hi > UniverseSize {
				hi = UniverseSize
			}
			data := make([]byte, hi-lo)
			copy(data, frame[lo:hi])
			m.fixture.SetInputData(data)
		}
	}
}

// pollOutputs pulls output data from every sending fixture whose poll
// interval has elapsed and writes it into the universe buffer. With
// batching disabled the touched universe is sent on the spot.
func (c *Controller) pollOutputs(now time.Time) {
	for _, fs := range c.fixtures {
		if !fs.fixture.Mode().sends() {
			continue
		}
		if now.Before(fs.nextPoll) {
			continue
		}
		fs.nextPoll = now.Add(fs.interval)
		data := fs.fixture.GetOutputData()
		if data == nil {
			continue
		}
		u, m := c.registry.locate(fs.fixture)
		if m == nil {
			continue
		}
		u.writeFixture(m, data)
		if !c.cfg.EnableBatching {
			c.sendUniverse(u)
		}
	}
}

// flush sends every dirty universe. Universes whose send failed stay
// dirty and are retried here on the next tick.
func (c *Controller) flush() {
	for _, u := range c.registry.universes {
		if u == nil || !u.Buffer.Dirty() {
			continue
		}
		c.sendUniverse(u)
	}
}

// sendUniverse snapshots the buffer and hands it to every sender. The
// dirty flag clears only when all of them took the frame.
func (c *Controller) sendUniverse(u *Universe) {
	snapshot := u.Buffer.Snapshot()
	ok := true
	for _, s := range c.senders {
		if err := s.SendDMX(u.ID, &snapshot); err != nil {
			ok = false
			c.log.Errorf("universe %d send failed: %v", u.ID, err)
		}
	}
	if ok {
		u.Buffer.MarkClean()
	}
}

func (c *Controller) dropFixture(f Fixture) {
	for i, fs := range c.fixtures {
		if fs.fixture == f {
			c.fixtures = append(c.fixtures[:i], c.fixtures[i+1:]...)
			return
		}
	}
}
