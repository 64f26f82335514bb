package dmx

import (
	"fmt"

	"dmxpatch/internal/logger"
)

// maxReassignDepth bounds the re-registration cascade a priority win can
// trigger. A displaced fixture that still has no home after this many
// rounds is assigned automatically or reported.
const maxReassignDepth = 4

// Registry owns the universe table and decides where every fixture lives.
// It is not safe for concurrent use; the controller serializes access.
type Registry struct {
	log          *logger.Log
	strategy     Strategy
	maxUniverses int

	// universes is indexed by universe id. A nil entry is a closed
	// universe with no buffer and no members.
	universes []*Universe
}

// NewRegistry builds a registry holding at most maxUniverses universes.
// A nil strategy falls back to Sequential; the table caps at the 16 bit
// universe id space.
func NewRegistry(log logger.Logger, strategy Strategy, maxUniverses int) *Registry {
	if strategy == nil {
		strategy = NewSequential()
	}
	if maxUniverses <= 0 {
		maxUniverses = DefaultMaxUniverses
	}
	if maxUniverses > maxUniverseCount {
		maxUniverses = maxUniverseCount
	}
	return &Registry{
		log:          log.With(logger.Fields{"module": "dmx"}),
		strategy:     strategy,
		maxUniverses: maxUniverses,
		universes:    make([]*Universe, maxUniverses),
	}
}

// Strategy returns the allocation strategy currently in effect.
func (r *Registry) Strategy() Strategy { return r.strategy }

// MaxUniverses returns the size of the universe table.
func (r *Registry) MaxUniverses() int { return r.maxUniverses }

// Register places the fixture and fires its assignment callback. The
// returned error is one of ConfigError, OverlapError or CapacityError;
// on error the fixture stays unregistered.
func (r *Registry) Register(f Fixture) error {
	return r.register(f, 0)
}

func (r *Registry) register(f Fixture, depth int) error {
	channels := f.NumChannels()
	if channels < 1 || channels > UniverseSize {
		return &ConfigError{
			Fixture: f.ID(),
			Reason:  fmt.Sprintf("channel count %d outside 1..%d", channels, UniverseSize),
		}
	}
	pref := f.PreferredPlacement()
	if pref.Start == 0 && pref.AutoAssign {
		return r.autoAssign(f)
	}
	if int(pref.Universe) >= r.maxUniverses {
		return &ConfigError{
			Fixture: f.ID(),
			Reason:  fmt.Sprintf("universe %d outside 0..%d", pref.Universe, r.maxUniverses-1),
		}
	}
	if pref.Start < 1 || pref.Start+channels-1 > UniverseSize {
		return &ConfigError{
			Fixture: f.ID(),
			Reason:  fmt.Sprintf("channels %d..%d outside 1..%d", pref.Start, pref.Start+channels-1, UniverseSize),
		}
	}
	u := r.universes[pref.Universe]
	if u == nil || u.available(pref.Start, channels) {
		r.commit(f, pref.Universe, pref.Start)
		return nil
	}
	if !pref.AutoAssign && depth < maxReassignDepth && r.arbitrate(f, u, pref, depth) {
		return nil
	}
	r.log.Debugf("fixture %s lost channels %d..%d on universe %d, assigning automatically",
		f.ID(), pref.Start, pref.Start+channels-1, pref.Universe)
	err := r.autoAssign(f)
	if err != nil && !pref.AutoAssign {
		return &OverlapError{
			Fixture:  f.ID(),
			Universe: pref.Universe,
			Start:    pref.Start,
			Channels: channels,
		}
	}
	return err
}

// arbitrate decides a contested range by priority. The incoming fixture
// wins only when its priority is strictly greater than every conflicting
// fixture's. On a win the conflictors are pulled out, the winner takes the
// range, the conflictors are re-registered and the winner's callback fires
// last, once the dust has settled.
func (r *Registry) arbitrate(f Fixture, u *Universe, pref Placement, depth int) bool {
	channels := f.NumChannels()
	conflictors := u.overlapping(pref.Start, channels)
	for _, c := range conflictors {
		if pref.Priority <= c.fixture.PreferredPlacement().Priority {
			return false
		}
	}
	losers := make([]Fixture, 0, len(conflictors))
	for _, c := range conflictors {
		losers = append(losers, c.fixture)
		u.remove(c.fixture)
	}
	u.insert(f, pref.Start)
	for _, loser := range losers {
		r.log.Infof("fixture %s displaced from universe %d by %s (priority %d)",
			loser.ID(), u.ID, f.ID(), pref.Priority)
		if err := r.register(loser, depth+1); err != nil {
			r.log.Errorf("fixture %s could not be re-registered: %v", loser.ID(), err)
		}
	}
	u.rebuildBuffer()
	r.log.Infof("fixture %s placed at universe %d channels %d..%d",
		f.ID(), u.ID, pref.Start, pref.Start+channels-1)
	f.OnPlacementAssigned(u.ID, pref.Start)
	return true
}

// autoAssign scans universes in id order for the strategy's next slot,
// falling back to the first free gap when the slot is taken, and opens
// closed universes as needed.
func (r *Registry) autoAssign(f Fixture) error {
	channels := f.NumChannels()
	for id := 0; id < r.maxUniverses; id++ {
		u := r.universes[id]
		if u == nil {
			start := r.strategy.NextStart(newUniverse(uint16(id)))
			if start >= 1 && start+channels-1 <= UniverseSize {
				r.commit(f, uint16(id), start)
				return nil
			}
			continue
		}
		if start := r.slotFor(u, channels); start > 0 {
			r.commit(f, u.ID, start)
			return nil
		}
	}
	return &CapacityError{Fixture: f.ID(), Channels: channels}
}

// slotFor returns a free start channel for the given width in u, or 0.
func (r *Registry) slotFor(u *Universe, channels int) int {
	if r.strategy.CanFit(u, channels) {
		start := r.strategy.NextStart(u)
		if start >= 1 && start+channels-1 <= UniverseSize && u.available(start, channels) {
			return start
		}
	}
	// The strategy's slot is gone or off the table; take the first gap.
	return u.findGap(channels)
}

// commit inserts the fixture, opening the universe when needed, and fires
// the assignment callback.
func (r *Registry) commit(f Fixture, id uint16, start int) {
	u := r.universes[id]
	if u == nil {
		u = newUniverse(id)
		r.universes[id] = u
		r.log.Debugf("universe %d opened", id)
	}
	u.insert(f, start)
	r.log.Infof("fixture %s placed at universe %d channels %d..%d",
		f.ID(), id, start, start+f.NumChannels()-1)
	f.OnPlacementAssigned(id, start)
}

// Unregister removes the fixture from its universe. The vacated channels
// are cleared, and a universe left with no members is closed.
func (r *Registry) Unregister(f Fixture) bool {
	u, m := r.locate(f)
	if m == nil {
		return false
	}
	u.remove(f)
	if u.Empty() {
		r.universes[u.ID] = nil
		r.log.Debugf("universe %d closed", u.ID)
		return true
	}
	u.rebuildBuffer()
	return true
}

// IsAvailable reports whether the range lies inside the universe and
// overlaps no registered fixture.
func (r *Registry) IsAvailable(universe uint16, start, channels int) bool {
	if int(universe) >= r.maxUniverses {
		return false
	}
	if start < 1 || channels < 1 || start+channels-1 > UniverseSize {
		return false
	}
	u := r.universes[universe]
	if u == nil {
		return true
	}
	return u.available(start, channels)
}

// FindGap returns the lowest start channel with the given number of free
// slots in the universe, or 0 when none exists.
func (r *Registry) FindGap(universe uint16, channels int) int {
	if int(universe) >= r.maxUniverses || channels < 1 || channels > UniverseSize {
		return 0
	}
	u := r.universes[universe]
	if u == nil {
		return 1
	}
	return u.findGap(channels)
}

// SetStrategy swaps the allocation strategy and re-flows every universe.
// Fixtures whose slot disappears are assigned automatically; the returned
// slice holds the ones that fit nowhere and are now unregistered.
func (r *Registry) SetStrategy(s Strategy) []Fixture {
	if s == nil {
		return nil
	}
	r.log.Infof("switching allocation strategy to %s", s.Name())
	r.strategy = s
	return r.reassign()
}

// reassign runs the strategy's assign pass over every open universe,
// re-places the overflow and reports fixtures that no universe can take.
func (r *Registry) reassign() []Fixture {
	var overflow []Fixture
	for id, u := range r.universes {
		if u == nil {
			continue
		}
		moved := make(map[Fixture]int, len(u.members))
		for _, m := range u.members {
			moved[m.fixture] = m.start
		}
		overflow = append(overflow, r.strategy.Assign(u)...)
		if u.Empty() {
			r.universes[id] = nil
			continue
		}
		u.rebuildBuffer()
		for _, m := range u.members {
			if moved[m.fixture] != m.start {
				m.fixture.OnPlacementAssigned(u.ID, m.start)
			}
		}
	}
	var dropped []Fixture
	for _, f := range overflow {
		if err := r.autoAssign(f); err != nil {
			r.log.Errorf("fixture %s does not fit the new layout: %v", f.ID(), err)
			dropped = append(dropped, f)
		}
	}
	return dropped
}

// Placements lists every registered fixture in universe and channel order.
func (r *Registry) Placements() []PlacementInfo {
	var out []PlacementInfo
	for _, u := range r.universes {
		if u == nil {
			continue
		}
		for _, m := range u.members {
			out = append(out, PlacementInfo{
				Fixture:  m.fixture.ID(),
				Universe: u.ID,
				Start:    m.start,
				Channels: m.fixture.NumChannels(),
				Mode:     m.fixture.Mode().String(),
			})
		}
	}
	return out
}

// locate finds the universe and member entry holding the fixture.
func (r *Registry) locate(f Fixture) (*Universe, *member) {
	for _, u := range r.universes {
		if u == nil {
			continue
		}
		if m := u.find(f); m != nil {
			return u, m
		}
	}
	return nil, nil
}
