package dmx

// Strategy computes start channels for the fixtures of a universe.
//
// Assign re-flows every member in registration order and returns the
// fixtures whose computed slot no longer fits; the registry re-places
// those elsewhere. CanFit answers whether one more fixture of the given
// width could join the universe. NextStart is the channel the next
// registered fixture would receive, or 0 when the strategy has no slot
// left.
type Strategy interface {
	Name() string
	Assign(u *Universe) (overflow []Fixture)
	CanFit(u *Universe, channels int) bool
	NextStart(u *Universe) int
}

// Sequential packs fixtures back to back: each fixture starts right
// after the channels of everything registered before it.
type Sequential struct{}

// NewSequential returns the default allocation strategy.
func NewSequential() *Sequential { return &Sequential{} }

func (s *Sequential) Name() string { return "sequential" }

// NextStart is 1 plus the channels of all current members.
func (s *Sequential) NextStart(u *Universe) int {
	return 1 + u.UsedChannels()
}

// CanFit checks that the used total plus the candidate stays inside the
// universe.
func (s *Sequential) CanFit(u *Universe, channels int) bool {
	if channels < 1 || channels > UniverseSize {
		return false
	}
	return u.UsedChannels()+channels <= UniverseSize
}

// Assign walks members in registration order and packs each one directly
// after the previous. Running it twice over the same set yields the same
// channels.
func (s *Sequential) Assign(u *Universe) []Fixture {
	var overflow []Fixture
	next := 1
	for _, m := range u.byRegistration() {
		n := m.fixture.NumChannels()
		if next+n-1 > UniverseSize {
			overflow = append(overflow, m.fixture)
			u.remove(m.fixture)
			continue
		}
		m.start = next
		next += n
	}
	u.sortByStart()
	return overflow
}

// slotAssign re-flows members onto strategy slots in registration order.
// Members whose slot is gone, runs past the universe or would overlap an
// earlier slot (a fixture wider than the slot spacing) spill into the
// overflow list for the registry to re-place.
func slotAssign(u *Universe, slot func(index int) int) []Fixture {
	type span struct{ lo, hi int }
	var taken []span
	var overflow []Fixture
	index := 0
	for _, m := range u.byRegistration() {
		ch := slot(index)
		index++
		n := m.fixture.NumChannels()
		ok := ch >= 1 && ch+n-1 <= UniverseSize
		if ok {
			for _, t := range taken {
				if ch <= t.hi && t.lo <= ch+n-1 {
					ok = false
					break
				}
			}
		}
		if !ok {
			overflow = append(overflow, m.fixture)
			u.remove(m.fixture)
			continue
		}
		m.start = ch
		taken = append(taken, span{ch, ch + n - 1})
	}
	u.sortByStart()
	return overflow
}
