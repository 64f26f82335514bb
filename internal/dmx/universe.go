package dmx

import "sort"

// member binds a fixture to its committed start channel. seq preserves
// registration order, which drives strategy sweeps.
type member struct {
	fixture Fixture
	start   int
	seq     int
}

func (m *member) end() int { return m.start + m.fixture.NumChannels() - 1 }

// Universe holds the fixtures placed in one DMX universe, ordered by
// start channel, plus the output frame buffer. Invariant: member ranges
// are pairwise disjoint and lie inside [1, UniverseSize].
type Universe struct {
	ID      uint16
	Buffer  FrameBuffer
	members []*member
	nextSeq int
}

func newUniverse(id uint16) *Universe { return &Universe{ID: id} }

// Empty reports whether no fixtures remain in the universe.
func (u *Universe) Empty() bool { return len(u.members) == 0 }

// UsedChannels is the sum of the members' channel counts.
func (u *Universe) UsedChannels() int {
	total := 0
	for _, m := range u.members {
		total += m.fixture.NumChannels()
	}
	return total
}

// insert adds a fixture at start and keeps members ordered by channel.
// The caller has already checked availability.
func (u *Universe) insert(f Fixture, start int) *member {
	m := &member{fixture: f, start: start, seq: u.nextSeq}
	u.nextSeq++
	u.members = append(u.members, m)
	u.sortByStart()
	return m
}

// remove drops the fixture's membership. It reports whether the fixture
// was present.
func (u *Universe) remove(f Fixture) bool {
	for i, m := range u.members {
		if m.fixture == f {
			u.members = append(u.members[:i], u.members[i+1:]...)
			return true
		}
	}
	return false
}

func (u *Universe) find(f Fixture) *member {
	for _, m := range u.members {
		if m.fixture == f {
			return m
		}
	}
	return nil
}

func (u *Universe) sortByStart() {
	sort.Slice(u.members, func(i, j int) bool { return u.members[i].start < u.members[j].start })
}

// byRegistration returns members in registration order. Strategy sweeps
// re-flow fixtures in this order, not in channel order.
func (u *Universe) byRegistration() []*member {
	ms := make([]*member, len(u.members))
	copy(ms, u.members)
	sort.Slice(ms, func(i, j int) bool { return ms[i].seq < ms[j].seq })
	return ms
}

// overlapping returns the members whose ranges intersect
// [start, start+count).
func (u *Universe) overlapping(start, count int) []*member {
	var hits []*member
	for _, m := range u.members {
		if start <= m.end() && m.start <= start+count-1 {
			hits = append(hits, m)
		}
	}
	return hits
}

// available reports whether [start, start+count) lies inside the
// universe and collides with nothing.
func (u *Universe) available(start, count int) bool {
	if start < 1 || count < 1 || start+count-1 > UniverseSize {
		return false
	}
	return len(u.overlapping(start, count)) == 0
}

// findGap returns the lowest start with count contiguous free channels
// before the next occupied fixture or the end of the universe, or 0 when
// no such gap exists. Members are kept sorted by start, so one pass is
// enough.
func (u *Universe) findGap(count int) int {
	if count < 1 || count > UniverseSize {
		return 0
	}
	start := 1
	for _, m := range u.members {
		if m.start-start >= count {
			return start
		}
		if next := m.end() + 1; next > start {
			start = next
		}
	}
	if UniverseSize-start+1 >= count {
		return start
	}
	return 0
}

// writeFixture merges the fixture's output bytes into the frame buffer
// at the member's offset. Bytes beyond the fixture's channel count are
// dropped so neighbours are never stomped.
func (u *Universe) writeFixture(m *member, b []byte) {
	if n := m.fixture.NumChannels(); len(b) > n {
		b = b[:n]
	}
	u.Buffer.WriteAt(m.start, b)
}

// rebuildBuffer reconstitutes the output image from member state after
// placements moved, and marks the universe dirty so the new layout goes
// out on the next flush.
func (u *Universe) rebuildBuffer() {
	u.Buffer.reset()
	for _, m := range u.members {
		if b := m.fixture.GetOutputData(); len(b) > 0 {
			u.writeFixture(m, b)
		}
	}
	u.Buffer.dirty = true
}
