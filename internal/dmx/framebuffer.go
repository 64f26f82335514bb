package dmx

// FrameBuffer is one universe's 512-byte output image plus its dirty
// flag. Fixture writes merge at the fixture's offset; the dirty flag
// survives until a snapshot is confirmed sent, so a failed send retries
// on the next tick.
type FrameBuffer struct {
	data  [UniverseSize]byte
	dirty bool
}

// WriteAt copies b into the buffer at the 1-based start channel, clipped
// to the universe bounds, and marks the buffer dirty.
func (fb *FrameBuffer) WriteAt(start int, b []byte) {
	if start < 1 || start > UniverseSize || len(b) == 0 {
		return
	}
	if copy(fb.data[start-1:], b) > 0 {
		fb.dirty = true
	}
}

// Snapshot returns a copy of the current frame. The copy is immutable
// with respect to later writes.
func (fb *FrameBuffer) Snapshot() [UniverseSize]byte {
	return fb.data
}

// Dirty reports whether the buffer changed since the last MarkClean.
func (fb *FrameBuffer) Dirty() bool { return fb.dirty }

// MarkClean clears the dirty flag. Call only after a successful send.
func (fb *FrameBuffer) MarkClean() { fb.dirty = false }

// reset zeroes the frame without touching the dirty flag. Used when a
// universe is re-flowed and the image is rebuilt from member state.
func (fb *FrameBuffer) reset() {
	fb.data = [UniverseSize]byte{}
}
