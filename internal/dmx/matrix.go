package dmx

import "fmt"

// MatrixConfig shapes a Matrix strategy grid. Devices land on fixed grid
// slots: walking columns inside a row, then rows, with an optional extra
// gap pushed in after a configured column.
type MatrixConfig struct {
	// DevicesPerRow is the number of columns in the grid.
	DevicesPerRow int
	// BaseChannel is the 1-based channel of slot 0.
	BaseChannel int
	// RowSpacing is the channel distance between rows. 0 derives it
	// from one full row of columns plus the gap.
	RowSpacing int
	// ColumnSpacing is the channel distance between columns.
	ColumnSpacing int
	// GapAfterColumn names the column index the gap follows. Columns
	// past it shift up by GapSize. Ignored while GapSize is 0.
	GapAfterColumn int
	// GapSize is the width of the inserted gap in channels.
	GapSize int
}

func (c MatrixConfig) validate() error {
	if c.DevicesPerRow < 1 {
		return fmt.Errorf("matrix: devices per row %d, want at least 1", c.DevicesPerRow)
	}
	if c.BaseChannel < 1 || c.BaseChannel > UniverseSize {
		return fmt.Errorf("matrix: base channel %d outside 1..%d", c.BaseChannel, UniverseSize)
	}
	if c.ColumnSpacing < 1 {
		return fmt.Errorf("matrix: column spacing %d, want at least 1", c.ColumnSpacing)
	}
	if c.RowSpacing < 0 || c.GapSize < 0 {
		return fmt.Errorf("matrix: negative spacing")
	}
	if c.GapSize > 0 && (c.GapAfterColumn < 0 || c.GapAfterColumn >= c.DevicesPerRow) {
		return fmt.Errorf("matrix: gap after column %d outside the row", c.GapAfterColumn)
	}
	return nil
}

// Matrix assigns fixtures to grid slots in registration order.
type Matrix struct {
	cfg MatrixConfig
}

// NewMatrix validates cfg and returns the strategy.
func NewMatrix(cfg MatrixConfig) (*Matrix, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.RowSpacing == 0 {
		cfg.RowSpacing = cfg.DevicesPerRow*cfg.ColumnSpacing + cfg.GapSize
	}
	return &Matrix{cfg: cfg}, nil
}

func (m *Matrix) Name() string { return "matrix" }

// slot returns the 1-based channel of grid slot index, or 0 when the
// slot falls outside the universe.
func (m *Matrix) slot(index int) int {
	row := index / m.cfg.DevicesPerRow
	col := index % m.cfg.DevicesPerRow
	ch := m.cfg.BaseChannel + row*m.cfg.RowSpacing + col*m.cfg.ColumnSpacing
	if m.cfg.GapSize > 0 && col > m.cfg.GapAfterColumn {
		ch += m.cfg.GapSize
	}
	if ch < 1 || ch > UniverseSize {
		return 0
	}
	return ch
}

// NextStart is the channel of the slot the next member would take.
func (m *Matrix) NextStart(u *Universe) int {
	return m.slot(len(u.members))
}

// CanFit computes the channel the next index would receive and verifies
// the candidate ends inside the universe.
func (m *Matrix) CanFit(u *Universe, channels int) bool {
	if channels < 1 {
		return false
	}
	ch := m.slot(len(u.members))
	return ch >= 1 && ch+channels-1 <= UniverseSize
}

// Assign re-flows every member onto its grid slot in registration order.
func (m *Matrix) Assign(u *Universe) []Fixture {
	return slotAssign(u, m.slot)
}
