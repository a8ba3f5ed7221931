package board

import (
	"errors"
	"math/rand"
)

var ErrBadDimensions = errors.New("board dimensions must be positive")
var ErrEmptyPalette = errors.New("palette must contain at least one color")

// Coord is a board position. It is comparable and used directly as a set key.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type Cell struct {
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Color     Color  `json:"color"`
	LockOwner string `json:"lock_owner,omitempty"` // "" when free
}

func (c Cell) Locked() bool { return c.LockOwner != "" }

// Board is a rows x cols grid stored row-major in a flat slice.
type Board struct {
	rows    int
	cols    int
	cells   []Cell
	palette []Color
	rng     *rand.Rand
}

// New builds a board whose every cell is filled by the refill rules, so no
// straight run of three exists unless the palette forces one.
func New(rows, cols int, palette []Color, rng *rand.Rand) (*Board, error) {
	b, err := empty(rows, cols, palette, rng)
	if err != nil {
		return nil, err
	}
	all := make([]Coord, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			all = append(all, Coord{r, c})
		}
	}
	b.Refill(all)
	return b, nil
}

// FromColors builds a board with the given layout. Rows must all have the same length.
func FromColors(layout [][]Color, palette []Color, rng *rand.Rand) (*Board, error) {
	if len(layout) == 0 {
		return nil, ErrBadDimensions
	}
	b, err := empty(len(layout), len(layout[0]), palette, rng)
	if err != nil {
		return nil, err
	}
	for r, row := range layout {
		if len(row) != b.cols {
			return nil, ErrBadDimensions
		}
		for c, color := range row {
			b.cells[b.index(Coord{r, c})].Color = color
		}
	}
	return b, nil
}

func empty(rows, cols int, palette []Color, rng *rand.Rand) (*Board, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrBadDimensions
	}
	if len(palette) == 0 {
		return nil, ErrEmptyPalette
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	b := &Board{
		rows:    rows,
		cols:    cols,
		cells:   make([]Cell, rows*cols),
		palette: append([]Color(nil), palette...),
		rng:     rng,
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			b.cells[b.index(Coord{r, c})] = Cell{Row: r, Col: c}
		}
	}
	return b, nil
}

func (b *Board) Rows() int { return b.rows }
func (b *Board) Cols() int { return b.cols }

func (b *Board) Palette() []Color { return append([]Color(nil), b.palette...) }

func (b *Board) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < b.rows && c.Col >= 0 && c.Col < b.cols
}

func (b *Board) index(c Coord) int { return c.Row*b.cols + c.Col }

// At returns the cell at c. The caller must check InBounds first.
func (b *Board) At(c Coord) Cell { return b.cells[b.index(c)] }

func (b *Board) ColorAt(c Coord) Color {
	if !b.InBounds(c) {
		return NoColor
	}
	return b.cells[b.index(c)].Color
}

func (b *Board) LockOwner(c Coord) string {
	if !b.InBounds(c) {
		return ""
	}
	return b.cells[b.index(c)].LockOwner
}

func (b *Board) Lock(c Coord, owner string) {
	b.cells[b.index(c)].LockOwner = owner
}

func (b *Board) Unlock(c Coord) {
	b.cells[b.index(c)].LockOwner = ""
}

// UnlockAll clears every lock on the board.
func (b *Board) UnlockAll() {
	for i := range b.cells {
		b.cells[i].LockOwner = ""
	}
}

// LockedBy returns the coordinates currently locked to owner, in row-major order.
func (b *Board) LockedBy(owner string) []Coord {
	var out []Coord
	for _, cell := range b.cells {
		if cell.LockOwner == owner && owner != "" {
			out = append(out, Coord{cell.Row, cell.Col})
		}
	}
	return out
}

// Snapshot is a deep copy of the board, safe to hand to other goroutines.
type Snapshot struct {
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Cells [][]Cell `json:"cells"`
}

func (b *Board) Snapshot() Snapshot {
	cells := make([][]Cell, b.rows)
	for r := 0; r < b.rows; r++ {
		cells[r] = make([]Cell, b.cols)
		copy(cells[r], b.cells[r*b.cols:(r+1)*b.cols])
	}
	return Snapshot{Rows: b.rows, Cols: b.cols, Cells: cells}
}

func (s Snapshot) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < s.Rows && c.Col >= 0 && c.Col < s.Cols
}

func (s Snapshot) ColorAt(c Coord) Color {
	if !s.InBounds(c) {
		return NoColor
	}
	return s.Cells[c.Row][c.Col].Color
}
