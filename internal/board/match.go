package board

import "sort"

// MinGroup is the smallest number of cells that counts as a group or a run.
const MinGroup = 3

var neighbors8 = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// DetectConnectedGroup flood-fills from seed over the 8-connected neighborhood,
// following cells of exactly the seed's color. It returns the whole component in
// BFS order, or nil when the component has fewer than MinGroup cells.
func (b *Board) DetectConnectedGroup(seed Coord) []Coord {
	if !b.InBounds(seed) {
		return nil
	}
	color := b.ColorAt(seed)
	if color == NoColor {
		return nil
	}

	seen := map[Coord]bool{seed: true}
	queue := []Coord{seed}
	group := make([]Coord, 0, 8)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		group = append(group, cur)

		for _, d := range neighbors8 {
			next := Coord{cur.Row + d[0], cur.Col + d[1]}
			if seen[next] || !b.InBounds(next) || b.ColorAt(next) != color {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}

	if len(group) < MinGroup {
		return nil
	}
	return group
}

// ScanStraightMatches returns every cell that belongs to a horizontal or vertical
// run of at least MinGroup identical colors. Diagonals are not considered.
func (b *Board) ScanStraightMatches() map[Coord]struct{} {
	out := make(map[Coord]struct{})

	mark := func(start Coord, dr, dc, n int) {
		for i := 0; i < n; i++ {
			out[Coord{start.Row + dr*i, start.Col + dc*i}] = struct{}{}
		}
	}

	for r := 0; r < b.rows; r++ {
		runStart := 0
		for c := 1; c <= b.cols; c++ {
			if c < b.cols && b.ColorAt(Coord{r, c}) == b.ColorAt(Coord{r, runStart}) {
				continue
			}
			if n := c - runStart; n >= MinGroup && b.ColorAt(Coord{r, runStart}) != NoColor {
				mark(Coord{r, runStart}, 0, 1, n)
			}
			runStart = c
		}
	}

	for c := 0; c < b.cols; c++ {
		runStart := 0
		for r := 1; r <= b.rows; r++ {
			if r < b.rows && b.ColorAt(Coord{r, c}) == b.ColorAt(Coord{runStart, c}) {
				continue
			}
			if n := r - runStart; n >= MinGroup && b.ColorAt(Coord{runStart, c}) != NoColor {
				mark(Coord{runStart, c}, 1, 0, n)
			}
			runStart = r
		}
	}

	return out
}

// SortCoords orders coordinates row-major in place.
func SortCoords(cs []Coord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Row != cs[j].Row {
			return cs[i].Row < cs[j].Row
		}
		return cs[i].Col < cs[j].Col
	})
}

// localPatterns are the six neighbor pairs that would complete a run of three
// through the cell being filled: two left, two right, straddling left/right,
// two above, two below, straddling above/below.
var localPatterns = [6][2][2]int{
	{{0, -1}, {0, -2}},
	{{0, 1}, {0, 2}},
	{{0, -1}, {0, 1}},
	{{-1, 0}, {-2, 0}},
	{{1, 0}, {2, 0}},
	{{-1, 0}, {1, 0}},
}

// Refill assigns a fresh random color to every coordinate in coords and clears
// its lock. Cells outside coords are never touched. Coordinates are filled in the
// given order; a cell is "settled" once it is outside coords or already refilled.
// When every palette color is prohibited the color is drawn from the whole
// palette, which may leave a run of three in place.
func (b *Board) Refill(coords []Coord) {
	targets := make([]Coord, 0, len(coords))
	for _, c := range coords {
		if !b.InBounds(c) {
			continue
		}
		i := b.index(c)
		b.cells[i].Color = NoColor
		b.cells[i].LockOwner = ""
		targets = append(targets, c)
	}

	for _, c := range targets {
		b.cells[b.index(c)].Color = b.pickColor(c)
	}
}

func (b *Board) pickColor(c Coord) Color {
	prohibited := make(map[Color]bool, len(localPatterns))
	for _, p := range localPatterns {
		a := b.ColorAt(Coord{c.Row + p[0][0], c.Col + p[0][1]})
		z := b.ColorAt(Coord{c.Row + p[1][0], c.Col + p[1][1]})
		if a != NoColor && a == z {
			prohibited[a] = true
		}
	}

	allowed := make([]Color, 0, len(b.palette))
	for _, color := range b.palette {
		if !prohibited[color] {
			allowed = append(allowed, color)
		}
	}
	if len(allowed) == 0 {
		return b.palette[b.rng.Intn(len(b.palette))]
	}
	return allowed[b.rng.Intn(len(allowed))]
}
