package board

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	R Color = "red"
	G Color = "green"
	B Color = "blue"
	Y Color = "yellow"
)

var testPalette = []Color{R, G, B, Y}

func seeded() *rand.Rand { return rand.New(rand.NewSource(42)) }

func mustBoard(t *testing.T, layout [][]Color) *Board {
	t.Helper()
	b, err := FromColors(layout, testPalette, seeded())
	require.NoError(t, err)
	return b
}

func asSet(cs []Coord) map[Coord]bool {
	out := make(map[Coord]bool, len(cs))
	for _, c := range cs {
		out[c] = true
	}
	return out
}

func TestDetectConnectedGroup(t *testing.T) {
	cases := []struct {
		name   string
		layout [][]Color
		seed   Coord
		want   []Coord
	}{
		{
			name: "row of three",
			layout: [][]Color{
				{R, R, R},
				{G, B, G},
				{B, G, B},
			},
			seed: Coord{0, 0},
			want: []Coord{{0, 0}, {0, 1}, {0, 2}},
		},
		{
			name: "diagonal neighbors join the group",
			layout: [][]Color{
				{R, G, B},
				{G, R, B},
				{B, G, R},
			},
			seed: Coord{1, 1},
			want: []Coord{{0, 0}, {1, 1}, {2, 2}},
		},
		{
			name: "branching component is returned whole",
			layout: [][]Color{
				{R, G, R},
				{G, R, G},
				{R, G, B},
			},
			seed: Coord{0, 0},
			want: []Coord{{0, 0}, {0, 2}, {1, 1}, {2, 0}},
		},
		{
			name: "pair is not a group",
			layout: [][]Color{
				{R, R, G},
				{G, B, B},
				{B, G, Y},
			},
			seed: Coord{0, 0},
			want: nil,
		},
		{
			name: "out of bounds seed",
			layout: [][]Color{
				{R, R, R},
			},
			seed: Coord{3, 3},
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := mustBoard(t, tc.layout)
			got := b.DetectConnectedGroup(tc.seed)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, asSet(tc.want), asSet(got))
			assert.Len(t, got, len(tc.want))
		})
	}
}

func TestScanStraightMatches_IgnoresDiagonals(t *testing.T) {
	b := mustBoard(t, [][]Color{
		{R, R, R, G},
		{G, B, Y, G},
		{B, Y, B, G},
		{Y, B, G, B},
	})

	got := b.ScanStraightMatches()

	want := map[Coord]struct{}{
		{0, 0}: {}, {0, 1}: {}, {0, 2}: {},
		{0, 3}: {}, {1, 3}: {}, {2, 3}: {},
	}
	assert.Equal(t, want, got)
}

func TestRefill_OnlyTouchesGivenCoords(t *testing.T) {
	b, err := New(6, 6, testPalette, seeded())
	require.NoError(t, err)
	b.Lock(Coord{0, 0}, "p1")
	b.Lock(Coord{5, 5}, "p2")
	before := b.Snapshot()

	targets := []Coord{{0, 0}, {2, 3}, {4, 1}}
	b.Refill(targets)
	after := b.Snapshot()

	changed := asSet(targets)
	for r := 0; r < before.Rows; r++ {
		for c := 0; c < before.Cols; c++ {
			if changed[Coord{r, c}] {
				assert.Empty(t, after.Cells[r][c].LockOwner, "refilled cell keeps no lock")
				continue
			}
			assert.Equal(t, before.Cells[r][c], after.Cells[r][c], "cell %d,%d changed", r, c)
		}
	}
	assert.Equal(t, 6, b.Rows())
	assert.Equal(t, 6, b.Cols())
}

func TestRefill_AvoidsLocalRuns(t *testing.T) {
	// (1,2) sits between a red pair, a blue pair and a green column straddle.
	b := mustBoard(t, [][]Color{
		{Y, Y, G, Y, Y},
		{R, R, Y, B, B},
		{Y, Y, G, Y, Y},
	})

	for i := 0; i < 50; i++ {
		b.Refill([]Coord{{1, 2}})
		assert.Equal(t, Y, b.ColorAt(Coord{1, 2}))
	}
}

func TestRefill_FallsBackWhenEveryColorIsProhibited(t *testing.T) {
	b, err := FromColors([][]Color{
		{R, R, NoColor},
	}, []Color{R}, seeded())
	require.NoError(t, err)

	b.Refill([]Coord{{0, 2}})
	assert.Equal(t, R, b.ColorAt(Coord{0, 2}))
}

func TestNew_HasNoStraightRuns(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		b, err := New(8, 8, testPalette, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		assert.Empty(t, b.ScanStraightMatches(), "seed %d", seed)
	}
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New(0, 3, testPalette, nil)
	assert.ErrorIs(t, err, ErrBadDimensions)

	_, err = New(3, 3, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPalette)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	b := mustBoard(t, [][]Color{{R, G, B}})
	snap := b.Snapshot()
	b.Lock(Coord{0, 1}, "p1")
	assert.Empty(t, snap.Cells[0][1].LockOwner)
	assert.Equal(t, []Coord{{0, 1}}, b.LockedBy("p1"))
}

func TestPalette(t *testing.T) {
	p, ok := Palette("")
	require.True(t, ok)
	assert.NotEmpty(t, p)

	_, ok = Palette("nope")
	assert.False(t, ok)
}
