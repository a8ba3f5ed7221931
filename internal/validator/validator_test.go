package validator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/match3-backend/internal/board"
)

func snapshotOf(t *testing.T, layout [][]board.Color) board.Snapshot {
	t.Helper()
	b, err := board.FromColors(layout, []board.Color{"r", "g", "b"}, nil)
	require.NoError(t, err)
	return b.Snapshot()
}

// every cell red so only geometry matters
func allRed(t *testing.T) board.Snapshot {
	return snapshotOf(t, [][]board.Color{
		{"r", "r", "r", "r"},
		{"r", "r", "r", "r"},
		{"r", "r", "r", "r"},
		{"r", "r", "r", "r"},
	})
}

func TestValidate_LineRules(t *testing.T) {
	mixed := snapshotOf(t, [][]board.Color{
		{"r", "r", "g"},
		{"g", "r", "b"},
		{"b", "g", "r"},
	})

	cases := []struct {
		name   string
		snap   board.Snapshot
		chain  []board.Coord
		valid  bool
		reason Reason
	}{
		{"horizontal line", allRed(t), []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}}, true, ReasonNone},
		{"diagonal line", mixed, []board.Coord{{Row: 0, Col: 0}, {Row: 1, Col: 1}, {Row: 2, Col: 2}}, true, ReasonNone},
		{"reverse vertical line", allRed(t), []board.Coord{{Row: 3, Col: 1}, {Row: 2, Col: 1}, {Row: 1, Col: 1}, {Row: 0, Col: 1}}, true, ReasonNone},
		{"too short", allRed(t), []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}}, false, ReasonTooShort},
		{"color mismatch", mixed, []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}}, false, ReasonColor},
		{"repeated coordinate", allRed(t), []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 0}}, false, ReasonRepeated},
		{"gap in the chain", allRed(t), []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 3}}, false, ReasonNotAdjacent},
		{"L shape", allRed(t), []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}}, false, ReasonNotStraight},
		{"out of bounds", allRed(t), []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 9}}, false, ReasonOutOfBounds},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Validate(tc.chain, tc.snap)
			assert.Equal(t, tc.valid, got.Valid)
			assert.Equal(t, tc.reason, got.Reason)
			if tc.valid {
				assert.Equal(t, len(tc.chain), got.Length)
				assert.Equal(t, tc.chain, got.Coordinates)
			}
		})
	}
}

func TestValidate_LShapeIsInvalidOnAnyBoard(t *testing.T) {
	chain := []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}}
	assert.False(t, Validate(chain, allRed(t)).Valid)
	assert.False(t, Validate(chain, snapshotOf(t, [][]board.Color{{"r", "g"}, {"b", "r"}})).Valid)
}

func TestValidateGroup(t *testing.T) {
	cases := []struct {
		name   string
		chain  []board.Coord
		valid  bool
		reason Reason
	}{
		{"L shape is a group", []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}}, true, ReasonNone},
		{"branching group", []board.Coord{{Row: 1, Col: 1}, {Row: 0, Col: 0}, {Row: 0, Col: 2}, {Row: 2, Col: 0}}, true, ReasonNone},
		{"disconnected cell", []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 3, Col: 3}}, false, ReasonDisconnected},
		{"repeat", []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 0}}, false, ReasonRepeated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateGroup(tc.chain, allRed(t))
			assert.Equal(t, tc.valid, got.Valid)
			assert.Equal(t, tc.reason, got.Reason)
		})
	}
}

func recvOutcome(t *testing.T, ch <-chan Outcome, within time.Duration) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(within):
		t.Fatalf("timed out waiting for validation outcome")
		return Outcome{}
	}
}

func TestPool_ValidatesAsynchronously(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(ctx, 2, nil)
	defer p.Close()

	line := p.Validate(ctx, Request{Rules: RulesLine, Chain: []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}}, Board: allRed(t)})
	group := p.Validate(ctx, Request{Rules: RulesGroup, Chain: []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}}, Board: allRed(t)})

	out := recvOutcome(t, line, time.Second)
	require.NoError(t, out.Err)
	assert.True(t, out.Result.Valid)

	out = recvOutcome(t, group, time.Second)
	require.NoError(t, out.Err)
	assert.True(t, out.Result.Valid)
}

func TestPool_ClosedPoolRejects(t *testing.T) {
	p := NewPool(context.Background(), 1, nil)
	p.Close()

	out := recvOutcome(t, p.Validate(context.Background(), Request{}), time.Second)
	assert.ErrorIs(t, out.Err, ErrPoolClosed)
}

func TestPool_CanceledRequest(t *testing.T) {
	p := NewPool(context.Background(), 1, nil)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := recvOutcome(t, p.Validate(ctx, Request{}), time.Second)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestInline(t *testing.T) {
	out := recvOutcome(t, Inline{}.Validate(context.Background(), Request{
		Rules: RulesLine,
		Chain: []board.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}},
		Board: allRed(t),
	}), time.Second)
	assert.False(t, out.Result.Valid)
	assert.Equal(t, ReasonNotStraight, out.Result.Reason)
}
