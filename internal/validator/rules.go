package validator

import "github.com/DoyleJ11/match3-backend/internal/board"

// Ruleset selects which adjudication a chain goes through.
type Ruleset string

const (
	// RulesLine is the strict straight-line chain check used by chain submissions.
	RulesLine Ruleset = "line"
	// RulesGroup re-checks a flood-fill selection: it may branch in any of the
	// eight directions as long as every cell touches an earlier one.
	RulesGroup Ruleset = "group"
)

type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTooShort     Reason = "too_short"
	ReasonOutOfBounds  Reason = "out_of_bounds"
	ReasonColor        Reason = "color_mismatch"
	ReasonRepeated     Reason = "repeated_cell"
	ReasonNotAdjacent  Reason = "not_adjacent"
	ReasonNotStraight  Reason = "not_straight"
	ReasonDisconnected Reason = "disconnected"
)

type Result struct {
	Valid       bool          `json:"valid"`
	Length      int           `json:"length"`
	Coordinates []board.Coord `json:"coordinates,omitempty"`
	Reason      Reason        `json:"reason,omitempty"`
}

func invalid(r Reason) Result { return Result{Reason: r} }

// Validate applies the line rules in order and stops at the first failure:
// at least three cells, one color, no repeats, consecutive cells 8-adjacent,
// and a constant step between every consecutive pair.
func Validate(chain []board.Coord, snap board.Snapshot) Result {
	if len(chain) < board.MinGroup {
		return invalid(ReasonTooShort)
	}
	if r := sameColor(chain, snap); r != ReasonNone {
		return invalid(r)
	}
	if hasRepeat(chain) {
		return invalid(ReasonRepeated)
	}

	dr, dc := chain[1].Row-chain[0].Row, chain[1].Col-chain[0].Col
	for i := 1; i < len(chain); i++ {
		if !adjacent(chain[i-1], chain[i]) {
			return invalid(ReasonNotAdjacent)
		}
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].Row-chain[i-1].Row != dr || chain[i].Col-chain[i-1].Col != dc {
			return invalid(ReasonNotStraight)
		}
	}

	return valid(chain)
}

// ValidateGroup applies the group rules: at least three cells, one color, no
// repeats, and every cell after the first 8-adjacent to some earlier cell.
func ValidateGroup(chain []board.Coord, snap board.Snapshot) Result {
	if len(chain) < board.MinGroup {
		return invalid(ReasonTooShort)
	}
	if r := sameColor(chain, snap); r != ReasonNone {
		return invalid(r)
	}
	if hasRepeat(chain) {
		return invalid(ReasonRepeated)
	}
	for i := 1; i < len(chain); i++ {
		touches := false
		for j := 0; j < i && !touches; j++ {
			touches = adjacent(chain[i], chain[j])
		}
		if !touches {
			return invalid(ReasonDisconnected)
		}
	}
	return valid(chain)
}

// Check dispatches to the ruleset's function.
func Check(rules Ruleset, chain []board.Coord, snap board.Snapshot) Result {
	if rules == RulesGroup {
		return ValidateGroup(chain, snap)
	}
	return Validate(chain, snap)
}

func valid(chain []board.Coord) Result {
	return Result{
		Valid:       true,
		Length:      len(chain),
		Coordinates: append([]board.Coord(nil), chain...),
	}
}

func sameColor(chain []board.Coord, snap board.Snapshot) Reason {
	for _, c := range chain {
		if !snap.InBounds(c) {
			return ReasonOutOfBounds
		}
	}
	want := snap.ColorAt(chain[0])
	for _, c := range chain[1:] {
		if snap.ColorAt(c) != want {
			return ReasonColor
		}
	}
	return ReasonNone
}

func hasRepeat(chain []board.Coord) bool {
	seen := make(map[board.Coord]bool, len(chain))
	for _, c := range chain {
		if seen[c] {
			return true
		}
		seen[c] = true
	}
	return false
}

func adjacent(a, b board.Coord) bool {
	dr, dc := abs(a.Row-b.Row), abs(a.Col-b.Col)
	return dr <= 1 && dc <= 1 && (dr != 0 || dc != 0)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
