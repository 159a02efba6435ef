package board

import (
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
)

// Marks as seen from the viewing player. The board never stores player ids,
// only the viewer-relative classification of each disc.
const (
	MarkYou      = "you"
	MarkOpponent = "opponent"
	MarkEmpty    = ""
)

const (
	ResultYou      = "you"
	ResultOpponent = "opponent"
	ResultDraw     = "draw"
	ResultNone     = ""
)

// Rules fixes the grid geometry and the winning line length.
type Rules struct {
	Rows      int
	Cols      int
	WinLength int
}

func DefaultRules() Rules {
	return Rules{Rows: 6, Cols: 7, WinLength: 4}
}

// Board holds one stack of marks per column, bottom to top. A stack never
// exceeds Rules.Rows entries.
type Board [][]string

func New(rules Rules) Board {
	board := make(Board, rules.Cols)
	for col := range board {
		board[col] = make([]string, 0, rules.Rows)
	}
	return board
}

// Height returns the number of discs stacked in a column.
func (that Board) Height(col int) int {
	return len(that[col])
}

// FromLog replays the log oldest-first and stacks a mark for every placement.
// Malformed placements (missing player, column out of range, full column) are
// skipped silently; non-placement entries carry no column and are skipped too.
func FromLog(rules Rules, viewerID string, logs entity.Log) Board {
	board := New(rules)

	for i := len(logs) - 1; i >= 0; i-- {
		entry := logs[i]
		if entry.Action != entity.ActionPlace {
			continue
		}
		if entry.PlayerID == "" || entry.Column < 0 || entry.Column >= rules.Cols {
			continue
		}
		if len(board[entry.Column]) >= rules.Rows {
			continue
		}

		mark := MarkOpponent
		if entry.PlayerID == viewerID {
			mark = MarkYou
		}
		board[entry.Column] = append(board[entry.Column], mark)
	}

	return board
}

// Extend reshapes the column stacks into a Rows x Cols grid with explicit
// empty cells, indexed [row][col] with row 0 at the bottom.
func Extend(rules Rules, board Board) [][]string {
	extended := make([][]string, rules.Rows)
	for row := range extended {
		extended[row] = make([]string, rules.Cols)
		for col := range extended[row] {
			if row < len(board[col]) {
				extended[row][col] = board[col][row]
			} else {
				extended[row][col] = MarkEmpty
			}
		}
	}
	return extended
}
