package board

import (
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
)

// counterMark returns the opposing mark.
func counterMark(mark string) string {
	if mark == MarkYou {
		return MarkOpponent
	}
	return MarkYou
}

// LineLengths computes, for every cell, the length of the longest run of the
// candidate player's marks passing through that cell along any of the four
// axes, counting the cell itself. Cells held by the opposing player score
// zero and never extend a run.
//
// Eight directed accumulators are resolved in two passes: an ascending pass
// for the four predecessors already visited in row-major order and a
// descending pass for their mirrors. Combining a direction with its mirror
// and adding one for the cell itself restores the full run.
func LineLengths(rules Rules, extended [][]string, mark string) [][]int {
	other := counterMark(mark)

	// Predecessor offsets per direction; 0..3 resolve ascending, 4..7 mirror
	// them descending.
	offsets := [8][2]int{
		{-1, 0}, {0, -1}, {-1, -1}, {-1, 1},
		{1, 0}, {0, 1}, {1, 1}, {1, -1},
	}

	var acc [8][][]int
	for direction := range acc {
		acc[direction] = newGrid(rules)
	}

	walk := func(row, col, direction int) {
		prevRow := row + offsets[direction][0]
		prevCol := col + offsets[direction][1]
		if prevRow < 0 || prevRow >= rules.Rows || prevCol < 0 || prevCol >= rules.Cols {
			return
		}
		if extended[prevRow][prevCol] != mark {
			return
		}
		acc[direction][row][col] = acc[direction][prevRow][prevCol] + 1
	}

	for row := 0; row < rules.Rows; row++ {
		for col := 0; col < rules.Cols; col++ {
			if extended[row][col] == other {
				continue
			}
			for direction := 0; direction < 4; direction++ {
				walk(row, col, direction)
			}
		}
	}

	for row := rules.Rows - 1; row >= 0; row-- {
		for col := rules.Cols - 1; col >= 0; col-- {
			if extended[row][col] == other {
				continue
			}
			for direction := 4; direction < 8; direction++ {
				walk(row, col, direction)
			}
		}
	}

	lengths := newGrid(rules)
	for row := 0; row < rules.Rows; row++ {
		for col := 0; col < rules.Cols; col++ {
			if extended[row][col] == other {
				continue
			}

			best := 0
			for direction := 0; direction < 4; direction++ {
				if sum := acc[direction][row][col] + acc[direction+4][row][col]; sum > best {
					best = sum
				}
			}
			lengths[row][col] = best + 1
		}
	}

	return lengths
}

func newGrid(rules Rules) [][]int {
	grid := make([][]int, rules.Rows)
	for row := range grid {
		grid[row] = make([]int, rules.Cols)
	}
	return grid
}

// VerdictWon reports the first occupied cell, row-major, whose line length
// reaches the winning length.
func VerdictWon(rules Rules, extended [][]string, lengths [][]int) (int, int, bool) {
	for row := 0; row < rules.Rows; row++ {
		for col := 0; col < rules.Cols; col++ {
			if extended[row][col] != MarkEmpty && lengths[row][col] >= rules.WinLength {
				return row, col, true
			}
		}
	}
	return 0, 0, false
}

// Winner derives the verdict for the viewing player: ResultYou or
// ResultOpponent when a side has a winning line, ResultDraw on a full board,
// ResultNone while the game continues.
func Winner(rules Rules, viewerID string, logs entity.Log) string {
	extended := Extend(rules, FromLog(rules, viewerID, logs))

	if _, _, won := VerdictWon(rules, extended, LineLengths(rules, extended, MarkYou)); won {
		return ResultYou
	}
	if _, _, won := VerdictWon(rules, extended, LineLengths(rules, extended, MarkOpponent)); won {
		return ResultOpponent
	}

	for row := range extended {
		for col := range extended[row] {
			if extended[row][col] == MarkEmpty {
				return ResultNone
			}
		}
	}

	return ResultDraw
}
