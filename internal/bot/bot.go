package bot

import (
	"errors"
	"math/rand"
	"time"

	"github.com/rocketscienceinc/fourinline-backend/internal/board"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
)

var ErrNoAvailableMoves = errors.New("no available moves")

// Selector picks columns for the automated opponent.
type Selector struct {
	rules board.Rules
	rand  *rand.Rand
}

// NewSelector builds a selector; a nil rng falls back to a time-seeded one.
func NewSelector(rules board.Rules, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint: gosec // it's ok
	}
	return &Selector{rules: rules, rand: rng}
}

type cell struct {
	row int
	col int
}

// ChooseColumn picks the column for the automated player's reply: take an
// immediate win, else block the opponent's immediate win, else avoid handing
// the opponent a win on the cell directly above, else anything playable.
// Ties inside a tier are broken uniformly at random.
func (that *Selector) ChooseColumn(logs entity.Log, botID string) (int, error) {
	stacks := board.FromLog(that.rules, botID, logs)
	extended := board.Extend(that.rules, stacks)
	own := board.LineLengths(that.rules, extended, board.MarkYou)
	threat := board.LineLengths(that.rules, extended, board.MarkOpponent)

	playable := make([]cell, 0, that.rules.Cols)
	for col := 0; col < that.rules.Cols; col++ {
		if row := stacks.Height(col); row < that.rules.Rows {
			playable = append(playable, cell{row: row, col: col})
		}
	}
	if len(playable) == 0 {
		return 0, ErrNoAvailableMoves
	}

	var winning, blocking, safe []cell
	for _, candidate := range playable {
		switch {
		case own[candidate.row][candidate.col] >= that.rules.WinLength:
			winning = append(winning, candidate)
		case threat[candidate.row][candidate.col] >= that.rules.WinLength:
			blocking = append(blocking, candidate)
		case candidate.row+1 >= that.rules.Rows || threat[candidate.row+1][candidate.col] < that.rules.WinLength:
			safe = append(safe, candidate)
		}
	}

	for _, tier := range [][]cell{winning, blocking, safe} {
		if len(tier) == 0 {
			continue
		}
		return tier[that.rand.Intn(len(tier))].col, nil
	}

	return playable[that.rand.Intn(len(playable))].col, nil
}
