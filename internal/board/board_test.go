package board

import (
	"testing"

	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLog(t *testing.T) {
	rules := DefaultRules()

	t.Run("Replays placements oldest first", func(t *testing.T) {
		// Given: a newest-first log with two placements in the same column
		logs := entity.Log{}
		logs = logs.Prepend(entity.NewStartEntry())
		logs = logs.Prepend(entity.NewPlaceEntry("alice", 3, 0))
		logs = logs.Prepend(entity.NewPlaceEntry("bob", 3, 1))

		// When: building the board from alice's perspective
		board := FromLog(rules, "alice", logs)

		// Then: alice's disc sits below bob's
		require.Equal(t, 2, board.Height(3))
		assert.Equal(t, MarkYou, board[3][0])
		assert.Equal(t, MarkOpponent, board[3][1])
	})

	t.Run("Is idempotent", func(t *testing.T) {
		// Given: a log with a few placements
		logs := entity.Log{}
		logs = logs.Prepend(entity.NewPlaceEntry("alice", 0, 0))
		logs = logs.Prepend(entity.NewPlaceEntry("bob", 1, 0))

		// When: replaying it twice
		first := FromLog(rules, "alice", logs)
		second := FromLog(rules, "alice", logs)

		// Then: both boards are identical
		assert.Equal(t, first, second)
	})

	t.Run("Terminal entries never change the board", func(t *testing.T) {
		// Given: a log and the same log with terminal entries on top
		logs := entity.Log{}
		logs = logs.Prepend(entity.NewPlaceEntry("alice", 2, 0))
		terminal := logs.Prepend(entity.NewDefeatEntry("bob"))
		terminal = terminal.Prepend(entity.NewDrawEntry("alice"))

		// When: replaying both
		plain := FromLog(rules, "alice", logs)
		withTerminal := FromLog(rules, "alice", terminal)

		// Then: the boards match
		assert.Equal(t, plain, withTerminal)
	})

	t.Run("Skips malformed entries", func(t *testing.T) {
		// Given: placements without a player id or with an out-of-range column
		logs := entity.Log{}
		logs = logs.Prepend(entity.NewPlaceEntry("", 1, 0))
		logs = logs.Prepend(entity.NewPlaceEntry("alice", -1, 0))
		logs = logs.Prepend(entity.NewPlaceEntry("alice", rules.Cols, 0))

		// When: building the board
		board := FromLog(rules, "alice", logs)

		// Then: nothing was placed
		for col := 0; col < rules.Cols; col++ {
			assert.Equal(t, 0, board.Height(col))
		}
	})

	t.Run("Rejects placements into a full column", func(t *testing.T) {
		// Given: more placements in one column than the board has rows
		logs := entity.Log{}
		for i := 0; i < rules.Rows+2; i++ {
			logs = logs.Prepend(entity.NewPlaceEntry("alice", 0, i))
		}

		// When: building the board
		board := FromLog(rules, "alice", logs)

		// Then: the stack is capped at the row count
		assert.Equal(t, rules.Rows, board.Height(0))
	})
}

func TestExtend(t *testing.T) {
	rules := DefaultRules()

	// Given: a board with a single disc in column 4
	logs := entity.Log{}.Prepend(entity.NewPlaceEntry("alice", 4, 0))
	board := FromLog(rules, "alice", logs)

	// When: extending it to a grid
	extended := Extend(rules, board)

	// Then: the grid has the right shape, the disc at the bottom row and
	// empties everywhere else
	require.Len(t, extended, rules.Rows)
	for row := range extended {
		require.Len(t, extended[row], rules.Cols)
	}
	assert.Equal(t, MarkYou, extended[0][4])
	assert.Equal(t, MarkEmpty, extended[1][4])
	assert.Equal(t, MarkEmpty, extended[0][3])
}
