package session_test

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/fourinline-backend/internal/apperror"
	"github.com/rocketscienceinc/fourinline-backend/internal/board"
	"github.com/rocketscienceinc/fourinline-backend/internal/bot"
	"github.com/rocketscienceinc/fourinline-backend/internal/docstore"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
	"github.com/rocketscienceinc/fourinline-backend/internal/matchmaking"
	"github.com/rocketscienceinc/fourinline-backend/internal/repository"
	"github.com/rocketscienceinc/fourinline-backend/internal/session"
)

var (
	alice = &entity.Player{ID: "alice-id", Name: "Alice"}
	bob   = &entity.Player{ID: "bob-id", Name: "Bob"}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newLivePair builds both ends of one live match over a shared memory store.
func newLivePair(t *testing.T, unsafeWrites bool) (context.Context, *session.Session, *session.Session) {
	t.Helper()

	ctx := context.Background()
	logger := testLogger()
	repo := repository.NewClosedMatchRepository(logger, docstore.NewMemoryStore())

	opened := entity.NewOpenedMatch(alice, time.Minute)
	opened.OpponentID = bob.ID
	opened.OpponentName = bob.Name
	matchID, err := repo.Create(ctx, opened.Close(time.Minute))
	require.NoError(t, err)

	rules := board.DefaultRules()
	aliceSession := session.NewLive(logger, rules, &matchmaking.Match{
		ClosedMatchID: matchID, You: alice, Opponent: bob, MovesFirst: true,
	}, repo, time.Minute, unsafeWrites)
	bobSession := session.NewLive(logger, rules, &matchmaking.Match{
		ClosedMatchID: matchID, You: bob, Opponent: alice, MovesFirst: false,
	}, repo, time.Minute, unsafeWrites)

	require.NoError(t, aliceSession.Start(ctx))
	require.NoError(t, bobSession.Start(ctx))

	t.Cleanup(func() {
		aliceSession.Close()
		bobSession.Close()
	})

	return ctx, aliceSession, bobSession
}

// waitForPlacements blocks until the session sees the given number of moves.
func waitForPlacements(t *testing.T, s *session.Session, want int) session.State {
	t.Helper()

	var state session.State
	require.Eventually(t, func() bool {
		state = s.State()
		return state.Logs.Placements() >= want
	}, 2*time.Second, 5*time.Millisecond)

	return state
}

func TestLiveSession_MovesFlowBothWays(t *testing.T) {
	ctx, aliceSession, bobSession := newLivePair(t, false)

	// Given: it is the registerer's turn
	require.Equal(t, alice.ID, aliceSession.State().Turn)

	// When: Alice opens in column 3
	state, err := aliceSession.PlaceMove(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, state.Turn)

	// Then: Bob's session converges on the move
	bobState := waitForPlacements(t, bobSession, 1)
	assert.Equal(t, bob.ID, bobState.Turn)
	require.Len(t, bobState.Board[3], 1)
	assert.Equal(t, board.MarkOpponent, bobState.Board[3][0])

	// When: Bob answers in the same column
	_, err = bobSession.PlaceMove(ctx, 3)
	require.NoError(t, err)

	// Then: Alice sees the reply from her side
	aliceState := waitForPlacements(t, aliceSession, 2)
	require.Len(t, aliceState.Board[3], 2)
	assert.Equal(t, board.MarkYou, aliceState.Board[3][0])
	assert.Equal(t, board.MarkOpponent, aliceState.Board[3][1])
	assert.Equal(t, alice.ID, aliceState.Turn)
}

func TestLiveSession_TurnOrderEnforced(t *testing.T) {
	ctx, aliceSession, bobSession := newLivePair(t, false)

	// When: the claimer tries to open
	_, err := bobSession.PlaceMove(ctx, 0)

	// Then: the move is refused
	require.ErrorIs(t, err, apperror.ErrNotYourTurn)

	// When: the registerer moves twice in a row
	_, err = aliceSession.PlaceMove(ctx, 0)
	require.NoError(t, err)
	_, err = aliceSession.PlaceMove(ctx, 1)
	require.ErrorIs(t, err, apperror.ErrNotYourTurn)
}

func TestLiveSession_MoveValidation(t *testing.T) {
	ctx, aliceSession, bobSession := newLivePair(t, false)

	// When: placing outside the board
	_, err := aliceSession.PlaceMove(ctx, 7)
	require.ErrorIs(t, err, apperror.ErrOutOfBounds)
	_, err = aliceSession.PlaceMove(ctx, -1)
	require.ErrorIs(t, err, apperror.ErrOutOfBounds)

	// Given: column 0 filled to the top by alternating play
	rules := board.DefaultRules()
	for i := 0; i < rules.Rows; i++ {
		if i%2 == 0 {
			_, err = aliceSession.PlaceMove(ctx, 0)
		} else {
			waitForPlacements(t, bobSession, i)
			_, err = bobSession.PlaceMove(ctx, 0)
		}
		require.NoError(t, err)
		if i%2 == 1 {
			waitForPlacements(t, aliceSession, i+1)
		}
	}

	// When: dropping into the full column
	waitForPlacements(t, aliceSession, rules.Rows)
	_, err = aliceSession.PlaceMove(ctx, 0)

	// Then: the column is full (column 0 holds alternating discs, no win yet)
	require.ErrorIs(t, err, apperror.ErrColumnFull)
}

func TestLiveSession_WinEndsTheGame(t *testing.T) {
	ctx, aliceSession, bobSession := newLivePair(t, false)

	// Given: Alice builds a vertical line in column 2, Bob dumps elsewhere
	for i := 0; i < 3; i++ {
		_, err := aliceSession.PlaceMove(ctx, 2)
		require.NoError(t, err)
		waitForPlacements(t, bobSession, 2*i+1)
		_, err = bobSession.PlaceMove(ctx, 5+i%2)
		require.NoError(t, err)
		waitForPlacements(t, aliceSession, 2*i+2)
	}

	// When: the fourth disc lands
	state, err := aliceSession.PlaceMove(ctx, 2)
	require.NoError(t, err)

	// Then: Alice won and the session is terminal
	assert.Equal(t, session.StatusFinished, state.Status)
	assert.Equal(t, board.ResultYou, state.Result)
	assert.True(t, state.Logs.Finished())

	// Then: Bob's session converges on the defeat
	var bobState session.State
	require.Eventually(t, func() bool {
		bobState = bobSession.State()
		return bobState.Status == session.StatusFinished
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, board.ResultOpponent, bobState.Result)

	// When: moving after the end
	_, err = bobSession.PlaceMove(ctx, 0)
	require.ErrorIs(t, err, apperror.ErrGameFinished)
}

func TestLiveSession_ResignGivesOpponentTheWin(t *testing.T) {
	ctx, aliceSession, bobSession := newLivePair(t, false)

	// When: the registerer resigns immediately
	state, err := aliceSession.Resign(ctx)
	require.NoError(t, err)
	assert.Equal(t, board.ResultOpponent, state.Result)

	// Then: the other side sees the win
	var bobState session.State
	require.Eventually(t, func() bool {
		bobState = bobSession.State()
		return bobState.Status == session.StatusFinished
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, board.ResultYou, bobState.Result)
}

func TestLiveSession_ResignPersistsPastConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()
	repo := repository.NewClosedMatchRepository(logger, docstore.NewMemoryStore())

	opened := entity.NewOpenedMatch(alice, time.Minute)
	opened.OpponentID = bob.ID
	opened.OpponentName = bob.Name
	matchID, err := repo.Create(ctx, opened.Close(time.Minute))
	require.NoError(t, err)

	rules := board.DefaultRules()
	aliceSession := session.NewLive(logger, rules, &matchmaking.Match{
		ClosedMatchID: matchID, You: alice, Opponent: bob, MovesFirst: true,
	}, repo, time.Minute, false)
	require.NoError(t, aliceSession.Start(ctx))
	t.Cleanup(aliceSession.Close)

	// Given: Bob's session never sees Alice's move and holds a stale version
	bobSession := session.NewLive(logger, rules, &matchmaking.Match{
		ClosedMatchID: matchID, You: bob, Opponent: alice, MovesFirst: false,
	}, repo, time.Minute, false)

	_, err = aliceSession.PlaceMove(ctx, 3)
	require.NoError(t, err)

	// When: Bob resigns against the stale record
	state, err := bobSession.Resign(ctx)

	// Then: the resignation succeeds after re-reading the record
	require.NoError(t, err)
	assert.Equal(t, board.ResultOpponent, state.Result)

	// Then: the terminal entry actually landed in the shared record
	record, err := repo.GetByID(ctx, matchID)
	require.NoError(t, err)
	assert.True(t, record.Logs.Finished())
	assert.Equal(t, entity.ActionResign, record.Logs[0].Action)
	assert.Equal(t, bob.ID, record.Logs[0].PlayerID)
	assert.Equal(t, 1, record.Logs.Placements())
}

func TestLiveSession_OnChangeFires(t *testing.T) {
	ctx, aliceSession, bobSession := newLivePair(t, false)

	updates := make(chan session.State, 8)
	bobSession.SetOnChange(func(state session.State) {
		updates <- state
	})

	_, err := aliceSession.PlaceMove(ctx, 4)
	require.NoError(t, err)

	select {
	case state := <-updates:
		assert.GreaterOrEqual(t, state.Logs.Placements(), 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestSoloSession_BotAnswersEveryMove(t *testing.T) {
	ctx := context.Background()
	rules := board.DefaultRules()
	com := &entity.Player{ID: "com-id", Name: "Com", Com: true}

	selector := bot.NewSelector(rules, rand.New(rand.NewSource(7))) //nolint: gosec // deterministic test
	solo := session.NewSolo(testLogger(), rules, alice, com, selector)

	// When: the human keeps moving while the game runs
	for i := 0; i < 3; i++ {
		state, err := solo.PlaceMove(ctx, i)
		require.NoError(t, err)

		if state.Status == session.StatusFinished {
			return
		}

		// Then: every human move got an automated answer and the turn is back
		assert.Equal(t, 2*(i+1), state.Logs.Placements())
		assert.Equal(t, alice.ID, state.Turn)
	}
}

func TestSoloSession_HumanOpens(t *testing.T) {
	rules := board.DefaultRules()
	com := &entity.Player{ID: "com-id", Name: "Com", Com: true}

	solo := session.NewSolo(testLogger(), rules, alice, com, bot.NewSelector(rules, nil))

	state := solo.State()
	assert.Equal(t, alice.ID, state.Turn)
	assert.Equal(t, session.StatusOngoing, state.Status)
	assert.Empty(t, state.Board[0])
}
