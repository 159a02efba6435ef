package matchmaking_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/fourinline-backend/internal/apperror"
	"github.com/rocketscienceinc/fourinline-backend/internal/docstore"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
	"github.com/rocketscienceinc/fourinline-backend/internal/matchmaking"
	"github.com/rocketscienceinc/fourinline-backend/internal/repository"
)

func newTestMatchmaker(store docstore.Store, conf matchmaking.Config) (*matchmaking.Matchmaker, repository.OpenedMatchRepository, repository.ClosedMatchRepository) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	opened := repository.NewOpenedMatchRepository(logger, store)
	closed := repository.NewClosedMatchRepository(logger, store)

	return matchmaking.New(logger, opened, closed, conf), opened, closed
}

func TestGetMatch_TwoPlayersRendezvous(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()

	conf := matchmaking.Config{Timeout: 5 * time.Second, Prolong: time.Minute, MaxRetry: 10}
	maker, opened, _ := newTestMatchmaker(store, conf)

	alice := &entity.Player{ID: "alice-id", Name: "Alice"}
	bob := &entity.Player{ID: "bob-id", Name: "Bob"}

	type outcome struct {
		match *matchmaking.Match
		err   error
	}

	// Given: Alice starts searching first and becomes the supplier
	aliceDone := make(chan outcome, 1)
	go func() {
		match, err := maker.GetMatch(ctx, alice)
		aliceDone <- outcome{match, err}
	}()

	// Alice's advertisement must be out before Bob looks
	require.Eventually(t, func() bool {
		docs, err := opened.Active(ctx)
		return err == nil && len(docs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// When: Bob searches and claims it
	bobDone := make(chan outcome, 1)
	go func() {
		match, err := maker.GetMatch(ctx, bob)
		bobDone <- outcome{match, err}
	}()

	var aliceMatch, bobMatch *matchmaking.Match
	for i := 0; i < 2; i++ {
		select {
		case result := <-aliceDone:
			require.NoError(t, result.err)
			aliceMatch = result.match
		case result := <-bobDone:
			require.NoError(t, result.err)
			bobMatch = result.match
		case <-time.After(10 * time.Second):
			t.Fatal("rendezvous did not finish")
		}
	}

	// Then: both sides agree on the same closed match
	require.NotNil(t, aliceMatch)
	require.NotNil(t, bobMatch)
	assert.Equal(t, aliceMatch.ClosedMatchID, bobMatch.ClosedMatchID)

	// Then: the registerer moves first, the claimer second
	assert.True(t, aliceMatch.MovesFirst)
	assert.False(t, bobMatch.MovesFirst)
	assert.Equal(t, "bob-id", aliceMatch.Opponent.ID)
	assert.Equal(t, "alice-id", bobMatch.Opponent.ID)

	// Then: the advertisement is gone
	docs, err := opened.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestGetMatch_NoOpponentTimesOut(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()

	conf := matchmaking.Config{Timeout: 100 * time.Millisecond, Prolong: time.Minute, MaxRetry: 1}
	maker, opened, _ := newTestMatchmaker(store, conf)

	alice := &entity.Player{ID: "alice-id", Name: "Alice"}

	// When: nobody ever claims the advertisement
	_, err := maker.GetMatch(ctx, alice)

	// Then: matchmaking fails on the wait timeout
	require.ErrorIs(t, err, apperror.ErrMatchingFailed)
	require.ErrorIs(t, err, apperror.ErrProtocolTimeout)

	// Then: the advertisement is left behind for a later retry to renew
	docs, err := opened.Active(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alice-id", docs[0].Match.RegistererID)
}

func TestGetMatch_RetryRenewsOwnAdvertisement(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()

	conf := matchmaking.Config{Timeout: 100 * time.Millisecond, Prolong: time.Minute, MaxRetry: 2}
	maker, opened, _ := newTestMatchmaker(store, conf)

	alice := &entity.Player{ID: "alice-id", Name: "Alice"}

	// When: two supply attempts both time out
	_, err := maker.GetMatch(ctx, alice)
	require.ErrorIs(t, err, apperror.ErrMatchingFailed)

	// Then: the second attempt reused the advertisement instead of stacking one
	docs, err := opened.Active(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestGetMatch_LostClaimRaceBacksOff(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()

	conf := matchmaking.Config{Timeout: 300 * time.Millisecond, Prolong: time.Minute, MaxRetry: 1}
	maker, opened, closed := newTestMatchmaker(store, conf)

	alice := &entity.Player{ID: "alice-id", Name: "Alice"}
	bob := &entity.Player{ID: "bob-id", Name: "Bob"}
	mallory := &entity.Player{ID: "mallory-id", Name: "Mallory"}

	// Given: an advertisement already claimed-and-resolved for Mallory
	advert := entity.NewOpenedMatch(alice, time.Minute)
	advert.OpponentID = mallory.ID
	advert.OpponentName = mallory.Name
	_, err := opened.Create(ctx, advert)
	require.NoError(t, err)

	closedID, err := closed.Create(ctx, advert.Close(time.Minute))
	require.NoError(t, err)

	// The advertisement looks claimed, so a fresh advert is needed for Bob to
	// demand against; reuse the same closed match id to simulate the race.
	race := entity.NewOpenedMatch(alice, time.Minute)
	raceID, err := opened.Create(ctx, race)
	require.NoError(t, err)
	require.NoError(t, opened.SetClosedMatchID(ctx, raceID, closedID))

	// When: Bob claims the advert whose closed match is bound to Mallory
	_, err = maker.GetMatch(ctx, bob)

	// Then: the lost race yields no match, and with retries exhausted the
	// matchmaker reports failure without a protocol error underneath
	require.ErrorIs(t, err, apperror.ErrMatchingFailed)
	assert.NotErrorIs(t, err, apperror.ErrProtocolTimeout)
}
