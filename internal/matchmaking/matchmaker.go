package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/fourinline-backend/internal/apperror"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
	"github.com/rocketscienceinc/fourinline-backend/internal/repository"
)

// Config bounds one rendezvous. Timeout caps each wait, Prolong extends
// document expiry on every renewal, MaxRetry caps the number of handshake
// attempts before giving up.
type Config struct {
	Timeout  time.Duration
	Prolong  time.Duration
	MaxRetry int
}

// Match is a resolved pairing. MovesFirst is true for the supplying side; the
// registerer always opens the game.
type Match struct {
	ClosedMatchID string
	You           *entity.Player
	Opponent      *entity.Player
	MovesFirst    bool
}

// Matchmaker pairs anonymous players through the two match collections. One
// side supplies an advertisement and waits for a claim, the other demands by
// claiming; the closed match id is exchanged over the advertisement before it
// is deleted.
type Matchmaker struct {
	logger *slog.Logger
	opened repository.OpenedMatchRepository
	closed repository.ClosedMatchRepository
	conf   Config
}

func New(logger *slog.Logger, opened repository.OpenedMatchRepository, closed repository.ClosedMatchRepository, conf Config) *Matchmaker {
	return &Matchmaker{
		logger: logger.With("component", "matchmaker"),
		opened: opened,
		closed: closed,
		conf:   conf,
	}
}

// GetMatch resolves a pairing for the player, retrying failed handshakes up
// to MaxRetry times. Each attempt reads the active advertisements and either
// supplies (renewing the caller's own advertisement when one is out) or
// demands (claims the first open foreign one). A demand whose claim lost the
// race yields no match and no error; the loop simply tries again.
func (that *Matchmaker) GetMatch(ctx context.Context, player *entity.Player) (*Match, error) {
	log := that.logger.With("method", "GetMatch", "player_id", player.ID)

	var lastErr error
	for attempt := 0; attempt < that.conf.MaxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("matchmaking canceled: %w", err)
		}

		match, err := that.attempt(ctx, log, player)
		if err != nil {
			lastErr = err
			log.Info("handshake attempt failed", "attempt", attempt, "error", err)
			continue
		}
		if match == nil {
			continue
		}

		return match, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", apperror.ErrMatchingFailed, that.conf.MaxRetry, lastErr)
	}

	return nil, fmt.Errorf("%w after %d attempts", apperror.ErrMatchingFailed, that.conf.MaxRetry)
}

func (that *Matchmaker) attempt(ctx context.Context, log *slog.Logger, player *entity.Player) (*Match, error) {
	active, err := that.opened.Active(ctx)
	if err != nil {
		return nil, err
	}

	var yours *repository.OpenedMatchDoc
	var open *repository.OpenedMatchDoc
	for i := range active {
		doc := &active[i]
		switch {
		case doc.Match.RegistererID == player.ID:
			if yours == nil {
				yours = doc
			}
		case !doc.Match.IsClaimed():
			if open == nil {
				open = doc
			}
		}
	}

	// Your own advertisement takes priority: stay in the supply role and
	// renew it rather than claiming somebody else's.
	if yours == nil && open != nil {
		return that.demand(ctx, log, player, open)
	}

	return that.supply(ctx, log, player, yours)
}

// supply advertises (or renews an existing advertisement), waits for a claim,
// creates the closed match, publishes its id on the advertisement, waits for
// the opponent's confirmation on the closed match, then deletes the
// advertisement.
func (that *Matchmaker) supply(ctx context.Context, log *slog.Logger, player *entity.Player, yours *repository.OpenedMatchDoc) (*Match, error) {
	var advertID string

	if yours != nil {
		renewed := yours.Match
		renewed.RegistererName = player.Name
		renewed.ExpiresAt = time.Now().Add(that.conf.Prolong)

		if err := that.opened.Refresh(ctx, yours.ID, &renewed); err != nil {
			return nil, err
		}
		advertID = yours.ID
	} else {
		id, err := that.opened.Create(ctx, entity.NewOpenedMatch(player, that.conf.Prolong))
		if err != nil {
			return nil, err
		}
		advertID = id
	}

	claimed, err := that.opened.AwaitOpponent(ctx, advertID, that.conf.Timeout)
	if err != nil {
		return nil, err
	}

	closedID, err := that.closed.Create(ctx, claimed.Close(that.conf.Prolong))
	if err != nil {
		return nil, err
	}

	if err = that.opened.SetClosedMatchID(ctx, advertID, closedID); err != nil {
		return nil, err
	}

	if _, err = that.closed.AwaitOpponent(ctx, closedID, claimed.OpponentID, that.conf.Timeout); err != nil {
		return nil, err
	}

	if err = that.opened.DeleteByID(ctx, advertID); err != nil {
		log.Error("failed to delete advertisement after handshake", "advert_id", advertID, "error", err)
	}

	return &Match{
		ClosedMatchID: closedID,
		You:           player,
		Opponent:      &entity.Player{ID: claimed.OpponentID, Name: claimed.OpponentName},
		MovesFirst:    true,
	}, nil
}

// demand claims a foreign advertisement and waits for the registerer to
// publish the closed match id. The claim can race with another demander; the
// loser detects it on the closed match's opponent binding and backs off
// without an error.
func (that *Matchmaker) demand(ctx context.Context, log *slog.Logger, player *entity.Player, open *repository.OpenedMatchDoc) (*Match, error) {
	if err := that.opened.Claim(ctx, open.ID, player); err != nil {
		return nil, err
	}

	closedID, err := that.opened.AwaitClosedMatchID(ctx, open.ID, that.conf.Timeout)
	if err != nil {
		return nil, err
	}

	closed, err := that.closed.GetByID(ctx, closedID)
	if err != nil {
		return nil, err
	}

	if closed.OpponentID != player.ID {
		log.Info("lost the claim race", "advert_id", open.ID, "closed_match_id", closedID,
			"reason", apperror.ErrOpponentMismatch)
		return nil, nil //nolint: nilnil // a lost race is neither a match nor a failure
	}

	return &Match{
		ClosedMatchID: closedID,
		You:           player,
		Opponent:      &entity.Player{ID: closed.RegistererID, Name: closed.RegistererName},
		MovesFirst:    false,
	}, nil
}
