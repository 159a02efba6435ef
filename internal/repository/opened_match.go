package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/fourinline-backend/internal/docstore"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
)

var ErrOpenedMatchNotFound = errors.New("opened match not found")

// OpenedMatchDoc pairs an advertisement with its document id.
type OpenedMatchDoc struct {
	ID    string
	Match entity.OpenedMatch
}

// OpenedMatchRepository stores rendezvous advertisements and exposes the waits
// the handshake is built from.
type OpenedMatchRepository interface {
	Create(ctx context.Context, match *entity.OpenedMatch) (string, error)
	Refresh(ctx context.Context, id string, match *entity.OpenedMatch) error
	Claim(ctx context.Context, id string, opponent *entity.Player) error
	SetClosedMatchID(ctx context.Context, id, closedMatchID string) error
	DeleteByID(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int, error)
	Active(ctx context.Context) ([]OpenedMatchDoc, error)
	AwaitOpponent(ctx context.Context, id string, timeout time.Duration) (*entity.OpenedMatch, error)
	AwaitClosedMatchID(ctx context.Context, id string, timeout time.Duration) (string, error)
}

type openedMatchRepository struct {
	logger *slog.Logger
	store  docstore.Store
}

func NewOpenedMatchRepository(logger *slog.Logger, store docstore.Store) OpenedMatchRepository {
	return &openedMatchRepository{
		logger: logger.With("component", "opened_match_repository"),
		store:  store,
	}
}

func (that *openedMatchRepository) Create(ctx context.Context, match *entity.OpenedMatch) (string, error) {
	fields, err := toFields(match)
	if err != nil {
		return "", err
	}

	id, err := that.store.Create(ctx, entity.ColOpened, fields)
	if err != nil {
		return "", fmt.Errorf("failed to create opened match: %w", err)
	}

	return id, nil
}

func (that *openedMatchRepository) Refresh(ctx context.Context, id string, match *entity.OpenedMatch) error {
	fields, err := toFields(match)
	if err != nil {
		return err
	}

	if err = that.store.Update(ctx, entity.ColOpened, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrOpenedMatchNotFound
		}
		return fmt.Errorf("failed to refresh opened match: %w", err)
	}

	return nil
}

func (that *openedMatchRepository) Claim(ctx context.Context, id string, opponent *entity.Player) error {
	fields := map[string]any{
		"opponent_id":   opponent.ID,
		"opponent_name": opponent.Name,
	}

	if err := that.store.Update(ctx, entity.ColOpened, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrOpenedMatchNotFound
		}
		return fmt.Errorf("failed to claim opened match: %w", err)
	}

	return nil
}

func (that *openedMatchRepository) SetClosedMatchID(ctx context.Context, id, closedMatchID string) error {
	fields := map[string]any{"closed_match_id": closedMatchID}

	if err := that.store.Update(ctx, entity.ColOpened, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrOpenedMatchNotFound
		}
		return fmt.Errorf("failed to set closed match id: %w", err)
	}

	return nil
}

func (that *openedMatchRepository) DeleteByID(ctx context.Context, id string) error {
	if err := that.store.Delete(ctx, entity.ColOpened, id); err != nil {
		return fmt.Errorf("failed to delete opened match: %w", err)
	}

	return nil
}

// DeleteExpired sweeps advertisements whose expiry has passed. The handshake
// never depends on the sweep; stale documents are filtered out of Active.
func (that *openedMatchRepository) DeleteExpired(ctx context.Context) (int, error) {
	now := time.Now()

	docs, err := that.store.Query(ctx, entity.ColOpened, func(doc docstore.Document) bool {
		return !fieldTime(doc.Fields, "expires_at").After(now)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query expired matches: %w", err)
	}

	deleted := 0
	for _, doc := range docs {
		if err = that.store.Delete(ctx, entity.ColOpened, doc.ID); err != nil {
			that.logger.Error("failed to delete expired match", "id", doc.ID, "error", err)
			continue
		}
		deleted++
	}

	return deleted, nil
}

func (that *openedMatchRepository) Active(ctx context.Context) ([]OpenedMatchDoc, error) {
	now := time.Now()

	docs, err := that.store.Query(ctx, entity.ColOpened, func(doc docstore.Document) bool {
		return fieldTime(doc.Fields, "expires_at").After(now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query active matches: %w", err)
	}

	matches := make([]OpenedMatchDoc, 0, len(docs))
	for _, doc := range docs {
		var match entity.OpenedMatch
		if err = fromFields(doc.Fields, &match); err != nil {
			that.logger.Error("failed to decode opened match", "id", doc.ID, "error", err)
			continue
		}
		matches = append(matches, OpenedMatchDoc{ID: doc.ID, Match: match})
	}

	return matches, nil
}

// AwaitOpponent blocks until some opponent claims the advertisement. Deletion
// of the document fails the wait.
func (that *openedMatchRepository) AwaitOpponent(ctx context.Context, id string, timeout time.Duration) (*entity.OpenedMatch, error) {
	return docstore.AwaitFirst(ctx, that.store, entity.ColOpened, id, timeout,
		func(snapshot docstore.Snapshot) docstore.Verdict {
			if !snapshot.Exists {
				return docstore.Reject
			}
			if fieldString(snapshot.Fields, "opponent_id") == "" {
				return docstore.Ignore
			}
			return docstore.Accept
		},
		func(snapshot docstore.Snapshot) (*entity.OpenedMatch, error) {
			var match entity.OpenedMatch
			if err := fromFields(snapshot.Fields, &match); err != nil {
				return nil, err
			}
			return &match, nil
		},
	)
}

// AwaitClosedMatchID blocks until the registerer publishes the closed match id
// on the claimed advertisement.
func (that *openedMatchRepository) AwaitClosedMatchID(ctx context.Context, id string, timeout time.Duration) (string, error) {
	return docstore.AwaitFirst(ctx, that.store, entity.ColOpened, id, timeout,
		func(snapshot docstore.Snapshot) docstore.Verdict {
			if !snapshot.Exists {
				return docstore.Reject
			}
			if fieldString(snapshot.Fields, "closed_match_id") == "" {
				return docstore.Ignore
			}
			return docstore.Accept
		},
		func(snapshot docstore.Snapshot) (string, error) {
			return fieldString(snapshot.Fields, "closed_match_id"), nil
		},
	)
}
