package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rocketscienceinc/fourinline-backend/internal/apperror"
	"github.com/rocketscienceinc/fourinline-backend/internal/docstore"
	"github.com/rocketscienceinc/fourinline-backend/internal/entity"
)

var ErrClosedMatchNotFound = errors.New("closed match not found")

// ClosedMatchDoc pairs a game record with its document id.
type ClosedMatchDoc struct {
	ID    string
	Match entity.ClosedMatch
}

// ClosedMatchRepository stores the authoritative game records. Log writes are
// guarded by a version check unless the caller opts into ForceLogs.
type ClosedMatchRepository interface {
	Create(ctx context.Context, match *entity.ClosedMatch) (string, error)
	GetByID(ctx context.Context, id string) (*entity.ClosedMatch, error)
	UpdateLogs(ctx context.Context, id string, logs entity.Log, expectedVersion int, ttl time.Duration) error
	ForceLogs(ctx context.Context, id string, logs entity.Log, ttl time.Duration) error
	AwaitOpponent(ctx context.Context, id, opponentID string, timeout time.Duration) (*entity.ClosedMatch, error)
	Watch(ctx context.Context, id string) (docstore.Subscription, error)
	ListByExpiry(ctx context.Context) ([]ClosedMatchDoc, error)
}

type closedMatchRepository struct {
	logger *slog.Logger
	store  docstore.Store
}

func NewClosedMatchRepository(logger *slog.Logger, store docstore.Store) ClosedMatchRepository {
	return &closedMatchRepository{
		logger: logger.With("component", "closed_match_repository"),
		store:  store,
	}
}

func (that *closedMatchRepository) Create(ctx context.Context, match *entity.ClosedMatch) (string, error) {
	fields, err := toFields(match)
	if err != nil {
		return "", err
	}

	id, err := that.store.Create(ctx, entity.ColClosed, fields)
	if err != nil {
		return "", fmt.Errorf("failed to create closed match: %w", err)
	}

	return id, nil
}

func (that *closedMatchRepository) GetByID(ctx context.Context, id string) (*entity.ClosedMatch, error) {
	doc, err := that.store.Get(ctx, entity.ColClosed, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrClosedMatchNotFound
		}
		return nil, fmt.Errorf("failed to get closed match: %w", err)
	}

	var match entity.ClosedMatch
	if err = fromFields(doc.Fields, &match); err != nil {
		return nil, err
	}

	return &match, nil
}

// UpdateLogs persists a new log under a compare-and-set on the log version.
// A concurrent writer surfaces as apperror.ErrConflict; expiry is renewed on
// every successful write.
func (that *closedMatchRepository) UpdateLogs(ctx context.Context, id string, logs entity.Log, expectedVersion int, ttl time.Duration) error {
	fields, err := logFields(logs, expectedVersion+1, ttl)
	if err != nil {
		return err
	}

	err = that.store.UpdateIf(ctx, entity.ColClosed, id, fields, func(doc docstore.Document) bool {
		return fieldInt(doc.Fields, "log_version") == expectedVersion
	})
	if err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return apperror.ErrConflict
		}
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrClosedMatchNotFound
		}
		return fmt.Errorf("failed to update logs: %w", err)
	}

	return nil
}

// ForceLogs persists a new log unconditionally, last writer wins.
func (that *closedMatchRepository) ForceLogs(ctx context.Context, id string, logs entity.Log, ttl time.Duration) error {
	fields, err := logFields(logs, len(logs), ttl)
	if err != nil {
		return err
	}

	if err = that.store.Update(ctx, entity.ColClosed, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrClosedMatchNotFound
		}
		return fmt.Errorf("failed to force logs: %w", err)
	}

	return nil
}

func logFields(logs entity.Log, version int, ttl time.Duration) (map[string]any, error) {
	wrapped, err := toFields(struct {
		Logs entity.Log `json:"logs"`
	}{Logs: logs})
	if err != nil {
		return nil, err
	}

	wrapped["log_version"] = version
	wrapped["expires_at"] = time.Now().Add(ttl)

	return wrapped, nil
}

// AwaitOpponent blocks until the record confirms the given opponent. A record
// bound to somebody else is ignored, not rejected; the registerer may still
// be filling in the fields.
func (that *closedMatchRepository) AwaitOpponent(ctx context.Context, id, opponentID string, timeout time.Duration) (*entity.ClosedMatch, error) {
	return docstore.AwaitFirst(ctx, that.store, entity.ColClosed, id, timeout,
		func(snapshot docstore.Snapshot) docstore.Verdict {
			if !snapshot.Exists {
				return docstore.Reject
			}
			if fieldString(snapshot.Fields, "opponent_id") != opponentID {
				return docstore.Ignore
			}
			return docstore.Accept
		},
		func(snapshot docstore.Snapshot) (*entity.ClosedMatch, error) {
			var match entity.ClosedMatch
			if err := fromFields(snapshot.Fields, &match); err != nil {
				return nil, err
			}
			return &match, nil
		},
	)
}

func (that *closedMatchRepository) Watch(ctx context.Context, id string) (docstore.Subscription, error) {
	sub, err := that.store.Watch(ctx, entity.ColClosed, id)
	if err != nil {
		return nil, fmt.Errorf("failed to watch closed match: %w", err)
	}

	return sub, nil
}

// ListByExpiry returns all game records, freshest expiry first. Used for the
// live game list.
func (that *closedMatchRepository) ListByExpiry(ctx context.Context) ([]ClosedMatchDoc, error) {
	docs, err := that.store.Query(ctx, entity.ColClosed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed matches: %w", err)
	}

	matches := make([]ClosedMatchDoc, 0, len(docs))
	for _, doc := range docs {
		var match entity.ClosedMatch
		if err = fromFields(doc.Fields, &match); err != nil {
			that.logger.Error("failed to decode closed match", "id", doc.ID, "error", err)
			continue
		}
		matches = append(matches, ClosedMatchDoc{ID: doc.ID, Match: match})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Match.ExpiresAt.After(matches[j].Match.ExpiresAt)
	})

	return matches, nil
}

// DecodeClosedMatch rebuilds a game record from a watch snapshot.
func DecodeClosedMatch(snapshot docstore.Snapshot) (*entity.ClosedMatch, error) {
	var match entity.ClosedMatch
	if err := fromFields(snapshot.Fields, &match); err != nil {
		return nil, err
	}

	return &match, nil
}
