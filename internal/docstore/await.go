package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rocketscienceinc/fourinline-backend/internal/apperror"
)

// Verdict classifies one snapshot during a wait.
type Verdict int

const (
	Ignore Verdict = iota
	Accept
	Reject
)

// AwaitFirst subscribes to a document and resolves with the first snapshot
// the predicate accepts. A rejected snapshot fails the wait as a deleted
// document, the timeout as a protocol timeout. The subscription is torn down
// on every exit path.
func AwaitFirst[T any](
	ctx context.Context,
	store Store,
	collection, id string,
	timeout time.Duration,
	predicate func(Snapshot) Verdict,
	transform func(Snapshot) (T, error),
) (T, error) {
	var zero T

	sub, err := store.Watch(ctx, collection, id)
	if err != nil {
		return zero, fmt.Errorf("failed to watch document: %w", err)
	}
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("wait canceled: %w", ctx.Err())
		case <-timer.C:
			return zero, apperror.ErrProtocolTimeout
		case snapshot, ok := <-sub.Updates():
			if !ok {
				return zero, apperror.ErrDocumentDeleted
			}

			switch predicate(snapshot) {
			case Ignore:
				continue
			case Reject:
				return zero, apperror.ErrDocumentDeleted
			case Accept:
				return transform(snapshot)
			}
		}
	}
}
