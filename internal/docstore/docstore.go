package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document changed concurrently")
)

// Document is one stored record: an opaque id plus loosely typed fields, the
// way they come back from JSON.
type Document struct {
	ID     string
	Fields map[string]any
}

// Snapshot is one observed state of a document. Exists is false when the
// document was deleted (or never created).
type Snapshot struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields,omitempty"`
	Exists bool           `json:"exists"`
}

// Subscription delivers snapshots of one document, current state first, then
// every subsequent change. Close releases the underlying resources; the
// updates channel is closed afterwards.
type Subscription interface {
	Updates() <-chan Snapshot
	Close()
}

// Store is a key/value document repository with change notification. No
// transactional guarantee spans documents; UpdateIf is the only conditional
// primitive.
type Store interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	UpdateIf(ctx context.Context, collection, id string, fields map[string]any, cond func(Document) bool) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filter func(Document) bool) ([]Document, error)
	Watch(ctx context.Context, collection, id string) (Subscription, error)
}
