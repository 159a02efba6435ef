package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rocketscienceinc/fourinline-backend/internal/pkg"
)

const memoryWatchBuffer = 256

// MemoryStore is an in-process Store with the same snapshot semantics as the
// Redis implementation. Fields are normalized through JSON on every write so
// readers observe the same loosely typed values either way. It backs the
// protocol unit tests.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]map[string]map[string]any
	watchers map[string][]*memorySubscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]map[string]map[string]any),
		watchers: make(map[string][]*memorySubscription),
	}
}

func (that *MemoryStore) Create(_ context.Context, collection string, fields map[string]any) (string, error) {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return "", err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	id := pkg.NewID()
	if that.data[collection] == nil {
		that.data[collection] = make(map[string]map[string]any)
	}
	that.data[collection][id] = normalized

	that.broadcastLocked(collection, id, normalized, true)

	return id, nil
}

func (that *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	fields, ok := that.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}

	return Document{ID: id, Fields: cloneFields(fields)}, nil
}

func (that *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return that.UpdateIf(ctx, collection, id, fields, nil)
}

func (that *MemoryStore) UpdateIf(_ context.Context, collection, id string, fields map[string]any, cond func(Document) bool) error {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	current, ok := that.data[collection][id]
	if !ok {
		return ErrNotFound
	}

	if cond != nil && !cond(Document{ID: id, Fields: cloneFields(current)}) {
		return ErrConflict
	}

	merged := cloneFields(current)
	for name, value := range normalized {
		merged[name] = value
	}
	that.data[collection][id] = merged

	that.broadcastLocked(collection, id, merged, true)

	return nil
}

func (that *MemoryStore) Delete(_ context.Context, collection, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.data[collection], id)
	that.broadcastLocked(collection, id, nil, false)

	return nil
}

func (that *MemoryStore) Query(_ context.Context, collection string, filter func(Document) bool) ([]Document, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	docs := make([]Document, 0, len(that.data[collection]))
	for id, fields := range that.data[collection] {
		doc := Document{ID: id, Fields: cloneFields(fields)}
		if filter == nil || filter(doc) {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

func (that *MemoryStore) Watch(_ context.Context, collection, id string) (Subscription, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	sub := &memorySubscription{
		store:   that,
		key:     docKey(collection, id),
		updates: make(chan Snapshot, memoryWatchBuffer),
	}
	that.watchers[sub.key] = append(that.watchers[sub.key], sub)

	initial := Snapshot{ID: id, Exists: false}
	if fields, ok := that.data[collection][id]; ok {
		initial = Snapshot{ID: id, Fields: cloneFields(fields), Exists: true}
	}
	sub.updates <- initial

	return sub, nil
}

// broadcastLocked fans a snapshot out to every watcher of the document.
// Callers hold the store lock, so sends must not block: when a watcher's
// buffer is full the oldest buffered snapshot is dropped to make room, so a
// slow consumer always still receives the most recent state.
func (that *MemoryStore) broadcastLocked(collection, id string, fields map[string]any, exists bool) {
	key := docKey(collection, id)
	for _, sub := range that.watchers[key] {
		snapshot := Snapshot{ID: id, Fields: cloneFields(fields), Exists: exists}
		select {
		case sub.updates <- snapshot:
			continue
		default:
		}

		select {
		case <-sub.updates:
		default:
		}
		select {
		case sub.updates <- snapshot:
		default:
		}
	}
}

func (that *MemoryStore) unsubscribeLocked(sub *memorySubscription) {
	watchers := that.watchers[sub.key]
	for i, candidate := range watchers {
		if candidate == sub {
			that.watchers[sub.key] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	close(sub.updates)
}

type memorySubscription struct {
	store   *MemoryStore
	key     string
	updates chan Snapshot
	once    sync.Once
}

func (that *memorySubscription) Updates() <-chan Snapshot {
	return that.updates
}

func (that *memorySubscription) Close() {
	that.once.Do(func() {
		that.store.mu.Lock()
		defer that.store.mu.Unlock()
		that.store.unsubscribeLocked(that)
	})
}

func normalizeFields(fields map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}

	var normalized map[string]any
	if err = json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}

	return normalized, nil
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	clone := make(map[string]any, len(fields))
	for name, value := range fields {
		clone[name] = value
	}
	return clone
}
