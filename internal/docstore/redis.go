package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/fourinline-backend/internal/pkg"
)

const watchBuffer = 16

// RedisStore keeps each document as a JSON value, tracks collection members
// in a set, and publishes every mutation as a full snapshot on a per-document
// pub/sub channel.
type RedisStore struct {
	logger *slog.Logger
	client *redis.Client
}

func NewRedisStore(logger *slog.Logger, client *redis.Client) *RedisStore {
	return &RedisStore{
		logger: logger.With("component", "docstore"),
		client: client,
	}
}

func docKey(collection, id string) string {
	return collection + ":" + id
}

func channelKey(collection, id string) string {
	return "watch:" + collection + ":" + id
}

func (that *RedisStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := pkg.NewID()

	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	pipe := that.client.TxPipeline()
	pipe.Set(ctx, docKey(collection, id), raw, 0)
	pipe.SAdd(ctx, collection, id)
	if _, err = pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	that.publish(ctx, collection, id, fields, true)

	return id, nil
}

func (that *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := that.client.Get(ctx, docKey(collection, id)).Result()
	if errors.Is(err, redis.Nil) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}

	var fields map[string]any
	if err = json.Unmarshal([]byte(raw), &fields); err != nil {
		return Document{}, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return Document{ID: id, Fields: fields}, nil
}

func (that *RedisStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return that.merge(ctx, collection, id, fields, nil)
}

func (that *RedisStore) UpdateIf(ctx context.Context, collection, id string, fields map[string]any, cond func(Document) bool) error {
	return that.merge(ctx, collection, id, fields, cond)
}

// merge applies a partial field update under an optimistic transaction so a
// concurrent writer cannot be clobbered silently.
func (that *RedisStore) merge(ctx context.Context, collection, id string, fields map[string]any, cond func(Document) bool) error {
	key := docKey(collection, id)
	var merged map[string]any

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get document: %w", err)
		}

		var current map[string]any
		if err = json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("failed to unmarshal document: %w", err)
		}

		if cond != nil && !cond(Document{ID: id, Fields: current}) {
			return ErrConflict
		}

		merged = current
		for name, value := range fields {
			merged[name] = value
		}

		rawMerged, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, rawMerged, 0)
			return nil
		})
		return err
	}

	if err := that.client.Watch(ctx, txn, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update document: %w", err)
	}

	that.publish(ctx, collection, id, merged, true)

	return nil
}

func (that *RedisStore) Delete(ctx context.Context, collection, id string) error {
	pipe := that.client.TxPipeline()
	pipe.Del(ctx, docKey(collection, id))
	pipe.SRem(ctx, collection, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	that.publish(ctx, collection, id, nil, false)

	return nil
}

func (that *RedisStore) Query(ctx context.Context, collection string, filter func(Document) bool) ([]Document, error) {
	ids, err := that.client.SMembers(ctx, collection).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list collection: %w", err)
	}

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, err := that.Get(ctx, collection, id)
		if errors.Is(err, ErrNotFound) {
			// The index may lag behind a delete.
			continue
		}
		if err != nil {
			return nil, err
		}

		if filter == nil || filter(doc) {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

func (that *RedisStore) Watch(ctx context.Context, collection, id string) (Subscription, error) {
	pubsub := that.client.Subscribe(ctx, channelKey(collection, id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	// The current state is read after subscribing so no change can slip
	// between the read and the first delivered message.
	initial := Snapshot{ID: id, Exists: false}
	doc, err := that.Get(ctx, collection, id)
	switch {
	case err == nil:
		initial = Snapshot{ID: id, Fields: doc.Fields, Exists: true}
	case errors.Is(err, ErrNotFound):
	default:
		_ = pubsub.Close()
		return nil, err
	}

	updates := make(chan Snapshot, watchBuffer)

	go func() {
		defer close(updates)

		updates <- initial

		for msg := range pubsub.Channel() {
			var snapshot Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
				that.logger.Error("failed to unmarshal snapshot", "error", err)
				continue
			}

			select {
			case updates <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &redisSubscription{pubsub: pubsub, updates: updates}, nil
}

func (that *RedisStore) publish(ctx context.Context, collection, id string, fields map[string]any, exists bool) {
	raw, err := json.Marshal(Snapshot{ID: id, Fields: fields, Exists: exists})
	if err != nil {
		that.logger.Error("failed to marshal snapshot", "error", err)
		return
	}

	if err = that.client.Publish(ctx, channelKey(collection, id), raw).Err(); err != nil {
		that.logger.Error("failed to publish snapshot", "error", err, "document", docKey(collection, id))
	}
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	updates chan Snapshot
}

func (that *redisSubscription) Updates() <-chan Snapshot {
	return that.updates
}

func (that *redisSubscription) Close() {
	_ = that.pubsub.Close()
}
