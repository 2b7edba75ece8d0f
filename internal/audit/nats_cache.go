package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// natsCache stores link check results in a JetStream KV bucket so repeated
// audits and multiple mirrors share one view of the outside world.
type natsCache struct {
	conn *nats.Conn
	kv   jetstream.KeyValue
}

func newNATSCache(ctx context.Context, natsURL, bucket string) (*natsCache, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "wikimirror external link check cache",
			MaxBytes:    64 * 1024 * 1024,
			History:     1,
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open KV bucket %s: %w", bucket, err)
	}
	return &natsCache{conn: conn, kv: kv}, nil
}

// cacheKey hashes the URL; KV keys reject most URL punctuation.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *natsCache) Get(ctx context.Context, url string) (*cacheEntry, error) {
	kve, err := c.kv.Get(ctx, cacheKey(url))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	var entry cacheEntry
	if err := json.Unmarshal(kve.Value(), &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

func (c *natsCache) Put(ctx context.Context, entry *cacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if _, err := c.kv.Put(ctx, cacheKey(entry.URL), data); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (c *natsCache) Close() error {
	c.conn.Close()
	return nil
}
