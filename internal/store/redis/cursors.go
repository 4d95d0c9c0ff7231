package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultCursorsKey = "barbearia:cursors"

type Options struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Cursors stores replication cursors in a single Redis hash keyed by
// consumer, so they survive restarts and are shared between replicas.
type Cursors struct {
	client goredis.Cmdable
	key    string
}

func NewCursors(client goredis.Cmdable, key string) *Cursors {
	if key == "" {
		key = DefaultCursorsKey
	}
	return &Cursors{client: client, key: key}
}

func (c *Cursors) Ack(ctx context.Context, consumer string, cursor int64) error {
	if err := c.client.HSet(ctx, c.key, consumer, cursor).Err(); err != nil {
		return fmt.Errorf("ack cursor for %s: %w", consumer, err)
	}
	return nil
}

func (c *Cursors) Cursors(ctx context.Context) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load cursors: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for consumer, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cursor for %s: %w", consumer, err)
		}
		out[consumer] = n
	}
	return out, nil
}
