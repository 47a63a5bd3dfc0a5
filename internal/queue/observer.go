package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = time.Second

// Key returns the queue key the proxy pushes writes for bucket onto.
func Key(prefix, bucket string) string {
	return prefix + ":" + bucket
}

// Event is one entry the proxy enqueued.
type Event struct {
	Event     string `json:"event"`
	ObjectKey string `json:"objectKey"`
	Src       string `json:"src,omitempty"`
	// Raw holds the entry as stored when it is not a JSON event.
	Raw string `json:"-"`
}

// Observer reads queue state from the store. Every observation opens its own
// connection and closes it afterwards, so observations survive store restarts.
type Observer struct {
	addr string
}

func NewObserver(addr string) *Observer {
	return &Observer{addr: addr}
}

func (o *Observer) Addr() string {
	return o.addr
}

func (o *Observer) client() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        o.addr,
		DialTimeout: dialTimeout,
		MaxRetries:  -1,
		PoolSize:    1,
	})
}

// Length returns the number of entries queued under key.
func (o *Observer) Length(ctx context.Context, key string) (int64, error) {
	rdb := o.client()
	defer rdb.Close()

	n, err := rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s from %s: %w", key, o.addr, err)
	}
	return n, nil
}

// Events returns the entries queued under key, oldest first.
func (o *Observer) Events(ctx context.Context, key string) ([]Event, error) {
	rdb := o.client()
	defer rdb.Close()

	entries, err := rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entries of %s from %s: %w", key, o.addr, err)
	}

	// the proxy pushes to the head of the list
	events := make([]Event, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		var e Event
		if err := json.Unmarshal([]byte(entries[i]), &e); err != nil || e.Event == "" {
			e = Event{Raw: entries[i]}
		}
		events = append(events, e)
	}
	return events, nil
}

// Ping succeeds once the store accepts commands.
func (o *Observer) Ping(ctx context.Context) error {
	rdb := o.client()
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store at %s not ready: %w", o.addr, err)
	}
	return nil
}
