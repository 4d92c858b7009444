// Package bus wraps the Redis pub/sub channels and the task-queue stream
// that connect the API surface, the state bridge and the dispatch workers.
// A bus constructed without a reachable Redis runs degraded: publishes are
// silent no-ops and subscriptions are unavailable, but the process keeps
// serving HTTP traffic.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ChannelStateChanged carries version-bump notifications. The payload is
	// ignored; the message itself is the signal.
	ChannelStateChanged = "devswarm:state_changed"
	// ChannelAgentEvents carries pre-built delta frames, forwarded to
	// dashboard clients verbatim.
	ChannelAgentEvents = "devswarm:agent_events"
	// StreamTaskQueue is the durable goal queue consumed by dispatch workers.
	StreamTaskQueue = "devswarm:task_queue"
	// ConsumerGroup is the shared group name for queue workers. At-least-once
	// delivery across worker restarts depends on all workers joining it.
	ConsumerGroup = "ai_engine_workers"
)

// ErrBusUnavailable is returned by operations that need a live connection
// when the bus is degraded.
var ErrBusUnavailable = errors.New("event bus unavailable")

// Goal is one unit of work pulled from the task queue.
type Goal struct {
	// EntryID is the Redis stream entry id, needed to acknowledge the goal.
	EntryID string `json:"-"`

	Goal       string `json:"goal"`
	Priority   int    `json:"priority,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// Client is a thin wrapper over a Redis connection. The zero value and any
// client whose connection attempt failed behave as a degraded bus until
// Reconnect succeeds.
type Client struct {
	url    string
	logger *slog.Logger

	mu  sync.RWMutex
	rdb *redis.Client
}

// Connect parses the URL and verifies the connection with a ping. On any
// failure it returns a degraded client together with the error, so callers
// can log and keep going.
func Connect(ctx context.Context, redisURL string, logger *slog.Logger) (*Client, error) {
	c := &Client{url: redisURL, logger: logger}
	return c, c.Reconnect(ctx)
}

// Reconnect replaces a dead connection using the URL the client was built
// with. A no-op when the bus is already live, so callers can retry it on a
// timer without churn.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.Available() {
		return nil
	}
	if c.url == "" {
		return fmt.Errorf("%w: no redis url configured", ErrBusUnavailable)
	}

	opts, err := redis.ParseURL(c.url)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("pinging redis: %w", err)
	}

	c.mu.Lock()
	c.rdb = rdb
	c.mu.Unlock()
	return nil
}

// client returns the live connection, or nil while degraded.
func (c *Client) client() *redis.Client {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rdb
}

// Available reports whether the bus has a live connection.
func (c *Client) Available() bool {
	return c.client() != nil
}

// Ping checks connection health. Degraded clients report ErrBusUnavailable.
func (c *Client) Ping(ctx context.Context) error {
	rdb := c.client()
	if rdb == nil {
		return ErrBusUnavailable
	}
	return rdb.Ping(ctx).Err()
}

// Close releases the connection. Safe on a degraded client.
func (c *Client) Close() error {
	rdb := c.client()
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}

// PublishStateChanged signals that the state version moved. Best effort on
// a degraded bus: the poll heartbeat covers missed signals.
func (c *Client) PublishStateChanged(ctx context.Context) error {
	rdb := c.client()
	if rdb == nil {
		return nil
	}
	return rdb.Publish(ctx, ChannelStateChanged, "changed").Err()
}

// PublishAgentEvent publishes a pre-serialized frame for verbatim fan-out.
func (c *Client) PublishAgentEvent(ctx context.Context, payload []byte) error {
	rdb := c.client()
	if rdb == nil {
		return nil
	}
	return rdb.Publish(ctx, ChannelAgentEvents, payload).Err()
}

// Subscription exposes the two event channels as Go channels. Close it to
// stop the pump goroutine.
type Subscription struct {
	// StateChanged receives one token per state_changed message. The channel
	// is buffered and coalescing: a slow reader sees at least one token, not
	// necessarily one per publish.
	StateChanged chan struct{}
	// AgentEvents receives raw frame payloads.
	AgentEvents chan []byte

	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// Close tears the subscription down and lets the pump goroutine exit.
func (s *Subscription) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.pubsub == nil {
		return nil
	}
	return s.pubsub.Close()
}

// SubscribeEvents subscribes to both event channels and pumps messages into
// the returned Subscription until it is closed or the context ends.
func (c *Client) SubscribeEvents(ctx context.Context) (*Subscription, error) {
	rdb := c.client()
	if rdb == nil {
		return nil, ErrBusUnavailable
	}

	pubsub := rdb.Subscribe(ctx, ChannelStateChanged, ChannelAgentEvents)
	// Force the subscribe onto the wire so a dead connection fails here
	// instead of silently delivering nothing.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to event channels: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		StateChanged: make(chan struct{}, 1),
		AgentEvents:  make(chan []byte, 64),
		pubsub:       pubsub,
		cancel:       cancel,
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-pumpCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					close(sub.StateChanged)
					close(sub.AgentEvents)
					return
				}
				switch msg.Channel {
				case ChannelStateChanged:
					select {
					case sub.StateChanged <- struct{}{}:
					default:
					}
				case ChannelAgentEvents:
					select {
					case sub.AgentEvents <- []byte(msg.Payload):
					case <-pumpCtx.Done():
						return
					}
				}
			}
		}
	}()

	return sub, nil
}

// EnqueueGoal appends a goal to the task queue stream.
func (c *Client) EnqueueGoal(ctx context.Context, goal Goal) error {
	rdb := c.client()
	if rdb == nil {
		return ErrBusUnavailable
	}

	data, err := json.Marshal(goal)
	if err != nil {
		return fmt.Errorf("marshaling goal: %w", err)
	}
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamTaskQueue,
		Values: map[string]any{"data": data},
	}).Err()
}

// EnsureConsumerGroup creates the worker consumer group, starting from the
// beginning of the stream. An already-existing group is not an error.
func (c *Client) EnsureConsumerGroup(ctx context.Context) error {
	rdb := c.client()
	if rdb == nil {
		return ErrBusUnavailable
	}

	err := rdb.XGroupCreateMkStream(ctx, StreamTaskQueue, ConsumerGroup, "0").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// DequeueGoals blocks up to the given duration reading new entries for one
// consumer. A timeout returns an empty slice, not an error. Entries that
// fail to decode are acknowledged and dropped so they cannot wedge the
// group's pending list.
func (c *Client) DequeueGoals(ctx context.Context, consumer string, block time.Duration, count int64) ([]Goal, error) {
	rdb := c.client()
	if rdb == nil {
		return nil, ErrBusUnavailable
	}

	streams, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: consumer,
		Streams:  []string{StreamTaskQueue, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var goals []Goal
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			raw, ok := entry.Values["data"].(string)
			if !ok {
				c.logger.Warn("Dropping malformed queue entry", "entry_id", entry.ID)
				_ = c.AckGoal(ctx, entry.ID)
				continue
			}
			var g Goal
			if err := json.Unmarshal([]byte(raw), &g); err != nil {
				c.logger.Warn("Dropping undecodable queue entry", "entry_id", entry.ID, "error", err)
				_ = c.AckGoal(ctx, entry.ID)
				continue
			}
			g.EntryID = entry.ID
			goals = append(goals, g)
		}
	}
	return goals, nil
}

// AckGoal marks a stream entry as processed for the consumer group.
func (c *Client) AckGoal(ctx context.Context, entryID string) error {
	rdb := c.client()
	if rdb == nil {
		return ErrBusUnavailable
	}
	return rdb.XAck(ctx, StreamTaskQueue, ConsumerGroup, entryID).Err()
}
