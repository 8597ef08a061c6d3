package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session tokens are written by the auth service and only read here; the TTL
// below is refreshed on subscription writes, not on session reads.
const (
	SessionTTL      = 30 * 24 * 3600
	SubscriptionTTL = 30 * 24 * 3600
	maxSubsPerUser  = 10
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) GetSessionUser(ctx context.Context, token string) (string, error) {
	val, err := c.cli.Get(ctx, "session:"+token).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) SetSessionUser(ctx context.Context, token, userID string) error {
	return c.cli.Set(ctx, "session:"+token, userID, SessionTTL*time.Second).Err()
}

func (c *Client) DeleteSession(ctx context.Context, token string) error {
	return c.cli.Del(ctx, "session:"+token).Err()
}

// AddPushSubscription appends a serialized subscription to the user's list,
// keeping at most maxSubsPerUser entries.
func (c *Client) AddPushSubscription(ctx context.Context, userID, subscription string) error {
	key := "push:subs:" + userID
	pipe := c.cli.Pipeline()
	pipe.RPush(ctx, key, subscription)
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, SubscriptionTTL*time.Second)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) ListPushSubscriptions(ctx context.Context, userID string) ([]string, error) {
	return c.cli.LRange(ctx, "push:subs:"+userID, 0, -1).Result()
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, subscription string) error {
	return c.cli.LRem(ctx, "push:subs:"+userID, 0, subscription).Err()
}

// FlushDB clears the current Redis database (tests and local resets).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
