package memory

import (
	"context"
	"sync"
	"time"
)

const (
	sessionTTL      = 30 * 24 * time.Hour
	subscriptionTTL = 30 * 24 * time.Hour
	maxSubsPerUser  = 10
)

type item struct {
	val string
	exp time.Time
}

type Client struct {
	mu       sync.RWMutex
	sessions map[string]item
	subs     map[string][]item
}

func New() *Client {
	return &Client{
		sessions: make(map[string]item),
		subs:     make(map[string][]item),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) GetSessionUser(ctx context.Context, token string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.sessions[token]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) SetSessionUser(ctx context.Context, token, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[token] = item{val: userID, exp: time.Now().Add(sessionTTL)}
	return nil
}

func (c *Client) DeleteSession(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, token)
	return nil
}

func (c *Client) AddPushSubscription(ctx context.Context, userID, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.alive(userID)
	kept = append(kept, item{val: subscription, exp: time.Now().Add(subscriptionTTL)})
	if len(kept) > maxSubsPerUser {
		kept = kept[len(kept)-maxSubsPerUser:]
	}
	c.subs[userID] = kept
	return nil
}

func (c *Client) ListPushSubscriptions(ctx context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	alive := c.alive(userID)
	out := make([]string, 0, len(alive))
	for _, it := range alive {
		out = append(out, it.val)
	}
	return out, nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, subscription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kept []item
	for _, it := range c.alive(userID) {
		if it.val != subscription {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		delete(c.subs, userID)
	} else {
		c.subs[userID] = kept
	}
	return nil
}

// alive filters expired entries; callers hold the lock.
func (c *Client) alive(userID string) []item {
	now := time.Now()
	var kept []item
	for _, it := range c.subs[userID] {
		if now.Before(it.exp) {
			kept = append(kept, it)
		}
	}
	return kept
}
