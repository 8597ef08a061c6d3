// Package push delivers Web Push notifications (VAPID) to users without a
// live socket. Subscriptions live in the session store.
package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/bookswap/backend/internal/logger"
	"github.com/bookswap/backend/internal/storage"
)

// Subscription mirrors the browser PushSubscription JSON.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Sender sends Web Push notifications. With nil VAPID options (keys not
// configured) Notify is a no-op; subscriptions are still stored.
type Sender struct {
	store storage.Store
	vapid *webpush.Options
}

func NewSender(store storage.Store, publicKey, privateKey, subscriber string) *Sender {
	var opts *webpush.Options
	if publicKey != "" && privateKey != "" {
		opts = &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             30,
		}
	}
	return &Sender{store: store, vapid: opts}
}

// Enabled reports whether VAPID keys are configured.
func (s *Sender) Enabled() bool { return s.vapid != nil }

// Notify sends title/body/data to every subscription of userID. Gone
// endpoints (410/404) are pruned from the store.
func (s *Sender) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if s.vapid == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	list, err := s.store.ListPushSubscriptions(ctx, userID)
	if err != nil {
		logger.Errorf("push: list subscriptions user=%s: %v", userID, err)
		return
	}
	if len(list) == 0 {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"title": title, "body": body, "data": data})
	for _, raw := range list {
		var sub Subscription
		if json.Unmarshal([]byte(raw), &sub) != nil || sub.Endpoint == "" {
			continue
		}
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, s.vapid)
		if err != nil {
			logger.Errorf("push: send %s: %v", truncate(sub.Endpoint, 50), err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			if err := s.store.RemovePushSubscription(ctx, userID, raw); err != nil {
				logger.Errorf("push: prune %s: %v", truncate(sub.Endpoint, 50), err)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
