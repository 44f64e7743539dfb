// README: FCM push delivery to every device token registered for a user.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"ridepool/internal/logging"
	"ridepool/internal/types"
)

// fcmBatchLimit is the most tokens FCM accepts in one multicast request.
const fcmBatchLimit = 500

// Multicaster is the subset of *messaging.Client used for delivery.
type Multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type TokenStore interface {
	DeviceTokens(ctx context.Context, uid types.ID) ([]string, error)
	RemoveDeviceToken(ctx context.Context, uid types.ID, token string) error
}

type PushSender struct {
	client Multicaster
	tokens TokenStore
}

func NewPushSender(client Multicaster, tokens TokenStore) *PushSender {
	return &PushSender{client: client, tokens: tokens}
}

// Send pushes n to all of uid's devices. Tokens FCM reports as unregistered
// are dropped from the profile. It fails only when no device received it.
func (p *PushSender) Send(ctx context.Context, uid types.ID, n Notification) error {
	tokens, err := p.tokens.DeviceTokens(ctx, uid)
	if err != nil {
		return fmt.Errorf("load device tokens for %s: %w", uid, err)
	}
	if len(tokens) == 0 {
		return ErrNoDevices
	}

	var delivered, failed int
	var lastErr error
	for start := 0; start < len(tokens); start += fcmBatchLimit {
		end := min(start+fcmBatchLimit, len(tokens))
		batch := tokens[start:end]
		resp, err := p.client.SendEachForMulticast(ctx, message(batch, n))
		if err != nil {
			failed += len(batch)
			lastErr = err
			continue
		}
		delivered += resp.SuccessCount
		failed += resp.FailureCount
		for i, r := range resp.Responses {
			if r.Success || r.Error == nil {
				continue
			}
			lastErr = r.Error
			if messaging.IsUnregistered(r.Error) {
				if err := p.tokens.RemoveDeviceToken(ctx, uid, batch[i]); err != nil {
					logging.Ctx(ctx).Warn().Err(err).Str("uid", string(uid)).Msg("failed to drop stale device token")
				}
			}
		}
	}

	logging.Ctx(ctx).Debug().
		Str("uid", string(uid)).
		Str("kind", string(n.Kind)).
		Int("delivered", delivered).
		Int("failed", failed).
		Msg("push sent")
	if delivered == 0 {
		return fmt.Errorf("push to %s: %d devices failed: %w", uid, failed, lastErr)
	}
	return nil
}

func message(tokens []string, n Notification) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   n.Data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: n.Title,
				Body:  n.Body,
				Icon:  "/logo192.png",
			},
		},
	}
}
