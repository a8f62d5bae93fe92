package notify

import (
	"context"

	"github.com/redis/go-redis/v9"

	"notecollab/internal/utils"
)

// Notifier relays out-of-band personal notifications over redis pub/sub.
// Every authenticated connection subscribes to its own user channel.
type Notifier struct {
	rdb *redis.Client
	log *utils.Logger
}

func NewNotifier(rdb *redis.Client, log *utils.Logger) *Notifier {
	return &Notifier{rdb: rdb, log: log}
}

func channelFor(userID string) string { return "notify:" + userID }

// Relay subscribes to the user's personal channel and forwards every payload
// to deliver until ctx is cancelled.
func (n *Notifier) Relay(ctx context.Context, userID string, deliver func(payload string)) {
	sub := n.rdb.Subscribe(ctx, channelFor(userID))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			deliver(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

// Publish sends a payload to a user's personal channel.
func (n *Notifier) Publish(ctx context.Context, userID, payload string) error {
	return n.rdb.Publish(ctx, channelFor(userID), payload).Err()
}
