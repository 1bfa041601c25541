// Package feed carries the live change signal for the vote collection.
// Writers publish a "something changed" event to a redis channel; consumers
// receive no payload discrimination, only the signal.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type changeEvent struct {
	Collection string `json:"collection"`
	Time       int64  `json:"time"`
}

// Publisher announces vote collection changes. It satisfies
// storage.Notifier.
type Publisher struct {
	rc      *redis.Client
	channel string
	logger  *log.Logger
}

// NewPublisher creates a Publisher on the given channel.
func NewPublisher(rc *redis.Client, channel string, logger *log.Logger) *Publisher {
	return &Publisher{rc: rc, channel: channel, logger: logger}
}

// VoteChanged publishes a change event. Publish failures are logged, not
// propagated: the write that triggered the event already succeeded.
func (p *Publisher) VoteChanged(ctx context.Context) {
	payload, err := sonic.Marshal(changeEvent{Collection: "votes", Time: time.Now().UnixMilli()})
	if err != nil {
		p.logger.Errorf("encode change event: %v", err)
		return
	}
	if err := p.rc.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Errorf("publish vote change: %v", err)
	}
}

// Subscribe opens the live feed and invokes onChange once per received
// event, regardless of event type or payload. The returned func tears the
// feed down and blocks until the subscriber goroutine exits; it is safe to
// call more than once.
func Subscribe(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, onChange func()) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			sub := rc.Subscribe(ctx, channel)
			ch := sub.Channel()
		recv:
			for {
				select {
				case <-ctx.Done():
					_ = sub.Close()
					return
				case _, ok := <-ch:
					if !ok {
						break recv
					}
					onChange()
				}
			}
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("pubsub channel closed, reconnecting")
			time.Sleep(time.Second)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
