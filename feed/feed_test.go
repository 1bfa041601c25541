package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSubscribeInvokesOnChangePerEvent(t *testing.T) {
	_, rc := testRedis(t)
	logger, _ := logtest.NewNullLogger()

	var calls atomic.Int32
	unsubscribe := Subscribe(context.Background(), logger, rc, "votes-chan", func() {
		calls.Add(1)
	})
	defer unsubscribe()

	// wait for subscription to start
	time.Sleep(50 * time.Millisecond)
	pub := NewPublisher(rc, "votes-chan", log.New())
	pub.VoteChanged(context.Background())
	pub.VoteChanged(context.Background())

	waitFor(t, time.Second, func() bool { return calls.Load() == 2 })
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	_, rc := testRedis(t)
	logger, _ := logtest.NewNullLogger()

	var calls atomic.Int32
	unsubscribe := Subscribe(context.Background(), logger, rc, "votes-chan", func() {
		calls.Add(1)
	})
	time.Sleep(50 * time.Millisecond)
	unsubscribe()
	// second call must be a no-op
	unsubscribe()

	if err := rc.Publish(context.Background(), "votes-chan", "x").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", calls.Load())
	}
}

func TestSubscribeStopsWhenContextCancelled(t *testing.T) {
	_, rc := testRedis(t)
	logger, _ := logtest.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	unsubscribe := Subscribe(ctx, logger, rc, "votes-chan", func() {})
	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		unsubscribe()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe did not return after context cancel")
	}
}
