package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestDeliveryThrottleAllow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	throttle, err := newDeliveryThrottle(
		rdb,
		2,
		func() time.Time { return now },
		sleepWithContext,
	)
	if err != nil {
		t.Fatalf("newDeliveryThrottle() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		allowed, err := throttle.Allow(context.Background(), "push")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	allowed, err := throttle.Allow(context.Background(), "push")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third call in the same second should be rejected")
	}

	now = now.Add(time.Second)
	allowed, err = throttle.Allow(context.Background(), "push")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("new second window should allow call")
	}
}

func TestDeliveryThrottleAllowPerChannel(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	throttle, err := newDeliveryThrottle(
		rdb,
		1,
		func() time.Time { return now },
		sleepWithContext,
	)
	if err != nil {
		t.Fatalf("newDeliveryThrottle() error = %v", err)
	}

	allowed, err := throttle.Allow(context.Background(), "push")
	if err != nil {
		t.Fatalf("Allow(push) error = %v", err)
	}
	if !allowed {
		t.Fatal("push should be allowed on first request")
	}

	allowed, err = throttle.Allow(context.Background(), "in_app")
	if err != nil {
		t.Fatalf("Allow(in_app) error = %v", err)
	}
	if !allowed {
		t.Fatal("in_app should be allowed on first request")
	}

	allowed, err = throttle.Allow(context.Background(), "push")
	if err != nil {
		t.Fatalf("Allow(push) error = %v", err)
	}
	if allowed {
		t.Fatal("push second request should be rejected")
	}
}

func TestDeliveryThrottleWait(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_200, 0)
	sleepCalls := 0
	throttle, err := newDeliveryThrottle(
		rdb,
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			sleepCalls++
			if sleepCalls == 1 {
				now = now.Add(time.Second)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newDeliveryThrottle() error = %v", err)
	}

	allowed, err := throttle.Allow(context.Background(), "push")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("expected first call to be allowed")
	}

	if err := throttle.Wait(context.Background(), "push"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if sleepCalls == 0 {
		t.Fatal("expected Wait() to sleep at least once")
	}
}

func TestDeliveryThrottleWaitContextDeadline(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_300, 0)
	throttle, err := newDeliveryThrottle(
		rdb,
		1,
		func() time.Time { return now },
		sleepWithContext,
	)
	if err != nil {
		t.Fatalf("newDeliveryThrottle() error = %v", err)
	}

	allowed, err := throttle.Allow(context.Background(), "push")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("expected first call to be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = throttle.Wait(ctx, "push")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}
