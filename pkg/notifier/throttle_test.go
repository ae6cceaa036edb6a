package notifier_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/notifier"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notifier.Alert
}

func (n *recordingNotifier) Alert(ctx context.Context, alert notifier.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// fakeRedis implements SetNX in memory, mimicking the first-write-wins
// semantics the throttle relies on.
type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = make(map[string]bool)
	}
	if f.keys[key] {
		cmd.SetVal(false)
		return cmd
	}
	f.keys[key] = true
	cmd.SetVal(true)
	return cmd
}

func TestAlertThrottle(t *testing.T) {
	t.Parallel()

	flagged := notifier.Alert{
		Severity: notifier.SeverityWarning,
		Subject:  "possible double charge",
		Message:  "user paid twice within the grace window",
	}

	t.Run("first alert passes", func(t *testing.T) {
		t.Parallel()

		next := &recordingNotifier{}
		th := notifier.NewAlertThrottle(next, &fakeRedis{}, time.Minute, nil)

		require.NoError(t, th.Alert(context.Background(), flagged))
		assert.Equal(t, 1, next.count())
	})

	t.Run("identical alert suppressed within window", func(t *testing.T) {
		t.Parallel()

		next := &recordingNotifier{}
		th := notifier.NewAlertThrottle(next, &fakeRedis{}, time.Minute, nil)

		require.NoError(t, th.Alert(context.Background(), flagged))
		require.NoError(t, th.Alert(context.Background(), flagged))
		require.NoError(t, th.Alert(context.Background(), flagged))
		assert.Equal(t, 1, next.count())
	})

	t.Run("different alerts are independent", func(t *testing.T) {
		t.Parallel()

		next := &recordingNotifier{}
		th := notifier.NewAlertThrottle(next, &fakeRedis{}, time.Minute, nil)

		require.NoError(t, th.Alert(context.Background(), flagged))

		other := flagged
		other.Message = "a different payment reference"
		require.NoError(t, th.Alert(context.Background(), other))
		assert.Equal(t, 2, next.count())
	})

	t.Run("redis failure fails open", func(t *testing.T) {
		t.Parallel()

		next := &recordingNotifier{}
		th := notifier.NewAlertThrottle(next, &fakeRedis{err: errors.New("connection refused")}, time.Minute, nil)

		require.NoError(t, th.Alert(context.Background(), flagged))
		require.NoError(t, th.Alert(context.Background(), flagged))
		assert.Equal(t, 2, next.count())
	})

	t.Run("nil dependencies panic", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { notifier.NewAlertThrottle(nil, &fakeRedis{}, 0, nil) })
		assert.Panics(t, func() { notifier.NewAlertThrottle(&recordingNotifier{}, nil, 0, nil) })
	})
}
