package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelay(t *testing.T) {
	o := DefaultOptions()
	o.Backoff.Jitter = 0

	assert.Equal(t, 250*time.Millisecond, o.retryDelay(0))
	assert.Equal(t, 500*time.Millisecond, o.retryDelay(1))
	assert.Equal(t, 750*time.Millisecond, o.retryDelay(2))
	assert.Equal(t, 2916*time.Millisecond, o.retryDelay(3))

	o.RetryThreshold = 10
	assert.Equal(t, time.Second, o.retryDelay(6), "linear phase is capped")
}

func TestCheckDepth(t *testing.T) {
	th := DefaultOptions().Depth
	tests := []struct {
		bids, asks int
		want       depthVerdict
	}{
		{0, 0, depthDegraded},
		{4, 3, depthDegraded},
		{7, 0, depthDegraded},
		{4, 4, depthDegraded},
		{5, 3, depthHold},
		{3, 8, depthHold},
		{6, 5, depthHold},
		{6, 6, depthHealthy},
		{12, 0, depthHealthy},
		{4, 20, depthHealthy},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.checkDepth(tt.bids, tt.asks), "%db/%da", tt.bids, tt.asks)
	}
}

func TestLoop_RunsInOrder(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int, 3)
	l.Post(func() {
		got <- 1
		// posting from inside a callback must not block
		l.Post(func() { got <- 3 })
	})
	l.Post(func() { got <- 2 })

	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	for want := 1; want <= 3; want++ {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(time.Second):
			t.Fatalf("callback %d never ran", want)
		}
	}

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestLoop_AfterAndCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	fired := make(chan string, 2)
	cancelled := l.After(10*time.Millisecond, func() { fired <- "cancelled" })
	l.After(20*time.Millisecond, func() { fired <- "kept" })
	cancelled.Cancel()

	select {
	case v := <-fired:
		assert.Equal(t, "kept", v)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	select {
	case v := <-fired:
		t.Fatalf("unexpected callback %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}
