package feed

import (
	"time"

	"github.com/alanyoungcy/venuebook/internal/backoff"
)

// DepthThresholds drive the degraded-depth signal. The signal is raised
// when total levels fall below Critical or both sides fall below WeakSide,
// and cleared once total levels reach Recover.
type DepthThresholds struct {
	Critical int
	WeakSide int
	Recover  int
}

// Options holds the manager's timing policy.
type Options struct {
	StaleWindow         time.Duration
	StaleReconnectDelay time.Duration
	GracePeriod         time.Duration
	RetryThreshold      int
	LinearUnit          time.Duration
	LinearCap           time.Duration
	ErrorSignalDelay    time.Duration
	Depth               DepthThresholds
	Backoff             *backoff.Calculator
}

// DefaultOptions returns the standard timing policy.
func DefaultOptions() Options {
	return Options{
		StaleWindow:         30 * time.Second,
		StaleReconnectDelay: time.Second,
		GracePeriod:         5 * time.Second,
		RetryThreshold:      3,
		LinearUnit:          250 * time.Millisecond,
		LinearCap:           time.Second,
		ErrorSignalDelay:    time.Second,
		Depth:               DepthThresholds{Critical: 8, WeakSide: 5, Recover: 12},
		Backoff:             backoff.New(),
	}
}

// retryDelay picks the wait before reconnect number attempt: linear while
// under the retry threshold, exponential with jitter after.
func (o Options) retryDelay(attempt int) time.Duration {
	if attempt < o.RetryThreshold {
		return min(time.Duration(attempt+1)*o.LinearUnit, o.LinearCap)
	}
	return o.Backoff.Next(attempt)
}
