package feed

// depthVerdict is the outcome of a depth-quality check.
type depthVerdict int

const (
	depthHold depthVerdict = iota
	depthDegraded
	depthHealthy
)

// checkDepth applies the hysteresis band. Counts between Critical and
// Recover with at least one healthy side leave the signal as it is.
func (t DepthThresholds) checkDepth(bids, asks int) depthVerdict {
	total := bids + asks
	switch {
	case total < t.Critical || (bids < t.WeakSide && asks < t.WeakSide):
		return depthDegraded
	case total >= t.Recover:
		return depthHealthy
	}
	return depthHold
}
