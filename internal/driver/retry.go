package driver

import "math"

// RetryParams configures the retry decision.
type RetryParams struct {
	// Limited enables the retry budget.
	Limited bool

	// MaxRetries is the budget, consulted only when Limited is true.
	// The bound is inclusive: retries are permitted while the counter is
	// <= MaxRetries, allowing MaxRetries+1 retry invocations in total.
	MaxRetries int
}

// ShouldRetry decides whether a stalled command warrants another actuation
// attempt. It is a pure function of three conjunctive conditions:
//
//  1. A command is outstanding (issuing).
//  2. No progress: the distance to target did not strictly decrease since
//     the previous tick. Equal distance counts as no progress.
//  3. The retry budget allows it: unlimited, or retries <= MaxRetries.
func ShouldRetry(issuing bool, value, previous, target float64, retries int, p RetryParams) bool {
	if !issuing {
		return false
	}
	if math.Abs(value-target) < math.Abs(previous-target) {
		return false
	}
	if p.Limited && retries > p.MaxRetries {
		return false
	}
	return true
}
