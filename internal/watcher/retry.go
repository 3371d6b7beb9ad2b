package watcher

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy schedules the waits between poll attempts. Attempts that
// scanned cleanly but found nothing wait exactly PollInterval; attempts that
// failed in transport back off exponentially up to TransientMaxInterval, so
// a flapping node is not hammered at full poll rate. Both kinds draw from
// the same MaxAttempts budget.
type RetryPolicy struct {
	MaxAttempts          int
	PollInterval         time.Duration
	TransientMaxInterval time.Duration
}

func (p *RetryPolicy) withDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 120
	}
	if p.PollInterval <= 0 {
		p.PollInterval = time.Second
	}
	if p.TransientMaxInterval <= 0 {
		p.TransientMaxInterval = 10 * p.PollInterval
	}
}

// Counters records how a watch spent its attempt budget, split by cause.
type Counters struct {
	Attempts        int
	EmptyScans      int
	TransientErrors int
}

// schedule is the per-watch state of a RetryPolicy.
type schedule struct {
	policy RetryPolicy
	bo     *backoff.ExponentialBackOff
}

func newSchedule(p RetryPolicy) *schedule {
	p.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.PollInterval
	bo.MaxInterval = p.TransientMaxInterval
	bo.MaxElapsedTime = 0 // the attempt budget is the only ceiling
	bo.Reset()

	return &schedule{policy: p, bo: bo}
}

// nextDelay returns the wait before the next attempt. A clean scan resets
// the transient backoff.
func (s *schedule) nextDelay(transient bool) time.Duration {
	if transient {
		return s.bo.NextBackOff()
	}
	s.bo.Reset()
	return s.policy.PollInterval
}
