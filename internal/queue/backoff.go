package queue

import "time"

// BackoffPolicy computes retry delays: exponential growth from Base,
// capped at Max.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before attempt number retry (1-based).
func (p BackoffPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := p.Base
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= p.Max {
			return p.Max
		}
	}
	if delay > p.Max {
		return p.Max
	}
	return delay
}
