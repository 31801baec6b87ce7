// Package rtt implements the adaptive round-trip-time estimator used to
// derive the per-packet retransmit deadline (TTL) for a TFTP session.
//
// It is a direct port of the stopwatch/Stopwatch class from tftpgui's
// stopwatch.py and tftp_package/tftp_engine.py: a cheap additive-average
// estimator with bounded history and an expansion step on observed loss.
// It is intentionally not Jacobson/Karels -- it trades precision for
// simplicity and hard bounds on its output.
package rtt

import (
	"errors"
	"time"
)

// ErrNotRunning is returned by WithinTTL when called without a matching
// Start -- the equivalent of the source's STOPWATCH_ERROR.
var ErrNotRunning = errors.New("rtt: estimator not running")

const (
	minSample = 10 * time.Millisecond
	maxSample = 3 * time.Second
	minTTL    = 500 * time.Millisecond
	maxTTL    = 5 * time.Second
	maxAvgRTT = 2 * time.Second
)

// Estimator tracks the average round-trip time for a single session and
// derives the TTL (time-to-live) budget for each outstanding packet.
type Estimator struct {
	sampleCount int
	sum         time.Duration
	avg         time.Duration
	ttl         time.Duration
	startedAt   time.Time
	running     bool

	now func() time.Time
}

// New returns an Estimator with the same initial values as the source:
// one sample of 0.5s already folded in, giving a starting TTL of 1.5s.
func New() *Estimator {
	return &Estimator{
		sampleCount: 1,
		sum:         500 * time.Millisecond,
		avg:         500 * time.Millisecond,
		ttl:         1500 * time.Millisecond,
		now:         time.Now,
	}
}

// Start records the current time and marks the estimator as running,
// i.e. a packet has just been sent and a reply is expected.
func (e *Estimator) Start() {
	e.startedAt = e.now()
	e.running = true
}

// Running reports whether Start has been called without a matching Stop
// or a WithinTTL timeout.
func (e *Estimator) Running() bool {
	return e.running
}

// TTL returns the current time-to-live budget, always within
// [minTTL, maxTTL].
func (e *Estimator) TTL() time.Duration {
	return e.ttl
}

// AvgRTT returns the current average round-trip time, always within
// [minSample, maxAvgRTT].
func (e *Estimator) AvgRTT() time.Duration {
	return e.avg
}

// Stop records a successful round trip. It is a no-op if the estimator
// is not running, matching the source's stop().
func (e *Estimator) Stop() {
	if !e.running {
		return
	}

	sample := e.now().Sub(e.startedAt)
	if sample == 0 {
		// some platform clocks don't have sub-second resolution;
		// assume a plausible middle-of-the-road RTT rather than
		// letting a zero sample skew the average downward.
		sample = 500 * time.Millisecond
	}
	sample = clamp(sample, minSample, maxSample)

	e.sum += sample
	e.sampleCount++
	e.avg = e.sum / time.Duration(e.sampleCount)

	// bound the history so old samples decay rather than accumulate
	// forever.
	if e.sampleCount > 20 {
		e.sum = 5 * e.avg
		e.sampleCount = 5
	}
	if e.avg > maxAvgRTT {
		e.avg = maxAvgRTT
		e.sum = 10 * time.Second
		e.sampleCount = 5
	}

	e.ttl = clamp(3*e.avg, minTTL, maxTTL)
	e.running = false
}

// WithinTTL reports whether the time since Start is still within the
// current TTL budget. It returns ErrNotRunning if Start was never called
// (or the estimator already timed out / stopped).
//
// On a timeout (false, nil) the estimator widens its average RTT to
// tolerate further network delay and clears running, matching the
// source's time_it().
func (e *Estimator) WithinTTL() (bool, error) {
	if !e.running {
		return false, ErrNotRunning
	}

	if e.now().Sub(e.startedAt) <= e.ttl {
		return true, nil
	}

	e.avg += 500 * time.Millisecond
	if e.avg > maxAvgRTT {
		e.avg = maxAvgRTT
	}
	e.sum = 5 * e.avg
	e.sampleCount = 5
	e.ttl = clamp(3*e.avg, minTTL, maxTTL)
	e.running = false

	return false, nil
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
