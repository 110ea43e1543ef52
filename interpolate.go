package iarc7motion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
)

// Sample is a timestamped measurement of type T.
type Sample[T any] struct {
	Stamp time.Time
	Value T
}

// LerpFunc blends two measurements. fraction is 0 at a and 1 at b.
type LerpFunc[T any] func(a, b T, fraction float64) T

func LerpFloat(a, b, fraction float64) float64 {
	return fraction*(b-a) + a
}

func LerpVector(a, b r3.Vector, fraction float64) r3.Vector {
	return r3.Vector{
		X: LerpFloat(a.X, b.X, fraction),
		Y: LerpFloat(a.Y, b.Y, fraction),
		Z: LerpFloat(a.Z, b.Z, fraction),
	}
}

func LerpOdometry(a, b Odometry, fraction float64) Odometry {
	return Odometry{
		Position: LerpVector(a.Position, b.Position, fraction),
		Linear:   LerpVector(a.Linear, b.Linear, fraction),
	}
}

// Interpolator buffers timestamped samples arriving asynchronously from a
// producer and reconstructs the measurement at a requested time from the two
// samples bracketing it. Interpolate suspends the calling cycle up to a
// bounded wait, never indefinitely.
type Interpolator[T any] struct {
	clock  clock.Clock
	lerp   LerpFunc[T]
	maxGap time.Duration

	mu      sync.Mutex
	samples []Sample[T]
	arrived chan struct{}
}

func NewInterpolator[T any](c clock.Clock, lerp LerpFunc[T], maxGap time.Duration) *Interpolator[T] {
	return &Interpolator[T]{
		clock:   c,
		lerp:    lerp,
		maxGap:  maxGap,
		arrived: make(chan struct{}),
	}
}

// Add appends a sample and wakes any waiting Interpolate call. Samples must
// arrive in timestamp order; a sample not newer than the newest is dropped.
func (in *Interpolator[T]) Add(s Sample[T]) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if n := len(in.samples); n > 0 && !s.Stamp.After(in.samples[n-1].Stamp) {
		return
	}
	in.samples = append(in.samples, s)
	close(in.arrived)
	in.arrived = make(chan struct{})
}

// WaitForSample blocks until a sample stamped at or after t exists, or the
// wait expires.
func (in *Interpolator[T]) WaitForSample(ctx context.Context, t time.Time, maxWait time.Duration) error {
	timer := in.clock.Timer(maxWait)
	defer timer.Stop()
	for {
		in.mu.Lock()
		n := len(in.samples)
		ready := n > 0 && !in.samples[n-1].Stamp.Before(t)
		ch := in.arrived
		in.mu.Unlock()
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("waiting for sample at %v: %w", t, ErrNoSample)
		case <-ch:
		}
	}
}

// Interpolate returns the measurement at t, waiting up to maxWait for a
// bracketing sample at or after t to arrive.
func (in *Interpolator[T]) Interpolate(ctx context.Context, t time.Time, maxWait time.Duration) (T, error) {
	var zero T
	timer := in.clock.Timer(maxWait)
	defer timer.Stop()
	for {
		in.mu.Lock()
		value, ok, err := in.interpolateLocked(t)
		ch := in.arrived
		in.mu.Unlock()
		if ok {
			return value, err
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
			return zero, fmt.Errorf("interpolating at %v: %w", t, ErrNoSample)
		case <-ch:
		}
	}
}

// interpolateLocked attempts the bracket lookup. ok is false when the
// upper bracket has not arrived yet and the caller should keep waiting.
func (in *Interpolator[T]) interpolateLocked(t time.Time) (T, bool, error) {
	var zero T

	n := len(in.samples)
	if n == 0 || in.samples[n-1].Stamp.Before(t) {
		return zero, false, nil
	}
	if in.samples[0].Stamp.After(t) {
		// History starts after the requested time, no lower bracket.
		return zero, true, fmt.Errorf("no sample at or before %v: %w", t, ErrNoSample)
	}

	upper := 0
	for in.samples[upper].Stamp.Before(t) {
		upper++
	}
	if in.samples[upper].Stamp.Equal(t) {
		in.pruneLocked(upper)
		return in.samples[0].Value, true, nil
	}

	first, second := in.samples[upper-1], in.samples[upper]
	if gap := second.Stamp.Sub(first.Stamp); gap > in.maxGap {
		return zero, true, fmt.Errorf("bracket gap %v exceeds %v: %w", gap, in.maxGap, ErrBracketTooWide)
	}

	fraction := float64(t.Sub(first.Stamp)) / float64(second.Stamp.Sub(first.Stamp))
	in.pruneLocked(upper - 1)
	return in.lerp(first.Value, second.Value, fraction), true, nil
}

// pruneLocked drops samples older than index keep. Requests are monotonic in
// time, so anything before the current lower bracket is never needed again.
func (in *Interpolator[T]) pruneLocked(keep int) {
	if keep > 0 {
		in.samples = in.samples[keep:]
	}
}
