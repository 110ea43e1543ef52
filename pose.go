package iarc7motion

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"
)

// PoseBuffer collects pose observations arriving asynchronously from the
// transport layer and serves them to the control cycle. It implements
// PoseProvider.
type PoseBuffer struct {
	clock clock.Clock

	mu      sync.Mutex
	poses   []PoseStamped
	arrived chan struct{}
}

func NewPoseBuffer(c clock.Clock) *PoseBuffer {
	return &PoseBuffer{
		clock:   c,
		arrived: make(chan struct{}),
	}
}

// Add appends a pose and wakes any waiting PoseAtOrAfter call. Poses must
// arrive in timestamp order; a pose not newer than the newest is dropped.
func (b *PoseBuffer) Add(p PoseStamped) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.poses); n > 0 && !p.Stamp.After(b.poses[n-1].Stamp) {
		return
	}
	b.poses = append(b.poses, p)
	close(b.arrived)
	b.arrived = make(chan struct{})
}

// PoseAtOrAfter returns the earliest pose stamped at or after t, waiting up
// to maxWait for one to arrive.
func (b *PoseBuffer) PoseAtOrAfter(ctx context.Context, t time.Time, maxWait time.Duration) (PoseStamped, error) {
	timer := b.clock.Timer(maxWait)
	defer timer.Stop()
	for {
		b.mu.Lock()
		pose, ok := b.poseAtOrAfterLocked(t)
		ch := b.arrived
		b.mu.Unlock()
		if ok {
			return pose, nil
		}
		select {
		case <-ctx.Done():
			return PoseStamped{}, ctx.Err()
		case <-timer.C:
			return PoseStamped{}, fmt.Errorf("waiting for pose at %v: %w", t, ErrNoSample)
		case <-ch:
		}
	}
}

func (b *PoseBuffer) poseAtOrAfterLocked(t time.Time) (PoseStamped, bool) {
	for i, p := range b.poses {
		if !p.Stamp.Before(t) {
			// Requests are monotonic, older poses are never needed again.
			b.poses = b.poses[i:]
			return p, true
		}
	}
	return PoseStamped{}, false
}

// yawFromQuaternion extracts the yaw angle in radians from an orientation.
func yawFromQuaternion(q quat.Number) float64 {
	return spatialmath.QuatToEulerAngles(q).Yaw
}

// wrapAngle normalizes an angle to (-pi, pi].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
