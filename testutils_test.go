package iarc7motion

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"
)

// fakePoseProvider serves a scripted pose sequence.
type fakePoseProvider struct {
	mu    sync.Mutex
	poses []PoseStamped
	err   error
}

func (f *fakePoseProvider) add(p PoseStamped) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poses = append(f.poses, p)
}

func (f *fakePoseProvider) PoseAtOrAfter(ctx context.Context, t time.Time, maxWait time.Duration) (PoseStamped, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return PoseStamped{}, f.err
	}
	for i, p := range f.poses {
		if !p.Stamp.Before(t) {
			f.poses = f.poses[i:]
			return p, nil
		}
	}
	return PoseStamped{}, ErrNoSample
}

type fakeArmer struct {
	mu          sync.Mutex
	armErr      error
	disarmErr   error
	armCalls    int
	disarmCalls int
}

func (f *fakeArmer) Arm(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armCalls++
	return f.armErr
}

func (f *fakeArmer) Disarm(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disarmCalls++
	return f.disarmErr
}

func (f *fakeArmer) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armCalls, f.disarmCalls
}

type fakeSink struct {
	mu       sync.Mutex
	commands []OrientationThrottle
}

func (f *fakeSink) PublishCommand(ctx context.Context, cmd OrientationThrottle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

// yawQuat builds the orientation for a pure yaw rotation.
func yawQuat(yaw float64) quat.Number {
	return quat.Number{Real: math.Cos(yaw / 2), Kmag: math.Sin(yaw / 2)}
}
