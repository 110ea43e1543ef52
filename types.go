package iarc7motion

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// PoseStamped is a single pose observation from the localization stack.
// Immutable once produced.
type PoseStamped struct {
	Stamp       time.Time
	Position    r3.Vector
	Orientation quat.Number
}

// VelocityStamped is a velocity estimate derived from two consecutive poses.
type VelocityStamped struct {
	Stamp   time.Time
	Linear  r3.Vector
	YawRate float64
}

// TargetVelocity is the velocity the controller should try to hit.
type TargetVelocity struct {
	Linear  r3.Vector
	YawRate float64
}

// VelocityCommand is a stamped velocity request, e.g. from the land planner
// to the velocity controller.
type VelocityCommand struct {
	Stamp  time.Time
	Target TargetVelocity
}

// OrientationThrottle is the attitude/throttle command sent to the flight
// controller, one per successful control cycle.
type OrientationThrottle struct {
	Stamp    time.Time
	Pitch    float64
	Roll     float64
	Yaw      float64
	Throttle float64
}

// Odometry is the interpolated position/velocity pair consumed during takeoff.
type Odometry struct {
	Position r3.Vector
	Linear   r3.Vector
}

// PoseProvider hands out pose observations, waiting up to maxWait for one
// stamped at or after t.
type PoseProvider interface {
	PoseAtOrAfter(ctx context.Context, t time.Time, maxWait time.Duration) (PoseStamped, error)
}

// Armer is the remote procedure that physically enables and disables the
// motors.
type Armer interface {
	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
}

// CommandSink receives the assembled command for delivery to the vehicle.
type CommandSink interface {
	PublishCommand(ctx context.Context, cmd OrientationThrottle) error
}
