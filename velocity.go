package iarc7motion

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
)

// Defaults for the velocity estimate's timing bounds and the hover throttle
// feed-forward.
const (
	defaultMaxPoseWait   = time.Second
	defaultMaxPoseGap    = 300 * time.Millisecond
	defaultHoverThrottle = 58.0
)

// VelocityControllerConfig holds the per-axis gain quintuples and the
// estimator's timing bounds. Immutable after construction.
type VelocityControllerConfig struct {
	ThrustPid PidGains `yaml:"thrust_pid"`
	PitchPid  PidGains `yaml:"pitch_pid"`
	RollPid   PidGains `yaml:"roll_pid"`
	YawPid    PidGains `yaml:"yaw_pid"`

	// HoverThrottle is added to the thrust axis output before clamping, for
	// more stable hovering.
	HoverThrottle float64 `yaml:"hover_throttle"`

	// MaxPoseWait bounds how long one cycle may wait for a pose. MaxPoseGap
	// bounds the elapsed time between the two poses a velocity is derived
	// from.
	MaxPoseWait time.Duration `yaml:"max_pose_wait"`
	MaxPoseGap  time.Duration `yaml:"max_pose_gap"`
}

func (cfg *VelocityControllerConfig) setDefaults() {
	if cfg.HoverThrottle == 0 {
		cfg.HoverThrottle = defaultHoverThrottle
	}
	if cfg.MaxPoseWait == 0 {
		cfg.MaxPoseWait = defaultMaxPoseWait
	}
	if cfg.MaxPoseGap == 0 {
		cfg.MaxPoseGap = defaultMaxPoseGap
	}
}

// QuadVelocityController accepts a target velocity and uses 4 PID loops
// (pitch, yaw, roll, thrust) to attempt to hit it. Update is driven by a
// single control cycle; SetTargetVelocity and SetTargetYawRate may be called
// concurrently with it.
type QuadVelocityController struct {
	poses  PoseProvider
	logger golog.Logger

	throttlePid *feedForwardPid
	pitchPid    *feedForwardPid
	rollPid     *feedForwardPid
	yawPid      *feedForwardPid

	maxPoseWait time.Duration
	maxPoseGap  time.Duration

	target    atomic.Pointer[r3.Vector]
	yawTarget atomic.Pointer[float64]

	// Velocity estimator state.
	ranOnce          bool
	lastPose         PoseStamped
	lastYaw          float64
	haveLastVelocity bool
	lastVelocity     VelocityStamped
}

func NewQuadVelocityController(
	cfg VelocityControllerConfig, poses PoseProvider, logger golog.Logger,
) *QuadVelocityController {
	cfg.setDefaults()

	// The hover bias rides on the thrust loop's feed-forward term so the
	// output clamp applies to the sum.
	thrustGains := cfg.ThrustPid
	thrustGains.FeedForward += cfg.HoverThrottle

	c := &QuadVelocityController{
		poses:       poses,
		logger:      logger,
		throttlePid: newFeedForwardPid(thrustGains),
		pitchPid:    newFeedForwardPid(cfg.PitchPid),
		rollPid:     newFeedForwardPid(cfg.RollPid),
		yawPid:      newFeedForwardPid(cfg.YawPid),
		maxPoseWait: cfg.MaxPoseWait,
		maxPoseGap:  cfg.MaxPoseGap,
	}
	c.target.Store(&r3.Vector{})
	zero := 0.0
	c.yawTarget.Store(&zero)
	return c
}

// SetTargetVelocity replaces the linear velocity setpoints. The change takes
// effect on the next cycle, not mid-cycle. The yaw rate setpoint is
// controlled separately, see SetTargetYawRate.
func (c *QuadVelocityController) SetTargetVelocity(target TargetVelocity) {
	linear := target.Linear
	c.target.Store(&linear)
}

// SetTargetYawRate replaces the yaw rate setpoint.
func (c *QuadVelocityController) SetTargetYawRate(rate float64) {
	c.yawTarget.Store(&rate)
}

// LastVelocity returns the most recent valid velocity estimate, if any.
func (c *QuadVelocityController) LastVelocity() (VelocityStamped, bool) {
	return c.lastVelocity, c.haveLastVelocity
}

// Update runs one control cycle at the given time and returns the command to
// send to the flight controller. The first call after construction always
// fails with ErrInsufficientHistory.
func (c *QuadVelocityController) Update(ctx context.Context, now time.Time) (OrientationThrottle, error) {
	velocity, elapsed, err := c.velocityAtOrAfter(ctx, now)
	if err != nil {
		return OrientationThrottle{}, err
	}

	linear := *c.target.Load()
	c.pitchPid.SetSetpoint(linear.X)
	c.rollPid.SetSetpoint(linear.Y)
	c.throttlePid.SetSetpoint(linear.Z)
	c.yawPid.SetSetpoint(*c.yawTarget.Load())

	pitch, err := c.pitchPid.Update(velocity.Linear.X, elapsed)
	if err != nil {
		return OrientationThrottle{}, fmt.Errorf("pitch axis: %w", err)
	}
	roll, err := c.rollPid.Update(velocity.Linear.Y, elapsed)
	if err != nil {
		return OrientationThrottle{}, fmt.Errorf("roll axis: %w", err)
	}
	yaw, err := c.yawPid.Update(velocity.YawRate, elapsed)
	if err != nil {
		return OrientationThrottle{}, fmt.Errorf("yaw axis: %w", err)
	}
	throttle, err := c.throttlePid.Update(velocity.Linear.Z, elapsed)
	if err != nil {
		return OrientationThrottle{}, fmt.Errorf("thrust axis: %w", err)
	}

	return OrientationThrottle{
		Stamp:    now,
		Pitch:    pitch,
		Roll:     roll,
		Yaw:      yaw,
		Throttle: throttle,
	}, nil
}

// velocityAtOrAfter derives a velocity by finite differencing the stored
// pose against the next pose stamped at or after t. elapsed is the time
// between the two poses.
func (c *QuadVelocityController) velocityAtOrAfter(
	ctx context.Context, t time.Time,
) (VelocityStamped, time.Duration, error) {
	pose, err := c.poses.PoseAtOrAfter(ctx, t, c.maxPoseWait)
	if err != nil {
		return VelocityStamped{}, 0, fmt.Errorf("waiting for pose: %w", err)
	}

	if !c.ranOnce {
		c.storePose(pose)
		c.ranOnce = true
		return VelocityStamped{}, 0, ErrInsufficientHistory
	}

	elapsed := pose.Stamp.Sub(c.lastPose.Stamp)
	if elapsed <= 0 || elapsed > c.maxPoseGap {
		// A stale or reordered pose would corrupt the derivative. Start
		// over from this pose instead.
		c.logger.Warnf("pose gap %v outside (0, %v], restarting velocity estimation", elapsed, c.maxPoseGap)
		c.storePose(pose)
		return VelocityStamped{}, 0, fmt.Errorf("pose gap %v: %w", elapsed, ErrInsufficientHistory)
	}

	yaw := yawFromQuaternion(pose.Orientation)
	seconds := elapsed.Seconds()
	velocity := VelocityStamped{
		Stamp:   pose.Stamp,
		Linear:  pose.Position.Sub(c.lastPose.Position).Mul(1 / seconds),
		YawRate: wrapAngle(yaw-c.lastYaw) / seconds,
	}

	c.lastPose = pose
	c.lastYaw = yaw
	c.lastVelocity = velocity
	c.haveLastVelocity = true
	return velocity, elapsed, nil
}

func (c *QuadVelocityController) storePose(pose PoseStamped) {
	c.lastPose = pose
	c.lastYaw = yawFromQuaternion(pose.Orientation)
}
