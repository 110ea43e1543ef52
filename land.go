package iarc7motion

import (
	"context"
	"fmt"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
)

type landState int

const (
	landStateDescend landState = iota
	landStateDone
)

func (s landState) String() string {
	switch s {
	case landStateDescend:
		return "DESCEND"
	case landStateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// LandConfig holds the land planner's descent profile. Rates are positive
// down, in m/s. Immutable after construction.
type LandConfig struct {
	DescendRate         float64 `yaml:"descend_rate"`
	DescendAcceleration float64 `yaml:"descend_acceleration"`

	// Inside the cushion band the gentler cushion rate and acceleration take
	// over to soften the touchdown.
	CushionRate         float64 `yaml:"cushion_rate"`
	CushionAcceleration float64 `yaml:"cushion_acceleration"`
	CushionHeight       float64 `yaml:"cushion_height"`

	// Height below which the vehicle is considered landed.
	LandingDetectedHeight float64 `yaml:"landing_detected_height"`

	// Proportional gain nulling horizontal drift against the position
	// captured at descent start.
	XYHoldGain float64 `yaml:"xy_hold_gain"`

	StartupTimeout time.Duration `yaml:"startup_timeout"`
	UpdateTimeout  time.Duration `yaml:"update_timeout"`
	DisarmTimeout  time.Duration `yaml:"disarm_timeout"`
}

// LandPlanner commands a cushioned descent until the landing height is
// crossed, then requests disarm exactly once and reports done. The pose
// provider owns the waiting, so no clock is needed here.
type LandPlanner struct {
	logger golog.Logger
	armer  Armer
	poses  PoseProvider
	cfg    LandConfig

	state landState

	requestedX float64
	requestedY float64

	actualDescendRate float64

	prepareTime    time.Time
	lastUpdateTime time.Time
	prepared       bool
	haveUpdated    bool
	aborted        bool
}

func NewLandPlanner(
	cfg LandConfig, poses PoseProvider, armer Armer, logger golog.Logger,
) *LandPlanner {
	return &LandPlanner{
		logger: logger,
		armer:  armer,
		poses:  poses,
		cfg:    cfg,
	}
}

// PrepareForTakeover records the handoff time the startup timeout is
// measured from. Must be called once, before WaitUntilReady.
func (lp *LandPlanner) PrepareForTakeover(now time.Time) error {
	if lp.prepared || lp.state != landStateDescend {
		return fmt.Errorf("land prepare called in state %v", lp.state)
	}
	lp.prepared = true
	lp.prepareTime = now
	lp.actualDescendRate = 0
	return nil
}

// WaitUntilReady blocks until a fresh pose is available, bounded by the
// startup timeout, and captures the horizontal position to hold during the
// descent.
func (lp *LandPlanner) WaitUntilReady(ctx context.Context) error {
	if !lp.prepared {
		return fmt.Errorf("land wait called before prepare")
	}
	pose, err := lp.poses.PoseAtOrAfter(ctx, lp.prepareTime, lp.cfg.StartupTimeout)
	if err != nil {
		return fmt.Errorf("waiting for descent start pose: %w", err)
	}
	lp.requestedX = pose.Position.X
	lp.requestedY = pose.Position.Y
	return nil
}

// IsDone reports whether the vehicle has landed and been disarmed.
func (lp *LandPlanner) IsDone() bool {
	return lp.state == landStateDone
}

// TargetMotionPoint produces the velocity to command for this cycle. A
// failed cycle emits no command; the caller may retry next cycle unless the
// error wraps ErrUpdateStale.
func (lp *LandPlanner) TargetMotionPoint(ctx context.Context, now time.Time) (VelocityCommand, error) {
	if lp.aborted {
		return VelocityCommand{}, ErrUpdateStale
	}
	if lp.state == landStateDone {
		return VelocityCommand{}, ErrSequenceDone
	}
	if !lp.prepared {
		return VelocityCommand{}, fmt.Errorf("land update called before prepare")
	}
	if lp.haveUpdated {
		if stale := now.Sub(lp.lastUpdateTime); stale > lp.cfg.UpdateTimeout {
			lp.aborted = true
			return VelocityCommand{}, fmt.Errorf("%v since last successful update: %w", stale, ErrUpdateStale)
		}
	}

	pose, err := lp.poses.PoseAtOrAfter(ctx, now, lp.cfg.UpdateTimeout)
	if err != nil {
		return VelocityCommand{}, fmt.Errorf("waiting for pose: %w", err)
	}
	height := pose.Position.Z

	if height < lp.cfg.LandingDetectedHeight {
		// Only a successful disarm is terminal. A failed request leaves the
		// descent state intact so the next cycle retries, bounded by the
		// update timeout like any other failed cycle.
		disarmCtx, cancel := context.WithTimeout(ctx, lp.cfg.DisarmTimeout)
		err := lp.armer.Disarm(disarmCtx)
		cancel()
		if err != nil {
			return VelocityCommand{}, fmt.Errorf("disarm request: %w", err)
		}
		lp.setState(landStateDone)
		lp.lastUpdateTime = now
		return VelocityCommand{Stamp: now}, nil
	}

	rate, acceleration := lp.cfg.DescendRate, lp.cfg.DescendAcceleration
	if height < lp.cfg.CushionHeight {
		rate, acceleration = lp.cfg.CushionRate, lp.cfg.CushionAcceleration
	}

	var dt float64
	if lp.haveUpdated {
		dt = now.Sub(lp.lastUpdateTime).Seconds()
	}
	lp.actualDescendRate = approach(lp.actualDescendRate, rate, acceleration*dt)

	command := VelocityCommand{
		Stamp: now,
		Target: TargetVelocity{
			Linear: r3.Vector{
				X: lp.cfg.XYHoldGain * (lp.requestedX - pose.Position.X),
				Y: lp.cfg.XYHoldGain * (lp.requestedY - pose.Position.Y),
				Z: -lp.actualDescendRate,
			},
		},
	}

	lp.lastUpdateTime = now
	lp.haveUpdated = true
	return command, nil
}

func (lp *LandPlanner) setState(next landState) {
	lp.logger.Infof("land %v -> %v", lp.state, next)
	lp.state = next
}

// approach moves current toward target by at most step.
func approach(current, target, step float64) float64 {
	if current < target {
		current += step
		if current > target {
			current = target
		}
	} else if current > target {
		current -= step
		if current < target {
			current = target
		}
	}
	return current
}
