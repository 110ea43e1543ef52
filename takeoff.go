package iarc7motion

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"go.uber.org/multierr"
)

type takeoffState int

const (
	takeoffStateArm takeoffState = iota
	takeoffStateRamp
	takeoffStatePause
	takeoffStateDone
)

func (s takeoffState) String() string {
	switch s {
	case takeoffStateArm:
		return "ARM"
	case takeoffStateRamp:
		return "RAMP"
	case takeoffStatePause:
		return "PAUSE"
	case takeoffStateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// TakeoffConfig holds the takeoff sequencer's timing and throttle knobs.
// Immutable after construction.
type TakeoffConfig struct {
	// BaseThrottle is where the ramp starts.
	BaseThrottle float64       `yaml:"base_throttle"`
	RampDuration time.Duration `yaml:"ramp_duration"`

	// PauseDelay holds the final ramp throttle before handoff so the vehicle
	// stabilizes.
	PauseDelay time.Duration `yaml:"pause_delay"`

	// StartupTimeout bounds waiting for initial data and for arming.
	// UpdateTimeout bounds both per-cycle data waits and the gap between
	// successful updates; exceeding the latter aborts the sequencer.
	StartupTimeout time.Duration `yaml:"startup_timeout"`
	UpdateTimeout  time.Duration `yaml:"update_timeout"`

	// Max allowed gap between consecutive battery / odometry samples when
	// interpolating.
	BatteryTimeout  time.Duration `yaml:"battery_timeout"`
	OdometryTimeout time.Duration `yaml:"odometry_timeout"`

	// ArmTimeout bounds one arm remote procedure call.
	ArmTimeout time.Duration `yaml:"arm_timeout"`
}

// TakeoffController arms the vehicle, ramps throttle up to the thrust
// model's hover prediction, pauses briefly, then reports done. Phases only
// move forward.
type TakeoffController struct {
	logger golog.Logger
	clock  clock.Clock
	armer  Armer
	model  ThrustModel
	cfg    TakeoffConfig

	battery *Interpolator[float64]
	odom    *Interpolator[Odometry]

	state    takeoffState
	throttle float64

	prepareTime    time.Time
	armTime        time.Time
	lastUpdateTime time.Time
	prepared       bool
	haveUpdated    bool
	aborted        bool
}

func NewTakeoffController(
	cfg TakeoffConfig, model ThrustModel, armer Armer, c clock.Clock, logger golog.Logger,
) *TakeoffController {
	return &TakeoffController{
		logger:  logger,
		clock:   c,
		armer:   armer,
		model:   model,
		cfg:     cfg,
		battery: NewInterpolator[float64](c, LerpFloat, cfg.BatteryTimeout),
		odom:    NewInterpolator[Odometry](c, LerpOdometry, cfg.OdometryTimeout),
	}
}

// AddBatterySample feeds a battery voltage observation from the transport
// layer.
func (tc *TakeoffController) AddBatterySample(s Sample[float64]) {
	tc.battery.Add(s)
}

// AddOdometrySample feeds an odometry observation from the transport layer.
func (tc *TakeoffController) AddOdometrySample(s Sample[Odometry]) {
	tc.odom.Add(s)
}

// PrepareForTakeover records the handoff time the startup timeout is
// measured from. Must be called once, before the first Update.
func (tc *TakeoffController) PrepareForTakeover(now time.Time) error {
	if tc.prepared || tc.state != takeoffStateArm {
		return fmt.Errorf("takeoff prepare called in state %v", tc.state)
	}
	tc.prepared = true
	tc.prepareTime = now
	return nil
}

// WaitUntilReady blocks until fresh battery and odometry data is available,
// bounded by the startup timeout.
func (tc *TakeoffController) WaitUntilReady(ctx context.Context) error {
	if !tc.prepared {
		return fmt.Errorf("takeoff wait called before prepare")
	}
	return multierr.Combine(
		tc.battery.WaitForSample(ctx, tc.prepareTime, tc.cfg.StartupTimeout),
		tc.odom.WaitForSample(ctx, tc.prepareTime, tc.cfg.StartupTimeout),
	)
}

// IsDone reports whether the sequencer reached its terminal state.
func (tc *TakeoffController) IsDone() bool {
	return tc.state == takeoffStateDone
}

// ThrustModel returns the model supplied at construction.
func (tc *TakeoffController) ThrustModel() ThrustModel {
	return tc.model
}

// Update advances the takeoff sequence by one cycle and returns the command
// for this cycle. A failed cycle emits no command; the caller may retry next
// cycle unless the error wraps ErrUpdateStale.
func (tc *TakeoffController) Update(ctx context.Context, now time.Time) (OrientationThrottle, error) {
	if tc.aborted {
		return OrientationThrottle{}, ErrUpdateStale
	}
	if tc.state == takeoffStateDone {
		return OrientationThrottle{}, ErrSequenceDone
	}
	if !tc.prepared {
		return OrientationThrottle{}, fmt.Errorf("takeoff update called before prepare")
	}
	if tc.haveUpdated {
		if stale := now.Sub(tc.lastUpdateTime); stale > tc.cfg.UpdateTimeout {
			tc.aborted = true
			return OrientationThrottle{}, fmt.Errorf("%v since last successful update: %w", stale, ErrUpdateStale)
		}
	}

	switch tc.state {
	case takeoffStateArm:
		if sinceStart := now.Sub(tc.prepareTime); sinceStart > tc.cfg.StartupTimeout {
			tc.aborted = true
			return OrientationThrottle{}, fmt.Errorf("not armed %v after handoff: %w", sinceStart, ErrUpdateStale)
		}
		armCtx, cancel := context.WithTimeout(ctx, tc.cfg.ArmTimeout)
		err := tc.armer.Arm(armCtx)
		cancel()
		if err != nil {
			return OrientationThrottle{}, fmt.Errorf("arm request: %w", err)
		}
		tc.armTime = now
		tc.throttle = tc.cfg.BaseThrottle
		tc.setState(takeoffStateRamp)

	case takeoffStateRamp:
		voltage, err := tc.battery.Interpolate(ctx, now, tc.cfg.UpdateTimeout)
		if err != nil {
			return OrientationThrottle{}, fmt.Errorf("battery voltage: %w", err)
		}
		odom, err := tc.odom.Interpolate(ctx, now, tc.cfg.UpdateTimeout)
		if err != nil {
			return OrientationThrottle{}, fmt.Errorf("odometry: %w", err)
		}

		hover := tc.model.HoverThrottle(voltage)
		ramped := now.Sub(tc.armTime)
		if ramped >= tc.cfg.RampDuration {
			tc.throttle = hover
			tc.setState(takeoffStatePause)
		} else {
			fraction := float64(ramped) / float64(tc.cfg.RampDuration)
			tc.throttle = LerpFloat(tc.cfg.BaseThrottle, hover, fraction)
		}
		tc.logger.Debugf("ramp throttle %.2f of hover %.2f, climb %.2f m/s",
			tc.throttle, hover, odom.Linear.Z)

	case takeoffStatePause:
		if now.Sub(tc.armTime) >= tc.cfg.RampDuration+tc.cfg.PauseDelay {
			tc.setState(takeoffStateDone)
		}
	}

	tc.lastUpdateTime = now
	tc.haveUpdated = true
	return OrientationThrottle{Stamp: now, Throttle: tc.throttle}, nil
}

func (tc *TakeoffController) setState(next takeoffState) {
	tc.logger.Infof("takeoff %v -> %v", tc.state, next)
	tc.state = next
}
