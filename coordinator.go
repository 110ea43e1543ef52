package iarc7motion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"go.viam.com/utils"
)

type coordinatorPhase int

const (
	phaseTakeoff coordinatorPhase = iota
	phaseCruise
	phaseLand
	phaseLanded
)

func (p coordinatorPhase) String() string {
	switch p {
	case phaseTakeoff:
		return "TAKEOFF"
	case phaseCruise:
		return "CRUISE"
	case phaseLand:
		return "LAND"
	case phaseLanded:
		return "LANDED"
	}
	return "UNKNOWN"
}

// CoordinatorConfig holds the run loop cadence and the idle-target policy.
type CoordinatorConfig struct {
	// Period is the control cycle cadence.
	Period time.Duration `yaml:"period"`

	// TaskTimeout is how long cruise may go without a fresh velocity target
	// before the coordinator falls back to holding zero velocity. 0 disables
	// the fallback.
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// MotionCoordinator sequences the vehicle through takeoff, cruise, and
// landing, invoking each component once per cycle and handing successful
// commands to the sink. A fatal error from any component halts the loop
// permanently.
type MotionCoordinator struct {
	logger golog.Logger
	clock  clock.Clock
	cfg    CoordinatorConfig

	velocity *QuadVelocityController
	takeoff  *TakeoffController
	land     *LandPlanner
	sink     CommandSink

	mu            sync.Mutex
	phase         coordinatorPhase
	landRequested bool
	lastTargetAt  time.Time
	timeoutSent   bool
}

func NewMotionCoordinator(
	cfg CoordinatorConfig,
	velocity *QuadVelocityController,
	takeoff *TakeoffController,
	land *LandPlanner,
	sink CommandSink,
	c clock.Clock,
	logger golog.Logger,
) *MotionCoordinator {
	return &MotionCoordinator{
		logger:   logger,
		clock:    c,
		cfg:      cfg,
		velocity: velocity,
		takeoff:  takeoff,
		land:     land,
		sink:     sink,
	}
}

// SetTargetVelocity forwards a cruise velocity target. Last write wins; the
// target is read at the start of the next cycle.
func (mc *MotionCoordinator) SetTargetVelocity(target TargetVelocity) {
	mc.velocity.SetTargetVelocity(target)
	mc.velocity.SetTargetYawRate(target.YawRate)
	mc.mu.Lock()
	mc.lastTargetAt = mc.clock.Now()
	mc.timeoutSent = false
	mc.mu.Unlock()
}

// RequestLand asks the coordinator to begin the landing sequence at the next
// cruise cycle.
func (mc *MotionCoordinator) RequestLand() {
	mc.mu.Lock()
	mc.landRequested = true
	mc.mu.Unlock()
}

// Phase returns the current mission phase name, for status reporting.
func (mc *MotionCoordinator) Phase() string {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.phase.String()
}

// Run drives the mission to completion at a fixed cadence. It returns nil
// once landed, the context error on cancellation, or the fatal error that
// aborted the mission. Transient cycle failures are logged and retried.
func (mc *MotionCoordinator) Run(ctx context.Context) error {
	now := mc.clock.Now()
	if err := mc.takeoff.PrepareForTakeover(now); err != nil {
		return err
	}
	if err := mc.takeoff.WaitUntilReady(ctx); err != nil {
		return fmt.Errorf("takeoff preconditions: %w", err)
	}
	mc.mu.Lock()
	mc.lastTargetAt = now
	mc.mu.Unlock()

	for {
		if !utils.SelectContextOrWait(ctx, mc.cfg.Period) {
			return ctx.Err()
		}

		done, err := mc.step(ctx)
		if err != nil {
			if errors.Is(err, ErrUpdateStale) || errors.Is(err, ErrSequenceDone) {
				mc.logger.Errorf("fatal in phase %v: %v", mc.Phase(), err)
				return err
			}
			if errors.Is(err, ErrInsufficientHistory) {
				// Expected while the estimator warms up.
				mc.logger.Debugf("cycle skipped: %v", err)
				continue
			}
			mc.logger.Warnf("cycle failed in phase %v: %v", mc.Phase(), err)
			continue
		}
		if done {
			mc.logger.Infof("mission complete")
			return nil
		}
	}
}

func (mc *MotionCoordinator) step(ctx context.Context) (bool, error) {
	now := mc.clock.Now()

	mc.mu.Lock()
	phase := mc.phase
	mc.mu.Unlock()

	switch phase {
	case phaseTakeoff:
		command, err := mc.takeoff.Update(ctx, now)
		if err != nil {
			return false, err
		}
		if err := mc.sink.PublishCommand(ctx, command); err != nil {
			return false, fmt.Errorf("publishing command: %w", err)
		}
		if mc.takeoff.IsDone() {
			mc.velocity.SetTargetVelocity(TargetVelocity{})
			mc.setPhase(phaseCruise)
		}

	case phaseCruise:
		mc.mu.Lock()
		land := mc.landRequested
		idle := mc.cfg.TaskTimeout > 0 && !mc.timeoutSent &&
			now.Sub(mc.lastTargetAt) > mc.cfg.TaskTimeout
		mc.mu.Unlock()

		if land {
			if err := mc.land.PrepareForTakeover(now); err != nil {
				return false, err
			}
			if err := mc.land.WaitUntilReady(ctx); err != nil {
				return false, fmt.Errorf("landing preconditions: %w", err)
			}
			mc.setPhase(phaseLand)
			return false, nil
		}

		if idle {
			// No one is commanding the vehicle. Hold zero velocity rather
			// than the last requested target.
			mc.logger.Warnf("no velocity target for %v, holding zero velocity", mc.cfg.TaskTimeout)
			mc.velocity.SetTargetVelocity(TargetVelocity{})
			mc.velocity.SetTargetYawRate(0)
			mc.mu.Lock()
			mc.timeoutSent = true
			mc.mu.Unlock()
		}

		command, err := mc.velocity.Update(ctx, now)
		if err != nil {
			return false, err
		}
		if err := mc.sink.PublishCommand(ctx, command); err != nil {
			return false, fmt.Errorf("publishing command: %w", err)
		}

	case phaseLand:
		point, err := mc.land.TargetMotionPoint(ctx, now)
		if err != nil {
			return false, err
		}
		if mc.land.IsDone() {
			mc.setPhase(phaseLanded)
			return true, nil
		}
		mc.velocity.SetTargetVelocity(point.Target)
		mc.velocity.SetTargetYawRate(point.Target.YawRate)

		command, err := mc.velocity.Update(ctx, now)
		if err != nil {
			return false, err
		}
		if err := mc.sink.PublishCommand(ctx, command); err != nil {
			return false, fmt.Errorf("publishing command: %w", err)
		}

	case phaseLanded:
		return true, nil
	}

	return false, nil
}

func (mc *MotionCoordinator) setPhase(next coordinatorPhase) {
	mc.mu.Lock()
	mc.logger.Infof("phase %v -> %v", mc.phase, next)
	mc.phase = next
	mc.mu.Unlock()
}
