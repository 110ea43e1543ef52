package iarc7motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func testTakeoffConfig() TakeoffConfig {
	return TakeoffConfig{
		BaseThrottle:    10,
		RampDuration:    2 * time.Second,
		PauseDelay:      500 * time.Millisecond,
		StartupTimeout:  5 * time.Second,
		UpdateTimeout:   time.Second,
		BatteryTimeout:  time.Second,
		OdometryTimeout: time.Second,
		ArmTimeout:      time.Second,
	}
}

func testThrustModel() ThrustModel {
	// HoverThrottle(12.0) = 2 * 9.80665 / (0.1 + 0.02*12.0) = 57.69...
	return ThrustModel{
		ThrustPerThrottle:     0.1,
		ThrustPerThrottleVolt: 0.02,
		MassKg:                2,
		MaxThrottle:           100,
	}
}

func newTakeoff(t *testing.T, armer *fakeArmer) (*TakeoffController, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	tc := NewTakeoffController(testTakeoffConfig(), testThrustModel(), armer, clk, golog.NewTestLogger(t))
	return tc, clk
}

// feedSamples covers [now, now+horizon] with battery and odometry samples so
// interpolation during the sequence never has to wait.
func feedSamples(tc *TakeoffController, from time.Time, horizon time.Duration, voltage float64) {
	for offset := time.Duration(0); offset <= horizon; offset += 100 * time.Millisecond {
		stamp := from.Add(offset)
		tc.AddBatterySample(Sample[float64]{Stamp: stamp, Value: voltage})
		tc.AddOdometrySample(Sample[Odometry]{Stamp: stamp})
	}
}

func TestTakeoffSequence(t *testing.T) {
	armer := &fakeArmer{}
	tc, clk := newTakeoff(t, armer)
	ctx := context.Background()

	start := clk.Now()
	feedSamples(tc, start, 10*time.Second, 12.0)

	test.That(t, tc.PrepareForTakeover(start), test.ShouldBeNil)
	test.That(t, tc.WaitUntilReady(ctx), test.ShouldBeNil)

	// ARM -> RAMP on the first cycle, holding the base throttle.
	command, err := tc.Update(ctx, start)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, command.Throttle, test.ShouldAlmostEqual, 10)
	armCalls, _ := armer.counts()
	test.That(t, armCalls, test.ShouldEqual, 1)

	// Throttle increases strictly from baseline to the hover prediction.
	hover := testThrustModel().HoverThrottle(12.0)
	previous := command.Throttle
	step := 200 * time.Millisecond
	for i := 0; i < 10; i++ {
		clk.Add(step)
		command, err = tc.Update(ctx, clk.Now())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, command.Throttle, test.ShouldBeGreaterThan, previous)
		test.That(t, tc.IsDone(), test.ShouldBeFalse)
		previous = command.Throttle
	}
	test.That(t, command.Throttle, test.ShouldAlmostEqual, hover, 1e-9)

	// The pause dwell holds the hover throttle, then DONE.
	clk.Add(250 * time.Millisecond)
	command, err = tc.Update(ctx, clk.Now())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, command.Throttle, test.ShouldAlmostEqual, hover, 1e-9)
	test.That(t, tc.IsDone(), test.ShouldBeFalse)

	clk.Add(300 * time.Millisecond)
	command, err = tc.Update(ctx, clk.Now())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tc.IsDone(), test.ShouldBeTrue)

	// DONE is terminal: another update is a caller error, the state stays
	// DONE, and no second arm request is issued.
	clk.Add(step)
	_, err = tc.Update(ctx, clk.Now())
	test.That(t, errors.Is(err, ErrSequenceDone), test.ShouldBeTrue)
	test.That(t, tc.IsDone(), test.ShouldBeTrue)
	armCalls, _ = armer.counts()
	test.That(t, armCalls, test.ShouldEqual, 1)
}

func TestTakeoffArmFailureRetries(t *testing.T) {
	armer := &fakeArmer{armErr: errors.New("motors unreachable")}
	tc, clk := newTakeoff(t, armer)
	ctx := context.Background()

	start := clk.Now()
	feedSamples(tc, start, 5*time.Second, 12.0)
	test.That(t, tc.PrepareForTakeover(start), test.ShouldBeNil)

	_, err := tc.Update(ctx, start)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrUpdateStale), test.ShouldBeFalse)

	// The failure is transient: once arming works, the sequence proceeds.
	armer.mu.Lock()
	armer.armErr = nil
	armer.mu.Unlock()

	clk.Add(100 * time.Millisecond)
	command, err := tc.Update(ctx, clk.Now())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, command.Throttle, test.ShouldAlmostEqual, 10)
	armCalls, _ := armer.counts()
	test.That(t, armCalls, test.ShouldEqual, 2)
}

func TestTakeoffStartupTimeoutFatal(t *testing.T) {
	armer := &fakeArmer{armErr: errors.New("motors unreachable")}
	tc, clk := newTakeoff(t, armer)
	ctx := context.Background()

	start := clk.Now()
	feedSamples(tc, start, 10*time.Second, 12.0)
	test.That(t, tc.PrepareForTakeover(start), test.ShouldBeNil)

	clk.Add(6 * time.Second)
	_, err := tc.Update(ctx, clk.Now())
	test.That(t, errors.Is(err, ErrUpdateStale), test.ShouldBeTrue)

	// The abort is permanent even if arming would now succeed.
	armer.mu.Lock()
	armer.armErr = nil
	armer.mu.Unlock()
	_, err = tc.Update(ctx, clk.Now())
	test.That(t, errors.Is(err, ErrUpdateStale), test.ShouldBeTrue)
}

func TestTakeoffUpdateStaleFatal(t *testing.T) {
	armer := &fakeArmer{}
	tc, clk := newTakeoff(t, armer)
	ctx := context.Background()

	start := clk.Now()
	feedSamples(tc, start, 10*time.Second, 12.0)
	test.That(t, tc.PrepareForTakeover(start), test.ShouldBeNil)

	_, err := tc.Update(ctx, start)
	test.That(t, err, test.ShouldBeNil)

	// A control loop that stalls past the update timeout must not resume.
	clk.Add(3 * time.Second)
	_, err = tc.Update(ctx, clk.Now())
	test.That(t, errors.Is(err, ErrUpdateStale), test.ShouldBeTrue)
	_, err = tc.Update(ctx, clk.Now())
	test.That(t, errors.Is(err, ErrUpdateStale), test.ShouldBeTrue)
}

func TestTakeoffInterpolationFailureFailsCycle(t *testing.T) {
	armer := &fakeArmer{}
	tc, clk := newTakeoff(t, armer)
	ctx := context.Background()

	start := clk.Now()
	// Battery history starts only after the first ramp cycle's time, so the
	// bracket lookup fails immediately instead of waiting.
	tc.AddBatterySample(Sample[float64]{Stamp: start.Add(200 * time.Millisecond), Value: 12})
	tc.AddBatterySample(Sample[float64]{Stamp: start.Add(10 * time.Second), Value: 12})
	tc.AddOdometrySample(Sample[Odometry]{Stamp: start.Add(200 * time.Millisecond)})
	tc.AddOdometrySample(Sample[Odometry]{Stamp: start.Add(10 * time.Second)})

	test.That(t, tc.PrepareForTakeover(start), test.ShouldBeNil)

	_, err := tc.Update(ctx, start)
	test.That(t, err, test.ShouldBeNil) // ARM cycle needs no interpolation

	clk.Add(100 * time.Millisecond)
	_, err = tc.Update(ctx, clk.Now())
	test.That(t, errors.Is(err, ErrNoSample), test.ShouldBeTrue)
	test.That(t, tc.IsDone(), test.ShouldBeFalse)
}

func TestTakeoffPrepareMisuse(t *testing.T) {
	armer := &fakeArmer{}
	tc, clk := newTakeoff(t, armer)

	test.That(t, tc.WaitUntilReady(context.Background()), test.ShouldNotBeNil)
	test.That(t, tc.PrepareForTakeover(clk.Now()), test.ShouldBeNil)
	test.That(t, tc.PrepareForTakeover(clk.Now()), test.ShouldNotBeNil)
}
