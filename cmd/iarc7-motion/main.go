package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	iarc7motion "github.com/prgumd/iarc7-motion"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	configPath := flag.String("config", "", "path to yaml config, defaults to a demo profile")
	cruiseFor := flag.Duration("cruise", 5*time.Second, "how long to cruise before landing")
	flag.Parse()

	logger := golog.NewDevelopmentLogger("iarc7-motion")

	cfg := demoConfig()
	if *configPath != "" {
		var err error
		cfg, err = iarc7motion.LoadConfig(*configPath)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	wallClock := clock.New()
	poses := iarc7motion.NewPoseBuffer(wallClock)

	velocity := iarc7motion.NewQuadVelocityController(cfg.Velocity, poses, logger)
	vehicle := newSimVehicle(cfg.ThrustModel, logger)
	takeoff := iarc7motion.NewTakeoffController(cfg.Takeoff, cfg.ThrustModel, vehicle, wallClock, logger)
	land := iarc7motion.NewLandPlanner(cfg.Land, poses, vehicle, logger)

	coordinator := iarc7motion.NewMotionCoordinator(
		cfg.Loop, velocity, takeoff, land, vehicle, wallClock, logger)

	stopFeed := vehicle.startFeed(poses, takeoff)
	defer stopFeed()

	go func() {
		time.Sleep(*cruiseFor)
		logger.Info("requesting land")
		coordinator.RequestLand()
	}()

	return coordinator.Run(ctx)
}

// demoConfig is a tuning profile for the simulated vehicle below.
func demoConfig() iarc7motion.Config {
	cfg := iarc7motion.Config{
		Velocity: iarc7motion.VelocityControllerConfig{
			ThrustPid: iarc7motion.PidGains{P: 20, I: 4, D: 1, MaxOutput: 100, IntegralLimit: 5},
			PitchPid:  iarc7motion.PidGains{P: 0.2, I: 0.02, D: 0.01, MaxOutput: 0.5},
			RollPid:   iarc7motion.PidGains{P: 0.2, I: 0.02, D: 0.01, MaxOutput: 0.5},
			YawPid:    iarc7motion.PidGains{P: 0.5, I: 0.05, D: 0, MaxOutput: 1},
		},
		ThrustModel: iarc7motion.ThrustModel{
			ThrustPerThrottle:     0.02,
			ThrustPerThrottleVolt: 0.015,
			MassKg:                2.5,
			MaxThrottle:           100,
		},
		Takeoff: iarc7motion.TakeoffConfig{
			BaseThrottle: 10,
			RampDuration: 3 * time.Second,
		},
		Land: iarc7motion.LandConfig{
			DescendRate:           0.5,
			DescendAcceleration:   0.5,
			CushionRate:           0.15,
			CushionAcceleration:   0.3,
			CushionHeight:         0.6,
			LandingDetectedHeight: 0.1,
			XYHoldGain:            0.5,
		},
	}
	cfg.SetDefaults()
	return cfg
}

const simStep = 20 * time.Millisecond

// simVehicle is a minimal quadrotor stand-in: vertical dynamics driven by
// the commanded throttle, first-order horizontal response to attitude
// commands, and a slowly sagging battery. It plays the roles of the arming
// service, the command sink, and the sensor feed.
type simVehicle struct {
	model  iarc7motion.ThrustModel
	logger golog.Logger

	mu       sync.Mutex
	armed    bool
	command  iarc7motion.OrientationThrottle
	position r3.Vector
	linear   r3.Vector
	voltage  float64
}

func newSimVehicle(model iarc7motion.ThrustModel, logger golog.Logger) *simVehicle {
	return &simVehicle{
		model:   model,
		logger:  logger,
		voltage: 12.6,
	}
}

func (v *simVehicle) Arm(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.armed = true
	v.logger.Info("sim: armed")
	return nil
}

func (v *simVehicle) Disarm(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.armed = false
	v.logger.Info("sim: disarmed")
	return nil
}

func (v *simVehicle) PublishCommand(ctx context.Context, cmd iarc7motion.OrientationThrottle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.command = cmd
	return nil
}

// startFeed integrates the dynamics and publishes pose, battery, and
// odometry samples until the returned stop function is called.
func (v *simVehicle) startFeed(
	poses *iarc7motion.PoseBuffer, takeoff *iarc7motion.TakeoffController,
) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(simStep)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				v.stepAndPublish(now, poses, takeoff)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (v *simVehicle) stepAndPublish(
	now time.Time, poses *iarc7motion.PoseBuffer, takeoff *iarc7motion.TakeoffController,
) {
	v.mu.Lock()

	dt := simStep.Seconds()
	if v.armed {
		thrust := v.command.Throttle * (v.model.ThrustPerThrottle + v.model.ThrustPerThrottleVolt*v.voltage)
		v.linear.Z += (thrust/v.model.MassKg - 9.80665) * dt
		// Attitude commands translate to horizontal acceleration.
		v.linear.X += v.command.Pitch * dt
		v.linear.Y += v.command.Roll * dt
		v.voltage -= 0.001 * dt * v.command.Throttle / 10
	} else {
		v.linear = r3.Vector{}
	}
	v.position = v.position.Add(v.linear.Mul(dt))
	if v.position.Z < 0 {
		v.position.Z = 0
		if v.linear.Z < 0 {
			v.linear.Z = 0
		}
	}

	pose := iarc7motion.PoseStamped{
		Stamp:       now,
		Position:    v.position,
		Orientation: quat.Number{Real: 1},
	}
	voltage := v.voltage
	odom := iarc7motion.Odometry{Position: v.position, Linear: v.linear}
	v.mu.Unlock()

	poses.Add(pose)
	takeoff.AddBatterySample(iarc7motion.Sample[float64]{Stamp: now, Value: voltage})
	takeoff.AddOdometrySample(iarc7motion.Sample[iarc7motion.Odometry]{Stamp: now, Value: odom})
}
