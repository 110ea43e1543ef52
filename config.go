package iarc7motion

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the motion stack. Loaded once
// at startup; the per-component sections are handed to constructors and are
// immutable from then on.
type Config struct {
	Loop        CoordinatorConfig        `yaml:"loop"`
	Velocity    VelocityControllerConfig `yaml:"velocity"`
	ThrustModel ThrustModel              `yaml:"thrust_model"`
	Takeoff     TakeoffConfig            `yaml:"takeoff"`
	Land        LandConfig               `yaml:"land"`
}

// LoadConfig reads and validates a yaml config file, filling defaults for
// anything unset.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults fills anything unset with its default.
func (cfg *Config) SetDefaults() {
	if cfg.Loop.Period == 0 {
		cfg.Loop.Period = 50 * time.Millisecond
	}
	cfg.Velocity.setDefaults()

	if cfg.ThrustModel.MaxThrottle == 0 {
		cfg.ThrustModel.MaxThrottle = 100
	}

	t := &cfg.Takeoff
	if t.RampDuration == 0 {
		t.RampDuration = 3 * time.Second
	}
	if t.PauseDelay == 0 {
		t.PauseDelay = 500 * time.Millisecond
	}
	if t.StartupTimeout == 0 {
		t.StartupTimeout = 10 * time.Second
	}
	if t.UpdateTimeout == 0 {
		t.UpdateTimeout = time.Second
	}
	if t.BatteryTimeout == 0 {
		t.BatteryTimeout = time.Second
	}
	if t.OdometryTimeout == 0 {
		t.OdometryTimeout = time.Second
	}
	if t.ArmTimeout == 0 {
		t.ArmTimeout = 2 * time.Second
	}

	l := &cfg.Land
	if l.StartupTimeout == 0 {
		l.StartupTimeout = 10 * time.Second
	}
	if l.UpdateTimeout == 0 {
		l.UpdateTimeout = time.Second
	}
	if l.DisarmTimeout == 0 {
		l.DisarmTimeout = 2 * time.Second
	}
}

// Validate reports every problem with the configuration at once.
func (cfg *Config) Validate() error {
	var err error

	if cfg.ThrustModel.MassKg <= 0 {
		err = multierr.Append(err, fmt.Errorf("thrust_model.mass_kg must be positive, got %v", cfg.ThrustModel.MassKg))
	}
	if cfg.ThrustModel.ThrustPerThrottle <= 0 {
		err = multierr.Append(err, fmt.Errorf("thrust_model.thrust_per_throttle must be positive, got %v", cfg.ThrustModel.ThrustPerThrottle))
	}

	if cfg.Velocity.MaxPoseGap > cfg.Velocity.MaxPoseWait {
		err = multierr.Append(err, fmt.Errorf("velocity.max_pose_gap %v exceeds velocity.max_pose_wait %v",
			cfg.Velocity.MaxPoseGap, cfg.Velocity.MaxPoseWait))
	}

	if cfg.Takeoff.BaseThrottle < 0 {
		err = multierr.Append(err, fmt.Errorf("takeoff.base_throttle must not be negative, got %v", cfg.Takeoff.BaseThrottle))
	}

	l := cfg.Land
	if l.DescendRate <= 0 {
		err = multierr.Append(err, fmt.Errorf("land.descend_rate must be positive, got %v", l.DescendRate))
	}
	if l.DescendAcceleration <= 0 {
		err = multierr.Append(err, fmt.Errorf("land.descend_acceleration must be positive, got %v", l.DescendAcceleration))
	}
	if l.CushionRate <= 0 || l.CushionRate > l.DescendRate {
		err = multierr.Append(err, fmt.Errorf("land.cushion_rate must be in (0, descend_rate], got %v", l.CushionRate))
	}
	if l.CushionAcceleration <= 0 {
		err = multierr.Append(err, fmt.Errorf("land.cushion_acceleration must be positive, got %v", l.CushionAcceleration))
	}
	if l.CushionHeight <= l.LandingDetectedHeight {
		err = multierr.Append(err, fmt.Errorf("land.cushion_height %v must be above land.landing_detected_height %v",
			l.CushionHeight, l.LandingDetectedHeight))
	}
	if l.LandingDetectedHeight <= 0 {
		err = multierr.Append(err, fmt.Errorf("land.landing_detected_height must be positive, got %v", l.LandingDetectedHeight))
	}

	return err
}
