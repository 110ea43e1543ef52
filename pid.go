package iarc7motion

import (
	"fmt"
	"time"
)

// PidGains is the tuning quintuple for one control axis. MaxOutput of 0
// leaves the output unclamped, IntegralLimit of 0 leaves the integral
// unclamped.
type PidGains struct {
	P           float64 `yaml:"p"`
	I           float64 `yaml:"i"`
	D           float64 `yaml:"d"`
	FeedForward float64 `yaml:"feed_forward"`

	MaxOutput     float64 `yaml:"max_output"`
	IntegralLimit float64 `yaml:"integral_limit"`
}

// A dt larger than this means the caller's clock or cadence is broken, not
// that a long cycle happened.
const maxPlausibleDt = 10 * time.Second

type feedForwardPid struct {
	gains PidGains

	setpoint      float64
	integral      float64
	previousError float64
}

func newFeedForwardPid(gains PidGains) *feedForwardPid {
	return &feedForwardPid{gains: gains}
}

// SetSetpoint replaces the target. Integral and derivative memory carry over.
func (pid *feedForwardPid) SetSetpoint(setpoint float64) {
	pid.setpoint = setpoint
}

// Update advances the loop by dt and returns the new output.
func (pid *feedForwardPid) Update(measurement float64, dt time.Duration) (float64, error) {
	if dt <= 0 {
		return 0, fmt.Errorf("pid update with non-positive dt %v", dt)
	}
	if dt > maxPlausibleDt {
		return 0, fmt.Errorf("pid update with implausible dt %v", dt)
	}

	error := pid.setpoint - measurement

	p := pid.gains.P * error

	pid.integral += error * dt.Seconds()
	if pid.gains.IntegralLimit != 0 {
		if pid.integral > pid.gains.IntegralLimit {
			pid.integral = pid.gains.IntegralLimit
		}
		if pid.integral < -pid.gains.IntegralLimit {
			pid.integral = -pid.gains.IntegralLimit
		}
	}
	i := pid.gains.I * pid.integral

	d := pid.gains.D * (error - pid.previousError) / dt.Seconds()
	pid.previousError = error

	n := p + i + d + pid.gains.FeedForward

	if pid.gains.MaxOutput != 0 {
		if n > pid.gains.MaxOutput {
			n = pid.gains.MaxOutput
		}
		if n < -pid.gains.MaxOutput {
			n = -pid.gains.MaxOutput
		}
	}

	return n, nil
}
