package iarc7motion

const gravity = 9.80665

// ThrustModel predicts the throttle needed to hold the vehicle at hover for
// a given battery voltage. Thrust per unit throttle degrades as the battery
// sags: thrust(throttle, v) = throttle * (ThrustPerThrottle +
// ThrustPerThrottleVolt * v). Read-only during operation.
type ThrustModel struct {
	// Newtons of thrust per unit throttle at zero volts and per volt.
	ThrustPerThrottle     float64 `yaml:"thrust_per_throttle"`
	ThrustPerThrottleVolt float64 `yaml:"thrust_per_throttle_volt"`

	MassKg      float64 `yaml:"mass_kg"`
	MaxThrottle float64 `yaml:"max_throttle"`
}

// HoverThrottle inverts the thrust curve for a thrust of MassKg * g, clamped
// to [0, MaxThrottle].
func (m ThrustModel) HoverThrottle(voltage float64) float64 {
	gain := m.ThrustPerThrottle + m.ThrustPerThrottleVolt*voltage
	if gain <= 0 {
		// A dead battery cannot hover, saturate.
		return m.MaxThrottle
	}
	throttle := m.MassKg * gravity / gain
	if throttle > m.MaxThrottle {
		throttle = m.MaxThrottle
	}
	if throttle < 0 {
		throttle = 0
	}
	return throttle
}
