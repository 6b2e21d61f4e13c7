package sensors

import "math"

// Sample is one 9-axis inertial reading produced per tick
type Sample struct {
	Ax, Ay, Az float64 // Accelerometer in m/s²
	Gx, Gy, Gz float64 // Gyroscope in deg/s
	Mx, My, Mz float64 // Magnetometer, normalized field
}

// AccelNorm returns the magnitude of the accelerometer vector.
func (s Sample) AccelNorm() float64 {
	return math.Sqrt(s.Ax*s.Ax + s.Ay*s.Ay + s.Az*s.Az)
}

// MagNorm returns the magnitude of the magnetometer vector.
func (s Sample) MagNorm() float64 {
	return math.Sqrt(s.Mx*s.Mx + s.My*s.My + s.Mz*s.Mz)
}

// Source produces one Sample per tick. Implementations may keep state
// between calls, so Read must be called with consecutive ticks from a
// single goroutine.
type Source interface {
	Read(tick int) Sample
}

// Environment produces the altitude and temperature signals that travel
// alongside the orientation estimate.
type Environment interface {
	Read(tick int) (altitude, temperature float64)
}

// Constant is a Source that returns the same Sample on every tick.
type Constant struct {
	Sample Sample
}

func (c Constant) Read(int) Sample {
	return c.Sample
}
