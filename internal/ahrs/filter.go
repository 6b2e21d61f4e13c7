package ahrs

import (
	"fmt"
	"math"

	"github.com/roman-kulish/flight-telemetry/internal/sensors"
)

const (
	// ModeGyro integrates the gyroscope only. Accelerometer and magnetometer
	// readings are validated but do not correct the estimate, so heading and
	// attitude drift without bound.
	ModeGyro Mode = "gyro"

	// ModeMadgwick applies the gradient descent correction of the Madgwick
	// MARG filter, weighted by beta, before integrating.
	ModeMadgwick Mode = "madgwick"

	// DefaultBeta is the Madgwick correction gain.
	DefaultBeta = 0.1
)

var validModes = map[Mode]struct{}{
	ModeGyro:     {},
	ModeMadgwick: {},
}

// Mode selects the fusion algorithm of a Filter.
type Mode string

func (m Mode) String() string {
	return string(m)
}

// Validate returns an error for an unknown mode.
func (m Mode) Validate() error {
	if _, ok := validModes[m]; !ok {
		return fmt.Errorf("ahrs: invalid filter mode: %q", m)
	}
	return nil
}

// WithMode sets the fusion algorithm
func WithMode(mode Mode) func(*Filter) {
	return func(f *Filter) {
		f.mode = mode
	}
}

// WithBeta sets the Madgwick correction gain. It has no effect in ModeGyro.
func WithBeta(beta float64) func(*Filter) {
	return func(f *Filter) {
		f.beta = beta
	}
}

// WithInitial sets the starting orientation. It is normalized on use.
func WithInitial(q Quaternion) func(*Filter) {
	return func(f *Filter) {
		f.initial = q.Normalize()
	}
}

// Filter estimates orientation from successive IMU samples. It owns its
// quaternion state; the state changes only through Update and is always a
// unit quaternion. A Filter is not safe for concurrent use.
type Filter struct {
	q       Quaternion
	initial Quaternion
	mode    Mode
	beta    float64
}

// NewFilter creates a filter starting at the identity orientation in ModeGyro.
func NewFilter(options ...func(*Filter)) *Filter {
	f := Filter{
		initial: Identity(),
		mode:    ModeGyro,
		beta:    DefaultBeta,
	}

	for _, option := range options {
		option(&f)
	}

	f.q = f.initial
	return &f
}

// Update advances the estimate by dt seconds using the sample s. Gyroscope
// rates are in deg/s. Updates with dt <= 0, or with a zero accelerometer or
// magnetometer vector, leave the state untouched.
func (f *Filter) Update(s sensors.Sample, dt float64) {
	if !(dt > 0) {
		return
	}

	aNorm := s.AccelNorm()
	if aNorm == 0 {
		return
	}
	mNorm := s.MagNorm()
	if mNorm == 0 {
		return
	}

	ax, ay, az := s.Ax/aNorm, s.Ay/aNorm, s.Az/aNorm
	mx, my, mz := s.Mx/mNorm, s.My/mNorm, s.Mz/mNorm
	gx, gy, gz := deg2rad(s.Gx), deg2rad(s.Gy), deg2rad(s.Gz)

	q0, q1, q2, q3 := f.q.W, f.q.X, f.q.Y, f.q.Z

	// rate of change of quaternion from gyroscope
	qDot0 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot1 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot2 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot3 := 0.5 * (q0*gz + q1*gy - q2*gx)

	if f.mode == ModeMadgwick {
		s0, s1, s2, s3 := gradientStep(f.q, ax, ay, az, mx, my, mz)
		qDot0 -= f.beta * s0
		qDot1 -= f.beta * s1
		qDot2 -= f.beta * s2
		qDot3 -= f.beta * s3
	}

	next := Quaternion{
		W: q0 + qDot0*dt,
		X: q1 + qDot1*dt,
		Y: q2 + qDot2*dt,
		Z: q3 + qDot3*dt,
	}.Normalize()

	if math.IsNaN(next.W) || math.IsNaN(next.X) || math.IsNaN(next.Y) || math.IsNaN(next.Z) {
		return
	}
	f.q = next
}

// Euler returns the current orientation in degrees.
func (f *Filter) Euler() Euler {
	return f.q.Euler()
}

// Quaternion returns the current orientation.
func (f *Filter) Quaternion() Quaternion {
	return f.q
}

// Mode returns the fusion algorithm in use.
func (f *Filter) Mode() Mode {
	return f.mode
}

// Reset returns the filter to its initial orientation.
func (f *Filter) Reset() {
	f.q = f.initial
}
