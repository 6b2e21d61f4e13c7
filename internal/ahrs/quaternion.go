package ahrs

import "math"

// Quaternion is an orientation in (w, x, y, z) order.
type Quaternion struct {
	W, X, Y, Z float64
}

// Identity returns the quaternion of no rotation.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

// Norm returns the magnitude of q.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalize scales q to unit length. A zero quaternion is returned unchanged.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 {
		return q
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Euler is an orientation expressed as roll, pitch and heading in degrees.
type Euler struct {
	Roll    float64 `json:"roll"`
	Pitch   float64 `json:"pitch"`
	Heading float64 `json:"heading"`
}

// Euler converts q to roll, pitch and heading in degrees.
func (q Quaternion) Euler() Euler {
	q0, q1, q2, q3 := q.W, q.X, q.Y, q.Z

	// rounding can push a unit quaternion slightly outside the asin domain
	sinPitch := math.Max(-1, math.Min(1, 2*(q0*q2-q3*q1)))

	return Euler{
		Roll:    rad2deg(math.Atan2(2*(q0*q1+q2*q3), 1-2*(q1*q1+q2*q2))),
		Pitch:   rad2deg(math.Asin(sinPitch)),
		Heading: rad2deg(math.Atan2(2*(q0*q3+q1*q2), 1-2*(q2*q2+q3*q3))),
	}
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
