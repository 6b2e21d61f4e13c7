package ahrs

import "math"

// gradientStep returns the normalized objective function gradient of the
// Madgwick MARG filter for the normalized accelerometer (a) and magnetometer
// (m) vectors. A zero gradient is returned as is.
func gradientStep(q Quaternion, ax, ay, az, mx, my, mz float64) (s0, s1, s2, s3 float64) {
	q0, q1, q2, q3 := q.W, q.X, q.Y, q.Z

	// auxiliary variables to avoid repeated arithmetic
	_2q0mx := 2.0 * q0 * mx
	_2q0my := 2.0 * q0 * my
	_2q0mz := 2.0 * q0 * mz
	_2q1mx := 2.0 * q1 * mx
	_2q0 := 2.0 * q0
	_2q1 := 2.0 * q1
	_2q2 := 2.0 * q2
	_2q3 := 2.0 * q3
	_2q0q2 := 2.0 * q0 * q2
	_2q2q3 := 2.0 * q2 * q3
	q0q0 := q0 * q0
	q0q1 := q0 * q1
	q0q2 := q0 * q2
	q0q3 := q0 * q3
	q1q1 := q1 * q1
	q1q2 := q1 * q2
	q1q3 := q1 * q3
	q2q2 := q2 * q2
	q2q3 := q2 * q3
	q3q3 := q3 * q3

	// reference direction of Earth's magnetic field
	hx := mx*q0q0 - _2q0my*q3 + _2q0mz*q2 + mx*q1q1 + _2q1*my*q2 + _2q1*mz*q3 - mx*q2q2 - mx*q3q3
	hy := _2q0mx*q3 + my*q0q0 - _2q0mz*q1 + _2q1mx*q2 - my*q1q1 + my*q2q2 + _2q2*mz*q3 - my*q3q3
	_2bx := math.Sqrt(hx*hx + hy*hy)
	_2bz := -_2q0mx*q2 + _2q0my*q1 + mz*q0q0 + _2q1mx*q3 - mz*q1q1 + _2q2*my*q3 - mz*q2q2 + mz*q3q3
	_4bx := 2.0 * _2bx
	_4bz := 2.0 * _2bz

	// objective function residuals: gravity then magnetic field
	fgx := 2.0*q1q3 - _2q0q2 - ax
	fgy := 2.0*q0q1 + _2q2q3 - ay
	fgz := 1 - 2.0*q1q1 - 2.0*q2q2 - az
	fbx := _2bx*(0.5-q2q2-q3q3) + _2bz*(q1q3-q0q2) - mx
	fby := _2bx*(q1q2-q0q3) + _2bz*(q0q1+q2q3) - my
	fbz := _2bx*(q0q2+q1q3) + _2bz*(0.5-q1q1-q2q2) - mz

	s0 = -_2q2*fgx + _2q1*fgy - _2bz*q2*fbx + (-_2bx*q3+_2bz*q1)*fby + _2bx*q2*fbz
	s1 = _2q3*fgx + _2q0*fgy - 4.0*q1*fgz + _2bz*q3*fbx + (_2bx*q2+_2bz*q0)*fby + (_2bx*q3-_4bz*q1)*fbz
	s2 = -_2q0*fgx + _2q3*fgy - 4.0*q2*fgz + (-_4bx*q2-_2bz*q0)*fbx + (_2bx*q1+_2bz*q3)*fby + (_2bx*q0-_4bz*q2)*fbz
	s3 = _2q1*fgx + _2q2*fgy + (-_4bx*q3+_2bz*q1)*fbx + (-_2bx*q0+_2bz*q2)*fby + _2bx*q1*fbz

	n := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3)
	if n == 0 {
		return 0, 0, 0, 0
	}
	return s0 / n, s1 / n, s2 / n, s3 / n
}
