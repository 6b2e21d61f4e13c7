package ahrs

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/roman-kulish/flight-telemetry/internal/sensors"
)

const (
	unitTolerance = 1e-9
	tickDt        = 0.05
)

var level = sensors.Sample{Az: 9.81, Mx: 0.3, Mz: 0.5}

func TestFilter_StartsAtIdentity(t *testing.T) {
	f := NewFilter()

	if q := f.Quaternion(); q != Identity() {
		t.Fatalf("expected identity quaternion, got %+v", q)
	}
	if e := f.Euler(); e != (Euler{}) {
		t.Errorf("expected zero angles, got %+v", e)
	}
	if f.Mode() != ModeGyro {
		t.Errorf("expected default mode %s, got %s", ModeGyro, f.Mode())
	}
}

func TestFilter_UnitMagnitude(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	uniform := func(a float64) float64 { return rnd.Float64()*2*a - a }

	for _, mode := range []Mode{ModeGyro, ModeMadgwick} {
		t.Run(mode.String(), func(t *testing.T) {
			f := NewFilter(WithMode(mode))

			for i := 0; i < 5000; i++ {
				s := sensors.Sample{
					Ax: uniform(20), Ay: uniform(20), Az: uniform(20),
					Gx: uniform(500), Gy: uniform(500), Gz: uniform(500),
					Mx: uniform(1), My: uniform(1), Mz: uniform(1),
				}
				f.Update(s, rnd.Float64()*0.1+1e-4)

				if n := f.Quaternion().Norm(); math.Abs(n-1) > unitTolerance {
					t.Fatalf("update %d: quaternion magnitude %.15f", i, n)
				}
			}
		})
	}
}

func TestFilter_DegenerateInputIsNoop(t *testing.T) {
	testCases := []struct {
		name   string
		sample sensors.Sample
		dt     float64
	}{
		{"zero accelerometer", sensors.Sample{Gx: 5, Gy: 5, Gz: 5, Mx: 0.3, Mz: 0.5}, tickDt},
		{"zero magnetometer", sensors.Sample{Az: 9.81, Gx: 5, Gy: 5, Gz: 5}, tickDt},
		{"all zero", sensors.Sample{}, tickDt},
		{"zero dt", sensors.Sample{Az: 9.81, Gz: 10, Mx: 0.3, Mz: 0.5}, 0},
		{"negative dt", sensors.Sample{Az: 9.81, Gz: 10, Mx: 0.3, Mz: 0.5}, -tickDt},
	}

	for _, mode := range []Mode{ModeGyro, ModeMadgwick} {
		for _, tc := range testCases {
			t.Run(mode.String()+"/"+tc.name, func(t *testing.T) {
				f := NewFilter(WithMode(mode))

				// move away from identity so the check is not trivially satisfied
				for i := 0; i < 10; i++ {
					f.Update(sensors.Sample{Ax: 1, Az: 9.81, Gx: 3, Gy: -2, Gz: 15, Mx: 0.3, Mz: 0.5}, tickDt)
				}

				before := f.Quaternion()
				f.Update(tc.sample, tc.dt)
				after := f.Quaternion()

				if math.Float64bits(before.W) != math.Float64bits(after.W) ||
					math.Float64bits(before.X) != math.Float64bits(after.X) ||
					math.Float64bits(before.Y) != math.Float64bits(after.Y) ||
					math.Float64bits(before.Z) != math.Float64bits(after.Z) {
					t.Errorf("state changed: %+v -> %+v", before, after)
				}
			})
		}
	}
}

func TestFilter_ConstantYawRate(t *testing.T) {
	f := NewFilter()
	s := level
	s.Gz = 10

	prev := f.Euler().Heading
	for tick := 1; tick <= 20; tick++ {
		f.Update(s, tickDt)
		e := f.Euler()

		step := e.Heading - prev
		if step <= 0 {
			t.Fatalf("tick %d: heading did not increase: %.6f -> %.6f", tick, prev, e.Heading)
		}
		if math.Abs(step-0.5) > 1e-3 {
			t.Errorf("tick %d: expected heading step ~0.5°, got %.6f°", tick, step)
		}
		if math.Abs(e.Roll) > 1e-9 || math.Abs(e.Pitch) > 1e-9 {
			t.Errorf("tick %d: expected level attitude, got roll %.9f pitch %.9f", tick, e.Roll, e.Pitch)
		}
		prev = e.Heading
	}

	if math.Abs(prev-10) > 0.01 {
		t.Errorf("expected heading ~10° after 20 ticks, got %.6f°", prev)
	}
}

func TestFilter_GyroModeIgnoresTilt(t *testing.T) {
	f := NewFilter()

	// accelerometer says the body is rolled 90°, gyro says nothing moves
	for i := 0; i < 100; i++ {
		f.Update(sensors.Sample{Ay: 9.81, Mx: 0.3, Mz: 0.5}, tickDt)
	}

	if q := f.Quaternion(); q != Identity() {
		t.Errorf("expected gyro-only filter to stay at identity, got %+v", q)
	}
}

func TestFilter_MadgwickConverges(t *testing.T) {
	roll := deg2rad(20)
	initial := Quaternion{W: math.Cos(roll / 2), X: math.Sin(roll / 2)}

	f := NewFilter(WithMode(ModeMadgwick), WithInitial(initial), WithBeta(0.05))
	if e := f.Euler(); math.Abs(e.Roll-20) > 1e-9 {
		t.Fatalf("expected initial roll 20°, got %.6f", e.Roll)
	}

	for i := 0; i < 2000; i++ {
		f.Update(level, tickDt)
	}

	e := f.Euler()
	if math.Abs(e.Roll) > 1 || math.Abs(e.Pitch) > 1 || math.Abs(e.Heading) > 1 {
		t.Errorf("expected convergence to level, got %+v", e)
	}
}

func TestFilter_Reset(t *testing.T) {
	f := NewFilter()
	s := level
	s.Gx = 30

	f.Update(s, tickDt)
	if f.Quaternion() == Identity() {
		t.Fatal("expected state to change after update")
	}

	f.Reset()
	if q := f.Quaternion(); q != Identity() {
		t.Errorf("expected identity after reset, got %+v", q)
	}
}

func TestFilter_IndependentInstances(t *testing.T) {
	a := NewFilter()
	b := NewFilter()
	s := level
	s.Gy = 45

	a.Update(s, tickDt)

	if b.Quaternion() != Identity() {
		t.Errorf("updating one filter changed another: %+v", b.Quaternion())
	}
}

func TestQuaternion_EulerPitchLimit(t *testing.T) {
	h := math.Sqrt(0.5)
	e := Quaternion{W: h, Y: h}.Euler()

	if math.IsNaN(e.Pitch) {
		t.Fatal("pitch is NaN at the asin domain edge")
	}
	if math.Abs(e.Pitch-90) > 1e-6 {
		t.Errorf("expected pitch 90°, got %.9f", e.Pitch)
	}
}

func TestMode_Validate(t *testing.T) {
	for _, m := range []Mode{ModeGyro, ModeMadgwick} {
		if err := m.Validate(); err != nil {
			t.Errorf("mode %s: unexpected error: %v", m, err)
		}
	}
	if err := Mode("kalman").Validate(); err == nil {
		t.Error("expected error for unknown mode")
	}
}
