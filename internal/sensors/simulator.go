package sensors

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	// ProfileLevel1 is the raw sensor pattern of the legacy transmitter:
	// layered sine motion with vibration and occasional gyroscope jerks.
	ProfileLevel1 Profile = iota + 1

	// ProfileLevel2 is the steady-rate pattern used by the attitude transmitter.
	ProfileLevel2
)

// Profile selects the motion pattern a simulator synthesizes.
type Profile int

// Earth field used by both profiles, already normalized.
const (
	magX = 0.3
	magY = 0.0
	magZ = 0.5

	gravity = 9.81
)

// Option configures the noise of a simulator.
type Option func(*noise)

// WithSeed makes the simulator noise reproducible.
func WithSeed(seed uint64) Option {
	return func(n *noise) {
		n.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithoutNoise disables random noise, leaving only the deterministic signal.
func WithoutNoise() Option {
	return func(n *noise) {
		n.disabled = true
	}
}

type noise struct {
	rnd      *rand.Rand
	disabled bool
}

func newNoise(options ...Option) noise {
	n := noise{}
	for _, option := range options {
		option(&n)
	}
	if n.rnd == nil {
		seed := uint64(time.Now().UnixNano())
		n.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return n
}

// amp returns uniform noise in [-a, +a].
func (n noise) amp(a float64) float64 {
	if n.disabled {
		return 0
	}
	return n.rnd.Float64()*2*a - a
}

// Simulator is a Source that synthesizes IMU readings from a Profile.
type Simulator struct {
	profile Profile
	noise   noise
}

// NewSimulator creates a simulated IMU for the given profile.
func NewSimulator(profile Profile, options ...Option) *Simulator {
	return &Simulator{
		profile: profile,
		noise:   newNoise(options...),
	}
}

func (s *Simulator) Read(tick int) Sample {
	if s.profile == ProfileLevel1 {
		return s.readLevel1(tick)
	}
	return s.readLevel2(tick)
}

func (s *Simulator) readLevel1(tick int) Sample {
	t := float64(tick)
	n := s.noise

	var sample Sample

	sample.Ax = 0.8*math.Sin(t*0.02) + 0.3*math.Sin(t*0.005) + 0.05*math.Sin(t*0.5) + n.amp(0.1)
	sample.Ay = 0.8*math.Cos(t*0.018+1.0) + 0.2*math.Sin(t*0.008) + 0.05*math.Sin(t*0.45) + n.amp(0.1)
	sample.Az = gravity + 0.03*math.Sin(t*0.4) + n.amp(0.05)

	var spikeX, spikeY float64
	if tick%500 == 0 {
		spikeX = n.amp(1.0)
	}
	if tick%700 == 0 {
		spikeY = n.amp(0.8)
	}

	sample.Gx = 3.0*math.Sin(t*0.008) + 0.2*math.Sin(t*0.0005) + spikeX + n.amp(0.2)
	sample.Gy = 3.0*math.Cos(t*0.007) + 0.2*math.Sin(t*0.0007) + spikeY + n.amp(0.2)
	sample.Gz = 20.0*math.Sin(t*0.01) + 0.5*math.Sin(t*0.0004) + n.amp(0.3)

	sample.Mx = magX + n.amp(0.02)
	sample.My = magY + n.amp(0.02)
	sample.Mz = magZ + n.amp(0.02)

	return sample
}

func (s *Simulator) readLevel2(tick int) Sample {
	t := float64(tick)
	n := s.noise

	return Sample{
		Ax: 0.6*math.Sin(t*0.02) + n.amp(0.05),
		Ay: 0.6*math.Cos(t*0.02) + n.amp(0.05),
		Az: gravity + n.amp(0.08),

		Gx: 2.0 + n.amp(0.2),
		Gy: 1.5 + n.amp(0.2),
		Gz: 12.0 + n.amp(0.3),

		Mx: magX + n.amp(0.02),
		My: magY + n.amp(0.02),
		Mz: magZ + n.amp(0.02),
	}
}

// SimulatedEnvironment is an Environment evolving independently of the IMU.
type SimulatedEnvironment struct {
	profile     Profile
	noise       noise
	temperature float64
}

// NewEnvironment creates simulated altitude and temperature signals for the
// given profile.
func NewEnvironment(profile Profile, options ...Option) *SimulatedEnvironment {
	return &SimulatedEnvironment{
		profile:     profile,
		noise:       newNoise(options...),
		temperature: 30.0,
	}
}

func (e *SimulatedEnvironment) Read(tick int) (altitude, temperature float64) {
	t := float64(tick)

	if e.profile == ProfileLevel2 {
		return 100.0 + 0.05*t, 30.0
	}

	altitude = 100 + t*0.02 + 0.3*math.Sin(t*0.04) + e.noise.amp(0.2)

	// slow heating, smoothed by a first order low-pass
	raw := 30.0 + 0.0008*t + e.noise.amp(0.2)
	e.temperature = e.temperature*0.95 + raw*0.05

	return altitude, e.temperature
}
