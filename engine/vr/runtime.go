package vr

import (
	"time"

	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/math"
)

type Eye int

const (
	EyeLeft Eye = iota
	EyeRight
)

func (e Eye) String() string {
	if e == EyeRight {
		return "right"
	}
	return "left"
}

// Runtime abstracts the HMD: per-eye optics and the blocking pose query that
// paces the render loop.
type Runtime interface {
	// ProjectionMatrix returns the eye's projection for the given clip planes.
	ProjectionMatrix(eye Eye, near, far float32) math.Mat4
	// EyeToHeadTransform returns the eye's offset from the head center.
	EyeToHeadTransform(eye Eye) math.Mat4
	// WaitGetPose blocks until the compositor's sync point and returns the
	// predicted head pose in world space.
	WaitGetPose() math.Mat4
	Shutdown() error
}

// SimulatedRuntime stands in for a headset: a head orbiting the origin at a
// fixed cadence. Used headless and in tests.
type SimulatedRuntime struct {
	ipd         float32
	fovY        float32
	orbitRadius float32
	orbitPeriod time.Duration
	frame       time.Duration
	start       time.Time
}

type SimulatedOption func(*SimulatedRuntime)

// WithRefreshRate sets the simulated display refresh in Hz.
func WithRefreshRate(hz int) SimulatedOption {
	return func(r *SimulatedRuntime) {
		r.frame = time.Second / time.Duration(hz)
	}
}

// WithOrbit sets the head's orbit radius and period around the scene origin.
func WithOrbit(radius float32, period time.Duration) SimulatedOption {
	return func(r *SimulatedRuntime) {
		r.orbitRadius = radius
		r.orbitPeriod = period
	}
}

func NewSimulatedRuntime(options ...SimulatedOption) *SimulatedRuntime {
	r := &SimulatedRuntime{
		ipd:         0.064,
		fovY:        math.DegToRad(100),
		orbitRadius: 3,
		orbitPeriod: 12 * time.Second,
		frame:       time.Second / 90,
		start:       time.Now(),
	}
	for _, opt := range options {
		opt(r)
	}
	core.LogInfo("Simulated HMD runtime started (%.0f Hz).", float64(time.Second)/float64(r.frame))
	return r
}

func (r *SimulatedRuntime) ProjectionMatrix(eye Eye, near, far float32) math.Mat4 {
	return math.NewMat4Perspective(r.fovY, 1.0, near, far)
}

func (r *SimulatedRuntime) EyeToHeadTransform(eye Eye) math.Mat4 {
	offset := r.ipd / 2
	if eye == EyeLeft {
		offset = -offset
	}
	return math.NewMat4Translation(math.NewVec3(offset, 0, 0))
}

// WaitGetPose sleeps one frame interval, standing in for the compositor's
// vsync, then returns the orbiting head pose.
func (r *SimulatedRuntime) WaitGetPose() math.Mat4 {
	time.Sleep(r.frame)
	return r.Pose(time.Since(r.start))
}

// Pose returns the head transform at the given time into the orbit.
func (r *SimulatedRuntime) Pose(elapsed time.Duration) math.Mat4 {
	angle := float32(elapsed.Seconds()/r.orbitPeriod.Seconds()) * math.DegToRad(360)
	rotation := math.NewMat4EulerY(angle)
	translation := math.NewMat4Translation(math.NewVec3(0, 1.7, r.orbitRadius))
	return rotation.Mul(translation)
}

func (r *SimulatedRuntime) Shutdown() error {
	return nil
}
