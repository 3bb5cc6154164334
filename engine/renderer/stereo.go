package renderer

import (
	"github.com/spaghettifunk/parallax/engine/math"
	"github.com/spaghettifunk/parallax/engine/vr"
)

// Clip returns the projection correction matrix: Y flipped and depth mapped
// from [-1,1] to [0,1].
func Clip() math.Mat4 {
	m := math.Mat4{}
	m.Data[0] = 1
	m.Data[5] = -1
	m.Data[10] = 0.5
	m.Data[14] = 0.5
	m.Data[15] = 1
	return m
}

// StereoCamera composes the per-eye view-projection from the runtime's
// optics and the frame's head pose.
type StereoCamera struct {
	runtime vr.Runtime
	near    float32
	far     float32
}

func NewStereoCamera(runtime vr.Runtime, near, far float32) *StereoCamera {
	return &StereoCamera{runtime: runtime, near: near, far: far}
}

// EyeViewProjection returns clip * projection * inverse(pose * eyeToHead)
// for the given eye and head pose.
func (c *StereoCamera) EyeViewProjection(eye vr.Eye, headPose math.Mat4) math.Mat4 {
	projection := c.runtime.ProjectionMatrix(eye, c.near, c.far)
	view := headPose.Mul(c.runtime.EyeToHeadTransform(eye)).Inverse()
	return Clip().Mul(projection).Mul(view)
}
