package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/parallax/engine/math"
	"github.com/spaghettifunk/parallax/engine/vr"
)

func TestClipFlipsYAndHalvesDepth(t *testing.T) {
	clip := Clip()

	v := clip.MulVec4(math.Vec4{X: 1, Y: 1, Z: 1, W: 1})
	assert.InDelta(t, 1.0, v.X, 1e-6)
	assert.InDelta(t, -1.0, v.Y, 1e-6)
	assert.InDelta(t, 1.0, v.Z, 1e-6)

	// NDC near plane -1 maps to 0
	near := clip.MulVec4(math.Vec4{Z: -1, W: 1})
	assert.InDelta(t, 0.0, near.Z, 1e-6)
}

func TestEyeViewProjectionsDiffer(t *testing.T) {
	runtime := vr.NewSimulatedRuntime()
	camera := NewStereoCamera(runtime, 0.1, 100)
	pose := math.NewMat4Translation(math.NewVec3(0, 1.7, 3))

	left := camera.EyeViewProjection(vr.EyeLeft, pose)
	right := camera.EyeViewProjection(vr.EyeRight, pose)

	assert.NotEqual(t, left, right)
}

func TestPointAheadProjectsInsideFrustum(t *testing.T) {
	runtime := vr.NewSimulatedRuntime()
	camera := NewStereoCamera(runtime, 0.1, 100)

	// head at origin looking down -Z, point 2m ahead
	pose := math.NewMat4Identity()
	pv := camera.EyeViewProjection(vr.EyeLeft, pose)

	clipSpace := pv.MulVec4(math.Vec4{Z: -2, W: 1})
	ndcX := clipSpace.X / clipSpace.W
	ndcY := clipSpace.Y / clipSpace.W
	ndcZ := clipSpace.Z / clipSpace.W

	assert.Greater(t, clipSpace.W, float32(0))
	assert.InDelta(t, 0, ndcX, 0.1)
	assert.InDelta(t, 0, ndcY, 0.1)
	assert.Greater(t, ndcZ, float32(0))
	assert.Less(t, ndcZ, float32(1))
}
