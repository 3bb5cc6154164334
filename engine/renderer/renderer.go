package renderer

import (
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/math"
	"github.com/spaghettifunk/parallax/engine/systems"
	"github.com/spaghettifunk/parallax/engine/vr"
)

// RenderItem is one draw call: resident geometry and texture plus the MVP
// pushed to the vertex stage.
type RenderItem struct {
	Mesh    *systems.Mesh
	Texture *systems.Texture
	MVP     math.Mat4
}

// RenderPacket is everything one frame draws, one item list per eye.
type RenderPacket struct {
	DeltaTime float64
	Eyes      [2][]RenderItem
	// Skipped counts models left out because their uploads are pending.
	Skipped int
}

// Renderer builds per-frame packets from the scene. It only ever reads
// published resources and never blocks on an upload; a model whose resources
// are still in flight is skipped and picked up on a later frame.
type Renderer struct {
	camera   *StereoCamera
	meshes   *systems.MeshSystem
	textures *systems.TextureSystem
}

func NewRenderer(camera *StereoCamera, sm *systems.SystemManager) *Renderer {
	return &Renderer{
		camera:   camera,
		meshes:   sm.MeshSystem(),
		textures: sm.TextureSystem(),
	}
}

// BuildPacket composes the frame from the models that are fully resident.
func (r *Renderer) BuildPacket(models []*Model, headPose math.Mat4, deltaTime float64) *RenderPacket {
	packet := &RenderPacket{DeltaTime: deltaTime}

	for _, eye := range []vr.Eye{vr.EyeLeft, vr.EyeRight} {
		pv := r.camera.EyeViewProjection(eye, headPose)
		items := make([]RenderItem, 0, len(models))
		for _, model := range models {
			mesh, meshOK := r.meshes.Get(model.MeshName)
			texture, texOK := r.textures.Get(model.TextureName)
			if !meshOK || !texOK {
				if eye == vr.EyeLeft {
					packet.Skipped++
				}
				continue
			}
			items = append(items, RenderItem{
				Mesh:    mesh,
				Texture: texture,
				MVP:     pv.Mul(model.Transform),
			})
		}
		packet.Eyes[eye] = items
	}

	if packet.Skipped > 0 {
		core.LogDebug("frame built with %d models still uploading", packet.Skipped)
	}
	return packet
}
