package renderer

import (
	"github.com/spaghettifunk/parallax/engine/math"
	"github.com/spaghettifunk/parallax/engine/systems"
)

// Model is one scene entity: a mesh and texture referenced by name, placed
// by a world transform. The names resolve against the systems' registries
// each frame, so a model draws only once both of its uploads landed.
type Model struct {
	Name        string
	MeshName    string
	TextureName string
	Transform   math.Mat4
}

// Loaded reports whether both device resources of the model are resident.
func (m *Model) Loaded(meshes *systems.MeshSystem, textures *systems.TextureSystem) bool {
	if _, ok := meshes.Get(m.MeshName); !ok {
		return false
	}
	if _, ok := textures.Get(m.TextureName); !ok {
		return false
	}
	return true
}
