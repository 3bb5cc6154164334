package testbed

import (
	"fmt"

	"github.com/spaghettifunk/parallax/engine"
	"github.com/spaghettifunk/parallax/engine/config"
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/math"
	"github.com/spaghettifunk/parallax/engine/renderer"
)

const (
	gridSize    = 11
	gridSpacing = float32(3.0)
	cubeScale   = float32(0.5)
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	models   []*renderer.Model
	rotation float64
}

func NewTestGame(cfg *config.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State:  &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnScene = tg.Scene

	return tg
}

// Initialize requests the scene's assets and lays out the cube grid. The
// grid pops in over the following frames as uploads complete.
func (tg *TestGame) Initialize(g *engine.Game) error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}

	if err := g.SystemManager.LoadScene([]string{"cube"}, []string{"crate"}); err != nil {
		return err
	}

	state := g.State.(*gameState)
	state.models = make([]*renderer.Model, 0, gridSize*gridSize*gridSize)

	half := float32(gridSize-1) / 2
	for x := 0; x < gridSize; x++ {
		for y := 0; y < gridSize; y++ {
			for z := 0; z < gridSize; z++ {
				position := math.NewVec3(
					(float32(x)-half)*gridSpacing,
					(float32(y)-half)*gridSpacing,
					(float32(z)-half)*gridSpacing,
				)
				state.models = append(state.models, &renderer.Model{
					Name:        fmt.Sprintf("cube_%d_%d_%d", x, y, z),
					MeshName:    "cube",
					TextureName: "crate",
					Transform:   cubeTransform(position, 0),
				})
			}
		}
	}

	core.LogInfo("Cube grid of %d models queued.", len(state.models))
	return nil
}

func (tg *TestGame) Update(g *engine.Game, deltaTime float64) error {
	state := g.State.(*gameState)
	state.rotation += 0.5 * deltaTime

	angle := float32(state.rotation)
	for _, model := range state.models {
		position := math.NewVec3(model.Transform.Data[12], model.Transform.Data[13], model.Transform.Data[14])
		model.Transform = cubeTransform(position, angle)
	}
	return nil
}

func (tg *TestGame) Scene(g *engine.Game) []*renderer.Model {
	return g.State.(*gameState).models
}

func cubeTransform(position math.Vec3, angle float32) math.Mat4 {
	translation := math.NewMat4Translation(position)
	rotation := math.NewMat4EulerY(angle)
	scale := math.NewMat4Scale(math.NewVec3(cubeScale, cubeScale, cubeScale))
	return translation.Mul(rotation).Mul(scale)
}
