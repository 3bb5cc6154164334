package engine

import (
	"github.com/spaghettifunk/parallax/engine/config"
	"github.com/spaghettifunk/parallax/engine/renderer"
	"github.com/spaghettifunk/parallax/engine/systems"
)

// Game is the application the engine drives. The engine owns the loop and
// the upload pipeline; the game owns the scene.
type Game struct {
	Config        *config.Config
	SystemManager *systems.SystemManager
	State         interface{}
	FnInitialize  Initialize
	FnUpdate      Update
	FnScene       Scene
}

type Initialize func(g *Game) error
type Update func(g *Game, deltaTime float64) error

// Scene returns the models to consider for the current frame. Models whose
// uploads are still in flight are skipped by the renderer, never waited for.
type Scene func(g *Game) []*renderer.Model
