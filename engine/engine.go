package engine

import (
	"sync/atomic"

	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
	"github.com/spaghettifunk/parallax/engine/gpu/vulkan"
	"github.com/spaghettifunk/parallax/engine/platform"
	"github.com/spaghettifunk/parallax/engine/renderer"
	"github.com/spaghettifunk/parallax/engine/systems"
	"github.com/spaghettifunk/parallax/engine/vr"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Engine owns the frame loop: it paces on the runtime's pose query, drains
// the upload pipeline exactly once per frame, and hands the game a chance to
// update before the packet is built.
type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	platform      *platform.Platform
	device        gpu.Device
	runtime       vr.Runtime
	systemManager *systems.SystemManager
	camera        *renderer.StereoCamera
	renderer      *renderer.Renderer
	clock         *core.Clock
	lastTime      float64
}

func New(g *Game) (*Engine, error) {
	cfg := g.Config
	p := platform.New(cfg.Application.Headless)

	device, err := createDevice(g)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(cfg, device)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	g.SystemManager = sm

	runtime := vr.NewSimulatedRuntime()
	camera := renderer.NewStereoCamera(runtime, 0.1, 100.0)

	e := &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		clock:         core.NewClock(),
		platform:      p,
		device:        device,
		runtime:       runtime,
		systemManager: sm,
		camera:        camera,
		renderer:      renderer.NewRenderer(camera, sm),
	}
	e.isRunning.Store(true)
	return e, nil
}

// createDevice picks the Vulkan backend when a GPU is reachable, otherwise
// the in-memory device so headless runs and CI exercise the same pipeline.
func createDevice(g *Game) (gpu.Device, error) {
	cfg := g.Config
	if cfg.Application.Headless {
		return gpu.NewMemDevice(cfg.Upload.StagingPoolSize), nil
	}
	backend, err := vulkan.New(cfg.Application.Name, cfg.Upload.StagingPoolSize)
	if err != nil {
		core.LogWarn("Vulkan unavailable (%s), falling back to in-memory device.", err.Error())
		return gpu.NewMemDevice(cfg.Upload.StagingPoolSize), nil
	}
	return backend, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	cfg := e.gameInstance.Config
	if err := e.platform.Startup(cfg.Application.Name,
		cfg.Application.StartPosX,
		cfg.Application.StartPosY,
		cfg.Application.StartWidth,
		cfg.Application.StartHeight); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.gameInstance); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	frameCount := uint64(0)

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		// blocks until the runtime's sync point; this paces the loop
		headPose := e.runtime.WaitGetPose()

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		// the one place per frame where finished uploads become visible
		e.systemManager.Update()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(e.gameInstance, delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err.Error())
				e.isRunning.Store(false)
				break
			}
		}

		var models []*renderer.Model
		if e.gameInstance.FnScene != nil {
			models = e.gameInstance.FnScene(e.gameInstance)
		}
		packet := e.renderer.BuildPacket(models, headPose, delta)

		frameCount++
		if frameCount%512 == 0 {
			core.LogInfo("frame %d: %d draws per eye, %d models pending",
				frameCount, len(packet.Eyes[vr.EyeLeft]), packet.Skipped)
		}

		e.lastTime = currentTime
	}

	return e.Shutdown()
}

// RequestShutdown stops the loop after the current frame. Safe from any
// goroutine, typically a signal handler.
func (e *Engine) RequestShutdown() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	core.LogInfo("Shutting down...")

	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	if err := e.device.Shutdown(); err != nil {
		return err
	}
	if err := e.runtime.Shutdown(); err != nil {
		return err
	}
	return e.platform.Shutdown()
}

// Renderer exposes the frame composer, mainly for the game's own tooling.
func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}
