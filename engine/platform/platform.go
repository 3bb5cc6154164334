package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/parallax/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the mirror window. In headless mode no window exists and
// PumpMessages always reports the loop should continue.
type Platform struct {
	Window   *glfw.Window
	headless bool
}

func New(headless bool) *Platform {
	return &Platform{headless: headless}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if p.headless {
		core.LogInfo("Running headless, no mirror window.")
		return nil
	}

	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.headless {
		return nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes window events; returns false once the window wants
// to close.
func (p *Platform) PumpMessages() bool {
	if p.headless {
		return true
	}
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
	}
}
