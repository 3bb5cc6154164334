package systems

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/parallax/engine/config"
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
	"github.com/spaghettifunk/parallax/engine/upload"
)

const triangleOBJ = `v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
f 1/1 2/2 3/3
`

func writeAssetTree(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "meshes"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "textures"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "meshes", "tri.obj"), []byte(triangleOBJ), 0o644))

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), A: 255})
		}
	}
	f, err := os.Create(filepath.Join(base, "textures", "grid.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return base
}

func newManager(t *testing.T, deviceOpts ...gpu.MemDeviceOption) *SystemManager {
	t.Helper()
	cfg := config.Default()
	cfg.Assets.BaseDir = writeAssetTree(t)
	cfg.Upload.WorkerCount = 2
	cfg.Upload.QueueDepth = 8
	cfg.Upload.StagingPoolSize = 1 << 20

	device := gpu.NewMemDevice(cfg.Upload.StagingPoolSize, deviceOpts...)
	sm, err := NewSystemManager(cfg, device)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sm.Shutdown() })
	return sm
}

func waitResident(t *testing.T, sm *SystemManager, check func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		sm.Update()
		return check()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMeshAcquireBecomesResident(t *testing.T) {
	sm := newManager(t)

	id, err := sm.MeshSystem().Acquire("tri", upload.PriorityNormal)
	require.NoError(t, err)
	assert.NotEqual(t, core.NilRequestID, id)

	waitResident(t, sm, func() bool {
		_, ok := sm.MeshSystem().Get("tri")
		return ok
	})

	mesh, _ := sm.MeshSystem().Get("tri")
	assert.Equal(t, uint32(3), mesh.VertexCount)
	assert.Equal(t, uint32(3), mesh.IndexCount)
	assert.Equal(t, uint32(0), mesh.Generation)
	assert.Zero(t, sm.MeshSystem().PendingCount())
}

func TestTextureAcquireDeduplicates(t *testing.T) {
	sm := newManager(t)

	first, err := sm.TextureSystem().Acquire("grid", upload.PriorityNormal)
	require.NoError(t, err)
	assert.NotEqual(t, core.NilRequestID, first)

	// second acquire of the same name while in flight is a no-op
	second, err := sm.TextureSystem().Acquire("grid", upload.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, core.NilRequestID, second)

	waitResident(t, sm, func() bool {
		return sm.TextureSystem().Count() == 1
	})

	// acquiring a resident texture queues nothing either
	third, err := sm.TextureSystem().Acquire("grid", upload.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, core.NilRequestID, third)
	assert.Equal(t, 1, sm.TextureSystem().Count())
}

func TestMissingAssetReportsFailureNotCrash(t *testing.T) {
	sm := newManager(t)

	id, err := sm.MeshSystem().Acquire("does-not-exist", upload.PriorityNormal)
	require.NoError(t, err)
	assert.NotEqual(t, core.NilRequestID, id)

	// the decode fails on the worker; the pending slot must clear
	require.Eventually(t, func() bool {
		sm.Update()
		return sm.MeshSystem().PendingCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := sm.MeshSystem().Get("does-not-exist")
	assert.False(t, ok)
}

func TestCancelledLoadClearsPending(t *testing.T) {
	sm := newManager(t, gpu.WithCopyLatency(300*time.Millisecond))

	id, err := sm.TextureSystem().Acquire("grid", upload.PriorityNormal)
	require.NoError(t, err)
	require.NotEqual(t, core.NilRequestID, id)

	// withdraw while the decode or copy is still in flight
	require.Eventually(t, func() bool {
		return sm.CancelLoad(id)
	}, 5*time.Second, time.Millisecond)

	// once the pipeline settles the pending slot must be gone
	require.Eventually(t, func() bool {
		sm.Update()
		return sm.Tracker().InFlight() == 0 && sm.TextureSystem().PendingCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, sm.TextureSystem().Count())

	// the name is free again
	again, err := sm.TextureSystem().Acquire("grid", upload.PriorityNormal)
	require.NoError(t, err)
	assert.NotEqual(t, core.NilRequestID, again, "re-acquire after cancel must start a new load")
}

func TestGenerationSkipsInvalidSentinel(t *testing.T) {
	sm := newManager(t)
	ts := sm.TextureSystem()

	ts.textures["grid"] = &Texture{Name: "grid", Generation: InvalidGeneration - 1}
	ts.onPublished(&upload.PublishedResource{Name: "grid", Kind: upload.AssetTexture})

	tex, ok := ts.Get("grid")
	require.True(t, ok)
	assert.Equal(t, uint32(0), tex.Generation, "the wrap must skip the invalid sentinel")
}

func TestLoadSceneQueuesEverything(t *testing.T) {
	sm := newManager(t)

	require.NoError(t, sm.LoadScene([]string{"tri"}, []string{"grid"}))

	waitResident(t, sm, func() bool {
		return sm.MeshSystem().Count() == 1 && sm.TextureSystem().Count() == 1
	})
}
