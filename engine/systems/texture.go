package systems

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/parallax/engine/assets"
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
	"github.com/spaghettifunk/parallax/engine/upload"
)

// InvalidGeneration is never assigned to a resident resource; generation
// counters skip it when they wrap.
const InvalidGeneration = ^uint32(0)

type TextureSystemConfig struct {
	MaxTextureCount uint32
}

// Texture is a fully uploaded image. Generation increments on every reload
// so dependents can notice a hot-swapped asset.
type Texture struct {
	Name         string
	Handle       gpu.ResourceHandle
	Width        uint32
	Height       uint32
	ChannelCount uint8
	Generation   uint32
}

// TextureSystem decodes and uploads textures through the pipeline. A texture
// becomes visible through Get only after its device copy completed; until
// then lookups miss and the caller draws without it.
type TextureSystem struct {
	config *TextureSystemConfig

	mutex    sync.RWMutex
	textures map[string]*Texture
	pending  map[core.RequestID]string

	jobSystem    *JobSystem
	assetManager *assets.AssetManager
	scheduler    *upload.Scheduler
	device       gpu.Device
}

func NewTextureSystem(config *TextureSystemConfig, js *JobSystem, am *assets.AssetManager, sched *upload.Scheduler, device gpu.Device) (*TextureSystem, error) {
	if config.MaxTextureCount == 0 {
		err := errors.New("func NewTextureSystem - config.MaxTextureCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}

	return &TextureSystem{
		config:       config,
		textures:     make(map[string]*Texture),
		pending:      make(map[core.RequestID]string),
		jobSystem:    js,
		assetManager: am,
		scheduler:    sched,
		device:       device,
	}, nil
}

// Acquire starts loading the named texture. Returns the request ID of the
// upload; if the texture is already resident or in flight no new work is
// queued and NilRequestID is returned.
func (ts *TextureSystem) Acquire(name string, priority upload.Priority) (core.RequestID, error) {
	ts.mutex.Lock()
	if _, ok := ts.textures[name]; ok {
		ts.mutex.Unlock()
		return core.NilRequestID, nil
	}
	for _, pendingName := range ts.pending {
		if pendingName == name {
			ts.mutex.Unlock()
			return core.NilRequestID, nil
		}
	}
	if uint32(len(ts.textures)+len(ts.pending)) >= ts.config.MaxTextureCount {
		ts.mutex.Unlock()
		return core.NilRequestID, errors.Newf("texture system is full (%d)", ts.config.MaxTextureCount)
	}

	request := upload.NewAssetRequest(name, upload.AssetTexture, priority)
	ts.pending[request.ID] = name
	ts.mutex.Unlock()

	ts.jobSystem.Submit(JobTask{
		Name: "decode texture " + name,
		Run: func() error {
			res, err := ts.assetManager.LoadAsset(name, assets.ResourceTypeImage, &assets.ImageParams{FlipY: true})
			if err != nil {
				return err
			}
			img := res.Data.(*assets.ImageData)
			payload, err := upload.NewTexturePayload(request, img)
			if err != nil {
				return err
			}
			return ts.scheduler.Enqueue(payload)
		},
		OnFailure: func(err error) {
			ts.dropPending(request.ID)
		},
	})
	return request.ID, nil
}

// Get returns the texture only once it is resident on the device.
func (ts *TextureSystem) Get(name string) (*Texture, bool) {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()
	t, ok := ts.textures[name]
	return t, ok
}

// Count reports how many textures are resident.
func (ts *TextureSystem) Count() int {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()
	return len(ts.textures)
}

// PendingCount reports how many acquisitions have not completed yet.
func (ts *TextureSystem) PendingCount() int {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()
	return len(ts.pending)
}

// Release destroys the named texture's device resource.
func (ts *TextureSystem) Release(name string) {
	ts.mutex.Lock()
	t, ok := ts.textures[name]
	delete(ts.textures, name)
	ts.mutex.Unlock()
	if ok {
		ts.device.DestroyTarget(t.Handle)
	}
}

// onPublished installs a completed upload into the registry.
func (ts *TextureSystem) onPublished(res *upload.PublishedResource) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()
	delete(ts.pending, res.RequestID)

	generation := uint32(0)
	if old, ok := ts.textures[res.Name]; ok {
		generation = old.Generation + 1
		if generation == InvalidGeneration {
			generation = 0
		}
	}
	ts.textures[res.Name] = &Texture{
		Name:         res.Name,
		Handle:       res.Handle,
		Width:        res.Meta.Width,
		Height:       res.Meta.Height,
		ChannelCount: res.Meta.ChannelCount,
		Generation:   generation,
	}
	core.LogDebug("texture %s resident (%dx%d, generation %d)", res.Name, res.Meta.Width, res.Meta.Height, generation)
}

func (ts *TextureSystem) onFailed(failure *upload.UploadFailure) {
	ts.dropPending(failure.RequestID)
	core.LogError("texture %s failed to upload: %s", failure.Name, failure.Err.Error())
}

func (ts *TextureSystem) onCancelled(c *upload.CancelledUpload) {
	ts.dropPending(c.RequestID)
	core.LogDebug("texture %s load withdrawn", c.Name)
}

func (ts *TextureSystem) dropPending(id core.RequestID) {
	ts.mutex.Lock()
	defer ts.mutex.Unlock()
	delete(ts.pending, id)
}

func (ts *TextureSystem) Shutdown() error {
	ts.mutex.Lock()
	textures := ts.textures
	ts.textures = make(map[string]*Texture)
	ts.mutex.Unlock()

	for _, t := range textures {
		ts.device.DestroyTarget(t.Handle)
	}
	return nil
}
