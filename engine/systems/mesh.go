package systems

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/parallax/engine/assets"
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
	"github.com/spaghettifunk/parallax/engine/upload"
)

type MeshSystemConfig struct {
	MaxMeshCount uint32
}

// Mesh is fully uploaded geometry: one device buffer holding interleaved
// vertices followed by indices, split at VertexDataSize.
type Mesh struct {
	Name           string
	Handle         gpu.ResourceHandle
	VertexCount    uint32
	IndexCount     uint32
	VertexDataSize uint64
	Generation     uint32
}

// MeshSystem decodes and uploads geometry through the pipeline, mirroring
// the texture system.
type MeshSystem struct {
	config *MeshSystemConfig

	mutex   sync.RWMutex
	meshes  map[string]*Mesh
	pending map[core.RequestID]string

	jobSystem    *JobSystem
	assetManager *assets.AssetManager
	scheduler    *upload.Scheduler
	device       gpu.Device
}

func NewMeshSystem(config *MeshSystemConfig, js *JobSystem, am *assets.AssetManager, sched *upload.Scheduler, device gpu.Device) (*MeshSystem, error) {
	if config.MaxMeshCount == 0 {
		err := errors.New("func NewMeshSystem - config.MaxMeshCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}

	return &MeshSystem{
		config:       config,
		meshes:       make(map[string]*Mesh),
		pending:      make(map[core.RequestID]string),
		jobSystem:    js,
		assetManager: am,
		scheduler:    sched,
		device:       device,
	}, nil
}

// Acquire starts loading the named mesh. No new work is queued when the mesh
// is already resident or in flight.
func (ms *MeshSystem) Acquire(name string, priority upload.Priority) (core.RequestID, error) {
	ms.mutex.Lock()
	if _, ok := ms.meshes[name]; ok {
		ms.mutex.Unlock()
		return core.NilRequestID, nil
	}
	for _, pendingName := range ms.pending {
		if pendingName == name {
			ms.mutex.Unlock()
			return core.NilRequestID, nil
		}
	}
	if uint32(len(ms.meshes)+len(ms.pending)) >= ms.config.MaxMeshCount {
		ms.mutex.Unlock()
		return core.NilRequestID, errors.Newf("mesh system is full (%d)", ms.config.MaxMeshCount)
	}

	request := upload.NewAssetRequest(name, upload.AssetMesh, priority)
	ms.pending[request.ID] = name
	ms.mutex.Unlock()

	ms.jobSystem.Submit(JobTask{
		Name: "decode mesh " + name,
		Run: func() error {
			res, err := ms.assetManager.LoadAsset(name, assets.ResourceTypeMesh, nil)
			if err != nil {
				return err
			}
			mesh := res.Data.(*assets.MeshData)
			payload, err := upload.NewMeshPayload(request, mesh)
			if err != nil {
				return err
			}
			return ms.scheduler.Enqueue(payload)
		},
		OnFailure: func(err error) {
			ms.dropPending(request.ID)
		},
	})
	return request.ID, nil
}

// Get returns the mesh only once it is resident on the device.
func (ms *MeshSystem) Get(name string) (*Mesh, bool) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	m, ok := ms.meshes[name]
	return m, ok
}

func (ms *MeshSystem) Count() int {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return len(ms.meshes)
}

func (ms *MeshSystem) PendingCount() int {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return len(ms.pending)
}

func (ms *MeshSystem) Release(name string) {
	ms.mutex.Lock()
	m, ok := ms.meshes[name]
	delete(ms.meshes, name)
	ms.mutex.Unlock()
	if ok {
		ms.device.DestroyTarget(m.Handle)
	}
}

func (ms *MeshSystem) onPublished(res *upload.PublishedResource) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	delete(ms.pending, res.RequestID)

	generation := uint32(0)
	if old, ok := ms.meshes[res.Name]; ok {
		generation = old.Generation + 1
		if generation == InvalidGeneration {
			generation = 0
		}
	}
	ms.meshes[res.Name] = &Mesh{
		Name:           res.Name,
		Handle:         res.Handle,
		VertexCount:    res.Meta.VertexCount,
		IndexCount:     res.Meta.IndexCount,
		VertexDataSize: res.Meta.VertexDataSize,
		Generation:     generation,
	}
	core.LogDebug("mesh %s resident (%d vertices, %d indices, generation %d)",
		res.Name, res.Meta.VertexCount, res.Meta.IndexCount, generation)
}

func (ms *MeshSystem) onFailed(failure *upload.UploadFailure) {
	ms.dropPending(failure.RequestID)
	core.LogError("mesh %s failed to upload: %s", failure.Name, failure.Err.Error())
}

func (ms *MeshSystem) onCancelled(c *upload.CancelledUpload) {
	ms.dropPending(c.RequestID)
	core.LogDebug("mesh %s load withdrawn", c.Name)
}

func (ms *MeshSystem) dropPending(id core.RequestID) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	delete(ms.pending, id)
}

func (ms *MeshSystem) Shutdown() error {
	ms.mutex.Lock()
	meshes := ms.meshes
	ms.meshes = make(map[string]*Mesh)
	ms.mutex.Unlock()

	for _, m := range meshes {
		ms.device.DestroyTarget(m.Handle)
	}
	return nil
}
