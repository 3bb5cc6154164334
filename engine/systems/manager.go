package systems

import (
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/parallax/engine/assets"
	"github.com/spaghettifunk/parallax/engine/assets/loaders"
	"github.com/spaghettifunk/parallax/engine/config"
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
	"github.com/spaghettifunk/parallax/engine/upload"
)

// SystemManager wires the asset manager, decode workers and the upload
// pipeline together and owns their lifecycles.
type SystemManager struct {
	assetManager *assets.AssetManager
	jobSystem    *JobSystem

	staging   *upload.StagingAllocator
	tracker   *upload.Tracker
	scheduler *upload.Scheduler

	meshSystem    *MeshSystem
	textureSystem *TextureSystem

	device gpu.Device
}

func NewSystemManager(cfg *config.Config, device gpu.Device) (*SystemManager, error) {
	am, err := assets.NewAssetManager()
	if err != nil {
		return nil, err
	}
	am.RegisterLoader(assets.ResourceTypeMesh, &loaders.ModelLoader{})
	am.RegisterLoader(assets.ResourceTypeImage, &loaders.ImageLoader{})
	if err := am.Initialize(cfg.Assets.BaseDir); err != nil {
		return nil, err
	}

	js, err := NewJobSystem(cfg.Upload.WorkerCount, cfg.Upload.QueueDepth)
	if err != nil {
		return nil, err
	}

	staging := upload.NewStagingAllocator(cfg.Upload.StagingPoolSize, cfg.Upload.DebugChecks)
	tracker := upload.NewTracker()
	scheduler, err := upload.NewScheduler(device, staging, tracker, upload.SchedulerConfig{
		QueueDepth:            cfg.Upload.QueueDepth,
		TransferInFlightLimit: cfg.Upload.TransferInFlightLimit,
	})
	if err != nil {
		return nil, err
	}
	scheduler.Start()

	ms, err := NewMeshSystem(&MeshSystemConfig{
		MaxMeshCount: 1000,
	}, js, am, scheduler, device)
	if err != nil {
		return nil, err
	}
	ts, err := NewTextureSystem(&TextureSystemConfig{
		MaxTextureCount: 1000,
	}, js, am, scheduler, device)
	if err != nil {
		return nil, err
	}

	return &SystemManager{
		assetManager:  am,
		jobSystem:     js,
		staging:       staging,
		tracker:       tracker,
		scheduler:     scheduler,
		meshSystem:    ms,
		textureSystem: ts,
		device:        device,
	}, nil
}

// Update drains completed and failed uploads and routes them to their
// systems. Called once per frame from the main loop; this is the only place
// where handles become visible.
func (sm *SystemManager) Update() {
	for _, res := range sm.tracker.PollCompleted() {
		switch res.Kind {
		case upload.AssetMesh:
			sm.meshSystem.onPublished(res)
		case upload.AssetTexture:
			sm.textureSystem.onPublished(res)
		}
	}
	for _, failure := range sm.tracker.PollFailed() {
		switch failure.Kind {
		case upload.AssetMesh:
			sm.meshSystem.onFailed(failure)
		case upload.AssetTexture:
			sm.textureSystem.onFailed(failure)
		}
	}
	for _, c := range sm.tracker.PollCancelled() {
		switch c.Kind {
		case upload.AssetMesh:
			sm.meshSystem.onCancelled(c)
		case upload.AssetTexture:
			sm.textureSystem.onCancelled(c)
		}
	}
}

// LoadScene kicks off all the meshes and textures of a scene at once. It
// returns once every request is queued, not when the uploads finish; the
// per-frame Update makes results visible as they land.
func (sm *SystemManager) LoadScene(meshNames, textureNames []string) error {
	var group errgroup.Group
	for _, name := range meshNames {
		name := name
		group.Go(func() error {
			_, err := sm.meshSystem.Acquire(name, upload.PriorityNormal)
			return err
		})
	}
	for _, name := range textureNames {
		name := name
		group.Go(func() error {
			_, err := sm.textureSystem.Acquire(name, upload.PriorityNormal)
			return err
		})
	}
	return group.Wait()
}

// CancelLoad withdraws an in-flight request.
func (sm *SystemManager) CancelLoad(id core.RequestID) bool {
	return sm.scheduler.Cancel(id)
}

func (sm *SystemManager) MeshSystem() *MeshSystem            { return sm.meshSystem }
func (sm *SystemManager) TextureSystem() *TextureSystem      { return sm.textureSystem }
func (sm *SystemManager) Tracker() *upload.Tracker           { return sm.tracker }
func (sm *SystemManager) Scheduler() *upload.Scheduler       { return sm.scheduler }
func (sm *SystemManager) AssetManager() *assets.AssetManager { return sm.assetManager }

func (sm *SystemManager) Shutdown() error {
	if err := sm.jobSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.scheduler.Shutdown(); err != nil {
		return err
	}
	if err := sm.meshSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.textureSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.assetManager.Shutdown(); err != nil {
		return err
	}
	return nil
}
