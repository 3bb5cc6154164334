package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/parallax/engine/core"
)

type AssetInfo struct {
	Path       string
	Type       ResourceType
	LastLoaded time.Time
}

// AssetManager indexes the on-disk asset tree, keeps the index fresh via
// fsnotify, and dispatches decoding to registered loaders. Loaders run on
// whatever goroutine calls LoadAsset; the manager itself only guards its
// index.
type AssetManager struct {
	baseDir string
	assets  map[string]AssetInfo
	loaders map[ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	am.baseDir = assetsDir

	go am.start()

	// Loaders are registered by the caller (see systems.NewSystemManager);
	// keeping them out of this package avoids an import cycle with
	// assets/loaders.
	return am.addRecursive(assetsDir)
}

// RegisterLoader installs a decoder for an asset type.
func (am *AssetManager) RegisterLoader(assetType ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// ResolvePath maps an asset name and type to its location in the asset tree.
func (am *AssetManager) ResolvePath(name string, resourceType ResourceType) (string, error) {
	switch resourceType {
	case ResourceTypeMesh:
		return filepath.Join(am.baseDir, "meshes", name+".obj"), nil
	case ResourceTypeImage:
		return filepath.Join(am.baseDir, "textures", name+".png"), nil
	default:
		return "", fmt.Errorf("unknown resource type %d", resourceType)
	}
}

// LoadAsset decodes the named asset using the registered loader. Safe to call
// from decoder workers concurrently.
func (am *AssetManager) LoadAsset(name string, resourceType ResourceType, params interface{}) (*Resource, error) {
	path, err := am.ResolvePath(name, resourceType)
	if err != nil {
		return nil, err
	}

	am.mutex.RLock()
	_, indexed := am.assets[path]
	loader, loaderExists := am.loaders[resourceType]
	am.mutex.RUnlock()

	if !indexed {
		// The watcher may not have caught up yet; the file is authoritative.
		if _, err := os.Stat(path); err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
	}
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}

	res, err := loader.Load(path, resourceType, params)
	if err != nil {
		return nil, err
	}
	res.Name = name

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: resourceType, LastLoaded: time.Now()}
	am.mutex.Unlock()

	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *Resource) error {
	if asset == nil {
		return nil
	}
	am.mutex.RLock()
	loader, ok := am.loaders[asset.Type]
	am.mutex.RUnlock()
	if !ok {
		return nil
	}
	return loader.Unload(asset)
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	return nil
}

// addRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	return am.watchRecursive(name, false)
}

func (am *AssetManager) start() {
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					am.watchRecursive(e.Name, false)
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			// Can't stat a deleted entry; drop it from both the index and
			// the watch list regardless of what it was.
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
				am.fsnotify.Remove(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds (or removes) all directories under the given one to the
// watch list, indexing files on the way.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file.
func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path: path,
		Type: assetType,
	}
}

// Remove the asset from the index if it was deleted.
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

func determineAssetType(path string) ResourceType {
	switch filepath.Ext(path) {
	case ".png":
		return ResourceTypeImage
	case ".obj":
		return ResourceTypeMesh
	default:
		return ResourceTypeNone
	}
}
