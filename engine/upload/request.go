package upload

import (
	"github.com/spaghettifunk/parallax/engine/core"
	"github.com/spaghettifunk/parallax/engine/gpu"
)

type AssetKind uint8

const (
	AssetMesh AssetKind = iota
	AssetTexture
)

func (k AssetKind) String() string {
	if k == AssetTexture {
		return "texture"
	}
	return "mesh"
}

type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// AssetRequest identifies one asset to be loaded and uploaded. Created when
// the application requests an asset, terminal once fulfilled or cancelled.
type AssetRequest struct {
	ID       core.RequestID
	Name     string
	Kind     AssetKind
	Priority Priority
}

func NewAssetRequest(name string, kind AssetKind, priority Priority) *AssetRequest {
	return &AssetRequest{
		ID:       core.NewRequestID(),
		Name:     name,
		Kind:     kind,
		Priority: priority,
	}
}

// ResourceMeta carries the CPU-side shape of an uploaded resource so the
// consumer can bind it without inspecting device memory.
type ResourceMeta struct {
	// meshes
	VertexCount    uint32
	IndexCount     uint32
	VertexDataSize uint64 // byte offset where index data begins
	// textures
	Width        uint32
	Height       uint32
	ChannelCount uint8
}

// Payload is a decoded CPU buffer handed from a decoder worker to the
// transfer scheduler. Bytes are laid out exactly as they will live in device
// memory.
type Payload struct {
	Request *AssetRequest
	Bytes   []byte
	Desc    gpu.TargetDesc
	Meta    ResourceMeta
}

// PublishedResource is the consumer-visible result of a finished upload. The
// handle is write-once at completion and read-only for the render loop.
type PublishedResource struct {
	RequestID core.RequestID
	Name      string
	Kind      AssetKind
	Handle    gpu.ResourceHandle
	Queue     gpu.QueueKind
	Meta      ResourceMeta
}

// UploadFailure reports a terminal upload error to the original requester.
type UploadFailure struct {
	RequestID core.RequestID
	Name      string
	Kind      AssetKind
	Err       error
}

// CancelledUpload reports a withdrawn request so requesters can clear their
// bookkeeping. No handle was ever published for it.
type CancelledUpload struct {
	RequestID core.RequestID
	Name      string
	Kind      AssetKind
}
