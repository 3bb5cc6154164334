package loaders

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/spaghettifunk/parallax/engine/assets"
)

// ImageLoader decodes .png textures to 8-bit RGBA pixel buffers.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, assetType assets.ResourceType, params interface{}) (*assets.Resource, error) {
	flipY := false
	if p, ok := params.(*assets.ImageParams); ok && p != nil {
		flipY = p.FlipY
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &assets.DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, &assets.DecodeError{Path: path, Err: err}
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, &assets.DecodeError{Path: path, Err: fmt.Errorf("image has zero dimension")}
	}

	// normalize any source color model to RGBA
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := rgba.Pix
	if flipY {
		pixels = flipRows(pixels, rgba.Stride, height)
	}

	return &assets.Resource{
		Name:     path,
		FullPath: path,
		Type:     assets.ResourceTypeImage,
		DataSize: uint64(len(pixels)),
		Data: &assets.ImageData{
			Width:        uint32(width),
			Height:       uint32(height),
			ChannelCount: 4,
			Pixels:       pixels,
		},
	}, nil
}

func (il *ImageLoader) Unload(*assets.Resource) error {
	return nil
}

func flipRows(pixels []uint8, stride, height int) []uint8 {
	out := make([]uint8, len(pixels))
	for y := 0; y < height; y++ {
		src := pixels[y*stride : (y+1)*stride]
		dst := out[(height-1-y)*stride : (height-y)*stride]
		copy(dst, src)
	}
	return out
}
