package loaders

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/parallax/engine/assets"
)

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tex.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestImageLoaderPixelCountRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 80), B: 10, A: 255})
		}
	}

	il := &ImageLoader{}
	res, err := il.Load(writePNG(t, img), assets.ResourceTypeImage, nil)
	require.NoError(t, err)

	data, ok := res.Data.(*assets.ImageData)
	require.True(t, ok)
	assert.Equal(t, uint32(4), data.Width)
	assert.Equal(t, uint32(3), data.Height)
	assert.Equal(t, uint8(4), data.ChannelCount)
	assert.Len(t, data.Pixels, 4*3*4)
	// spot-check a pixel survives the round trip
	assert.Equal(t, uint8(60), data.Pixels[4]) // (1,0).R
}

func TestImageLoaderConvertsToRGBA(t *testing.T) {
	// grayscale source must still come out as 4-channel RGBA
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(0, 0, color.Gray{Y: 200})

	il := &ImageLoader{}
	res, err := il.Load(writePNG(t, img), assets.ResourceTypeImage, nil)
	require.NoError(t, err)

	data := res.Data.(*assets.ImageData)
	assert.Len(t, data.Pixels, 2*2*4)
	assert.Equal(t, uint8(200), data.Pixels[0])
	assert.Equal(t, uint8(255), data.Pixels[3]) // opaque alpha
}

func TestImageLoaderFlipY(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.Set(0, 0, color.RGBA{R: 11, A: 255})
	img.Set(0, 1, color.RGBA{R: 22, A: 255})
	path := writePNG(t, img)

	il := &ImageLoader{}
	res, err := il.Load(path, assets.ResourceTypeImage, &assets.ImageParams{FlipY: true})
	require.NoError(t, err)

	data := res.Data.(*assets.ImageData)
	assert.Equal(t, uint8(22), data.Pixels[0])
	assert.Equal(t, uint8(11), data.Pixels[4])
}

func TestImageLoaderMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a png"), 0o644))

	il := &ImageLoader{}
	_, err := il.Load(path, assets.ResourceTypeImage, nil)
	var decodeErr *assets.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}
