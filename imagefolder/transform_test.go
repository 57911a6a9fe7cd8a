package imagefolder

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransformShapeAndNormalization(t *testing.T) {
	// A uniform image stays uniform through resize and crop, so every output
	// value must be exactly the normalized channel value.
	fill := color.RGBA{R: 124, G: 116, B: 104, A: 255} // ~ImageNet mean
	encoded := encodePNG(t, 300, 500, fill)

	flat, err := transform(encoded)
	require.NoError(t, err)
	require.Len(t, flat, NumChannels*CropSize*CropSize)

	plane := CropSize * CropSize
	channels := [NumChannels]uint8{fill.R, fill.G, fill.B}
	for c := range NumChannels {
		want := (float32(channels[c])/255 - meanRGB[c]) / stdRGB[c]
		for i := range plane {
			require.InDelta(t, want, flat[c*plane+i], 1e-2,
				"channel %d, pixel %d", c, i)
		}
	}
}

func TestTransformRejectsGarbage(t *testing.T) {
	_, err := transform([]byte("definitely not an image"))
	require.ErrorContains(t, err, "failed to decode image")
}

func TestResizeShorterSide(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{w: 100, h: 200, wantW: 256, wantH: 512},
		{w: 300, h: 200, wantW: 384, wantH: 256},
		{w: 256, h: 256, wantW: 256, wantH: 256},
		{w: 500, h: 300, wantW: 426, wantH: 256},
	}
	for _, test := range tests {
		img := image.NewRGBA(image.Rect(0, 0, test.w, test.h))
		resized := resizeShorterSide(img, ResizeSize)
		bounds := resized.Bounds()
		require.Equal(t, test.wantW, bounds.Dx(), "%dx%d", test.w, test.h)
		require.Equal(t, test.wantH, bounds.Dy(), "%dx%d", test.w, test.h)
	}
}

func TestCenterCrop(t *testing.T) {
	// Paint a distinct color in the exact center window and crop it out.
	img := image.NewRGBA(image.Rect(0, 0, 300, 260))
	red := color.RGBA{R: 255, A: 255}
	x0, y0 := (300-CropSize)/2, (260-CropSize)/2
	for y := y0; y < y0+CropSize; y++ {
		for x := x0; x < x0+CropSize; x++ {
			img.SetRGBA(x, y, red)
		}
	}

	cropped := centerCrop(img, CropSize)
	bounds := cropped.Bounds()
	require.Equal(t, CropSize, bounds.Dx())
	require.Equal(t, CropSize, bounds.Dy())
	require.Equal(t, red, cropped.RGBAAt(bounds.Min.X, bounds.Min.Y))
	require.Equal(t, red, cropped.RGBAAt(bounds.Max.X-1, bounds.Max.Y-1))
}
