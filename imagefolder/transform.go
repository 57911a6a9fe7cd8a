package imagefolder

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/pkg/errors"
)

// Inference-time transform matching the torchvision evaluation pipeline for
// ImageNet models: resize the shorter side to ResizeSize, center-crop
// CropSize, scale to [0, 1] and normalize per channel.
const (
	ResizeSize = 256
	CropSize   = 224
	// NumChannels of the model input (RGB).
	NumChannels = 3
)

// ImageNet channel statistics, in RGB order.
var (
	meanRGB = [NumChannels]float32{0.485, 0.456, 0.406}
	stdRGB  = [NumChannels]float32{0.229, 0.224, 0.225}
)

// transform decodes one image and returns its normalized CHW float32 pixels,
// length NumChannels*CropSize*CropSize.
func transform(encoded []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return toCHW(centerCrop(resizeShorterSide(img, ResizeSize), CropSize)), nil
}

// resizeShorterSide scales img so its shorter side becomes size, preserving
// the aspect ratio. Bilinear, as torchvision defaults to.
func resizeShorterSide(img image.Image, size int) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	var newW, newH int
	if w <= h {
		newW = size
		newH = max(1, h*size/w)
	} else {
		newH = size
		newW = max(1, w*size/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}

// centerCrop cuts a size x size window from the middle of img.
func centerCrop(img *image.RGBA, size int) *image.RGBA {
	bounds := img.Bounds()
	x0 := bounds.Min.X + (bounds.Dx()-size)/2
	y0 := bounds.Min.Y + (bounds.Dy()-size)/2
	return img.SubImage(image.Rect(x0, y0, x0+size, y0+size)).(*image.RGBA)
}

// toCHW converts the cropped RGBA image to normalized channels-first floats.
func toCHW(img *image.RGBA) []float32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	flat := make([]float32, NumChannels*h*w)
	plane := h * w
	for y := range h {
		for x := range w {
			offset := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			for c := range NumChannels {
				v := float32(img.Pix[offset+c]) / 255
				flat[c*plane+y*w+x] = (v - meanRGB[c]) / stdRGB[c]
			}
		}
	}
	return flat
}
