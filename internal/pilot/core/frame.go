package core

import (
	"image"
	"time"
)

// Frame is one decoded video frame in packed RGB24.
type Frame struct {
	// Seq increases by one for every frame produced by a link.
	Seq        uint64
	Width      int
	Height     int
	Pix        []byte
	CapturedAt time.Time
}

// Degenerate reports whether the frame has no usable image content.
func (f *Frame) Degenerate() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*3
}

// Image converts the frame into an image.Image for encoding.
func (f *Frame) Image() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i+2 < len(f.Pix) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
