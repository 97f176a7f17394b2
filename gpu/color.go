// Package gpu renders frames with GLES 3.x over an EGL/GBM surface bound
// to a DRM output.
package gpu

import (
	"math"
)

// RGBA is a premultiplied-free float color used by the renderer.
type RGBA [4]float32

// FromBytes converts 8-bit sRGB components.
func FromBytes(r, g, b uint8, a float32) RGBA {
	return RGBA{float32(r) / 255, float32(g) / 255, float32(b) / 255, a}
}

// SrgbToLinear converts one sRGB channel to linear light.
func SrgbToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return float32(math.Pow(float64(c+0.055)/1.055, 2.4))
}

// LinearToSrgb converts one linear-light channel to sRGB.
func LinearToSrgb(c float32) float32 {
	if c <= 0.0031308 {
		return c * 12.92
	}
	return float32(1.055*math.Pow(float64(c), 1/2.4) - 0.055)
}

// BlendLinear blends overlay over base with the overlay's alpha, in linear
// light: sRGB -> linear, lerp, linear -> sRGB. Matches the text shader's
// compositing so highlight rectangles do not shift hue.
func BlendLinear(base, overlay RGBA) RGBA {
	a := overlay[3]
	var out RGBA
	for i := 0; i < 3; i++ {
		b := SrgbToLinear(base[i])
		o := SrgbToLinear(overlay[i])
		out[i] = LinearToSrgb(b + (o-b)*a)
	}
	out[3] = base[3]
	return out
}
