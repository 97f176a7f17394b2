package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	gl "github.com/go-gl/gl/v3.1/gles2"
	"github.com/gravitational/trace"
)

// saveScreenshot reads the default framebuffer, flips it vertically, and
// writes a timestamped PNG into the configured directory.
func (a *App) saveScreenshot() (string, error) {
	w, h := a.ctx.Size()
	pix := make([]byte, w*h*4)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pix))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	stride := w * 4
	for y := 0; y < h; y++ {
		src := pix[y*stride : (y+1)*stride]
		dst := img.Pix[(h-1-y)*img.Stride:]
		copy(dst[:stride], src)
	}
	// GL gives no alpha guarantee on the default framebuffer.
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}

	dir := a.cfg.Paths.ScreenshotDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", trace.ConvertSystemError(err)
	}
	name := "crucible-" + time.Now().Format("20060102-150405") + ".png"
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", trace.ConvertSystemError(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		os.Remove(path)
		return "", trace.Wrap(err)
	}
	return path, nil
}
