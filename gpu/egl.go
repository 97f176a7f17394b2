package gpu

/*
#cgo pkg-config: egl gbm
#cgo CFLAGS: -DEGL_NO_X11 -DMESA_EGL_NO_X11_HEADERS
#include <stdlib.h>
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <gbm.h>

static const char* crucible_egl_error_str(EGLint code) {
	switch (code) {
	case EGL_SUCCESS: return "EGL_SUCCESS";
	case EGL_NOT_INITIALIZED: return "EGL_NOT_INITIALIZED";
	case EGL_BAD_ACCESS: return "EGL_BAD_ACCESS";
	case EGL_BAD_ALLOC: return "EGL_BAD_ALLOC";
	case EGL_BAD_ATTRIBUTE: return "EGL_BAD_ATTRIBUTE";
	case EGL_BAD_CONFIG: return "EGL_BAD_CONFIG";
	case EGL_BAD_CONTEXT: return "EGL_BAD_CONTEXT";
	case EGL_BAD_CURRENT_SURFACE: return "EGL_BAD_CURRENT_SURFACE";
	case EGL_BAD_DISPLAY: return "EGL_BAD_DISPLAY";
	case EGL_BAD_MATCH: return "EGL_BAD_MATCH";
	case EGL_BAD_NATIVE_WINDOW: return "EGL_BAD_NATIVE_WINDOW";
	case EGL_BAD_SURFACE: return "EGL_BAD_SURFACE";
	case EGL_CONTEXT_LOST: return "EGL_CONTEXT_LOST";
	default: return "EGL_UNKNOWN";
	}
}
*/
import "C"

import (
	"unsafe"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Context owns the GBM device/surface and the EGL display/context bound to
// a DRM output.
type Context struct {
	gbmDev  *C.struct_gbm_device
	gbmSurf *C.struct_gbm_surface

	display C.EGLDisplay
	context C.EGLContext
	surface C.EGLSurface

	width  int
	height int

	log *logrus.Entry
}

func eglErr(what string) error {
	code := C.eglGetError()
	return trace.BadParameter("%s: %s", what, C.GoString(C.crucible_egl_error_str(code)))
}

// NewContext creates a GBM surface on the DRM fd and an EGL GLES context
// on it. GLES 3.1 is requested first, falling back to 3.0.
func NewContext(drmFd int, width, height int) (*Context, error) {
	c := &Context{
		width:  width,
		height: height,
		log:    logrus.WithField("component", "egl"),
	}

	c.gbmDev = C.gbm_create_device(C.int(drmFd))
	if c.gbmDev == nil {
		return nil, trace.BadParameter("gbm_create_device failed")
	}
	c.gbmSurf = C.gbm_surface_create(c.gbmDev, C.uint32_t(width), C.uint32_t(height),
		C.GBM_FORMAT_XRGB8888, C.GBM_BO_USE_SCANOUT|C.GBM_BO_USE_RENDERING)
	if c.gbmSurf == nil {
		c.Destroy()
		return nil, trace.BadParameter("gbm_surface_create %dx%d failed", width, height)
	}

	c.display = C.eglGetDisplay(C.EGLNativeDisplayType(unsafe.Pointer(c.gbmDev)))
	if c.display == nil {
		c.Destroy()
		return nil, eglErr("eglGetDisplay")
	}
	var major, minor C.EGLint
	if C.eglInitialize(c.display, &major, &minor) == C.EGL_FALSE {
		c.Destroy()
		return nil, eglErr("eglInitialize")
	}
	c.log.WithFields(logrus.Fields{"major": int(major), "minor": int(minor)}).Debug("EGL initialized")

	if C.eglBindAPI(C.EGL_OPENGL_ES_API) == C.EGL_FALSE {
		c.Destroy()
		return nil, eglErr("eglBindAPI")
	}

	configAttribs := []C.EGLint{
		C.EGL_SURFACE_TYPE, C.EGL_WINDOW_BIT,
		C.EGL_RED_SIZE, 8,
		C.EGL_GREEN_SIZE, 8,
		C.EGL_BLUE_SIZE, 8,
		C.EGL_ALPHA_SIZE, 0,
		C.EGL_RENDERABLE_TYPE, C.EGL_OPENGL_ES3_BIT,
		C.EGL_NONE,
	}
	var config C.EGLConfig
	var numConfigs C.EGLint
	if C.eglChooseConfig(c.display, &configAttribs[0], &config, 1, &numConfigs) == C.EGL_FALSE || numConfigs == 0 {
		c.Destroy()
		return nil, eglErr("eglChooseConfig")
	}

	for _, minorVer := range []C.EGLint{1, 0} {
		ctxAttribs := []C.EGLint{
			C.EGL_CONTEXT_MAJOR_VERSION, 3,
			C.EGL_CONTEXT_MINOR_VERSION, minorVer,
			C.EGL_NONE,
		}
		c.context = C.eglCreateContext(c.display, config, nil, &ctxAttribs[0])
		if c.context != nil {
			c.log.WithField("version", "3."+string('0'+byte(minorVer))).Debug("GLES context created")
			break
		}
	}
	if c.context == nil {
		c.Destroy()
		return nil, eglErr("eglCreateContext")
	}

	c.surface = C.eglCreateWindowSurface(c.display, config,
		C.EGLNativeWindowType(unsafe.Pointer(c.gbmSurf)), nil)
	if c.surface == nil {
		c.Destroy()
		return nil, eglErr("eglCreateWindowSurface")
	}

	if C.eglMakeCurrent(c.display, c.surface, c.surface, c.context) == C.EGL_FALSE {
		c.Destroy()
		return nil, eglErr("eglMakeCurrent")
	}
	// Page flips pace presentation; EGL must not throttle on its own.
	C.eglSwapInterval(c.display, 0)
	return c, nil
}

// Size returns the surface dimensions.
func (c *Context) Size() (int, int) { return c.width, c.height }

// GetProcAddress resolves a GL entry point for the go-gl loader.
func (c *Context) GetProcAddress(name string) unsafe.Pointer {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return unsafe.Pointer(C.eglGetProcAddress(cname))
}

// MakeCurrent rebinds the context on the calling thread.
func (c *Context) MakeCurrent() error {
	if C.eglMakeCurrent(c.display, c.surface, c.surface, c.context) == C.EGL_FALSE {
		return eglErr("eglMakeCurrent")
	}
	return nil
}

// SwapBuffers presents the back buffer to the GBM surface.
func (c *Context) SwapBuffers() error {
	if C.eglSwapBuffers(c.display, c.surface) == C.EGL_FALSE {
		return eglErr("eglSwapBuffers")
	}
	return nil
}

// FrontBuffer is a locked GBM buffer object ready for a DRM framebuffer.
type FrontBuffer struct {
	bo     *C.struct_gbm_bo
	Handle uint32
	Stride uint32
	Width  uint32
	Height uint32
}

// LockFrontBuffer locks the rendered buffer for scanout; release it after
// the page flip completes.
func (c *Context) LockFrontBuffer() (*FrontBuffer, error) {
	bo := C.gbm_surface_lock_front_buffer(c.gbmSurf)
	if bo == nil {
		return nil, trace.BadParameter("gbm_surface_lock_front_buffer failed")
	}
	handle := C.gbm_bo_get_handle(bo)
	return &FrontBuffer{
		bo:     bo,
		Handle: uint32(*(*C.uint32_t)(unsafe.Pointer(&handle))),
		Stride: uint32(C.gbm_bo_get_stride(bo)),
		Width:  uint32(C.gbm_bo_get_width(bo)),
		Height: uint32(C.gbm_bo_get_height(bo)),
	}, nil
}

// ReleaseBuffer returns a front buffer to the GBM surface.
func (c *Context) ReleaseBuffer(fb *FrontBuffer) {
	if fb != nil && fb.bo != nil {
		C.gbm_surface_release_buffer(c.gbmSurf, fb.bo)
		fb.bo = nil
	}
}

// Destroy tears down EGL and GBM state in reverse order.
func (c *Context) Destroy() {
	if c.display != nil {
		C.eglMakeCurrent(c.display, nil,
			nil, nil)
		if c.surface != nil {
			C.eglDestroySurface(c.display, c.surface)
			c.surface = nil
		}
		if c.context != nil {
			C.eglDestroyContext(c.display, c.context)
			c.context = nil
		}
		C.eglTerminate(c.display)
		c.display = nil
	}
	if c.gbmSurf != nil {
		C.gbm_surface_destroy(c.gbmSurf)
		c.gbmSurf = nil
	}
	if c.gbmDev != nil {
		C.gbm_device_destroy(c.gbmDev)
		c.gbmDev = nil
	}
}
