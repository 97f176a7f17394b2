package gpu

import (
	"strings"

	gl "github.com/go-gl/gl/v3.1/gles2"
	"github.com/gravitational/trace"
)

// compileShader compiles one shader stage, returning the GL object.
func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(logText))
		gl.DeleteShader(shader)
		return 0, trace.BadParameter("shader compile failed: %s", strings.TrimRight(logText, "\x00"))
	}
	return shader, nil
}

// createProgram compiles and links a vertex + fragment program.
func createProgram(vertexSource, fragmentSource string) (uint32, error) {
	vertex, err := compileShader(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, trace.Wrap(err, "vertex shader")
	}
	defer gl.DeleteShader(vertex)

	fragment, err := compileShader(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, trace.Wrap(err, "fragment shader")
	}
	defer gl.DeleteShader(fragment)

	program := gl.CreateProgram()
	gl.AttachShader(program, vertex)
	gl.AttachShader(program, fragment)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(logText))
		gl.DeleteProgram(program)
		return 0, trace.BadParameter("program link failed: %s", strings.TrimRight(logText, "\x00"))
	}
	return program, nil
}

// orthoMatrix builds a column-major orthographic projection.
func orthoMatrix(left, right, bottom, top, near, far float32) [16]float32 {
	var m [16]float32
	m[0] = 2 / (right - left)
	m[5] = 2 / (top - bottom)
	m[10] = -2 / (far - near)
	m[12] = -(right + left) / (right - left)
	m[13] = -(top + bottom) / (top - bottom)
	m[14] = -(far + near) / (far - near)
	m[15] = 1
	return m
}
