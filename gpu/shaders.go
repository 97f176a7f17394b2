package gpu

// Vertex shader for solid rectangles: the quad corners are synthesized
// from gl_VertexID, so no vertex buffer is needed.
const rectVert = `#version 300 es
precision highp float;
uniform mat4 projection;
uniform vec4 rect; // x, y, w, h
out vec2 local;
void main() {
	vec2 corner = vec2(float(gl_VertexID & 1), float((gl_VertexID >> 1) & 1));
	local = corner;
	vec2 pos = rect.xy + corner * rect.zw;
	gl_Position = projection * vec4(pos, 0.0, 1.0);
}
`

const rectFrag = `#version 300 es
precision highp float;
uniform vec4 color;
in vec2 local;
out vec4 FragColor;
void main() {
	FragColor = color;
}
`

// Instanced vertex shader shared by the text, emoji, and image passes.
// Instance layout: rect(xywh), uv(xywh in texels), fg rgba, bg rgb + flags.
const textVert = `#version 300 es
precision highp float;
layout (location = 0) in vec4 aRect;
layout (location = 1) in vec4 aUV;
layout (location = 2) in vec4 aFg;
layout (location = 3) in vec4 aBgFlags;
uniform mat4 projection;
uniform float atlasSize;
out vec2 vUV;
out vec4 vFg;
out vec3 vBg;
out float vFlags;
void main() {
	vec2 corner = vec2(float(gl_VertexID & 1), float((gl_VertexID >> 1) & 1));
	vec2 pos = aRect.xy + corner * aRect.zw;
	gl_Position = projection * vec4(pos, 0.0, 1.0);
	vec2 uvPix = aUV.xy + corner * aUV.zw;
	vUV = uvPix / max(atlasSize, 1.0);
	vFg = aFg;
	vBg = aBgFlags.rgb;
	vFlags = aBgFlags.a;
}
`

// Text fragment shader: per-subpixel compositing against the per-instance
// background in linear light, so there is no antialiasing halo across
// color changes. Flag bit 0 forces the grayscale fallback (cells under a
// translucent overlay).
const textFrag = `#version 300 es
precision highp float;
in vec2 vUV;
in vec4 vFg;
in vec3 vBg;
in float vFlags;
uniform sampler2D atlas;
out vec4 FragColor;

vec3 srgbToLinear(vec3 c) {
	return mix(c / 12.92, pow((c + 0.055) / 1.055, vec3(2.4)), step(0.04045, c));
}
vec3 linearToSrgb(vec3 c) {
	return mix(c * 12.92, 1.055 * pow(c, vec3(1.0 / 2.4)) - 0.055, step(0.0031308, c));
}

void main() {
	vec3 coverage = texture(atlas, vUV).rgb;
	if (vFlags >= 1.0) {
		float a = (coverage.r + coverage.g + coverage.b) / 3.0;
		FragColor = vec4(vFg.rgb, vFg.a * a);
		return;
	}
	vec3 fgLin = srgbToLinear(vFg.rgb);
	vec3 bgLin = srgbToLinear(vBg);
	vec3 outLin = mix(bgLin, fgLin, coverage);
	float alpha = max(coverage.r, max(coverage.g, coverage.b)) * vFg.a;
	FragColor = vec4(linearToSrgb(outLin), alpha);
}
`

// Emoji fragment shader: the atlas is sRGB content already composited;
// output straight with its alpha.
const emojiFrag = `#version 300 es
precision highp float;
in vec2 vUV;
in vec4 vFg;
in vec3 vBg;
in float vFlags;
uniform sampler2D atlas;
out vec4 FragColor;
void main() {
	FragColor = texture(atlas, vUV);
}
`

const imageFrag = `#version 300 es
precision highp float;
in vec2 vUV;
in vec4 vFg;
in vec3 vBg;
in float vFlags;
uniform sampler2D tex;
out vec4 FragColor;
void main() {
	FragColor = texture(tex, vUV);
}
`

// Curly underline: signed distance to a sine wave, smoothstep for
// anti-aliasing; one rectangle covers the wave's envelope.
const curlyFrag = `#version 300 es
precision highp float;
uniform vec4 rect;
uniform vec4 color;
uniform float thickness;
uniform float period;
in vec2 local;
out vec4 FragColor;
void main() {
	float x = local.x * rect.z;
	float y = (local.y - 0.5) * rect.w;
	float amp = rect.w * 0.5 - thickness;
	float wave = amp * sin(6.28318530718 * x / period);
	float dist = abs(y - wave);
	float aa = smoothstep(thickness * 0.5 + 0.75, thickness * 0.5 - 0.75, dist);
	FragColor = vec4(color.rgb, color.a * aa);
}
`

// Full-screen blit of the cached FBO, positions from gl_VertexID.
const blitVert = `#version 300 es
precision highp float;
out vec2 vUV;
void main() {
	vec2 corner = vec2(float(gl_VertexID & 1), float((gl_VertexID >> 1) & 1));
	vUV = corner;
	gl_Position = vec4(corner * 2.0 - 1.0, 0.0, 1.0);
}
`

const blitFrag = `#version 300 es
precision highp float;
in vec2 vUV;
uniform sampler2D tex;
out vec4 FragColor;
void main() {
	// The FBO is y-up relative to the default framebuffer.
	FragColor = texture(tex, vec2(vUV.x, 1.0 - vUV.y));
}
`
