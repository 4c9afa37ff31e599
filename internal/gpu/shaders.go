package gpu

import "camera-core/internal/pixelformat"

// Shader sources for each pixel-format conversion pipeline (spec
// §4.D.1: "one specialised compute shader per pixel format"). Kept as
// embedded GLSL source constants compiled at pipeline-creation time —
// see DESIGN.md for why no runtime shaderc dependency is wired.
//
// Each shader writes an RGBA8Unorm storage image using the BT.601
// matrix the spec's round-trip property pins: Y=16,U=V=128 -> black;
// Y=235,U=V=128 -> white.

const bt601Matrix = `
vec3 yuvToRgb(float y, float u, float v) {
	y = (y - 16.0/255.0) * (255.0/219.0);
	u = u - 0.5;
	v = v - 0.5;
	float r = y + 1.402 * v;
	float g = y - 0.344136 * u - 0.714136 * v;
	float b = y + 1.772 * u;
	return clamp(vec3(r, g, b), 0.0, 1.0);
}
`

const shaderNV12 = `#version 450
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform sampler2D yTex;
layout(binding = 1) uniform sampler2D uvTex;
layout(binding = 2, rgba8) uniform writeonly image2D outImg;
` + bt601Matrix + `
void main() {
	ivec2 p = ivec2(gl_GlobalInvocationID.xy);
	if (p.x >= imageSize(outImg).x || p.y >= imageSize(outImg).y) return;
	float y = texelFetch(yTex, p, 0).r;
	vec2 uv = texelFetch(uvTex, p / 2, 0).rg;
	vec3 rgb = yuvToRgb(y, uv.x, uv.y);
	imageStore(outImg, p, vec4(rgb, 1.0));
}
`

// shaderNV21 swaps the UV channel order relative to NV12 (V then U).
const shaderNV21 = `#version 450
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform sampler2D yTex;
layout(binding = 1) uniform sampler2D vuTex;
layout(binding = 2, rgba8) uniform writeonly image2D outImg;
` + bt601Matrix + `
void main() {
	ivec2 p = ivec2(gl_GlobalInvocationID.xy);
	if (p.x >= imageSize(outImg).x || p.y >= imageSize(outImg).y) return;
	float y = texelFetch(yTex, p, 0).r;
	vec2 vu = texelFetch(vuTex, p / 2, 0).rg;
	vec3 rgb = yuvToRgb(y, vu.y, vu.x);
	imageStore(outImg, p, vec4(rgb, 1.0));
}
`

// shaderPlanar handles I420/I422/I444 via uniform chroma dimensions
// rather than three separate shaders (spec §4.D.1 "Handles I422 and
// I444 via the same shader by passing the chroma dimensions in
// uniforms").
const shaderPlanar = `#version 450
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform sampler2D yTex;
layout(binding = 1) uniform sampler2D uTex;
layout(binding = 2) uniform sampler2D vTex;
layout(binding = 3, rgba8) uniform writeonly image2D outImg;
layout(binding = 4) uniform ChromaDims { ivec2 chromaShift; } dims;
` + bt601Matrix + `
void main() {
	ivec2 p = ivec2(gl_GlobalInvocationID.xy);
	if (p.x >= imageSize(outImg).x || p.y >= imageSize(outImg).y) return;
	float y = texelFetch(yTex, p, 0).r;
	ivec2 cp = p >> dims.chromaShift;
	float u = texelFetch(uTex, cp, 0).r;
	float v = texelFetch(vTex, cp, 0).r;
	vec3 rgb = yuvToRgb(y, u, v);
	imageStore(outImg, p, vec4(rgb, 1.0));
}
`

// shaderPacked422 handles the YUYV/UYVY/YVYU/VYUY family: one
// RGBA8Unorm texture at (width/2, height), each texel carrying two
// luma samples and one shared chroma pair, with per-variant channel
// order supplied via a uniform (spec §4.D.1 packed 4:2:2).
const shaderPacked422 = `#version 450
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform usampler2D packedTex;
layout(binding = 1, rgba8) uniform writeonly image2D outImg;
layout(binding = 2) uniform ChannelOrder { ivec4 order; } ord; // indices of Y0,U,Y1,V within the texel's 4 bytes
` + bt601Matrix + `
void main() {
	ivec2 p = ivec2(gl_GlobalInvocationID.xy);
	if (p.x >= imageSize(outImg).x || p.y >= imageSize(outImg).y) return;
	ivec2 texel = ivec2(p.x / 2, p.y);
	uvec4 quad = texelFetch(packedTex, texel, 0);
	float bytes_[4] = float[4](quad.x/255.0, quad.y/255.0, quad.z/255.0, quad.w/255.0);
	float y = (p.x % 2 == 0) ? bytes_[ord.order.x] : bytes_[ord.order.z];
	float u = bytes_[ord.order.y];
	float v = bytes_[ord.order.w];
	vec3 rgb = yuvToRgb(y, u, v);
	imageStore(outImg, p, vec4(rgb, 1.0));
}
`

const shaderGray8 = `#version 450
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform sampler2D grayTex;
layout(binding = 1, rgba8) uniform writeonly image2D outImg;
void main() {
	ivec2 p = ivec2(gl_GlobalInvocationID.xy);
	if (p.x >= imageSize(outImg).x || p.y >= imageSize(outImg).y) return;
	float g = texelFetch(grayTex, p, 0).r;
	imageStore(outImg, p, vec4(g, g, g, 1.0));
}
`

// shaderSourceFor returns the compute shader source for the given
// format's conversion pipeline, or "" if the format has no GPU
// conversion path (e.g. raw Bayer: no shader here and no CPU demosaic
// elsewhere in the module converts it).
func shaderSourceFor(f pixelformat.Format) string {
	switch f {
	case pixelformat.NV12:
		return shaderNV12
	case pixelformat.NV21:
		return shaderNV21
	case pixelformat.I420, pixelformat.I422, pixelformat.I444:
		return shaderPlanar
	case pixelformat.YUYV, pixelformat.UYVY, pixelformat.YVYU, pixelformat.VYUY:
		return shaderPacked422
	case pixelformat.Gray8:
		return shaderGray8
	default:
		return ""
	}
}

// packedChannelOrder returns the byte-index order (Y0,U,Y1,V) within
// a packed 4:2:2 texel for each variant (spec §6 byte-layout table).
func packedChannelOrder(f pixelformat.Format) [4]int32 {
	switch f {
	case pixelformat.YUYV:
		return [4]int32{0, 1, 2, 3} // Y0 U Y1 V
	case pixelformat.UYVY:
		return [4]int32{1, 0, 3, 2} // U Y0 V Y1
	case pixelformat.YVYU:
		return [4]int32{0, 3, 2, 1} // Y0 V Y1 U
	case pixelformat.VYUY:
		return [4]int32{1, 2, 3, 0} // V Y0 U Y1
	default:
		return [4]int32{0, 1, 2, 3}
	}
}
