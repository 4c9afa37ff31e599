package gpu

// sharpnessShader computes a Laplacian-variance sharpness score over
// an RGBA texture, used by the HDR+ engine's reference-frame selection
// (spec §4.E step 1: "Compute a sharpness score for each frame (GPU
// Laplacian variance); pick the argmax"). The shader writes per-pixel
// squared-Laplacian values to a storage buffer, but nothing in this
// package dispatches it: scores are computed on the CPU by
// SharpnessOfRGBA, which implements the same arithmetic.
const sharpnessShader = `#version 450
layout(local_size_x = 16, local_size_y = 16) in;
layout(binding = 0) uniform sampler2D srcTex;
layout(binding = 1, std430) buffer PartialSums { float sums[]; };

float luma(ivec2 p) {
	vec3 c = texelFetch(srcTex, p, 0).rgb;
	return dot(c, vec3(0.299, 0.587, 0.114));
}

void main() {
	ivec2 p = ivec2(gl_GlobalInvocationID.xy);
	ivec2 size = textureSize(srcTex, 0);
	if (p.x < 1 || p.y < 1 || p.x >= size.x-1 || p.y >= size.y-1) return;
	float lap = 4.0*luma(p) - luma(p+ivec2(1,0)) - luma(p-ivec2(1,0)) - luma(p+ivec2(0,1)) - luma(p-ivec2(0,1));
	uint idx = gl_GlobalInvocationID.y * uint(size.x) + gl_GlobalInvocationID.x;
	if (idx < sums.length()) {
		sums[idx] = lap * lap;
	}
}
`

// Sharpness reads t back to the CPU and scores it with SharpnessOfRGBA;
// the shader above is not dispatched. Higher is sharper.
func (d *Device) Sharpness(t *Texture) (float64, error) {
	rgba, err := d.Readback(t)
	if err != nil {
		return 0, err
	}
	return SharpnessOfRGBA(rgba, t.Width, t.Height), nil
}

// SharpnessOfRGBA computes the mean squared Laplacian response of an
// RGBA8 buffer's luma channel — the same reduction the shader above
// describes — and is the scoring used for reference-frame selection (spec §4.E step 1, §8 "reference
// selection picks frame 0" for identical inputs).
func SharpnessOfRGBA(rgba []byte, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0
	}
	luma := func(x, y int) float64 {
		i := (y*width + x) * 4
		r, g, b := float64(rgba[i]), float64(rgba[i+1]), float64(rgba[i+2])
		return 0.299*r + 0.587*g + 0.114*b
	}

	var sum float64
	count := 0
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			lap := 4*luma(x, y) - luma(x+1, y) - luma(x-1, y) - luma(x, y+1) - luma(x, y-1)
			sum += lap * lap
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
