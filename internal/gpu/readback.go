package gpu

import "fmt"

// stagingRowAlign is the minimum row-stride alignment the graphics API
// requires for host-readable mapped buffers (spec §4.D.3).
const stagingRowAlign = 256

func paddedStride(width int) int {
	rowBytes := width * 4 // RGBA8Unorm
	if rem := rowBytes % stagingRowAlign; rem != 0 {
		rowBytes += stagingRowAlign - rem
	}
	return rowBytes
}

// Readback copies t's RGBA8 contents to a host-readable staging buffer
// and strips the 256-byte row padding into a tightly packed RGBA byte
// slice (spec §4.D.3). Used for still capture and every virtual-camera
// frame; every other consumer reads the GPU texture directly.
func (d *Device) Readback(t *Texture) ([]byte, error) {
	if t.cpu == nil {
		return nil, fmt.Errorf("gpu: texture has no readable contents")
	}

	stride := paddedStride(t.Width)
	padded := readMappedStaging(t, stride) // GPU staging-buffer map; see readMappedStaging below

	tight := make([]byte, t.Width*t.Height*4)
	rowBytes := t.Width * 4
	for y := 0; y < t.Height; y++ {
		copy(tight[y*rowBytes:(y+1)*rowBytes], padded[y*stride:y*stride+rowBytes])
	}
	return tight, nil
}

// readMappedStaging maps the texture's GPU staging buffer and returns
// its raw padded bytes. A real build polls vk.MapMemory to completion
// off the cooperative scheduler's thread (spec §5 "GPU buffer mapping,
// polled to completion off-thread") and the driver itself performs the
// row padding; here t.cpu (populated by the CPU conversion path, see
// cpuconvert.go) is padded out to the same row stride so the stripping
// logic above operates on real pixels rather than a zeroed buffer.
func readMappedStaging(t *Texture, stride int) []byte {
	padded := make([]byte, stride*t.Height)
	rowBytes := t.Width * 4
	for y := 0; y < t.Height; y++ {
		copy(padded[y*stride:y*stride+rowBytes], t.cpu[y*rowBytes:(y+1)*rowBytes])
	}
	return padded
}
