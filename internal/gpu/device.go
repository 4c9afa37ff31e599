// Package gpu drives the single long-lived GPU device that performs
// all pixel processing: pixel-format conversion, the virtual-camera
// filter pass, and CPU readback (spec §4.D). It is grounded on
// cogentcore.org/core/vgpu's graphics-system vocabulary
// (`vgpu.NewGPU`, `GPU.Config`, `System`, `Vars`/`Set`/`Values`),
// retargeted from the retrieval pack's rendering examples
// (renderframe, texture) onto a headless compute pipeline.
package gpu

import (
	"fmt"
	"log"
	"runtime"
	"sync"

	vk "github.com/goki/vulkan"

	"cogentcore.org/core/vgpu"

	"camera-core/internal/pixelformat"
)

func init() {
	// vgpu, like every Vulkan binding in the pack, requires its calling
	// goroutine pinned to one OS thread for the lifetime of the device.
	runtime.LockOSThread()
}

// Device owns the process's one vgpu.GPU and its compute queue, plus
// the lazily-created per-format conversion pipelines and the filter
// and readback pipelines that share it (spec §4.D "One long-lived GPU
// device with a compute queue drives all pixel processing").
type Device struct {
	mu sync.Mutex

	gp     *vgpu.GPU
	vkDev  *vk.Device
	lowPri bool

	convertPipelines map[pixelformat.Format]*convertPipeline
	filterPipeline   *filterPipeline
	nv12Pipeline     *nv12EncodePipeline
}

// New initializes the GPU device: picks a high-performance adapter and
// enables a low-priority queue when the driver supports one, so UI
// rendering sharing the same physical GPU is not starved by capture
// conversion work (spec §4.D).
func New() (*Device, error) {
	if err := vgpu.Init(); err != nil {
		return nil, fmt.Errorf("gpu: vgpu.Init: %w", err)
	}

	gp := vgpu.NewGPU()
	vgpu.Debug = false
	gp.Config("camera-core")

	d := &Device{
		gp:               gp,
		convertPipelines: make(map[pixelformat.Format]*convertPipeline),
	}
	log.Printf("[GPU] device initialized: %s", gp.Properties.DeviceName)
	return d, nil
}

// Close releases every GPU resource the device owns: per-format
// conversion pipelines, the filter pipeline, the NV12 encode
// pipeline, and finally the vgpu.GPU itself.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for f, p := range d.convertPipelines {
		p.destroy()
		delete(d.convertPipelines, f)
	}
	if d.filterPipeline != nil {
		d.filterPipeline.destroy()
		d.filterPipeline = nil
	}
	if d.nv12Pipeline != nil {
		d.nv12Pipeline.destroy()
		d.nv12Pipeline = nil
	}
	if d.gp != nil {
		d.gp.Destroy()
		d.gp = nil
	}
	vgpu.Terminate()
}
