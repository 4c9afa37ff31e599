package pixelformat

import "testing"

func TestComputeStrideInvariant(t *testing.T) {
	// For any format F and dimensions (W,H), compute_stride(F,W,bufSize,H)*H >= bufSize.
	cases := []struct {
		f      Format
		w, h   int
		bufLen int
	}{
		{NV12, 1920, 1080, 1920 * 1080 * 3 / 2},
		{I420, 1280, 720, 1280*720 + 2*(640*360)},
		{YUYV, 640, 480, 640 * 480 * 2},
		{BayerRGGB, 4056, 3040, 4056 * 3040},
		{Gray8, 100, 33, 100 * 33},
	}
	for _, c := range cases {
		stride := ComputeStride(c.f, c.w, c.bufLen, c.h)
		if stride*c.h < c.bufLen {
			t.Errorf("%v: stride*h = %d < bufLen %d", c.f, stride*c.h, c.bufLen)
		}
	}
}

func TestComputeStridePadded(t *testing.T) {
	// A buffer padded beyond width*bpp should yield the padded stride.
	stride := ComputeStride(YUYV, 640, 640*2*480+480*64, 480)
	want := 640*2 + 64
	if stride != want {
		t.Errorf("padded stride = %d, want %d", stride, want)
	}
}

func TestBayerStrideCarriesPaddingVerbatim(t *testing.T) {
	stride := ComputeStride(BayerRGGB, 4056, 4096*3040, 3040)
	if stride != 4096 {
		t.Errorf("bayer stride = %d, want 4096 (padded)", stride)
	}
}

func TestFamilyClassification(t *testing.T) {
	cases := map[Format]Family{
		NV12:      FamilyYUV,
		NV21:      FamilyYUV,
		I420:      FamilyYUV,
		YUYV:      FamilyYUV,
		BayerRGGB: FamilyBayer,
		BayerGBRG: FamilyBayer,
		Gray8:     FamilyGray,
		RGBA:      FamilyRGB,
		RGB24:     FamilyRGB,
	}
	for f, want := range cases {
		if got := f.Family(); got != want {
			t.Errorf("%v.Family() = %v, want %v", f, got, want)
		}
	}
}

func TestPlaneLayout(t *testing.T) {
	if NV12.PlaneLayout() != SemiPlanar {
		t.Error("NV12 should be semi-planar")
	}
	if I420.PlaneLayout() != Planar {
		t.Error("I420 should be planar")
	}
	if YUYV.PlaneLayout() != Packed {
		t.Error("YUYV should be packed")
	}
}

func TestBytesPerPixel(t *testing.T) {
	if NV12.BytesPerPixel() != 1.5 {
		t.Errorf("NV12 bpp = %v, want 1.5", NV12.BytesPerPixel())
	}
	if RGBA.BytesPerPixel() != 4.0 {
		t.Errorf("RGBA bpp = %v, want 4.0", RGBA.BytesPerPixel())
	}
}
