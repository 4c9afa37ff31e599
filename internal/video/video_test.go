package video

import (
	"strings"
	"testing"
)

func TestBitrateKbpsPresets(t *testing.T) {
	cases := []struct {
		preset QualityPreset
		want   int
	}{
		{PresetLow, lowKbps},
		{PresetMedium, mediumKbps},
		{PresetHigh, highKbps},
	}
	for _, c := range cases {
		if got := BitrateKbps(c.preset, 0, 1920, 1080); got != c.want {
			t.Fatalf("BitrateKbps(%s) = %d, want %d", c.preset, got, c.want)
		}
	}
}

func TestBitrateKbpsAutoFloorAndCeiling(t *testing.T) {
	if got := BitrateKbps(PresetAuto, 0.08, 16, 16); got != minKbps {
		t.Fatalf("tiny resolution: got %d, want floor %d", got, minKbps)
	}
	if got := BitrateKbps(PresetAuto, 2.0, 7680, 4320); got != maxKbps {
		t.Fatalf("8K at high quality: got %d, want ceiling %d", got, maxKbps)
	}
}

func TestX264PresetMapping(t *testing.T) {
	if X264Preset(PresetLow) != "veryfast" {
		t.Fatalf("Low preset should map to veryfast")
	}
	if X264Preset(PresetHigh) != "slow" {
		t.Fatalf("High preset should map to slow")
	}
}

func TestNeedsOpenH264Downscale(t *testing.T) {
	if NeedsOpenH264Downscale(1920, 1080) {
		t.Fatalf("1080p should not require downscale")
	}
	if !NeedsOpenH264Downscale(4000, 3000) {
		t.Fatalf("12MP should require downscale")
	}
}

func TestOpenH264DownscaleDimsAspectPreserved(t *testing.T) {
	w, h := OpenH264DownscaleDims(4000, 3000)
	if w > 1920 || h > 1080 {
		t.Fatalf("downscaled dims %dx%d exceed cap", w, h)
	}
	if h%2 != 0 {
		t.Fatalf("height %d not rounded to even", h)
	}
	srcAspect := 4000.0 / 3000.0
	gotAspect := float64(w) / float64(h)
	if diff := srcAspect - gotAspect; diff > 0.05 || diff < -0.05 {
		t.Fatalf("aspect not preserved: src %.3f got %.3f", srcAspect, gotAspect)
	}
}

func TestOpenH264DownscaleDimsNoOpBelowCap(t *testing.T) {
	w, h := OpenH264DownscaleDims(1280, 720)
	if w != 1280 || h != 720 {
		t.Fatalf("below-cap dims should be unchanged, got %dx%d", w, h)
	}
}

func TestMuxerForCodec(t *testing.T) {
	if m := MuxerFor(CodecAV1); m.Extension != "webm" {
		t.Fatalf("AV1 should mux to webm, got %s", m.Extension)
	}
	if m := MuxerFor(CodecH264); m.Extension != "mp4" {
		t.Fatalf("H264 should mux to mp4, got %s", m.Extension)
	}
	if m := MuxerFor(CodecHEVC); m.Extension != "mp4" {
		t.Fatalf("HEVC should mux to mp4, got %s", m.Extension)
	}
}

func TestBuildGraphArgsContainsTeeAndMuxer(t *testing.T) {
	opt := GraphOptions{
		Source:      SourceAppSrc,
		Width:       1920,
		Height:      1080,
		FPS:         30,
		Encoder:     Encoder{Name: "x264enc", Codec: CodecH264, Kind: KindSoftware},
		BitrateKbps: 8000,
		X264Preset:  "fast",
		OutputPath:  "/tmp/out.mp4",
		WithPreview: true,
	}
	args := BuildGraphArgs(opt)
	joined := strings.Join(args, " ")
	for _, want := range []string{"appsrc", "tee", "x264enc", "mp4mux", "filesink", "appsink"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("graph args missing %q: %s", want, joined)
		}
	}
}

func TestBuildGraphArgsSelectsParserByCodec(t *testing.T) {
	cases := []struct {
		codec      Codec
		encoder    string
		wantParser string
		wantAbsent []string
	}{
		{CodecH264, "x264enc", "h264parse", []string{"h265parse", "av1parse"}},
		{CodecHEVC, "vaapih265enc", "h265parse", []string{"h264parse", "av1parse"}},
		{CodecAV1, "vaapiav1enc", "av1parse", []string{"h264parse", "h265parse"}},
	}
	for _, c := range cases {
		opt := GraphOptions{
			Source:      SourceAppSrc,
			Width:       1920,
			Height:      1080,
			FPS:         30,
			Encoder:     Encoder{Name: c.encoder, Codec: c.codec, Kind: KindHardware},
			BitrateKbps: 8000,
			OutputPath:  "/tmp/out",
		}
		joined := strings.Join(BuildGraphArgs(opt), " ")
		if !strings.Contains(joined, c.wantParser) {
			t.Fatalf("%s: graph args missing %q: %s", c.codec, c.wantParser, joined)
		}
		for _, absent := range c.wantAbsent {
			if strings.Contains(joined, absent) {
				t.Fatalf("%s: graph args should not contain %q: %s", c.codec, absent, joined)
			}
		}
	}
}

func TestCandidateEncodersPriorityOrder(t *testing.T) {
	list := candidateEncoders()
	if list[0].Codec != CodecAV1 || list[0].Kind != KindHardware {
		t.Fatalf("first candidate should be hardware AV1, got %+v", list[0])
	}
	last := list[len(list)-1]
	if last.Kind != KindSoftware || last.Codec != CodecH264 {
		t.Fatalf("last candidate should be software H264, got %+v", last)
	}
}

func TestRegistrySelectedEmptyWhenNoEncoders(t *testing.T) {
	r := &Registry{}
	if _, ok := r.Selected(); ok {
		t.Fatalf("expected no selection on an empty registry")
	}
}

func TestRegistrySelect(t *testing.T) {
	r := &Registry{encoders: []Encoder{{Name: "x264enc"}, {Name: "x265enc"}}}
	if !r.Select("x265enc") {
		t.Fatalf("expected Select to find x265enc")
	}
	got, ok := r.Selected()
	if !ok || got.Name != "x265enc" {
		t.Fatalf("Selected() = %+v, %v", got, ok)
	}
	if r.Select("nonexistent") {
		t.Fatalf("expected Select to fail for unknown encoder")
	}
}
