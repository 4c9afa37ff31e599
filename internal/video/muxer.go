package video

// Muxer names the GStreamer muxer element and output file extension
// for a codec (spec §4.G "File extension is dictated by codec (MP4
// for H.264/HEVC, WebM for AV1)").
type Muxer struct {
	Element   string
	Extension string
}

// MuxerFor returns the muxer matching codec, with streamable=false set
// where the element supports it so duration and cue/index metadata
// are written on finalize (spec §4.G "Muxer. streamable=false is set
// when supported").
func MuxerFor(codec Codec) Muxer {
	switch codec {
	case CodecAV1:
		return Muxer{Element: "webmmux", Extension: "webm"}
	default:
		return Muxer{Element: "mp4mux", Extension: "mp4"}
	}
}

// MuxerProperties returns the gst-launch-1.0 property tokens to
// append after the muxer element name.
func (m Muxer) MuxerProperties() []string {
	switch m.Element {
	case "mp4mux", "webmmux":
		return []string{"streamable=false"}
	default:
		return nil
	}
}
