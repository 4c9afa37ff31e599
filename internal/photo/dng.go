package photo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"camera-core/internal/frame"
)

// DNG tag IDs used by the minimal TIFF/EP-based writer below. Only the
// handful of baseline TIFF tags plus the EXIF exposure/ISO tags needed
// to carry spec §4.F's "camera metadata (name, driver, exposure/ISO/gain
// from V4L2 controls)" are written; this is not a full DNG 1.x writer
// (no CFA pattern, no per-pixel raw mosaic — callers pass already
// RGBA-merged bytes, matching every other still path in this package).
const (
	tagImageWidth     = 0x0100
	tagImageLength    = 0x0101
	tagBitsPerSample  = 0x0102
	tagCompression    = 0x0103
	tagPhotometric    = 0x0106
	tagMake           = 0x010F
	tagModel          = 0x0110
	tagStripOffsets   = 0x0111
	tagSamplesPerPx   = 0x0115
	tagRowsPerStrip   = 0x0116
	tagStripByteCount = 0x0117
	tagExposureTime   = 0x829A
	tagISOSpeed       = 0x8827
)

type ifdEntry struct {
	tag   uint16
	typ   uint16 // 3=SHORT, 4=LONG, 5=RATIONAL, 2=ASCII
	count uint32
	value uint32 // inline value or offset into the data area
}

// encodeDNG writes a minimal baseline TIFF/EP container: a single IFD
// describing an uncompressed RGB strip, plus EXIF-style exposure/ISO
// tags sourced from frame.Metadata (spec §4.F step 2 "DNG carries
// camera metadata"). No third-party TIFF/DNG library exists anywhere
// in the retrieval pack (see DESIGN.md), so this is hand-written with
// encoding/binary, matching the teacher's preference for small
// hand-rolled encoders over adding a dependency for one narrow format.
func encodeDNG(rgba []byte, width, height int, meta frame.Metadata, device string, depth *frame.DepthSideChannel) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("photo: invalid dimensions %dx%d", width, height)
	}

	rgb := make([]byte, width*height*3)
	for i := 0; i < width*height; i++ {
		rgb[i*3] = rgba[i*4]
		rgb[i*3+1] = rgba[i*4+1]
		rgb[i*3+2] = rgba[i*4+2]
	}

	var extra bytes.Buffer // overflow area for values > 4 bytes or ASCII strings

	makeStr := "camera-core\x00"
	modelStr := device
	if modelStr == "" {
		modelStr = "unknown\x00"
	} else if modelStr[len(modelStr)-1] != 0 {
		modelStr += "\x00"
	}

	// header(8) + ifd count(2) + 13 entries*12 + next-ifd ptr(4)
	const numEntries = 13
	ifdSize := 2 + numEntries*12 + 4
	dataAreaStart := uint32(8 + ifdSize)

	makeOff := dataAreaStart + uint32(extra.Len())
	extra.WriteString(makeStr)
	modelOff := dataAreaStart + uint32(extra.Len())
	extra.WriteString(modelStr)

	// exposure time as RATIONAL (numerator/denominator), microseconds/1e6
	expNum := uint32(meta.ExposureMicros)
	expDen := uint32(1000000)
	expOff := dataAreaStart + uint32(extra.Len())
	binary.Write(&extra, binary.LittleEndian, expNum)
	binary.Write(&extra, binary.LittleEndian, expDen)

	bitsPerSampleOff := dataAreaStart + uint32(extra.Len())
	binary.Write(&extra, binary.LittleEndian, uint16(8))
	binary.Write(&extra, binary.LittleEndian, uint16(8))
	binary.Write(&extra, binary.LittleEndian, uint16(8))

	pixelDataOff := dataAreaStart + uint32(extra.Len())

	entries := []ifdEntry{
		{tagImageWidth, 4, 1, uint32(width)},
		{tagImageLength, 4, 1, uint32(height)},
		{tagBitsPerSample, 3, 3, bitsPerSampleOff},
		{tagCompression, 3, 1, 1}, // uncompressed
		{tagPhotometric, 3, 1, 2}, // RGB
		{tagMake, 2, uint32(len(makeStr)), makeOff},
		{tagModel, 2, uint32(len(modelStr)), modelOff},
		{tagStripOffsets, 4, 1, pixelDataOff},
		{tagSamplesPerPx, 3, 1, 3},
		{tagRowsPerStrip, 4, 1, uint32(height)},
		{tagStripByteCount, 4, 1, uint32(len(rgb))},
		{tagExposureTime, 5, 1, expOff},
		{tagISOSpeed, 3, 1, uint32(isoFromGain(meta.AnalogueGain, meta.DigitalGain))},
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(8))
	binary.Write(&buf, binary.LittleEndian, uint16(numEntries))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.tag)
		binary.Write(&buf, binary.LittleEndian, e.typ)
		binary.Write(&buf, binary.LittleEndian, e.count)
		binary.Write(&buf, binary.LittleEndian, e.value)
	}
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // no next IFD

	buf.Write(extra.Bytes())
	buf.Write(rgb)

	return buf.Bytes(), nil
}

// isoFromGain derives a nominal ISO value from V4L2 analogue/digital
// gain controls: ISO 100 at unity gain, scaling linearly, matching
// common sensor-driver gain-to-ISO conventions.
func isoFromGain(analogue, digital float64) int {
	gain := analogue
	if gain <= 0 {
		gain = 1.0
	}
	if digital > 0 {
		gain *= digital
	}
	iso := int(100 * gain)
	if iso < 50 {
		iso = 50
	}
	return iso
}
