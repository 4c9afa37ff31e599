// Package pixelformat enumerates the closed set of pixel formats the
// capture and GPU pipelines understand, and describes their planar
// layout, subsampling, and byte-per-pixel cost.
package pixelformat

import "fmt"

// Format identifies one of the pixel formats the core understands.
// The set is closed: every value the capture backends or the GPU
// pipeline can hand back is one of these constants.
type Format int

const (
	Unknown Format = iota
	NV12
	NV21
	I420
	I422
	I444
	YUYV
	UYVY
	YVYU
	VYUY
	Gray8
	RGBA
	RGB24
	BayerRGGB
	BayerBGGR
	BayerGRBG
	BayerGBRG
)

func (f Format) String() string {
	switch f {
	case NV12:
		return "NV12"
	case NV21:
		return "NV21"
	case I420:
		return "I420"
	case I422:
		return "I422"
	case I444:
		return "I444"
	case YUYV:
		return "YUYV"
	case UYVY:
		return "UYVY"
	case YVYU:
		return "YVYU"
	case VYUY:
		return "VYUY"
	case Gray8:
		return "Gray8"
	case RGBA:
		return "RGBA"
	case RGB24:
		return "RGB24"
	case BayerRGGB:
		return "BayerRGGB"
	case BayerBGGR:
		return "BayerBGGR"
	case BayerGRBG:
		return "BayerGRBG"
	case BayerGBRG:
		return "BayerGBRG"
	default:
		return "Unknown"
	}
}

// Family classifies a format's broad processing path: raw sensor data
// that still needs demosaicing, standard YUV, or already-RGB.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyBayer
	FamilyYUV
	FamilyRGB
	FamilyGray
)

// Plane describes how a format lays out its bytes.
type Plane int

const (
	PlaneUnknown Plane = iota
	Packed            // single interleaved buffer (YUYV, UYVY, YVYU, VYUY, RGBA, RGB24, Bayer)
	SemiPlanar        // luma plane + one interleaved chroma plane (NV12, NV21)
	Planar            // one plane per channel (I420, I422, I444)
)

// IsBayer reports whether f is one of the four raw Bayer CFA patterns.
func (f Format) IsBayer() bool {
	switch f {
	case BayerRGGB, BayerBGGR, BayerGRBG, BayerGBRG:
		return true
	default:
		return false
	}
}

// Family classifies the format for routing to the correct GPU shader
// family (spec §4.A). FamilyBayer is reported, but no component in this
// module demosaics Bayer data.
func (f Format) Family() Family {
	switch {
	case f.IsBayer():
		return FamilyBayer
	case f == Gray8:
		return FamilyGray
	case f == RGBA || f == RGB24:
		return FamilyRGB
	case f == NV12 || f == NV21 || f == I420 || f == I422 || f == I444 ||
		f == YUYV || f == UYVY || f == YVYU || f == VYUY:
		return FamilyYUV
	default:
		return FamilyUnknown
	}
}

// PlaneLayout reports the planar structure used to store f's pixels.
func (f Format) PlaneLayout() Plane {
	switch f {
	case NV12, NV21:
		return SemiPlanar
	case I420, I422, I444:
		return Planar
	case YUYV, UYVY, YVYU, VYUY, RGBA, RGB24, Gray8,
		BayerRGGB, BayerBGGR, BayerGRBG, BayerGBRG:
		return Packed
	default:
		return PlaneUnknown
	}
}

// BytesPerPixel returns the average bytes consumed per pixel across the
// whole frame, expressed as a rational multiplier so subsampled formats
// (4:2:0, 4:2:2) are exact: NV12/NV21/I420 cost 1.5 bytes/pixel on
// average (one luma byte plus a quarter-resolution two-byte chroma
// sample shared by four luma pixels), I422/YUYV-family cost 2 bytes/pixel,
// I444/RGBA/RGB24/Bayer are full resolution per channel.
func (f Format) BytesPerPixel() float64 {
	switch f {
	case NV12, NV21, I420:
		return 1.5
	case I422, YUYV, UYVY, YVYU, VYUY:
		return 2.0
	case I444:
		return 3.0
	case Gray8:
		return 1.0
	case RGB24:
		return 3.0
	case RGBA:
		return 4.0
	case BayerRGGB, BayerBGGR, BayerGRBG, BayerGBRG:
		return 1.0
	default:
		return 0
	}
}

// Validate reports an error if f is not one of the closed set of known
// formats.
func (f Format) Validate() error {
	if f.Family() == FamilyUnknown && f != Gray8 {
		return fmt.Errorf("pixelformat: unsupported format %v", int(f))
	}
	return nil
}

// ParseFormat is the inverse of String, for backends that carry a
// CameraFormat.Format string (spec §3) back into the closed Format
// enum rather than hard-coding Unknown.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "NV12":
		return NV12, nil
	case "NV21":
		return NV21, nil
	case "I420":
		return I420, nil
	case "I422":
		return I422, nil
	case "I444":
		return I444, nil
	case "YUYV":
		return YUYV, nil
	case "UYVY":
		return UYVY, nil
	case "YVYU":
		return YVYU, nil
	case "VYUY":
		return VYUY, nil
	case "Gray8":
		return Gray8, nil
	case "RGBA":
		return RGBA, nil
	case "RGB24":
		return RGB24, nil
	case "BayerRGGB":
		return BayerRGGB, nil
	case "BayerBGGR":
		return BayerBGGR, nil
	case "BayerGRBG":
		return BayerGRBG, nil
	case "BayerGBRG":
		return BayerGBRG, nil
	default:
		return Unknown, fmt.Errorf("pixelformat: unrecognized format %q", s)
	}
}
