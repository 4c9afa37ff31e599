package photo

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"camera-core/internal/frame"
)

// SceneIntrinsics is the pinhole camera model used to unproject the
// depth buffer into a 3D point cloud (spec §6 "Scenes... when depth
// data available", supplemented from original_source/'s dual-stream
// color+depth pairing). Values default to a rough full-frame guess
// when a depth backend doesn't report calibrated intrinsics.
type SceneIntrinsics struct {
	FxPixels, FyPixels float64
	CxPixels, CyPixels float64
}

// DefaultIntrinsics derives a plausible pinhole model from image
// dimensions alone (principal point at center, a ~70 degree
// horizontal field of view), used when no calibration is available.
func DefaultIntrinsics(width, height int) SceneIntrinsics {
	fx := float64(width) / 1.42 // tan(35deg) ~ 0.70 -> width/(2*0.70)
	return SceneIntrinsics{
		FxPixels: fx,
		FyPixels: fx,
		CxPixels: float64(width) / 2,
		CyPixels: float64(height) / 2,
	}
}

// SaveScene writes a depth-session export into dir: color.<ext> and,
// only when depth is present, depth.png (16-bit grayscale) and
// pointcloud.ply (ASCII) generated by unprojecting the depth buffer
// with a pinhole model. This mirrors
// src/backends/camera/v4l2_kernel_depth.rs's dual-stream pairing
// without porting its Rust-specific plumbing (SPEC_FULL.md §3).
func SaveScene(dir string, colorRGBA []byte, width, height int, colorFormat OutputFormat, meta frame.Metadata, device string, depth *frame.DepthSideChannel, intrin SceneIntrinsics) (colorPath, depthPath, plyPath string, err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", "", "", fmt.Errorf("photo: mkdir %s: %w", dir, err)
	}

	colorBytes, err := Encode(colorRGBA, width, height, colorFormat, meta, device, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("photo: encode color: %w", err)
	}
	colorPath = filepath.Join(dir, "color."+string(colorFormat))
	if err = os.WriteFile(colorPath, colorBytes, 0o644); err != nil {
		return "", "", "", fmt.Errorf("photo: write color: %w", err)
	}

	if depth == nil {
		return colorPath, "", "", nil
	}

	depthPath = filepath.Join(dir, "depth.png")
	if err = writeDepthPNG(depthPath, depth); err != nil {
		return colorPath, "", "", err
	}

	plyPath = filepath.Join(dir, "pointcloud.ply")
	if err = writePointCloudPLY(plyPath, depth, intrin); err != nil {
		return colorPath, depthPath, "", err
	}

	return colorPath, depthPath, plyPath, nil
}

func writeDepthPNG(path string, depth *frame.DepthSideChannel) error {
	img := image.NewGray16(image.Rect(0, 0, depth.Width, depth.Height))
	for y := 0; y < depth.Height; y++ {
		for x := 0; x < depth.Width; x++ {
			v := depth.Depth[y*depth.Width+x]
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("photo: create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("photo: encode depth png: %w", err)
	}
	return nil
}

// writePointCloudPLY unprojects every nonzero depth sample into a 3D
// point using the pinhole model z=depth, x=(u-cx)*z/fx, y=(v-cy)*z/fy,
// and writes an ASCII PLY (spec §6 supplement).
func writePointCloudPLY(path string, depth *frame.DepthSideChannel, intrin SceneIntrinsics) error {
	type point struct{ x, y, z float64 }
	points := make([]point, 0, depth.Width*depth.Height)
	for v := 0; v < depth.Height; v++ {
		for u := 0; u < depth.Width; u++ {
			d := depth.Depth[v*depth.Width+u]
			if d == 0 {
				continue
			}
			z := float64(d)
			x := (float64(u) - intrin.CxPixels) * z / intrin.FxPixels
			y := (float64(v) - intrin.CyPixels) * z / intrin.FyPixels
			points = append(points, point{x, y, z})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("photo: create %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "ply\nformat ascii 1.0\nelement vertex %d\n", len(points))
	fmt.Fprint(f, "property float x\nproperty float y\nproperty float z\nend_header\n")
	for _, p := range points {
		fmt.Fprintf(f, "%f %f %f\n", p.x, p.y, p.z)
	}
	return nil
}
