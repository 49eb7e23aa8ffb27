// Package render converts decoded occupancy octrees into per-depth colored
// point buckets and hands them off, double buffered, to a render loop. The
// expensive work (traversal, visibility culling, coloring) runs lock free on
// pass-local storage; only the final bucket exchange takes a lock.
package render

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/octogrid/octomap"
)

// Color is an RGB triple with components in [0,1].
type Color struct {
	R, G, B float64
}

// ColorMode selects how a voxel's attributes map to a color.
type ColorMode int

const (
	// ColorModeTexture renders the voxel's accumulated face observations as
	// a grayscale intensity.
	ColorModeTexture ColorMode = iota
	// ColorModeHeight renders the voxel's Z position as a hue between the
	// tree's metric Z bounds.
	ColorModeHeight
	// ColorModeProbability renders occupancy probability from red (uncertain)
	// to green (confident).
	ColorModeProbability
)

func (m ColorMode) String() string {
	switch m {
	case ColorModeTexture:
		return "texture"
	case ColorModeHeight:
		return "height"
	case ColorModeProbability:
		return "probability"
	}
	return "unknown"
}

// ParseColorMode parses the string form produced by ColorMode.String.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "texture":
		return ColorModeTexture, nil
	case "height":
		return ColorModeHeight, nil
	case "probability":
		return ColorModeProbability, nil
	}
	return 0, errors.Errorf("unknown color mode %q", s)
}

// TextureColor averages the voxel's six per-face values, each weighted by its
// own observation count, normalized to a grayscale intensity in [0,1]. A voxel
// with no observations at all is black.
func TextureColor(n *octomap.Node) Color {
	sum := 0.0
	var obs uint32
	for f := octomap.Face(0); f < octomap.NumFaces; f++ {
		fs := n.FaceStat(f)
		sum += fs.Value * float64(fs.Observations)
		obs += fs.Observations
	}
	if obs < 1 {
		return Color{}
	}
	i := clamp01(sum / (float64(obs) * 255.0))
	return Color{i, i, i}
}

// HeightColor maps a metric Z position linearly between minZ and maxZ into a
// hue, scaled by falloff in (0,1], and decomposes the hue into RGB with full
// saturation and value. Out-of-range Z is clamped; the function is total.
func HeightColor(z, minZ, maxZ, falloff float64) Color {
	norm := 0.0
	if maxZ > minZ {
		norm = clamp01((z - minZ) / (maxZ - minZ))
	}
	h := (1.0 - norm) * falloff
	h -= math.Floor(h)
	h *= 6
	sector := int(math.Floor(h))
	f := h - float64(sector)
	if sector&1 == 0 {
		f = 1 - f
	}
	n := 1 - f

	switch sector {
	case 0, 6:
		return Color{1, n, 0}
	case 1:
		return Color{n, 1, 0}
	case 2:
		return Color{0, 1, n}
	case 3:
		return Color{0, n, 1}
	case 4:
		return Color{n, 0, 1}
	case 5:
		return Color{1, 0, n}
	default:
		return Color{1, 0.5, 0.5}
	}
}

// ProbabilityColor maps occupancy probability to a red-green gradient:
// (1,0,0) at p=0, (0,1,0) at p=1.
func ProbabilityColor(p float64) Color {
	p = clamp01(p)
	return Color{1 - p, p, 0}
}

func clamp01(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return v
}
