package render

import (
	"github.com/pkg/errors"

	"go.viam.com/octogrid/octomap"
)

// RenderMode is a bitmask selecting which voxel states get drawn. It also
// defines which neighbor states count as "matching" during visibility
// culling.
type RenderMode int

const (
	// FreeVoxels selects voxels whose occupancy probability is below the
	// occupancy threshold.
	FreeVoxels RenderMode = 1 << iota
	// OccupiedVoxels selects voxels at or above the occupancy threshold.
	OccupiedVoxels
	// AllVoxels selects both.
	AllVoxels = FreeVoxels | OccupiedVoxels
)

func (m RenderMode) String() string {
	switch m {
	case FreeVoxels:
		return "free"
	case OccupiedVoxels:
		return "occupied"
	case AllVoxels:
		return "all"
	}
	return "unknown"
}

// ParseRenderMode parses the string form produced by RenderMode.String.
func ParseRenderMode(s string) (RenderMode, error) {
	switch s {
	case "free":
		return FreeVoxels, nil
	case "occupied":
		return OccupiedVoxels, nil
	case "all":
		return AllVoxels, nil
	}
	return 0, errors.Errorf("unknown render mode %q", s)
}

// Matches reports whether a voxel with the given occupancy state is selected
// by the mask.
func (m RenderMode) Matches(occupied bool) bool {
	bit := FreeVoxels
	if occupied {
		bit = OccupiedVoxels
	}
	return m&bit != 0
}

// Visible reports whether the voxel at key must be drawn. A voxel at the
// traversal's maximum depth is always visible. Otherwise it is visible iff at
// least one of its 26 same-depth neighbor cells is unknown to the tree or
// fails the mask's state test: a voxel fully enclosed by matching neighbors
// can never be seen from outside, so drawing it wastes fill rate. Costs up to
// 26 tree lookups.
func Visible(tree *octomap.Tree, key octomap.VoxelKey, maxDepth uint8, mode RenderMode) bool {
	if key.Depth >= maxDepth {
		return true
	}
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				occupied, found := tree.Search(key.Offset(dx, dy, dz))
				if !found || !mode.Matches(occupied) {
					// a gap in the enclosure; the voxel can be seen
					return true
				}
			}
		}
	}
	return false
}
