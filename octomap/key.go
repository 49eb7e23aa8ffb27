// Package octomap implements decoding and traversal of serialized probabilistic
// occupancy octrees. A tree recursively partitions 3D space into octants; each
// allocated node carries an occupancy probability and, for textured maps, six
// per-face observation accumulators. The in-memory form is dictionary based,
// keyed by discrete voxel coordinates, so that neighbor queries during
// rendering are O(1) map lookups rather than pointer chasing.
package octomap

// MaxTreeDepth is the deepest level a tree can have, bounded by the bit width
// of the discrete grid coordinates (an unsigned 16-bit key per axis).
const MaxTreeDepth = 16

// VoxelKey identifies one cell at a given depth of the tree. The grid at depth
// d has side length 2^d, so coordinates are valid in [0, 2^d).
type VoxelKey struct {
	X, Y, Z int32
	Depth   uint8
}

// Parent returns the key of the containing cell one level up.
func (k VoxelKey) Parent() VoxelKey {
	return VoxelKey{k.X >> 1, k.Y >> 1, k.Z >> 1, k.Depth - 1}
}

// Child returns the key of the i-th octant (i in [0,8)) one level down. Bit 0
// of i selects the upper X half, bit 1 the upper Y half, bit 2 the upper Z half.
func (k VoxelKey) Child(i int) VoxelKey {
	return VoxelKey{
		X:     k.X<<1 | int32(i&1),
		Y:     k.Y<<1 | int32(i>>1&1),
		Z:     k.Z<<1 | int32(i>>2&1),
		Depth: k.Depth + 1,
	}
}

// Offset returns the key shifted by the given number of cells along each axis
// at the same depth. The result may lie outside the grid; Tree.Search treats
// out-of-range keys as unallocated.
func (k VoxelKey) Offset(dx, dy, dz int32) VoxelKey {
	return VoxelKey{k.X + dx, k.Y + dy, k.Z + dz, k.Depth}
}

// InGrid reports whether the key's coordinates lie inside the grid at its depth.
func (k VoxelKey) InGrid() bool {
	side := int32(1) << k.Depth
	return k.X >= 0 && k.X < side &&
		k.Y >= 0 && k.Y < side &&
		k.Z >= 0 && k.Z < side
}
