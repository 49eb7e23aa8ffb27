package octomap

import (
	"math"

	"github.com/golang/geo/r3"
)

// Face identifies one of the six axis-aligned faces of a voxel.
type Face int

// Faces in the order they appear in the serialized stream.
const (
	FaceXMinus Face = iota
	FaceXPlus
	FaceYMinus
	FaceYPlus
	FaceZMinus
	FaceZPlus
	NumFaces
)

// FaceStat accumulates texture observations for one voxel face: the observed
// value (on a 0-255 scale) and how many observations back it.
type FaceStat struct {
	Value        float64
	Observations uint32
}

// Node is one allocated cell of a tree. Internal nodes carry the maximum
// occupancy over their children, so a coarse traversal can treat them as
// aggregated leaves.
type Node struct {
	logOdds float64
	leaf    bool
	faces   *[NumFaces]FaceStat
}

// Probability returns the node's occupancy probability in [0,1].
func (n *Node) Probability() float64 {
	return 1.0 / (1.0 + math.Exp(-n.logOdds))
}

// Occupied reports whether the node's occupancy probability is at least 0.5
// (non-negative log odds), the standard occupancy threshold.
func (n *Node) Occupied() bool {
	return n.logOdds >= 0
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.leaf
}

// HasFaceStats reports whether the node carries texture face accumulators.
func (n *Node) HasFaceStats() bool {
	return n.faces != nil
}

// FaceStat returns the accumulator for the given face. Nodes of untextured
// trees report a zero accumulator.
func (n *Node) FaceStat(f Face) FaceStat {
	if n.faces == nil {
		return FaceStat{}
	}
	return n.faces[f]
}

// Tree is a decoded occupancy octree. It is built once per incoming message,
// traversed, and then discarded; it is not safe for concurrent mutation but
// reads may be shared.
type Tree struct {
	id         string
	resolution float64
	depth      uint8
	nodes      map[VoxelKey]*Node
	min, max   r3.Vector
}

// ID returns the declared map type identifier, e.g. "OcTree".
func (t *Tree) ID() string { return t.id }

// Depth returns the tree's maximum depth D. Leaf cells at depth D have edge
// length Resolution.
func (t *Tree) Depth() uint8 { return t.depth }

// Resolution returns the metric edge length of a voxel at the deepest level.
func (t *Tree) Resolution() float64 { return t.resolution }

// NumNodes returns the number of allocated nodes, internal nodes included.
func (t *Tree) NumNodes() int { return len(t.nodes) }

// MetricMin returns the minimum corner of the tree's bounding box over all
// allocated leaves.
func (t *Tree) MetricMin() r3.Vector { return t.min }

// MetricMax returns the maximum corner of the tree's bounding box over all
// allocated leaves.
func (t *Tree) MetricMax() r3.Vector { return t.max }

// NodeSize returns the metric edge length of a voxel at the given depth.
func (t *Tree) NodeSize(depth uint8) float64 {
	return t.resolution * float64(int64(1)<<(t.depth-depth))
}

// CellCenter returns the metric center of the cell identified by key. The grid
// is centered on the metric origin.
func (t *Tree) CellCenter(key VoxelKey) r3.Vector {
	size := t.NodeSize(key.Depth)
	halfSpan := t.resolution * float64(int64(1)<<(t.depth-1))
	return r3.Vector{
		X: (float64(key.X)+0.5)*size - halfSpan,
		Y: (float64(key.Y)+0.5)*size - halfSpan,
		Z: (float64(key.Z)+0.5)*size - halfSpan,
	}
}

// Search looks up the occupancy state of the cell identified by key. A leaf at
// or above the key's depth covers the query; an internal node strictly above
// it means the child path was never allocated, i.e. the cell is unknown. The
// second return is false for unknown cells and keys outside the grid.
func (t *Tree) Search(key VoxelKey) (occupied, found bool) {
	if !key.InGrid() || key.Depth > t.depth {
		return false, false
	}
	for k := key; ; k = k.Parent() {
		if n, ok := t.nodes[k]; ok {
			if n.leaf || k.Depth == key.Depth {
				return n.Occupied(), true
			}
			return false, false
		}
		if k.Depth == 0 {
			return false, false
		}
	}
}

// TraverseLeaves walks the tree depth first and calls fn for every leaf at or
// above maxDepth. A node at maxDepth that still has children is reported as a
// coarse leaf carrying its aggregated occupancy. maxDepth 0 means no limit.
// Traversal stops early if fn returns false.
func (t *Tree) TraverseLeaves(maxDepth uint8, fn func(key VoxelKey, n *Node) bool) {
	if maxDepth == 0 || maxDepth > t.depth {
		maxDepth = t.depth
	}
	root := VoxelKey{}
	if n, ok := t.nodes[root]; ok {
		t.traverse(root, n, maxDepth, fn)
	}
}

func (t *Tree) traverse(key VoxelKey, n *Node, maxDepth uint8, fn func(VoxelKey, *Node) bool) bool {
	if n.leaf || key.Depth == maxDepth {
		return fn(key, n)
	}
	for i := 0; i < 8; i++ {
		child := key.Child(i)
		cn, ok := t.nodes[child]
		if !ok {
			continue
		}
		if !t.traverse(child, cn, maxDepth, fn) {
			return false
		}
	}
	return true
}

// growBounds expands the tree's bounding box to cover the leaf cell at key.
func (t *Tree) growBounds(key VoxelKey) {
	half := t.NodeSize(key.Depth) / 2
	c := t.CellCenter(key)
	t.min.X = math.Min(t.min.X, c.X-half)
	t.min.Y = math.Min(t.min.Y, c.Y-half)
	t.min.Z = math.Min(t.min.Z, c.Z-half)
	t.max.X = math.Max(t.max.X, c.X+half)
	t.max.Y = math.Max(t.max.Y, c.Y+half)
	t.max.Z = math.Max(t.max.Z, c.Z+half)
}
