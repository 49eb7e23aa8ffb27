package octomap

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// NewTree returns an empty tree with the given type identifier and leaf
// resolution. Trees received over the wire are built by Decode; this
// constructor exists for producers and tests.
func NewTree(id string, resolution float64) (*Tree, error) {
	if resolution <= 0 {
		return nil, errors.Errorf("resolution must be positive, got %f", resolution)
	}
	return &Tree{
		id:         id,
		resolution: resolution,
		depth:      MaxTreeDepth,
		nodes:      map[VoxelKey]*Node{},
		min:        uniformVector(math.MaxFloat64),
		max:        uniformVector(-math.MaxFloat64),
	}, nil
}

// SetLeaf places a leaf with the given occupancy probability at key,
// allocating internal nodes down from the root as needed. Ancestor occupancy
// is refreshed to the maximum over children, so coarse traversals see
// aggregated state. Face accumulators may be nil for untextured trees.
func (t *Tree) SetLeaf(key VoxelKey, prob float64, faces *[NumFaces]FaceStat) error {
	if !key.InGrid() || key.Depth > t.depth {
		return errors.Errorf("key %v outside grid", key)
	}
	if prob < 0 || prob > 1 {
		return errors.Errorf("probability must be in [0,1], got %f", prob)
	}

	// allocate the path from the root down
	path := make([]VoxelKey, key.Depth+1)
	path[key.Depth] = key
	for d := int(key.Depth) - 1; d >= 0; d-- {
		path[d] = path[d+1].Parent()
	}
	for _, k := range path[:key.Depth] {
		n, ok := t.nodes[k]
		if !ok {
			t.nodes[k] = &Node{}
			continue
		}
		if n.leaf {
			return errors.Errorf("key %v is covered by an existing leaf at depth %d", key, k.Depth)
		}
	}
	if n, ok := t.nodes[key]; ok && !n.leaf {
		return errors.Errorf("key %v already has children", key)
	}

	t.nodes[key] = &Node{logOdds: logOdds(prob), leaf: true, faces: faces}
	t.growBounds(key)

	// refresh aggregated occupancy bottom-up
	for d := int(key.Depth) - 1; d >= 0; d-- {
		parent := t.nodes[path[d]]
		maxLO := math.Inf(-1)
		for i := 0; i < 8; i++ {
			if c, ok := t.nodes[path[d].Child(i)]; ok {
				maxLO = math.Max(maxLO, c.logOdds)
			}
		}
		parent.logOdds = maxLO
	}
	return nil
}

// logOdds of 0 and 1 are ±Inf, which survive the float32 wire encoding and
// invert back to exact probabilities.
func logOdds(prob float64) float64 {
	return math.Log(prob / (1 - prob))
}

func uniformVector(v float64) r3.Vector {
	return r3.Vector{X: v, Y: v, Z: v}
}
