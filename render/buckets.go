package render

import (
	"github.com/golang/geo/r3"

	"go.viam.com/octogrid/octomap"
)

// RenderPoint is a single drawable voxel instance. Its size is implicit in
// the level bucket it lands in.
type RenderPoint struct {
	Position r3.Vector
	Color    Color
}

// LevelBucket holds every visible voxel of one tree depth, plus that depth's
// metric voxel edge length. An empty bucket means nothing to draw at that
// level.
type LevelBucket struct {
	Size   float64
	Points []RenderPoint
}

// BucketSet is one bucket per tree level. Bucket i holds voxels whose tree
// depth is i+1.
type BucketSet [octomap.MaxTreeDepth]LevelBucket

// Clear empties every bucket, retaining point storage for reuse.
func (b *BucketSet) Clear() {
	for i := range b {
		b[i].Size = 0
		b[i].Points = b[i].Points[:0]
	}
}

// NumPoints returns the total point count across all buckets.
func (b *BucketSet) NumPoints() int {
	n := 0
	for i := range b {
		n += len(b[i].Points)
	}
	return n
}

// levelBucketer routes points produced by one traversal pass into the bucket
// matching their source depth. Buckets are rebuilt wholesale each pass.
type levelBucketer struct {
	set *BucketSet
}

func newLevelBucketer(set *BucketSet, tree *octomap.Tree) levelBucketer {
	set.Clear()
	for i := range set {
		set[i].Size = tree.NodeSize(uint8(i + 1))
	}
	return levelBucketer{set: set}
}

func (lb levelBucketer) add(depth uint8, p RenderPoint) {
	bucket := &lb.set[depth-1]
	bucket.Points = append(bucket.Points, p)
}
