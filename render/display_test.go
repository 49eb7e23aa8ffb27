package render

import (
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"go.viam.com/octogrid/octomap"
)

type fakeRenderer struct {
	pose    Pose
	poseSet bool
	levels  map[int]LevelBucket
	cleared int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{levels: map[int]LevelBucket{}}
}

func (r *fakeRenderer) SetPose(pose Pose) {
	r.pose = pose
	r.poseSet = true
}

func (r *fakeRenderer) UpdateLevel(level int, bucket LevelBucket) {
	r.levels[level] = bucket
}

func (r *fakeRenderer) Clear() {
	r.cleared++
	r.levels = map[int]LevelBucket{}
}

type statusEntry struct {
	level StatusLevel
	text  string
}

type fakeStatus struct {
	mu      sync.Mutex
	entries map[string]statusEntry
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{entries: map[string]statusEntry{}}
}

func (s *fakeStatus) SetStatus(level StatusLevel, name, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = statusEntry{level, text}
}

func (s *fakeStatus) get(name string) (statusEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return e, ok
}

func newTestDisplay(t *testing.T, conf Config) (*GridDisplay, *fakeStatus) {
	t.Helper()
	status := newFakeStatus()
	d, err := NewGridDisplay(conf, NewFixedFrameResolver("map"), status, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return d, status
}

func marshalTree(t *testing.T, tree *octomap.Tree) *octomap.Message {
	t.Helper()
	msg, err := octomap.Marshal(tree, "map", time.Now(), false)
	test.That(t, err, test.ShouldBeNil)
	return msg
}

func TestSingleLeafScenario(t *testing.T) {
	tree, err := octomap.NewTree(octomap.TreeID, 0.05)
	test.That(t, err, test.ShouldBeNil)
	leaf := octomap.VoxelKey{X: 1 << 9, Y: 1 << 9, Z: 1 << 9, Depth: 10}
	test.That(t, tree.SetLeaf(leaf, 1.0, nil), test.ShouldBeNil)

	conf := DefaultConfig()
	conf.ColorMode = ColorModeProbability
	d, _ := newTestDisplay(t, conf)

	test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)

	r := newFakeRenderer()
	d.Update(r)
	test.That(t, r.poseSet, test.ShouldBeTrue)
	test.That(t, r.pose, test.ShouldResemble, NewZeroPose())

	// one point in bucket 9 (depth 10), everything else empty
	for level, bucket := range r.levels {
		if level == 9 {
			test.That(t, len(bucket.Points), test.ShouldEqual, 1)
			test.That(t, bucket.Points[0].Color, test.ShouldResemble, Color{0, 1, 0})
			test.That(t, bucket.Size, test.ShouldAlmostEqual, tree.NodeSize(10))
			test.That(t, bucket.Points[0].Position, test.ShouldResemble, tree.CellCenter(leaf))
		} else {
			test.That(t, len(bucket.Points), test.ShouldEqual, 0)
		}
	}
	test.That(t, len(r.levels), test.ShouldEqual, octomap.MaxTreeDepth)
}

func TestDepthPartition(t *testing.T) {
	tree, err := octomap.NewTree(octomap.TreeID, 0.05)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 0, Y: 0, Z: 0, Depth: 12}, 0.9, nil), test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 2000, Y: 0, Z: 0, Depth: 14}, 0.9, nil), test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 40000, Y: 0, Z: 0, Depth: 16}, 0.9, nil), test.ShouldBeNil)

	d, _ := newTestDisplay(t, DefaultConfig())
	test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)

	r := newFakeRenderer()
	d.Update(r)
	for level, bucket := range r.levels {
		switch level {
		case 11, 13, 15:
			test.That(t, len(bucket.Points), test.ShouldEqual, 1)
			test.That(t, bucket.Size, test.ShouldAlmostEqual, tree.NodeSize(uint8(level+1)))
		default:
			test.That(t, len(bucket.Points), test.ShouldEqual, 0)
		}
	}
}

func TestTraversalDepthClamp(t *testing.T) {
	tree, err := octomap.NewTree(octomap.TreeID, 0.05)
	test.That(t, err, test.ShouldBeNil)
	leaf := octomap.VoxelKey{X: 1 << 15, Y: 1 << 15, Z: 1 << 15, Depth: 16}
	test.That(t, tree.SetLeaf(leaf, 0.9, nil), test.ShouldBeNil)

	conf := DefaultConfig()
	conf.MaxTraversalDepth = 14
	d, _ := newTestDisplay(t, conf)
	test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)

	r := newFakeRenderer()
	d.Update(r)
	// the deep leaf surfaces as an aggregated voxel at the truncation depth
	test.That(t, len(r.levels[13].Points), test.ShouldEqual, 1)
	test.That(t, len(r.levels[15].Points), test.ShouldEqual, 0)

	// a depth beyond the tree's own is benign and clamps to full depth
	conf.MaxTraversalDepth = octomap.MaxTreeDepth
	test.That(t, d.SetConfig(conf), test.ShouldBeNil)
	test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)
	d.Update(r)
	test.That(t, len(r.levels[15].Points), test.ShouldEqual, 1)
}

func TestFreeVoxelRendering(t *testing.T) {
	tree, err := octomap.NewTree(octomap.TreeID, 0.05)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 100, Y: 100, Z: 100, Depth: 14}, 0.9, nil), test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 102, Y: 100, Z: 100, Depth: 14}, 0.1, nil), test.ShouldBeNil)

	run := func(mode RenderMode) int {
		conf := DefaultConfig()
		conf.RenderMode = mode
		conf.ColorMode = ColorModeProbability
		d, _ := newTestDisplay(t, conf)
		test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)
		r := newFakeRenderer()
		d.Update(r)
		total := 0
		for _, bucket := range r.levels {
			total += len(bucket.Points)
		}
		return total
	}

	test.That(t, run(OccupiedVoxels), test.ShouldEqual, 1)
	test.That(t, run(FreeVoxels), test.ShouldEqual, 1)
	test.That(t, run(AllVoxels), test.ShouldEqual, 2)
}

func TestTransformFailureAbortsPass(t *testing.T) {
	tree, err := octomap.NewTree(octomap.TreeID, 0.05)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 1, Y: 1, Z: 1, Depth: 14}, 0.9, nil), test.ShouldBeNil)

	d, status := newTestDisplay(t, DefaultConfig())

	msg := marshalTree(t, tree)
	msg.Frame = "odom"
	err = d.HandleMessage(msg)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "odom")

	entry, ok := status.get(StatusNameMessage)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, entry.level, test.ShouldEqual, StatusError)

	// buffers untouched
	r := newFakeRenderer()
	d.Update(r)
	test.That(t, r.poseSet, test.ShouldBeFalse)
	test.That(t, len(r.levels), test.ShouldEqual, 0)

	// the failure does not poison later messages
	test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)
	d.Update(r)
	test.That(t, r.poseSet, test.ShouldBeTrue)
}

func TestDecodeFailureAbortsPass(t *testing.T) {
	tree, err := octomap.NewTree(octomap.TreeID, 0.05)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 1, Y: 1, Z: 1, Depth: 14}, 0.9, nil), test.ShouldBeNil)

	// establish a published generation first
	d, status := newTestDisplay(t, DefaultConfig())
	test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)

	bad := marshalTree(t, tree)
	bad.ID = "ColorOcTree"
	err = d.HandleMessage(bad)
	test.That(t, err, test.ShouldNotBeNil)
	entry, ok := status.get(StatusNameMessage)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, entry.level, test.ShouldEqual, StatusError)
	test.That(t, entry.text, test.ShouldContainSubstring, "octree structure")

	// the prior successful pass still drains
	r := newFakeRenderer()
	d.Update(r)
	test.That(t, r.poseSet, test.ShouldBeTrue)
	test.That(t, d.MessagesReceived(), test.ShouldEqual, 2)
}

func TestResetClearsEverything(t *testing.T) {
	tree, err := octomap.NewTree(octomap.TreeID, 0.05)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 1, Y: 1, Z: 1, Depth: 14}, 0.9, nil), test.ShouldBeNil)

	d, status := newTestDisplay(t, DefaultConfig())
	test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)
	test.That(t, d.MessagesReceived(), test.ShouldEqual, 1)

	r := newFakeRenderer()
	d.Reset(r)
	test.That(t, r.cleared, test.ShouldEqual, 1)
	test.That(t, d.MessagesReceived(), test.ShouldEqual, 0)
	entry, ok := status.get(StatusNameMessages)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, entry.text, test.ShouldContainSubstring, "0 octomap messages")

	// the published-but-undrained pass is gone
	d.Update(r)
	test.That(t, r.poseSet, test.ShouldBeFalse)

	// reset twice behaves the same as once
	d.Reset(r)
	d.Update(r)
	test.That(t, r.poseSet, test.ShouldBeFalse)
}

func TestEmptyPassPublishesNothing(t *testing.T) {
	// a tree with only free space under the occupied-only mask
	tree, err := octomap.NewTree(octomap.TreeID, 0.05)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tree.SetLeaf(octomap.VoxelKey{X: 1, Y: 1, Z: 1, Depth: 14}, 0.1, nil), test.ShouldBeNil)

	d, _ := newTestDisplay(t, DefaultConfig())
	test.That(t, d.HandleMessage(marshalTree(t, tree)), test.ShouldBeNil)

	r := newFakeRenderer()
	d.Update(r)
	test.That(t, r.poseSet, test.ShouldBeFalse)
}

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate(), test.ShouldBeNil)

	bad := DefaultConfig()
	bad.ColorFalloff = 0
	bad.QueueDepth = 0
	bad.MaxTraversalDepth = 40
	err := bad.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "falloff")
	test.That(t, err.Error(), test.ShouldContainSubstring, "queue depth")
	test.That(t, err.Error(), test.ShouldContainSubstring, "traversal depth")

	bad = DefaultConfig()
	bad.RenderMode = 0
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
}
