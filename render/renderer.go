package render

// GridRenderer consumes drained level buckets and draws one box-primitive set
// per tree level. Implementations live outside this package; they are called
// from the render loop only, never concurrently.
type GridRenderer interface {
	// SetPose positions the whole grid in the scene.
	SetPose(pose Pose)

	// UpdateLevel replaces the primitives for one tree level. An empty
	// bucket means nothing to draw at that level.
	UpdateLevel(level int, bucket LevelBucket)

	// Clear removes all drawn primitives.
	Clear()
}
