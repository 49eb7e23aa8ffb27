package render

import "sync"

// PointStore exchanges a fully built bucket set between the message
// processing pass and the render loop. Two generations exist: the pass-local
// set the producer fills outside any lock, and the pending set held here. The
// lock is held only around the ownership exchange and the dirty flag, never
// around traversal or coloring.
//
// Single-writer discipline is the caller's: Publish must not race with
// another Publish, but may race freely with Drain and Reset.
type PointStore struct {
	mu      sync.Mutex
	dirty   bool
	pose    Pose
	buckets BucketSet
}

// Publish exchanges the caller's bucket set with the pending generation and
// marks it dirty. On return the caller's set holds the previous generation's
// storage, ready to be cleared and refilled by the next pass.
func (s *PointStore) Publish(buckets *BucketSet, pose Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets, *buckets = *buckets, s.buckets
	s.pose = pose
	s.dirty = true
}

// Drain takes ownership of the pending generation if it is dirty. The second
// return is false when nothing new was published since the last drain; the
// renderer should keep showing what it already drew.
func (s *PointStore) Drain() (BucketSet, Pose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return BucketSet{}, Pose{}, false
	}
	out := s.buckets
	s.buckets = BucketSet{}
	s.dirty = false
	return out, s.pose, true
}

// Reset discards any pending generation and clears the dirty flag. Safe to
// call at any time; calling it twice is the same as calling it once.
func (s *PointStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = BucketSet{}
	s.pose = Pose{}
	s.dirty = false
}
