package render

import (
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is the metric position and orientation the drained buckets should be
// drawn under, resolved from a message's reference frame.
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// FrameResolver resolves a message's spatial reference frame into a pose in
// the render scene. Implementations live outside this package (a TF client, a
// fixed-frame identity, a test stub); a resolution failure aborts the pass
// that requested it.
type FrameResolver interface {
	ResolveTransform(frame string, stamp time.Time) (Pose, error)
}

// FixedFrameResolver resolves every frame to the identity pose and fails any
// frame other than the one it was built with.
type FixedFrameResolver struct {
	frame string
}

// NewFixedFrameResolver returns a resolver accepting only the given frame.
func NewFixedFrameResolver(frame string) *FixedFrameResolver {
	return &FixedFrameResolver{frame: frame}
}

// ResolveTransform implements FrameResolver.
func (r *FixedFrameResolver) ResolveTransform(frame string, _ time.Time) (Pose, error) {
	if frame != r.frame {
		return Pose{}, &UnknownFrameError{Frame: frame, Fixed: r.frame}
	}
	return NewZeroPose(), nil
}

// UnknownFrameError is returned by FixedFrameResolver for frames it cannot
// relate to its fixed frame.
type UnknownFrameError struct {
	Frame string
	Fixed string
}

func (e *UnknownFrameError) Error() string {
	return "failed to transform from frame [" + e.Frame + "] to frame [" + e.Fixed + "]"
}

// StatusLevel is the severity of a diagnostics entry.
type StatusLevel int

// Diagnostics severities.
const (
	StatusOk StatusLevel = iota
	StatusError
)

// Diagnostics entry names used by GridDisplay.
const (
	StatusNameTopic    = "Topic"
	StatusNameMessages = "Messages"
	StatusNameMessage  = "Message"
)

// StatusHandler receives human-readable diagnostics states keyed by name.
// Entries overwrite previous entries of the same name.
type StatusHandler interface {
	SetStatus(level StatusLevel, name, text string)
}

// NewLogStatusHandler returns a StatusHandler that writes entries to the
// given logger: errors at warn level, everything else at debug.
func NewLogStatusHandler(logger golog.Logger) StatusHandler {
	return &logStatusHandler{logger: logger}
}

type logStatusHandler struct {
	logger golog.Logger
}

func (h *logStatusHandler) SetStatus(level StatusLevel, name, text string) {
	if level == StatusError {
		h.logger.Warnw("status", "name", name, "text", text)
		return
	}
	h.logger.Debugw("status", "name", name, "text", text)
}
