package render

import (
	"fmt"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/octogrid/octomap"
)

// Config is the resolved configuration surface of one GridDisplay. Values
// arrive from whatever panel or file the host application exposes; the
// display only consumes the results.
type Config struct {
	// MaxTraversalDepth governs how deep traversal descends. Zero means full
	// depth; values above a tree's actual depth are clamped per message.
	MaxTraversalDepth int
	// RenderMode selects which voxel states are drawn.
	RenderMode RenderMode
	// ColorMode selects how voxels are colored.
	ColorMode ColorMode
	// ColorFalloff scales the hue range of ColorModeHeight; in (0,1].
	ColorFalloff float64
	// QueueDepth is how many incoming messages the subscriber may buffer.
	// Plumbed to the message source, not used by the display itself.
	QueueDepth int
}

// DefaultConfig mirrors the traditional display defaults: occupied voxels,
// texture coloring, falloff 0.8, queue of 5.
func DefaultConfig() Config {
	return Config{
		RenderMode:   OccupiedVoxels,
		ColorMode:    ColorModeTexture,
		ColorFalloff: 0.8,
		QueueDepth:   5,
	}
}

// Validate returns every constraint violation in the config.
func (c Config) Validate() error {
	var err error
	if c.MaxTraversalDepth < 0 || c.MaxTraversalDepth > octomap.MaxTreeDepth {
		err = multierr.Append(err, errors.Errorf("max traversal depth must be in [0,%d], got %d",
			octomap.MaxTreeDepth, c.MaxTraversalDepth))
	}
	if c.RenderMode&AllVoxels == 0 || c.RenderMode&^AllVoxels != 0 {
		err = multierr.Append(err, errors.Errorf("render mode must be free, occupied, or all, got %d", c.RenderMode))
	}
	if c.ColorMode < ColorModeTexture || c.ColorMode > ColorModeProbability {
		err = multierr.Append(err, errors.Errorf("unknown color mode %d", c.ColorMode))
	}
	if !(c.ColorFalloff > 0 && c.ColorFalloff <= 1) {
		err = multierr.Append(err, errors.Errorf("color falloff must be in (0,1], got %f", c.ColorFalloff))
	}
	if c.QueueDepth < 1 {
		err = multierr.Append(err, errors.Errorf("queue depth must be at least 1, got %d", c.QueueDepth))
	}
	return err
}

// GridDisplay is one subscription's worth of state: resolved configuration,
// a message counter, and the double-buffered point store. HandleMessage may
// run on any one goroutine at a time; Update and Reset belong to the render
// loop. The heavy per-message work runs without holding any lock shared with
// the render loop.
type GridDisplay struct {
	logger   golog.Logger
	resolver FrameResolver
	status   StatusHandler

	confMu sync.RWMutex
	conf   Config

	messagesReceived atomic.Int64

	store PointStore
	// passBuckets is owned by the message goroutine; its storage is recycled
	// through the store on each publish.
	passBuckets BucketSet
}

// NewGridDisplay returns a display with the given collaborators. A nil status
// handler logs diagnostics through the logger.
func NewGridDisplay(conf Config, resolver FrameResolver, status StatusHandler, logger golog.Logger) (*GridDisplay, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid grid display config")
	}
	if resolver == nil {
		return nil, errors.New("frame resolver is required")
	}
	if status == nil {
		status = NewLogStatusHandler(logger)
	}
	return &GridDisplay{
		logger:   logger,
		resolver: resolver,
		status:   status,
		conf:     conf,
	}, nil
}

// Config returns the current configuration.
func (d *GridDisplay) Config() Config {
	d.confMu.RLock()
	defer d.confMu.RUnlock()
	return d.conf
}

// SetConfig replaces the configuration; it takes effect on the next message.
func (d *GridDisplay) SetConfig(conf Config) error {
	if err := conf.Validate(); err != nil {
		return errors.Wrap(err, "invalid grid display config")
	}
	d.confMu.Lock()
	defer d.confMu.Unlock()
	d.conf = conf
	return nil
}

// MessagesReceived returns how many messages the display has been handed
// since creation or the last Reset.
func (d *GridDisplay) MessagesReceived() int64 {
	return d.messagesReceived.Load()
}

// HandleMessage runs one processing pass: resolve the message's frame, decode
// the tree, cull, color, bucket, and publish. Any error aborts only this
// pass; previously published buckets are untouched and future messages are
// unaffected. A pass yielding zero visible points publishes nothing.
func (d *GridDisplay) HandleMessage(msg *octomap.Message) error {
	received := d.messagesReceived.Inc()
	d.status.SetStatus(StatusOk, StatusNameMessages,
		fmt.Sprintf("%d octomap messages received", received))

	pose, err := d.resolver.ResolveTransform(msg.Frame, msg.Stamp)
	if err != nil {
		d.status.SetStatus(StatusError, StatusNameMessage, err.Error())
		return errors.Wrapf(err, "resolving transform for frame %q", msg.Frame)
	}

	tree, err := octomap.Decode(msg)
	if err != nil {
		d.status.SetStatus(StatusError, StatusNameMessage, "failed to create octree structure")
		return errors.Wrap(err, "decoding octomap message")
	}
	d.logger.Debugf("received octomap of type %s (%d bytes, %d nodes)",
		tree.ID(), len(msg.Data), tree.NumNodes())

	conf := d.Config()
	depth := effectiveDepth(conf.MaxTraversalDepth, tree)

	if count := d.runPass(tree, conf, depth); count > 0 {
		d.store.Publish(&d.passBuckets, pose)
	}
	return nil
}

// effectiveDepth clamps the configured traversal depth to the tree's actual
// depth. Zero means no limit. Out-of-range values are benign configuration
// skew, not an error.
func effectiveDepth(configured int, tree *octomap.Tree) uint8 {
	if configured <= 0 || configured > int(tree.Depth()) {
		return tree.Depth()
	}
	return uint8(configured)
}

func (d *GridDisplay) runPass(tree *octomap.Tree, conf Config, depth uint8) int {
	bucketer := newLevelBucketer(&d.passBuckets, tree)
	minZ := tree.MetricMin().Z
	maxZ := tree.MetricMax().Z

	count := 0
	tree.TraverseLeaves(depth, func(key octomap.VoxelKey, n *octomap.Node) bool {
		// a depth-0 leaf is the whole grid; there is no bucket for it
		if key.Depth == 0 {
			return true
		}
		if !conf.RenderMode.Matches(n.Occupied()) {
			return true
		}
		if !Visible(tree, key, depth, conf.RenderMode) {
			return true
		}

		pos := tree.CellCenter(key)
		var c Color
		switch conf.ColorMode {
		case ColorModeTexture:
			c = TextureColor(n)
		case ColorModeHeight:
			c = HeightColor(pos.Z, minZ, maxZ, conf.ColorFalloff)
		case ColorModeProbability:
			c = ProbabilityColor(n.Probability())
		}

		bucketer.add(key.Depth, RenderPoint{Position: pos, Color: c})
		count++
		return true
	})
	return count
}

// Update is the render tick: if a new generation of buckets was published
// since the last call, push it to the renderer. Otherwise a no-op and the
// renderer keeps showing what it has.
func (d *GridDisplay) Update(r GridRenderer) {
	buckets, pose, ok := d.store.Drain()
	if !ok {
		return
	}
	r.SetPose(pose)
	for i := range buckets {
		r.UpdateLevel(i, buckets[i])
	}
}

// Reset clears the store, the renderer if given, and the message counter.
// Used on topic change and explicit clear; an in-flight pass may still
// publish afterward, which the next Reset or successful pass supersedes.
func (d *GridDisplay) Reset(r GridRenderer) {
	d.store.Reset()
	d.messagesReceived.Store(0)
	if r != nil {
		r.Clear()
	}
	d.status.SetStatus(StatusOk, StatusNameMessages, "0 octomap messages received")
}
