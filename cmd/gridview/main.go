// Package main contains a command to view an octomap feed as leveled voxel
// grids, reporting what a renderer would draw.
package main

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"go.viam.com/octogrid/client"
	"go.viam.com/octogrid/render"
)

var logger = golog.NewDevelopmentLogger("gridview")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"config,required,usage=path to feed config (YAML)"`
}

// feedConfig is the YAML configuration surface of the viewer.
type feedConfig struct {
	// Topic is the websocket URL of the octomap feed.
	Topic      string `yaml:"topic"`
	FixedFrame string `yaml:"fixed_frame"`
	QueueDepth int    `yaml:"queue_depth"`
	// MaxTraversalDepth limits rendering to coarser tree levels; 0 is full depth.
	MaxTraversalDepth int     `yaml:"max_traversal_depth"`
	RenderMode        string  `yaml:"render_mode"`
	ColorMode         string  `yaml:"color_mode"`
	ColorFalloff      float64 `yaml:"color_falloff"`
	// UpdateInterval is the render tick period, e.g. "100ms".
	UpdateInterval string `yaml:"update_interval"`
}

func loadConfig(path string) (*feedConfig, render.Config, time.Duration, error) {
	conf := render.DefaultConfig()
	fc := feedConfig{
		FixedFrame:     "map",
		QueueDepth:     conf.QueueDepth,
		RenderMode:     conf.RenderMode.String(),
		ColorMode:      conf.ColorMode.String(),
		ColorFalloff:   conf.ColorFalloff,
		UpdateInterval: "100ms",
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, conf, 0, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, conf, 0, errors.Wrapf(err, "parsing config %q", path)
	}
	if fc.Topic == "" {
		return nil, conf, 0, errors.New("topic is required")
	}

	conf.MaxTraversalDepth = fc.MaxTraversalDepth
	conf.ColorFalloff = fc.ColorFalloff
	conf.QueueDepth = fc.QueueDepth
	if conf.RenderMode, err = render.ParseRenderMode(fc.RenderMode); err != nil {
		return nil, conf, 0, err
	}
	if conf.ColorMode, err = render.ParseColorMode(fc.ColorMode); err != nil {
		return nil, conf, 0, err
	}
	interval, err := time.ParseDuration(fc.UpdateInterval)
	if err != nil {
		return nil, conf, 0, errors.Wrap(err, "parsing update_interval")
	}
	if err := conf.Validate(); err != nil {
		return nil, conf, 0, err
	}
	return &fc, conf, interval, nil
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	fc, conf, interval, err := loadConfig(argsParsed.ConfigFile)
	if err != nil {
		return err
	}

	status := render.NewLogStatusHandler(logger)
	display, err := render.NewGridDisplay(
		conf,
		render.NewFixedFrameResolver(fc.FixedFrame),
		status,
		logger,
	)
	if err != nil {
		return err
	}

	sub, err := client.Dial(ctx, fc.Topic, conf.QueueDepth, logger)
	if err != nil {
		status.SetStatus(render.StatusError, render.StatusNameTopic, "error subscribing: "+err.Error())
		return err
	}
	defer func() {
		err = multierr.Combine(err, sub.Close())
	}()
	status.SetStatus(render.StatusOk, render.StatusNameTopic, "subscribed to "+fc.Topic)
	logger.Infow("subscribed", "topic", fc.Topic, "queue_depth", conf.QueueDepth)

	// messages are processed off the render loop; the display's point store
	// carries results across
	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var workers sync.WaitGroup
	workers.Add(1)
	utils.PanicCapturingGo(func() {
		defer workers.Done()
		defer cancel()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}
				if err := display.HandleMessage(msg); err != nil {
					logger.Errorw("processing octomap message", "error", err)
				}
			}
		}
	})

	renderer := &logRenderer{logger: logger}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-cancelCtx.Done():
			workers.Wait()
			return nil
		case <-ticker.C:
			display.Update(renderer)
		}
	}
}

// logRenderer reports what a scene renderer would draw.
type logRenderer struct {
	logger golog.Logger
}

func (r *logRenderer) SetPose(pose render.Pose) {
	r.logger.Debugw("grid pose", "position", pose.Point)
}

func (r *logRenderer) UpdateLevel(level int, bucket render.LevelBucket) {
	if len(bucket.Points) == 0 {
		return
	}
	r.logger.Infow("level updated",
		"level", level,
		"voxel_size", bucket.Size,
		"points", len(bucket.Points),
	)
}

func (r *logRenderer) Clear() {
	r.logger.Info("grid cleared")
}
