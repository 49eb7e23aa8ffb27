// Package client subscribes to a stream of octomap messages over a websocket
// and buffers them for a display. If messages arrive faster than the consumer
// drains them, the oldest buffered message is dropped; only the freshest maps
// are worth rendering.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/octogrid/octomap"
)

// Subscriber reads octomap message envelopes, one JSON frame each, from a
// websocket feed.
type Subscriber struct {
	logger golog.Logger
	conn   *websocket.Conn
	queue  chan *octomap.Message

	dropped atomic.Int64

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// Dial connects to the given websocket URL and starts receiving messages into
// a queue of the given depth.
func Dial(ctx context.Context, url string, queueDepth int, logger golog.Logger) (*Subscriber, error) {
	if queueDepth < 1 {
		return nil, errors.Errorf("queue depth must be at least 1, got %d", queueDepth)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing octomap feed %q", url)
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	s := &Subscriber{
		logger:     logger,
		conn:       conn,
		queue:      make(chan *octomap.Message, queueDepth),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
	s.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer s.activeBackgroundWorkers.Done()
		s.readLoop()
	})
	return s, nil
}

// Messages returns the channel of buffered messages. It is closed when the
// feed ends or the subscriber is closed.
func (s *Subscriber) Messages() <-chan *octomap.Message {
	return s.queue
}

// Dropped returns how many buffered messages were discarded to make room for
// newer ones.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscriber) readLoop() {
	defer close(s.queue)
	for {
		msg := &octomap.Message{}
		if err := s.conn.ReadJSON(msg); err != nil {
			if s.cancelCtx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Errorw("reading octomap feed", "error", err)
			}
			return
		}
		select {
		case s.queue <- msg:
		default:
			// queue full: drop the oldest and retry once. The consumer may
			// have raced us for it, in which case there is room now.
			select {
			case <-s.queue:
				s.dropped.Inc()
			default:
			}
			select {
			case s.queue <- msg:
			default:
			}
		}
	}
}

// Close stops the read loop and closes the connection.
func (s *Subscriber) Close() error {
	s.cancelFunc()
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		closeDeadline())
	err = multierr.Combine(err, s.conn.Close())
	s.activeBackgroundWorkers.Wait()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}
