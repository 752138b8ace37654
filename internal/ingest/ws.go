package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/chesslens/chesslens/internal/obslog"
	"github.com/chesslens/chesslens/pkg/visiondto"
)

// Stream subscribes to the vision service's websocket feed and delivers
// frames to a callback in arrival order. The connection is re-established
// with backoff after transient failures until Close is called.
type Stream struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	onFrame func(visiondto.Frame)

	reconnectWait time.Duration
	cancelListen  context.CancelFunc
	done          chan struct{}
	doneOnce      sync.Once
}

func (s *Stream) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func NewStream(url string) *Stream {
	return &Stream{
		url:           url,
		reconnectWait: time.Second,
		done:          make(chan struct{}),
	}
}

// OnFrame registers the frame handler. Must be called before Connect.
func (s *Stream) OnFrame(fn func(visiondto.Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = fn
}

// Done is closed once the stream has shut down for good.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("stream closed")
	}
	s.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)

	listenCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancelListen = cancel
	s.mu.Unlock()

	obslog.L().Info("vision stream connected", zap.String("url", s.url))
	go s.listen(listenCtx, conn)
	return nil
}

func (s *Stream) listen(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame visiondto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				s.markDone()
				return
			}
			obslog.L().Warn("vision stream read failed", zap.Error(err))
			s.scheduleReconnect()
			return
		}

		s.mu.Lock()
		handler := s.onFrame
		s.mu.Unlock()
		if handler != nil {
			handler(frame)
		}
	}
}

func (s *Stream) scheduleReconnect() {
	go func() {
		wait := s.reconnectWait
		for {
			select {
			case <-time.After(wait):
			case <-s.done:
				return
			}

			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			err := s.Connect(ctx)
			cancel()
			if err == nil {
				return
			}
			obslog.L().Warn("vision stream reconnect failed",
				zap.Error(err), zap.Duration("next_wait", wait*2))
			if wait < 30*time.Second {
				wait *= 2
			}
		}
	}()
}

func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	cancel := s.cancelListen
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	s.markDone()
	return err
}
