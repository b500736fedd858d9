package host

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/event"
	"github.com/Iron-Ham/maabridge/internal/logging"
)

// writeTimeout bounds a single websocket write.
const writeTimeout = 10 * time.Second

// WSServer serves the host protocol over websocket connections. Each
// connection receives every event.
type WSServer struct {
	dispatcher *Dispatcher
	bus        *event.Bus
	logger     *logging.Logger
}

// NewWSServer creates a websocket server. bus may be nil to disable events.
func NewWSServer(d *Dispatcher, bus *event.Bus, logger *logging.Logger) *WSServer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &WSServer{dispatcher: d, bus: bus, logger: logger.WithComponent("ws")}
}

// wsConn serializes writes to one connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, v)
}

// ServeHTTP upgrades the request and serves it until the peer disconnects.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := s.logger.With("remote", r.RemoteAddr)
	log.Info("websocket client connected")
	c := &wsConn{conn: conn}

	if s.bus != nil {
		subID := s.bus.SubscribeAll(func(e event.Event) {
			msg, ok := toMessage(e)
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				log.Debug("event write failed", "event", msg.Event, "error", err)
			}
		})
		defer s.bus.Unsubscribe(subID)
	}

	var inflight conc.WaitGroup
	defer inflight.Wait()

	for {
		var req Request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Info("websocket client disconnected")
			} else if !errors.Is(err, context.Canceled) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}
		inflight.Go(func() {
			if err := c.write(ctx, s.dispatcher.Handle(req)); err != nil {
				log.Debug("response write failed", "cmd", req.Cmd, "error", err)
			}
		})
	}
}

// ListenAndServe serves websocket clients on addr until ctx is done.
func (s *WSServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts websocket clients on ln until ctx is done.
func (s *WSServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("websocket server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
