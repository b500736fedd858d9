package host

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/maabridge/internal/event"
	"github.com/Iron-Ham/maabridge/internal/logging"
)

// maxLineBytes bounds one request line.
const maxLineBytes = 16 << 20

// lineWriter serializes whole JSON messages onto w.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (lw *lineWriter) write(v any) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.enc.Encode(v)
}

// StdioServer speaks newline-delimited JSON over a reader and writer.
type StdioServer struct {
	dispatcher *Dispatcher
	bus        *event.Bus
	logger     *logging.Logger
}

// NewStdioServer creates a server. bus may be nil to disable events.
func NewStdioServer(d *Dispatcher, bus *event.Bus, logger *logging.Logger) *StdioServer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &StdioServer{dispatcher: d, bus: bus, logger: logger.WithComponent("stdio")}
}

// Serve reads requests from r until EOF or ctx is done, answering each on w
// from its own goroutine. It returns after every in-flight request has been
// answered.
func (s *StdioServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	out := &lineWriter{enc: json.NewEncoder(w)}

	if s.bus != nil {
		subID := s.bus.SubscribeAll(func(e event.Event) {
			msg, ok := toMessage(e)
			if !ok {
				return
			}
			if err := out.write(msg); err != nil {
				s.logger.Debug("event write failed", "event", msg.Event, "error", err)
			}
		})
		defer s.bus.Unsubscribe(subID)
	}

	var inflight conc.WaitGroup
	defer inflight.Wait()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	s.logger.Info("stdio server started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				s.logger.Error("stdin read failed", "error", err)
			}
			return err
		case line := <-lines:
			if len(line) == 0 {
				continue
			}
			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				_ = out.write(Response{Error: "malformed request: " + err.Error()})
				continue
			}
			inflight.Go(func() {
				if err := out.write(s.dispatcher.Handle(req)); err != nil {
					s.logger.Debug("response write failed", "cmd", req.Cmd, "error", err)
				}
			})
		}
	}
}
