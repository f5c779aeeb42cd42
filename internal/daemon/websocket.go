package daemon

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"royalty/internal/api"
	"royalty/internal/events"
	"royalty/internal/logging"
	"royalty/internal/services"
)

// socketObserver delivers controller messages to one websocket client. The
// mutex serializes writes so the start reply always precedes progress.
type socketObserver struct {
	conn *websocket.Conn

	mu       sync.Mutex
	once     sync.Once
	finished chan struct{}
}

func newSocketObserver(conn *websocket.Conn) *socketObserver {
	return &socketObserver{conn: conn, finished: make(chan struct{})}
}

func (o *socketObserver) Deliver(ctx context.Context, msg events.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := wsjson.Write(ctx, o.conn, msg); err != nil {
		return err
	}
	switch msg.Type {
	case events.TypeSyncComplete, events.TypeSyncCancelled, events.TypeSyncError:
		o.once.Do(func() { close(o.finished) })
	}
	return nil
}

func (o *socketObserver) write(ctx context.Context, payload any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return wsjson.Write(ctx, o.conn, payload)
}

// handleSyncSocket runs one sync on behalf of a websocket client. The first
// client message must be startFullSync; cancelSync may follow. A client that
// disconnects mid-run makes the next delivery fail, which cancels the run.
func (s *apiServer) handleSyncSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", logging.Error(err))
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	var first api.ClientMessage
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		return
	}
	if first.Type != events.TypeStartFullSync {
		err := services.Wrap(services.ErrValidation, "api", "sync_socket", "first message must be "+string(events.TypeStartFullSync), nil)
		_ = wsjson.Write(ctx, conn, api.NewError(err))
		_ = conn.Close(websocket.StatusPolicyViolation, "expected startFullSync")
		return
	}

	observer := newSocketObserver(conn)
	observer.mu.Lock()
	result, err := s.daemon.StartSync(ctx, first.StartDate, observer)
	writeErr := wsjson.Write(ctx, conn, api.NewStartSyncResponse(result, err))
	observer.mu.Unlock()
	if err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "sync not started")
		return
	}
	if writeErr != nil {
		return
	}

	reads := make(chan api.ClientMessage)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg api.ClientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				readErr <- err
				return
			}
			select {
			case reads <- msg:
			case <-observer.finished:
				return
			}
		}
	}()

	for {
		select {
		case <-observer.finished:
			_ = conn.Close(websocket.StatusNormalClosure, "sync finished")
			return
		case err := <-readErr:
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Debug("websocket read failed", logging.Error(err))
			}
			return
		case msg := <-reads:
			switch msg.Type {
			case events.TypeCancelSync:
				result := s.daemon.CancelSync()
				_ = observer.write(ctx, api.CancelSyncResponse{Type: events.TypeCancelSync, Status: result.Status})
			default:
				err := services.Wrap(services.ErrValidation, "api", "sync_socket", "unsupported message type "+string(msg.Type), nil)
				_ = observer.write(ctx, api.NewError(err))
			}
		}
	}
}
