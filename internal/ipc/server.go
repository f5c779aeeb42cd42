package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"royalty/internal/api"
	"royalty/internal/daemon"
	"royalty/internal/ledger"
	"royalty/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName("Royalty", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun royalty stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	// Shutdown may end the process; reply first.
	go s.daemon.Shutdown()
	resp.Stopped = true
	s.logger.Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) SyncStart(req SyncStartRequest, resp *SyncStartResponse) error {
	result, err := s.daemon.StartSync(s.ctx, req.StartDate, nil)
	*resp = api.NewStartSyncResponse(result, err)
	if err != nil {
		s.logger.Info("sync start refused",
			logging.String("reason", err.Error()),
			logging.String(logging.FieldEventType, "sync_start_refused"))
	}
	return nil
}

func (s *service) SyncCancel(_ SyncCancelRequest, resp *SyncCancelResponse) error {
	result := s.daemon.CancelSync()
	resp.Status = result.Status
	return nil
}

func (s *service) SyncStatus(_ SyncStatusRequest, resp *SyncStatusResponse) error {
	*resp = s.daemon.SyncStatus()
	return nil
}

func (s *service) SaveManual(req SaveManualRequest, resp *SaveManualResponse) error {
	result, err := s.daemon.SaveManual(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) DBStatus(req DBStatusRequest, resp *DBStatusResponse) error {
	partition, err := ledger.ParsePartition(req.Partition)
	if err != nil {
		return err
	}
	result, err := s.daemon.DBStatus(s.ctx, partition, req.Sums)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) MonthlySums(req MonthlySumsRequest, resp *MonthlySumsResponse) error {
	partition, err := ledger.ParsePartition(req.Partition)
	if err != nil {
		return err
	}
	result, err := s.daemon.MonthlySums(s.ctx, partition, req.Year)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) ListRecords(req ListRecordsRequest, resp *ListRecordsResponse) error {
	partition, err := ledger.ParsePartition(req.Partition)
	if err != nil {
		return err
	}
	result, err := s.daemon.ListRecords(s.ctx, partition, req.Period)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) ListPeriods(req ListPeriodsRequest, resp *ListPeriodsResponse) error {
	partition, err := ledger.ParsePartition(req.Partition)
	if err != nil {
		return err
	}
	result, err := s.daemon.ListPeriods(s.ctx, partition)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) ClearPartition(req ClearPartitionRequest, resp *ClearPartitionResponse) error {
	partition, err := ledger.ParsePartition(req.Partition)
	if err != nil {
		return err
	}
	result, err := s.daemon.ClearPartition(s.ctx, partition)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	*resp = health
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
