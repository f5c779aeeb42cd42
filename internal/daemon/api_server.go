package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"royalty/internal/api"
	"royalty/internal/config"
	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/services"
)

const maxUploadBytes = 8 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router *mux.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Handle("/metrics", d.metrics.handler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(authMiddleware(cfg.API.Token))
	apiRouter.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sync", srv.handleSyncStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sync", srv.handleSyncStart).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sync", srv.handleSyncCancel).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/sync/ws", srv.handleSyncSocket).Methods(http.MethodGet)
	apiRouter.HandleFunc("/manual", srv.handleManualUpload).Methods(http.MethodPost)
	apiRouter.HandleFunc("/db/{partition}", srv.handleDBStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/db/{partition}", srv.handleDBClear).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/db/{partition}/monthly/{year:[0-9]{4}}", srv.handleMonthlySums).Methods(http.MethodGet)
	apiRouter.HandleFunc("/db/{partition}/records", srv.handleRecords).Methods(http.MethodGet)
	apiRouter.HandleFunc("/db/{partition}/periods", srv.handlePeriods).Methods(http.MethodGet)
	srv.router = router
	return srv
}

// Handler returns the full middleware chain. Requests are logged at debug
// level and counted per route template.
func (s *apiServer) Handler() http.Handler {
	logged := handlers.CustomLoggingHandler(io.Discard, s.router, s.logRequest)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: s.logger}),
		handlers.PrintRecoveryStack(false),
	)(logged)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.SyncStatus())
}

func (s *apiServer) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartSyncRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, services.Wrap(services.ErrValidation, "api", "start_sync", "decode request", err))
			return
		}
	}
	result, err := s.daemon.StartSync(r.Context(), req.StartDate, nil)
	resp := api.NewStartSyncResponse(result, err)
	if err != nil {
		s.writeJSON(w, statusFor(err), resp)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleSyncCancel(w http.ResponseWriter, _ *http.Request) {
	result := s.daemon.CancelSync()
	s.writeJSON(w, http.StatusOK, api.CancelSyncResponse{Status: result.Status})
}

func (s *apiServer) handleManualUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, services.Wrap(services.ErrValidation, "api", "manual_upload", "read body", err))
		return
	}
	req, err := api.DecodeManualUpload(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.daemon.SaveManual(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDBStatus(w http.ResponseWriter, r *http.Request) {
	partition, ok := s.partition(w, r)
	if !ok {
		return
	}
	withSums := queryBool(r, "sums")
	resp, err := s.daemon.DBStatus(r.Context(), partition, withSums)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDBClear(w http.ResponseWriter, r *http.Request) {
	partition, ok := s.partition(w, r)
	if !ok {
		return
	}
	resp, err := s.daemon.ClearPartition(r.Context(), partition)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleMonthlySums(w http.ResponseWriter, r *http.Request) {
	partition, ok := s.partition(w, r)
	if !ok {
		return
	}
	year, _ := strconv.Atoi(mux.Vars(r)["year"])
	resp, err := s.daemon.MonthlySums(r.Context(), partition, year)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	partition, ok := s.partition(w, r)
	if !ok {
		return
	}
	resp, err := s.daemon.ListRecords(r.Context(), partition, r.URL.Query().Get("period"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handlePeriods(w http.ResponseWriter, r *http.Request) {
	partition, ok := s.partition(w, r)
	if !ok {
		return
	}
	resp, err := s.daemon.ListPeriods(r.Context(), partition)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) partition(w http.ResponseWriter, r *http.Request) (ledger.Partition, bool) {
	partition, err := ledger.ParsePartition(mux.Vars(r)["partition"])
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, api.NewError(err))
		return "", false
	}
	return partition, true
}

func queryBool(r *http.Request, key string) bool {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	return value == "1" || strings.EqualFold(value, "true")
}

// statusFor maps an error classification onto an HTTP status code.
func statusFor(err error) int {
	switch services.Classify(err) {
	case services.KindInvalid:
		return http.StatusBadRequest
	case services.KindUnavailable:
		return http.StatusServiceUnavailable
	case services.KindConflict:
		return http.StatusConflict
	case services.KindNoop:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), api.NewError(err))
}

func (s *apiServer) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	route := "unmatched"
	var match mux.RouteMatch
	if s.router.Match(params.Request, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			route = tpl
		}
	}
	s.daemon.metrics.requests.WithLabelValues(route, strconv.Itoa(params.StatusCode)).Inc()
	s.logger.Debug("api request",
		logging.String("method", params.Request.Method),
		logging.String("route", route),
		logging.Int("status", params.StatusCode),
		logging.Int("bytes", params.Size),
		logging.String(logging.FieldCorrelationID, params.Request.Header.Get(requestIDHeader)),
	)
}

const requestIDHeader = "X-Request-ID"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(values ...any) {
	l.logger.Error("api handler panic",
		logging.String("panic", fmt.Sprint(values...)),
		logging.String(logging.FieldEventType, "api_panic"),
		logging.String(logging.FieldErrorHint, "report the request that triggered the panic"),
	)
}
