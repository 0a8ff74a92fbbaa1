package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	inboundgateway "meridian/contexts/channel-sync/inbound-gateway-service"
	outboundports "meridian/contexts/channel-sync/outbound-sync-service/ports"
	syncstatus "meridian/contexts/channel-sync/sync-status-service"
	statuserrors "meridian/contexts/channel-sync/sync-status-service/domain/errors"
)

const defaultLogLimit = 50

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	inbound inboundgateway.Module
	status  syncstatus.Module
	logs    outboundports.MessageLogRepository
}

func New(
	inbound inboundgateway.Module,
	status syncstatus.Module,
	logs outboundports.MessageLogRepository,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		inbound: inbound,
		status:  status,
		logs:    logs,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Serve runs the server until ctx is done, then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting",
			"event", "http_server_starting",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"addr", s.addr,
		)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.Handle("POST /htng/endpoint", s.inbound.Handler)

	s.mux.HandleFunc("GET /admin/sync-status", s.handleListSyncStatus)
	s.mux.HandleFunc("GET /admin/sync-status/{key}", s.handleGetSyncStatus)
	s.mux.HandleFunc("GET /admin/message-logs", s.handleListMessageLogs)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) handleListSyncStatus(w http.ResponseWriter, r *http.Request) {
	hotelCode := r.URL.Query().Get("hotel_code")
	if hotelCode == "" {
		writeError(w, http.StatusBadRequest, "missing_hotel_code", "hotel_code query parameter is required")
		return
	}
	resp, err := s.status.Handler.PropertyStatusHandler(r.Context(), hotelCode)
	if err != nil {
		writeStatusDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.status.Handler.StatusHandler(r.Context(), r.PathValue("key"))
	if err != nil {
		writeStatusDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListMessageLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := s.logs.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("message log listing failed",
			"event", "admin_message_logs_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal", "message log listing failed")
		return
	}
	items := make([]messageLogResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toMessageLogResponse(entry))
	}
	writeJSON(w, http.StatusOK, messageLogListResponse{Items: items})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeStatusDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, statuserrors.ErrStatusNotFound):
		writeError(w, http.StatusNotFound, "not_found", "sync status not found")
	case errors.Is(err, statuserrors.ErrInvalidStatusInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "sync status lookup failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
