// Package server exposes a datascope.Service over HTTP with JSON bodies
// and streams progress events to clients as server-sent events.
package server

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/paveg/datascope"
	"github.com/paveg/datascope/internal/cache"
	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/monitoring"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/progress"
	"github.com/paveg/datascope/internal/version"
)

const (
	readHeaderTimeout = 10 * time.Second
	maxBodyBytes      = 1 << 20
	eventBuffer       = 256
)

// Server routes viewer requests to a Service.
type Server struct {
	svc    *datascope.Service
	bus    *progress.Bus
	logger *zap.Logger
	mux    *http.ServeMux
	http   *http.Server
}

// New creates a server for svc listening on addr.
func New(svc *datascope.Service, addr string) *Server {
	s := &Server{
		svc:    svc,
		bus:    progress.NewBus(),
		logger: svc.Logger().Named("server"),
		mux:    http.NewServeMux(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /csv/open", s.handleCSVOpen)
	s.mux.HandleFunc("POST /csv/pagination", s.handlePagination)
	s.mux.HandleFunc("POST /csv/page", s.handleCSVPage)
	s.mux.HandleFunc("POST /csv/thumbnail", s.handleThumbnail(cache.FormatCSV))
	s.mux.HandleFunc("POST /csv/thumbnails", s.handleThumbnails(cache.FormatCSV))
	s.mux.HandleFunc("POST /csv/delimiter", s.handleDelimiter)
	s.mux.HandleFunc("POST /csv/clear", s.handleClear(cache.FormatCSV))

	s.mux.HandleFunc("POST /parquet/open", s.handleParquetOpen)
	s.mux.HandleFunc("POST /parquet/pagination", s.handlePagination)
	s.mux.HandleFunc("POST /parquet/page", s.handleParquetPage)
	s.mux.HandleFunc("POST /parquet/thumbnail", s.handleThumbnail(cache.FormatParquet))
	s.mux.HandleFunc("POST /parquet/thumbnails", s.handleThumbnails(cache.FormatParquet))
	s.mux.HandleFunc("POST /parquet/clear", s.handleClear(cache.FormatParquet))

	s.mux.HandleFunc("POST /open", s.handleOpen)
	s.mux.HandleFunc("POST /convert", s.handleConvert)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /version", s.handleVersion)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Server", version.UserAgent())
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// Bus returns the progress bus feeding /events.
func (s *Server) Bus() *progress.Bus { return s.bus }

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("listening", zap.String("addr", l.Addr().String()))
	err := s.http.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown closes event streams and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.bus.Close()
	return s.http.Shutdown(ctx)
}

// progressFor publishes events of one request to the bus.
func (s *Server) progressFor(requestID string) progress.Func {
	return progress.Tee(s.bus.Func(requestID), func(ev progress.Event) {
		if ev.Message == progress.MessageDone || ev.Message == progress.MessageFromCache {
			s.logger.Debug("progress",
				zap.String("request_id", requestID),
				zap.Uint64("rows", ev.Current),
				zap.String("message", ev.Message),
			)
		}
	})
}

type pathRequest struct {
	Path string `json:"path"`
}

type paginationRequest struct {
	TotalRows uint64 `json:"total_rows"`
}

type pageRequest struct {
	PageIndex int             `json:"page_index"`
	PageInfo  pagination.Page `json:"page_info"`
	Columns   []string        `json:"columns,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

type thumbnailsRequest struct {
	PageIndexes []int `json:"page_indexes"`
}

type delimiterRequest struct {
	Delimiter string `json:"delimiter"`
}

type convertRequest struct {
	Source      string                   `json:"source"`
	Destination string                   `json:"destination"`
	Options     datascope.ConvertOptions `json:"options"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Open(r.Context(), req.Path)
	s.respond(w, res, err)
}

func (s *Server) handleCSVOpen(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.CSV().Open(r.Context(), req.Path)
	s.respond(w, res, err)
}

func (s *Server) handleParquetOpen(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Parquet().Open(r.Context(), req.Path)
	s.respond(w, res, err)
}

func (s *Server) handlePagination(w http.ResponseWriter, r *http.Request) {
	var req paginationRequest
	if !s.decode(w, r, &req) {
		return
	}
	plan, err := s.svc.Pagination(req.TotalRows)
	s.respond(w, plan, err)
}

func (s *Server) handleCSVPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if !s.decode(w, r, &req) {
		return
	}
	page, err := s.svc.CSV().LoadPage(r.Context(), req.PageIndex, req.PageInfo, s.progressFor(req.RequestID))
	s.respond(w, page, err)
}

func (s *Server) handleParquetPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if !s.decode(w, r, &req) {
		return
	}
	page, err := s.svc.Parquet().LoadPage(r.Context(), req.PageIndex, req.PageInfo, req.Columns, s.progressFor(req.RequestID))
	s.respond(w, page, err)
}

func (s *Server) handleThumbnail(format cache.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pageRequest
		if !s.decode(w, r, &req) {
			return
		}
		v, err := s.svc.Viewer(format)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		thumb, err := v.Thumbnail(r.Context(), req.PageIndex, req.PageInfo)
		s.respond(w, thumb, err)
	}
}

func (s *Server) handleThumbnails(format cache.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req thumbnailsRequest
		if !s.decode(w, r, &req) {
			return
		}
		v, err := s.svc.Viewer(format)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		thumbs, err := s.svc.Thumbnails(r.Context(), v, req.PageIndexes)
		s.respond(w, thumbs, err)
	}
}

func (s *Server) handleDelimiter(w http.ResponseWriter, r *http.Request) {
	var req delimiterRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := datascope.ParseDelimiter(req.Delimiter)
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	total, err := s.svc.CSV().ChangeDelimiter(r.Context(), d)
	s.respond(w, map[string]uint64{"total_rows": total}, err)
}

func (s *Server) handleClear(format cache.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		v, err := s.svc.Viewer(format)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		v.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Converter().Convert(r.Context(), req.Source, req.Destination, req.Options)
	s.respond(w, res, err)
}

type metricsResponse struct {
	Enabled bool                          `json:"enabled"`
	Summary monitoring.MetricsSummary     `json:"summary"`
	Recent  []monitoring.OperationMetrics `json:"recent"`
	Caches  map[cache.Format]cache.Stats  `json:"caches"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.svc.Metrics()
	s.respond(w, metricsResponse{
		Enabled: m.IsEnabled(),
		Summary: m.GetSummary(),
		Recent:  m.GetMetrics(),
		Caches: map[cache.Format]cache.Stats{
			cache.FormatCSV:     s.svc.CSV().Stats(),
			cache.FormatParquet: s.svc.Parquet().Stats(),
		},
	}, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, version.Info(), nil)
}

// decode reads a JSON body into dst. An empty body leaves dst at its zero
// value. It writes the error response and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, errorBody{Kind: string(dserrors.KindValidation), Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func (s *Server) respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", zap.Error(err))
		}
		s.writeError(w, status, errorBody{Kind: kindName(err), Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, body errorBody) {
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	buf, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("encoding response", zap.Error(err))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func kindName(err error) string {
	if k := dserrors.KindOf(err); k != "" {
		return string(k)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal"
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch dserrors.KindOf(err) {
	case dserrors.KindValidation:
		return http.StatusBadRequest
	case dserrors.KindState:
		return http.StatusConflict
	case dserrors.KindFormat, dserrors.KindArithmetic:
		return http.StatusUnprocessableEntity
	case dserrors.KindIO:
		if errors.Is(err, fs.ErrNotExist) {
			return http.StatusNotFound
		}
		if errors.Is(err, fs.ErrPermission) {
			return http.StatusForbidden
		}
		return http.StatusInternalServerError
	case dserrors.KindTask:
		return http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
