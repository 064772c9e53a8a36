package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sagarc03/filekeep"
)

const maxRenameBody = 64 << 10

type Service interface {
	Upload(ctx context.Context, req filekeep.UploadRequest, content io.Reader) (filekeep.FileRecord, error)
	Download(ctx context.Context, id uuid.UUID, rng filekeep.RangeSpec) (filekeep.Download, error)
	PresignDownload(ctx context.Context, id uuid.UUID) (string, error)
	Status(ctx context.Context, id uuid.UUID) (filekeep.FileStatus, error)
	Info(ctx context.Context, id uuid.UUID) (filekeep.FileRecord, error)
	List(ctx context.Context, q filekeep.ListQuery) (filekeep.ListResult, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (filekeep.FileRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Reconciler runs an on-demand reconcile pass.
type Reconciler interface {
	Trigger(ctx context.Context) (filekeep.ReconcileReport, error)
}

// CORSConfig configures go-chi/cors. An empty AllowedOrigins allows every origin.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" validate:"min=0"`
}

type HandlerConfig struct {
	Verifier   TokenVerifier
	Reconciler Reconciler
	CORS       CORSConfig
	// Health reports readiness of the backing stores. Nil always reports ok.
	Health func(ctx context.Context) error
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Handler provides the HTTP API over a file service.
type Handler struct {
	config  HandlerConfig
	service Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		config:  *config,
		service: service,
		logger:  logger.With(slog.String("component", "http")),
	}
}

// Router returns an http.Handler with every route mounted. /healthz and
// /metrics are public; everything else goes through AuthMiddleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.NotFound(writeNotFound)
	r.MethodNotAllowed(writeMethodNotAllowed)

	r.Get("/healthz", h.handleHealth)
	if h.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.config.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.config.Verifier))

		r.Route("/files", func(r chi.Router) {
			r.Get("/", h.handleList)
			r.Post("/", h.handleUpload)
			r.Get("/{id}", h.handleDownload)
			r.Get("/{id}/status", h.handleStatus)
			r.Patch("/{id}", h.handleRename)
			r.Delete("/{id}", h.handleDelete)
		})

		r.Post("/admin/reconcile", h.handleReconcile)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.config.Health != nil {
		if err := h.config.Health(r.Context()); err != nil {
			h.logger.Error("health check failed", slog.Any("error", err))
			WriteError(w, http.StatusServiceUnavailable, "unavailable", "Backing store unavailable")
			return
		}
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			limit = parsed
		}
	}

	result, err := h.service.List(r.Context(), filekeep.ListQuery{
		Limit:  filekeep.NormalizeLimit(limit),
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get("X-File-Name")
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	if name == "" {
		WriteError(w, http.StatusBadRequest, "invalid_input", "File name required in X-File-Name header or name query")
		return
	}

	declared, err := declaredSize(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	rec, err := h.service.Upload(r.Context(), filekeep.UploadRequest{
		Name:         name,
		ContentType:  r.Header.Get("Content-Type"),
		DeclaredSize: declared,
	}, r.Body)
	if err != nil {
		HandleError(w, err)
		return
	}

	w.Header().Set("Location", "/files/"+rec.ID.String())
	w.Header().Set("ETag", etag(rec.Checksum))
	_ = WriteJSON(w, http.StatusCreated, rec)
}

// declaredSize prefers X-Declared-Size and falls back to Content-Length.
// Chunked requests without the header declare nothing.
func declaredSize(r *http.Request) (int64, error) {
	if s := r.Header.Get("X-Declared-Size"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return 0, errInvalidDeclaredSize
		}
		return n, nil
	}

	if r.ContentLength > 0 {
		return r.ContentLength, nil
	}
	return 0, nil
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if r.URL.Query().Get("redirect") == "1" {
		url, err := h.service.PresignDownload(ctx, id)
		switch {
		case err == nil:
			http.Redirect(w, r, url, http.StatusFound)
			return
		case !errors.Is(err, filekeep.ErrNotSupported):
			HandleError(w, err)
			return
		}
	}

	var rng filekeep.RangeSpec
	partial := false
	if header := r.Header.Get("Range"); header != "" {
		br, err := parseRange(header)
		switch {
		case errors.Is(err, errMultipleRanges):
		case err != nil:
			WriteError(w, http.StatusRequestedRangeNotSatisfiable, "invalid_range", err.Error())
			return
		default:
			if rng, err = h.resolveRange(ctx, id, br); err != nil {
				HandleRangeError(w, err)
				return
			}
			partial = true
		}
	}

	dl, err := h.service.Download(ctx, id, rng)
	if err != nil {
		if partial {
			HandleRangeError(w, err)
			return
		}
		HandleError(w, err)
		return
	}
	defer func() { _ = dl.Body.Close() }()

	if partial && dl.Length == 0 {
		HandleRangeError(w, errUnsatisfiableRange)
		return
	}

	rec := dl.Record
	tag := etag(rec.Checksum)

	if match := r.Header.Get("If-None-Match"); match != "" && (match == tag || match == rec.Checksum || match == "*") {
		w.Header().Set("ETag", tag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	header := w.Header()
	header.Set("ETag", tag)
	header.Set("Content-Type", rec.ContentType)
	header.Set("Accept-Ranges", "bytes")
	header.Set("Content-Length", strconv.FormatInt(dl.Length, 10))
	header.Set("Last-Modified", rec.UpdatedAt.UTC().Format(http.TimeFormat))
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": rec.Name}); disposition != "" {
		header.Set("Content-Disposition", disposition)
	}

	status := http.StatusOK
	if partial {
		header.Set("Content-Range", contentRange(dl.Offset, dl.Length, rec.Size))
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	n, err := io.Copy(w, dl.Body)
	if err != nil {
		// Headers are gone; the client sees a short body.
		h.logger.Warn("download stream interrupted",
			slog.String("file_id", rec.ID.String()),
			slog.Int64("sent", n),
			slog.Int64("expected", dl.Length),
			slog.Any("error", err),
		)
	}
}

// resolveRange turns a parsed Range header into a RangeSpec. Suffix ranges
// need the file size, which costs one extra metadata read.
func (h *Handler) resolveRange(ctx context.Context, id uuid.UUID, br byteRange) (filekeep.RangeSpec, error) {
	if !br.suffix {
		length := int64(-1)
		if br.end >= 0 {
			length = br.end - br.start + 1
		}
		return filekeep.RangeSpec{Offset: br.start, Length: length}, nil
	}

	rec, err := h.service.Info(ctx, id)
	if err != nil {
		return filekeep.RangeSpec{}, err
	}
	if rec.Size == 0 {
		return filekeep.RangeSpec{}, errUnsatisfiableRange
	}

	start := max(rec.Size-br.end, 0)
	return filekeep.RangeSpec{Offset: start, Length: rec.Size - start}, nil
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, status)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var body renameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRenameBody)).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_input", "Body must be a JSON object with a name")
		return
	}

	rec, err := h.service.Rename(r.Context(), id, body.Name)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if h.config.Reconciler == nil {
		WriteError(w, http.StatusNotImplemented, "not_supported", "Reconciler not configured")
		return
	}

	report, err := h.config.Reconciler.Trigger(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, report)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_input", "Invalid file id")
		return uuid.Nil, false
	}
	return id, true
}

func etag(checksum string) string {
	return `"` + checksum + `"`
}

// byteRange is one parsed range of a Range header. end is -1 for an open
// range. For a suffix range end holds the suffix length.
type byteRange struct {
	start  int64
	end    int64
	suffix bool
}

// parseRange parses a single "bytes=" range.
func parseRange(header string) (byteRange, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return byteRange{}, errMalformedRange
	}
	if strings.Contains(spec, ",") {
		return byteRange{}, errMultipleRanges
	}

	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return byteRange{}, errMalformedRange
	}

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, errMalformedRange
		}
		return byteRange{end: n, suffix: true}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, errMalformedRange
	}

	if last == "" {
		return byteRange{start: start, end: -1}, nil
	}

	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return byteRange{}, errMalformedRange
	}

	return byteRange{start: start, end: end}, nil
}

func contentRange(offset, length, size int64) string {
	return "bytes " + strconv.FormatInt(offset, 10) + "-" + strconv.FormatInt(offset+length-1, 10) +
		"/" + strconv.FormatInt(size, 10)
}
