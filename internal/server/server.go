// Package server exposes the thumbnail pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	thumbnailer "github.com/menta2k/image-thumbnailer"
	"github.com/menta2k/image-thumbnailer/internal/config"
	"github.com/menta2k/image-thumbnailer/internal/storage"
	"github.com/menta2k/image-thumbnailer/internal/utils"
	"github.com/menta2k/image-thumbnailer/pkg/client"
	"github.com/menta2k/image-thumbnailer/pkg/planner"
	"github.com/menta2k/image-thumbnailer/pkg/types"
)

var errUpstream = errors.New("upstream fetch failed")

// Options wires a Server. Store may be nil to disable the rendered
// thumbnail cache.
type Options struct {
	Config      *config.Config
	Fetcher     client.Fetcher
	Thumbnailer *thumbnailer.Thumbnailer
	Store       storage.Store
	Logger      zerolog.Logger
}

// Server handles thumbnail requests.
type Server struct {
	cfg     *config.Config
	fetcher client.Fetcher
	thumbs  *thumbnailer.Thumbnailer
	store   storage.Store
	logger  zerolog.Logger
	flight  singleflight.Group
	now     func() time.Time
}

// New creates a Server. A nil Config selects config.Default and a nil
// Thumbnailer the default JPEG pipeline.
func New(opts Options) *Server {
	s := &Server{
		cfg:     opts.Config,
		fetcher: opts.Fetcher,
		thumbs:  opts.Thumbnailer,
		store:   opts.Store,
		logger:  opts.Logger,
		now:     time.Now,
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.thumbs == nil {
		s.thumbs = thumbnailer.New()
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, middleware.RealIP, Logger(s.logger), middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/{size}/*", s.thumbnail)

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

// rendered is the shared outcome of one fetch and generate run. Exactly one
// of upstream and data is set.
type rendered struct {
	upstream *client.Response
	data     []byte
}

func (s *Server) thumbnail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)
	format := s.thumbs.OutputFormat()

	h := w.Header()
	h.Set("Cache-Control", s.cacheControl())
	h.Set("Expires", s.now().Add(s.cfg.Cache.MaxAge).UTC().Format(http.TimeFormat))
	h.Set("Content-Type", format.ContentType())

	// Conditional requests are answered without revalidating upstream.
	if r.Header.Get("If-Modified-Since") != "" || r.Header.Get("If-None-Match") != "" {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	domain := r.URL.Query().Get("domain")
	if domain == "" {
		domain = s.cfg.Upstream.DefaultDomain
	}
	if !s.cfg.IsAllowedDomain(domain) {
		writeText(w, http.StatusBadRequest, "Bad Request. Invalid domain "+domain)
		return
	}

	size := chi.URLParam(r, "size")
	req, err := ParseSize(size, s.cfg.Thumbnail.DefaultHeight)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	path := chi.URLParam(r, "*")
	if path == "" {
		writeText(w, http.StatusBadRequest, "Bad Request. Missing image path")
		return
	}

	key := utils.CacheKey(domain, req.Key(), path, format.Extension())
	if s.serveCached(w, r, key, path) {
		return
	}

	// Collapse concurrent identical requests. The shared run outlives any
	// single caller so it must not inherit its cancellation.
	v, err, shared := s.flight.Do(key, func() (any, error) {
		return s.render(context.WithoutCancel(ctx), domain, path, key, req, format)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if shared {
		log.Debug().Str("key", key).Msg("shared in-flight render")
	}

	out := v.(*rendered)
	if out.upstream != nil {
		passThrough(w, out.upstream)
		return
	}

	h.Set("ETag", etag(path))
	_, _ = w.Write(out.data)
}

// serveCached writes a stored thumbnail for key and reports whether it did.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key, path string) bool {
	if s.store == nil {
		return false
	}

	log := zerolog.Ctx(r.Context())
	f, err := s.store.Open(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		cacheLookups.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("key", key).Msg("could not open cached thumbnail")
		return false
	}
	defer f.Close()

	cacheLookups.WithLabelValues("hit").Inc()
	w.Header().Set("ETag", etag(path))
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	if _, err := io.Copy(w, f); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("could not write cached thumbnail")
	}
	return true
}

func (s *Server) render(ctx context.Context, domain, path, key string, req types.ThumbnailRequest, format types.OutputFormat) (*rendered, error) {
	log := zerolog.Ctx(ctx)
	url := fmt.Sprintf("%s://%s/%s", s.cfg.Upstream.Scheme, domain, path)
	log.Info().Str("url", url).Msg("retrieving source")

	begin := time.Now()
	resp, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		fetchDur.WithLabelValues("error").Observe(sinceMS(begin))
		return nil, fmt.Errorf("%w: %w", errUpstream, err)
	}
	fetchDur.WithLabelValues(strconv.Itoa(resp.StatusCode)).Observe(sinceMS(begin))

	if resp.StatusCode != http.StatusOK {
		log.Info().Str("url", url).Int("status", resp.StatusCode).Msg("upstream returned non-200")
		return &rendered{upstream: resp}, nil
	}

	begin = time.Now()
	result, err := s.thumbs.Generate(ctx, resp.Body, req)
	pipelineDur.Observe(sinceMS(begin))
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		err := s.store.Store(ctx, key, result.Data,
			storage.WithContentType(format.ContentType()),
			storage.WithCacheControl(s.cacheControl()))
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("could not store thumbnail")
		}
	}

	return &rendered{data: result.Data}, nil
}

// passThrough replaces the response with the upstream status, headers and
// body.
func passThrough(w http.ResponseWriter, resp *client.Response) {
	h := w.Header()
	for k := range h {
		if k != "X-Request-Id" {
			delete(h, k)
		}
	}
	for k, vv := range resp.Header {
		for _, v := range vv {
			h.Add(k, v)
		}
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidSize), errors.Is(err, planner.ErrInvalidTarget):
		status = http.StatusBadRequest
	case errors.Is(err, thumbnailer.ErrUnknownFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, planner.ErrInvalidDimensions), errors.Is(err, planner.ErrInvalidCrop),
		errors.Is(err, thumbnailer.ErrTooLarge):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errUpstream):
		status = http.StatusBadGateway
	}

	log := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("thumbnail failed")
	} else {
		log.Info().Err(err).Int("status", status).Msg("thumbnail rejected")
	}

	writeText(w, status, http.StatusText(status))
}

func (s *Server) cacheControl() string {
	return "public, max-age=" + strconv.FormatInt(int64(s.cfg.Cache.MaxAge/time.Second), 10)
}

func etag(path string) string {
	return `"` + path + `"`
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Del("ETag")
	if status >= http.StatusInternalServerError {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Del("Expires")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
