// Package devserver serves an in-memory incremental build of the application
// and pushes live reload events to the browser.
package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbuild/internal/assets"
	"github.com/wolfeidau/webbuild/internal/build"
	httpmiddleware "github.com/wolfeidau/webbuild/internal/http"
	"github.com/wolfeidau/webbuild/internal/telemetry"
)

// EventsPath is where live reload clients connect.
const EventsPath = "/__webbuild/events"

type Config struct {
	// Title of the generated page
	Title string
	// Entry point rendered at "/", defaults to the first matched entry
	Entry string
	// Directory of static files served as is, relative to the project root
	PublicDir string
	// Allowed CORS origins, all origins when empty
	CORSOrigins []string
	// Rebuild on file changes
	Watch    bool
	Debounce time.Duration
}

// Server rebuilds the application on change and serves the outputs from
// memory. A failed rebuild keeps the last good outputs.
type Server struct {
	config   Config
	pipeline *assets.Pipeline
	hub      *Hub
	page     http.HandlerFunc
	public   http.Handler

	buildMu sync.Mutex
	bctx    api.BuildContext
	watcher *Watcher

	mu      sync.RWMutex
	outputs map[string][]byte
	lastErr error
}

// New prepares a dev server for pipeline, which must have a page template
// registered as assets.DefaultTemplateName.
func New(pipeline *assets.Pipeline, config Config) *Server {
	if config.Debounce <= 0 {
		config.Debounce = 100 * time.Millisecond
	}

	s := &Server{
		config:   config,
		pipeline: pipeline,
		hub:      NewHub(),
		outputs:  map[string][]byte{},
	}

	if config.PublicDir != "" {
		dir := pipeline.Config().Resolve(config.PublicDir)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.public = http.FileServer(http.Dir(dir))
		}
	}
	return s
}

// Start pre-bundles dependencies, runs the first build and, when enabled,
// starts watching for changes. A failing first build is not fatal; the error
// is served until a rebuild succeeds.
func (s *Server) Start(ctx context.Context) error {
	entryPoints, err := s.pipeline.EntryPoints()
	if err != nil {
		return err
	}

	entry := s.config.Entry
	if entry == "" {
		entry = entryPoints[0]
	}
	page, err := s.pipeline.Handler(assets.DefaultTemplateName, s.config.Title, entry, nil)
	if err != nil {
		return err
	}
	s.page = page

	// the application build reports the same errors with better context
	deps, err := s.pipeline.Optimizer().Optimize(ctx, entryPoints, false)
	if err != nil {
		log.Warn().Err(err).Msg("Dependency optimization failed, serving dependencies unoptimized")
		deps = nil
	}

	opts := s.pipeline.BuildOptions(deps, entryPoints)
	opts.Write = false

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return &build.Error{Messages: cerr.Errors}
	}
	s.bctx = bctx

	if err := s.Rebuild(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial build failed, waiting for changes")
	}

	if !s.config.Watch {
		return nil
	}

	cfg := s.pipeline.Config()
	watcher, err := NewWatcher(cfg.Root, []string{cfg.Resolve(cfg.OutputDir), cfg.Resolve(cfg.CacheDir)}, s.config.Debounce, func(paths []string) {
		log.Info().Strs("files", paths).Msg("Rebuilding")
		_ = s.Rebuild(ctx)
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher
	return nil
}

// Rebuild runs an incremental build and notifies live reload clients.
func (s *Server) Rebuild(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	if s.bctx == nil {
		return errors.New("dev server not started")
	}

	started := time.Now()
	telemetry.GetMetrics().RebuildsTotal.Add(ctx, 1)

	result := s.bctx.Rebuild()
	if len(result.Errors) > 0 {
		err := &build.Error{Messages: result.Errors}
		telemetry.GetMetrics().BuildErrorsTotal.Add(ctx, 1)

		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()

		log.Error().Err(err).Msg("Rebuild failed, serving last good build")
		s.hub.Broadcast(Event{Name: "error", Data: eventData(map[string]any{"message": err.Error()})})
		return err
	}

	outputs := make(map[string][]byte, len(result.OutputFiles))
	for _, file := range result.OutputFiles {
		outputs[s.pipeline.URLPath(file.Path)] = file.Contents
	}

	if err := s.pipeline.SetMetafile(result.Metafile); err != nil {
		return err
	}

	s.mu.Lock()
	s.outputs = outputs
	s.lastErr = nil
	s.mu.Unlock()

	for _, msg := range result.Warnings {
		log.Warn().Str("warning", build.FormatMessage(msg)).Msg("Build warning")
	}

	buildID := uuid.NewString()
	log.Info().Str("build_id", buildID).Int("outputs", len(outputs)).Dur("duration", time.Since(started)).Msg("Rebuilt")
	s.hub.Broadcast(Event{Name: "reload", Data: eventData(map[string]any{"build_id": buildID})})
	return nil
}

// LastError returns the error of the latest build, nil when it succeeded.
func (s *Server) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Hub returns the live reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the dev server's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(EventsPath, s.hub)
	mux.Handle("/", gzhttp.GzipHandler(http.HandlerFunc(s.serve)))

	return httpmiddleware.RequestLogger(log.Logger)(withCORS(s.config.CORSOrigins, mux))
}

// Close stops watching and releases the build context.
func (s *Server) Close() error {
	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}
	s.hub.Shutdown()

	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if s.bctx != nil {
		s.bctx.Dispose()
		s.bctx = nil
	}
	return err
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	contents, ok := s.outputs[r.URL.Path]
	built := len(s.outputs) > 0
	lastErr := s.lastErr
	s.mu.RUnlock()

	if ok {
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, path.Base(r.URL.Path), time.Time{}, bytes.NewReader(contents))
		return
	}

	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		switch {
		case !built && lastErr != nil:
			http.Error(w, lastErr.Error(), http.StatusInternalServerError)
		case s.page == nil:
			http.Error(w, "dev server not started", http.StatusServiceUnavailable)
		default:
			s.page(w, r)
		}
		return
	}

	if s.public != nil {
		if _, err := os.Stat(filepath.Join(s.pipeline.Config().Resolve(s.config.PublicDir), filepath.FromSlash(path.Clean(r.URL.Path)))); err == nil {
			s.public.ServeHTTP(w, r)
			return
		}
	}

	http.NotFound(w, r)
}

// withCORS allows cross origin requests from origins, or any origin when
// none are configured.
func withCORS(origins []string, h http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	middleware := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	})
	return middleware.Handler(h)
}

func eventData(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
