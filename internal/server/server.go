// Package server exposes annotation and pattern matching over HTTP. A
// Server owns every piece of process-wide state the handlers share: the
// default properties, the pipeline cache, the worker pool, and the
// optional output cache and analytics collector.
package server

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/dongwandou/CoreNLP/internal/analytics"
	"github.com/dongwandou/CoreNLP/internal/capability"
	"github.com/dongwandou/CoreNLP/internal/executor"
	"github.com/dongwandou/CoreNLP/internal/outputcache"
	"github.com/dongwandou/CoreNLP/internal/pipeline"
	"github.com/dongwandou/CoreNLP/internal/props"
	"github.com/dongwandou/CoreNLP/pkg/health"
	"github.com/dongwandou/CoreNLP/pkg/logger"
	"github.com/dongwandou/CoreNLP/pkg/metrics"
	"github.com/dongwandou/CoreNLP/pkg/middleware"
	"github.com/dongwandou/CoreNLP/pkg/ratelimit"
)

//go:embed static
var embedded embed.FS

const (
	pageHTML = "corenlp-brat.html"
	pageJS   = "corenlp-brat.js"
	pageCSS  = "corenlp-brat.css"
)

// Options wires a Server. Registry, Pipelines and Executor are required;
// everything else may be left zero.
type Options struct {
	Defaults  props.Properties
	Registry  *capability.Registry
	Pipelines *pipeline.Cache
	Executor  *executor.Executor

	// Output caches rendered annotations. Nil disables caching.
	Output *outputcache.Cache
	// Collector receives one event per API call. Nil disables tracking.
	Collector *analytics.Collector
	Stats     *analytics.Handler
	Health    *health.Checker
	Metrics   *metrics.Metrics
	// Limiter throttles annotation and match requests per client address.
	Limiter *ratelimit.Limiter

	ShutdownKey string
	// StaticDir replaces the embedded page and assets when set.
	StaticDir string
	// Exit terminates the process after a valid shutdown request.
	// Defaults to os.Exit.
	Exit func(code int)
}

// Server is the HTTP front end.
type Server struct {
	defaults    props.Properties
	registry    *capability.Registry
	pipelines   *pipeline.Cache
	executor    *executor.Executor
	output      *outputcache.Cache
	collector   *analytics.Collector
	stats       *analytics.Handler
	health      *health.Checker
	metrics     *metrics.Metrics
	limiter     *ratelimit.Limiter
	shutdownKey string
	exit        func(code int)
	assets      map[string]asset
	logger      *slog.Logger
}

type asset struct {
	contentType string
	body        []byte
}

// New validates opts and loads the static assets.
func New(opts Options) (*Server, error) {
	if opts.Registry == nil || opts.Pipelines == nil || opts.Executor == nil {
		return nil, fmt.Errorf("server: registry, pipelines and executor are required")
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	assets, err := loadAssets(opts.StaticDir)
	if err != nil {
		return nil, err
	}
	return &Server{
		defaults:    opts.Defaults,
		registry:    opts.Registry,
		pipelines:   opts.Pipelines,
		executor:    opts.Executor,
		output:      opts.Output,
		collector:   opts.Collector,
		stats:       opts.Stats,
		health:      opts.Health,
		metrics:     opts.Metrics,
		limiter:     opts.Limiter,
		shutdownKey: opts.ShutdownKey,
		exit:        opts.Exit,
		assets:      assets,
		logger:      logger.WithComponent("server"),
	}, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.Annotate)
	mux.HandleFunc("/tokensregex", s.TokensRegex)
	mux.HandleFunc("/semgrex", s.Semgrex)
	mux.HandleFunc("/ping", s.Ping)
	mux.HandleFunc("/shutdown", s.Shutdown)
	mux.HandleFunc("GET /"+pageJS, s.serveAsset(pageJS))
	mux.HandleFunc("GET /"+pageCSS, s.serveAsset(pageCSS))
	mux.HandleFunc("POST /cache/invalidate", s.InvalidateCache)
	if s.stats != nil {
		mux.HandleFunc("GET /stats", s.stats.Stats)
		mux.HandleFunc("GET /stats/history", s.stats.History)
	}
	if s.health != nil {
		mux.HandleFunc("GET /health/live", s.health.LiveHandler())
		mux.HandleFunc("GET /health/ready", s.health.ReadyHandler())
	}

	var chain http.Handler = mux
	if s.limiter != nil {
		chain = middleware.RateLimit(s.limiter, "/", "/tokensregex", "/semgrex")(chain)
	}
	chain = middleware.AllowOrigin("*")(chain)
	if s.metrics != nil {
		chain = middleware.Metrics(s.metrics,
			"/", "/tokensregex", "/semgrex", "/ping", "/shutdown",
			"/"+pageJS, "/"+pageCSS, "/cache/invalidate",
			"/stats", "/stats/history", "/health/live", "/health/ready",
		)(chain)
	}
	chain = middleware.AccessLog(chain)
	chain = middleware.RequestID(chain)
	return chain
}

func loadAssets(dir string) (map[string]asset, error) {
	src, err := fs.Sub(embedded, "static")
	if err != nil {
		return nil, err
	}
	if dir != "" {
		src = os.DirFS(dir)
	}
	types := map[string]string{
		pageHTML: "text/html; charset=utf-8",
		pageJS:   "application/javascript",
		pageCSS:  "text/css",
	}
	assets := make(map[string]asset, len(types))
	for name, ct := range types {
		body, err := fs.ReadFile(src, name)
		if err != nil {
			return nil, fmt.Errorf("loading static asset %s: %w", name, err)
		}
		assets[name] = asset{contentType: ct, body: body}
	}
	return assets, nil
}

func (s *Server) serveAsset(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeAsset(w, name)
	}
}

func (s *Server) writeAsset(w http.ResponseWriter, name string) {
	a := s.assets[name]
	w.Header().Set("Content-Type", a.contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(a.body)
}
