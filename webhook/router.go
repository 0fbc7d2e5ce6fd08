package webhook

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	ghapi "github.com/google/go-github/v57/github"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"zcommit/internal"
	"zcommit/pkg/zcommit"
)

// rateLimitTTL is how long an idle client's bucket is kept.
const rateLimitTTL = 10 * time.Minute

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	MountPath    string
	MaxBodyBytes int64
	GitHubSecret string
	Translator   zcommit.Translator
	Pipeline     *Pipeline
	// Deliveries serves the journal listing; nil leaves the route unregistered.
	Deliveries     http.Handler
	MetricsEnabled bool
	MetricsPath    string
	RateLimitRPS   int64
	RateLimitBurst int64
	Logger         zerolog.Logger
}

// NewRouter builds the service handler.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	mount := "/" + strings.Trim(cfg.MountPath, "/")
	base := strings.TrimRight(mount, "/")

	github, err := NewGitHubHandler(base+"/github", cfg.Translator, cfg.Pipeline, cfg.GitHubSecret, cfg.MaxBodyBytes, cfg.Logger)
	if err != nil {
		return nil, err
	}
	generic := NewGenericHandler(cfg.Pipeline, cfg.MaxBodyBytes, cfg.Logger)
	index := NewIndexHandler(base)

	router := chi.NewRouter()
	router.Use(deliveryRequestID)
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(echoRequestID)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, promhttp.Handler())
	}

	routes := func(r chi.Router) {
		r.Get("/", index.ServeHTTP)
		r.Handle("/github", github)
		r.Handle("/github/*", github)
		r.Handle("/default", generic)
		r.Handle("/default/", generic)
		if cfg.Deliveries != nil {
			r.Handle("/deliveries", cfg.Deliveries)
		}
	}
	if base == "" {
		routes(router)
	} else {
		router.Route(base, routes)
	}

	return internal.NewRateLimitHandler(router, cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimitTTL), nil
}

// deliveryRequestID reuses the GitHub delivery GUID as the request id.
func deliveryRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := ghapi.DeliveryID(r); id != "" {
			r.Header.Set(chimiddleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(chimiddleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}
