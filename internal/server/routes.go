package server

import (
	"net/http"
	"strings"

	"github.com/ahmethakanbesel/cartoon-api/internal/job"
)

// Options configures the HTTP surface around the job service.
type Options struct {
	MaxUploadBytes int64
	// OutputDir is served under /outputs/ when set.
	OutputDir   string
	CORSOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(jobSvc *job.Service, opts Options) http.Handler {
	return newMux(jobSvc, opts)
}

func newMux(jobSvc *job.Service, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 15 << 20
	}

	h := &handler{
		jobSvc:         jobSvc,
		maxUploadBytes: opts.MaxUploadBytes,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/convert", h.convert)
	mux.HandleFunc("GET /api/status/{jobId}", h.status)
	if opts.OutputDir != "" {
		mux.Handle("GET /outputs/", http.StripPrefix("/outputs/", noListing(http.FileServer(http.Dir(opts.OutputDir)))))
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	// Apply middleware stack: recovery -> requestID -> logging -> cors
	var handler http.Handler = mux
	handler = cors(opts.CORSOrigins)(handler)
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}

func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
