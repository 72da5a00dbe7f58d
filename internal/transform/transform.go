// Package transform holds the registry of image transformers and helpers
// shared by its implementations.
package transform

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/ahmethakanbesel/cartoon-api/internal/job"
)

const (
	Auto       = "auto"
	Local      = "local"
	Cloudinary = "cloudinary"
)

type Registry struct {
	mu           sync.RWMutex
	transformers map[string]job.Transformer
}

func NewRegistry() *Registry {
	return &Registry{
		transformers: make(map[string]job.Transformer),
	}
}

func (r *Registry) Register(t job.Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[t.Name()] = t
}

func (r *Registry) Get(name string) (job.Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transformers[name]
	if !ok {
		return nil, fmt.Errorf("transformer not registered: %s", name)
	}
	return t, nil
}

// Select resolves the configured provider. "auto" prefers the remote
// provider when it is registered and falls back to the local one.
func (r *Registry) Select(provider string) (job.Transformer, error) {
	if provider != "" && provider != Auto {
		return r.Get(provider)
	}
	if t, err := r.Get(Cloudinary); err == nil {
		return t, nil
	}
	return r.Get(Local)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transformers))
	for name := range r.transformers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Sniff returns the detected content type of image and a file extension for
// it. Unknown types map to application/octet-stream and ".bin".
func Sniff(image []byte) (contentType, ext string) {
	contentType = http.DetectContentType(image)
	if ext, ok := extensions[contentType]; ok {
		return contentType, ext
	}
	return "application/octet-stream", ".bin"
}
