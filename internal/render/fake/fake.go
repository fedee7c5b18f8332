package fake

import (
	"context"
	"sync"

	"github.com/labshot/labshot/internal/render"
)

// Rasterizer is a fake implementation of render.Rasterizer that returns the
// page bytes untouched, so rendered output is deterministic and inspectable
// without a browser.
type Rasterizer struct {
	mu    sync.Mutex
	pages []string
}

// NewRasterizer returns a new fake Rasterizer.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{}
}

func (r *Rasterizer) Rasterize(_ context.Context, html string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pages = append(r.pages, html)

	return []byte(html), nil
}

// Pages returns every page rasterized so far.
func (r *Rasterizer) Pages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	pages := make([]string, len(r.pages))
	copy(pages, r.pages)

	return pages
}

var _ render.Rasterizer = &Rasterizer{}
