package render

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/chromedp/chromedp"
)

// Rasterizer turns an HTML page into an image.
type Rasterizer interface {
	Rasterize(ctx context.Context, html string) (png []byte, err error)
}

//go:generate mockery --case underscore --output rendermock --outpkg rendermock --name Rasterizer

// ChromeRasterizerConfig is the configuration of ChromeRasterizer.
type ChromeRasterizerConfig struct {
	Width  int
	Height int
}

func (c *ChromeRasterizerConfig) defaults() error {
	if c.Width <= 0 {
		c.Width = 1366
	}

	if c.Height <= 0 {
		c.Height = 768
	}

	return nil
}

// ChromeRasterizer screenshots pages with a headless Chrome instance.
type ChromeRasterizer struct {
	width  int
	height int
}

// NewChromeRasterizer returns a new ChromeRasterizer.
func NewChromeRasterizer(config ChromeRasterizerConfig) (*ChromeRasterizer, error) {
	err := config.defaults()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ChromeRasterizer{
		width:  config.Width,
		height: config.Height,
	}, nil
}

func (c *ChromeRasterizer) Rasterize(ctx context.Context, html string) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	chromeCtx, cancelChrome := chromedp.NewContext(allocCtx)
	defer cancelChrome()

	url := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var png []byte
	err := chromedp.Run(chromeCtx,
		chromedp.EmulateViewport(int64(c.width), int64(c.height)),
		chromedp.Navigate(url),
		chromedp.FullScreenshot(&png, 90),
	)
	if err != nil {
		return nil, fmt.Errorf("could not screenshot page: %w", err)
	}

	return png, nil
}
