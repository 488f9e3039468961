// Package assets loads the fonts and remote images the rasterizer needs and
// reports when they are all available.
package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"impresos-uribe/cotizaciones/internal/domain/quote/pdf/raster"
	"impresos-uribe/cotizaciones/internal/domain/quote/render"
	"impresos-uribe/cotizaciones/internal/platform/logging"
)

type Config struct {
	LogoURL     string
	FontRegular string
	FontBold    string
	FontItalic  string
}

// Loader fetches everything once. A failed load is not cached: the next
// Ready call tries again.
type Loader struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	ready *raster.Assets
}

func NewLoader(cfg Config, client *http.Client, log *slog.Logger) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Loader{cfg: cfg, http: client, log: logging.OrDiscard(log)}
}

// Ready blocks until every asset is loaded or ctx is done.
func (l *Loader) Ready(ctx context.Context) (*raster.Assets, error) {
	l.mu.RLock()
	a := l.ready
	l.mu.RUnlock()
	if a != nil {
		return a, nil
	}

	ch := l.group.DoChan("load", func() (any, error) {
		// the shared load outlives any single caller's ctx
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		a, err := l.load(loadCtx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.ready = a
		l.mu.Unlock()
		return a, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*raster.Assets), nil
	}
}

// Preload starts loading in the background so the first export does not
// pay for it.
func (l *Loader) Preload(ctx context.Context) {
	go func() {
		if _, err := l.Ready(ctx); err != nil && ctx.Err() == nil {
			l.log.Warn("assets: preload failed", slog.Any("error", err))
		}
	}()
}

func (l *Loader) load(ctx context.Context) (*raster.Assets, error) {
	start := time.Now()
	a := &raster.Assets{Images: map[string]image.Image{}}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a.Regular, err = loadFont(l.cfg.FontRegular, goregular.TTF)
		return err
	})
	g.Go(func() (err error) {
		a.Bold, err = loadFont(l.cfg.FontBold, gobold.TTF)
		return err
	})
	g.Go(func() (err error) {
		a.Italic, err = loadFont(l.cfg.FontItalic, goitalic.TTF)
		return err
	})
	g.Go(func() (err error) {
		a.BoldItalic, err = opentype.Parse(gobolditalic.TTF)
		return err
	})
	var logo image.Image
	if l.cfg.LogoURL != "" {
		g.Go(func() (err error) {
			logo, err = l.fetchImage(ctx, l.cfg.LogoURL)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if logo != nil {
		a.Images[render.LogoSource] = logo
	}
	l.log.Info("assets: ready", slog.Duration("took", time.Since(start)), slog.Bool("logo", logo != nil))
	return a, nil
}

func loadFont(path string, fallback []byte) (*opentype.Font, error) {
	data := fallback
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("assets: font %s: %w", path, err)
		}
		data = b
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("assets: parse font %q: %w", path, err)
	}
	return f, nil
}

var ErrImage = errors.New("assets: image unavailable")

func (l *Loader) fetchImage(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrImage, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrImage, url, err)
	}
	return img, nil
}
