package assets

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impresos-uribe/cotizaciones/internal/domain/quote/render"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoader_Ready(t *testing.T) {
	var hits atomic.Int32
	logo := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(logo)
	}))
	defer srv.Close()

	l := NewLoader(Config{LogoURL: srv.URL + "/logotipo.png"}, srv.Client(), nil)
	a, err := l.Ready(context.Background())
	require.NoError(t, err)
	require.NotNil(t, a.Regular)
	require.NotNil(t, a.Bold)
	require.Contains(t, a.Images, render.LogoSource)
	assert.Equal(t, 4, a.Images[render.LogoSource].Bounds().Dx())

	again, err := l.Ready(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, int32(1), hits.Load())
}

func TestLoader_RetriesAfterFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	logo := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "gone", http.StatusBadGateway)
			return
		}
		_, _ = w.Write(logo)
	}))
	defer srv.Close()

	l := NewLoader(Config{LogoURL: srv.URL}, srv.Client(), nil)
	_, err := l.Ready(context.Background())
	require.ErrorIs(t, err, ErrImage)

	fail.Store(false)
	a, err := l.Ready(context.Background())
	require.NoError(t, err)
	assert.Contains(t, a.Images, render.LogoSource)
}

func TestLoader_ReadyHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	l := NewLoader(Config{LogoURL: srv.URL}, srv.Client(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.Ready(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoader_NoLogo(t *testing.T) {
	l := NewLoader(Config{}, nil, nil)
	a, err := l.Ready(context.Background())
	require.NoError(t, err)
	assert.Empty(t, a.Images)
}

func TestLoader_BadFontPath(t *testing.T) {
	l := NewLoader(Config{FontRegular: "/does/not/exist.ttf"}, nil, nil)
	_, err := l.Ready(context.Background())
	assert.Error(t, err)
}
