package pdf

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf/raster"
	"impresos-uribe/cotizaciones/internal/domain/quote/render"
	"impresos-uribe/cotizaciones/internal/platform/metrics"
)

type readyAssets struct {
	assets *raster.Assets
	err    error
	calls  int
}

func (r *readyAssets) Ready(ctx context.Context) (*raster.Assets, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.assets, ctx.Err()
}

func fonts(t *testing.T) *raster.Assets {
	t.Helper()
	f, err := opentype.Parse(goregular.TTF)
	require.NoError(t, err)
	return &raster.Assets{Regular: f}
}

func sample() quote.Quote {
	return quote.Quote{
		ID:         "q1",
		QuoteName:  "Tarjetas de presentación",
		ClientName: "Diana",
		Date:       "2024-05-01",
		UpdatedAt:  1714521600000,
		Items: []quote.LineItem{
			{ID: "1", Description: "Tarjetas", Price: 350.5, IsUnitPrice: true},
		},
	}
}

func TestTierSpec(t *testing.T) {
	d, err := TierDownload.Spec()
	require.NoError(t, err)
	assert.Equal(t, 2.0, d.Scale)
	assert.False(t, d.Compress)

	a, err := TierAttachment.Spec()
	require.NoError(t, err)
	assert.Equal(t, 60, a.JPEGQuality)
	assert.True(t, a.Compress)

	_, err = ParseTier("poster")
	assert.Error(t, err)
}

func TestExport_Tiers(t *testing.T) {
	m := metrics.New()
	p := NewPipeline(&readyAssets{assets: fonts(t)}, 0, 50<<10, nil, m)
	q := sample()
	doc := render.Render(q)

	download, err := p.Export(context.Background(), doc, q, TierDownload)
	require.NoError(t, err)
	assert.Equal(t, "Cotizacion-Tarjetas-de-presentación.pdf", download.FileName)
	assert.True(t, bytes.HasPrefix(download.Bytes, []byte("%PDF-")))
	assert.Equal(t, len(download.Bytes), download.Size)

	attachment, err := p.Export(context.Background(), doc, q, TierAttachment)
	require.NoError(t, err)
	assert.Contains(t, string(attachment.Bytes), "/DCTDecode")
	assert.NotContains(t, string(download.Bytes), "/DCTDecode")

	again, err := p.Export(context.Background(), doc, q, TierAttachment)
	require.NoError(t, err)
	assert.Equal(t, attachment.Bytes, again.Bytes)
}

func TestExport_WaitsForAssets(t *testing.T) {
	src := &readyAssets{err: errors.New("logo unreachable")}
	p := NewPipeline(src, 0, 0, nil, nil)

	_, err := p.Export(context.Background(), render.Render(sample()), sample(), TierAttachment)
	require.ErrorIs(t, err, ErrExport)
	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "assets", exportErr.Stage)

	// retry re-invokes the whole pipeline
	src.err = nil
	src.assets = fonts(t)
	_, err = p.Export(context.Background(), render.Render(sample()), sample(), TierAttachment)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestExport_SettleHonoursContext(t *testing.T) {
	p := NewPipeline(&readyAssets{assets: fonts(t)}, time.Hour, 0, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Export(ctx, render.Render(sample()), sample(), TierDownload)
	assert.ErrorIs(t, err, ErrExport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
