// Package pdf turns a rendered quote into a PDF in one of two quality tiers.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"time"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf/gofpdf"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf/raster"
	"impresos-uribe/cotizaciones/internal/domain/quote/render"
	"impresos-uribe/cotizaciones/internal/platform/logging"
	"impresos-uribe/cotizaciones/internal/platform/metrics"
)

type Tier string

const (
	// TierDownload is the lossless, uncompressed copy saved locally.
	TierDownload Tier = "download"
	// TierAttachment is the small copy sent by email.
	TierAttachment Tier = "attachment"
)

type TierSpec struct {
	Scale       float64
	Type        gofpdf.ImageType
	JPEGQuality int
	Compress    bool
}

func (t Tier) Spec() (TierSpec, error) {
	switch t {
	case TierDownload:
		return TierSpec{Scale: 2, Type: gofpdf.PNG, Compress: false}, nil
	case TierAttachment:
		return TierSpec{Scale: 1, Type: gofpdf.JPEG, JPEGQuality: 60, Compress: true}, nil
	}
	return TierSpec{}, fmt.Errorf("unknown tier %q", t)
}

func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, err := t.Spec(); err != nil {
		return "", err
	}
	return t, nil
}

type Result struct {
	Bytes    []byte
	Size     int
	FileName string
	Tier     Tier
}

var ErrExport = errors.New("export failed")

// ExportError reports the stage that failed: assets, raster, encode or pdf.
type ExportError struct {
	Stage string
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Stage, e.Err)
}

func (e *ExportError) Unwrap() []error { return []error{ErrExport, e.Err} }

type Exporter interface {
	Export(ctx context.Context, doc render.Document, q quote.Quote, tier Tier) (Result, error)
}

// AssetSource blocks until fonts and images are usable.
type AssetSource interface {
	Ready(ctx context.Context) (*raster.Assets, error)
}

type Pipeline struct {
	Assets AssetSource
	// Settle is waited after the assets are ready and before rasterizing.
	Settle time.Duration
	// Budget is the attachment size above which a warning is logged.
	Budget  int
	PDF     *gofpdf.Generator
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

func NewPipeline(assets AssetSource, settle time.Duration, budget int, log *slog.Logger, m *metrics.Metrics) *Pipeline {
	log = logging.OrDiscard(log)
	return &Pipeline{
		Assets:  assets,
		Settle:  settle,
		Budget:  budget,
		PDF:     gofpdf.New(log),
		Log:     log,
		Metrics: m,
	}
}

var _ Exporter = (*Pipeline)(nil)

func (p *Pipeline) Export(ctx context.Context, doc render.Document, q quote.Quote, tier Tier) (Result, error) {
	res, err := p.export(ctx, doc, q, tier)
	p.Metrics.ObserveExport(string(tier), res.Size, err)
	if err != nil {
		p.Log.Error("quote pdf: export failed",
			slog.String("id", q.ID), slog.String("tier", string(tier)), slog.Any("error", err))
		return Result{}, err
	}
	attrs := []any{slog.String("id", q.ID), slog.String("tier", string(tier)), slog.Int("bytes", res.Size)}
	if tier == TierAttachment && p.Budget > 0 && res.Size > p.Budget {
		p.Log.Warn("quote pdf: attachment over budget", append(attrs, slog.Int("budget", p.Budget))...)
	} else {
		p.Log.Info("quote pdf: exported", attrs...)
	}
	return res, nil
}

func (p *Pipeline) export(ctx context.Context, doc render.Document, q quote.Quote, tier Tier) (Result, error) {
	spec, err := tier.Spec()
	if err != nil {
		return Result{}, &ExportError{Stage: "tier", Err: err}
	}

	assets, err := p.Assets.Ready(ctx)
	if err != nil {
		return Result{}, &ExportError{Stage: "assets", Err: err}
	}
	if p.Settle > 0 {
		t := time.NewTimer(p.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return Result{}, &ExportError{Stage: "assets", Err: ctx.Err()}
		case <-t.C:
		}
	}

	img, err := raster.Draw(doc, assets, spec.Scale)
	if err != nil {
		return Result{}, &ExportError{Stage: "raster", Err: err}
	}
	encoded, err := encode(img, spec)
	if err != nil {
		return Result{}, &ExportError{Stage: "encode", Err: err}
	}

	title := doc.Title
	if title == "" {
		title = q.QuoteName
	}
	out, err := p.PDF.Generate(gofpdf.Page{
		Image:     encoded,
		Type:      spec.Type,
		WidthPx:   img.Bounds().Dx(),
		HeightPx:  img.Bounds().Dy(),
		Title:     title,
		Compress:  spec.Compress,
		CreatedAt: createdAt(q),
	})
	if err != nil {
		return Result{}, &ExportError{Stage: "pdf", Err: err}
	}
	return Result{Bytes: out, Size: len(out), FileName: q.FileName(), Tier: tier}, nil
}

func encode(img image.Image, spec TierSpec) ([]byte, error) {
	var buf bytes.Buffer
	switch spec.Type {
	case gofpdf.JPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: spec.JPEGQuality}); err != nil {
			return nil, err
		}
	default:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// createdAt pins the PDF metadata date to the quote so equal input gives
// equal output.
func createdAt(q quote.Quote) time.Time {
	if q.UpdatedAt > 0 {
		return time.UnixMilli(q.UpdatedAt).UTC()
	}
	return time.Time{}
}
