package gofpdf

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	a4Width  = 210.0
	a4Height = 297.0
)

// ImageType is the gofpdf name of the embedded raster format.
type ImageType string

const (
	PNG  ImageType = "PNG"
	JPEG ImageType = "JPG"
)

// Page is one rasterized document ready to be wrapped in a PDF.
type Page struct {
	Image     []byte
	Type      ImageType
	WidthPx   int
	HeightPx  int
	Title     string
	Compress  bool
	CreatedAt time.Time
}

type Generator struct {
	Log *slog.Logger
}

func New(log *slog.Logger) *Generator { return &Generator{Log: log} }

// PageHeight is the page height in mm for an image of the given pixel size
// placed at full A4 width. Taller documents extend the single page.
func PageHeight(widthPx, heightPx int) float64 {
	h := a4Width * float64(heightPx) / float64(widthPx)
	if h < a4Height {
		return a4Height
	}
	return h
}

func (g *Generator) Generate(p Page) ([]byte, error) {
	if p.WidthPx <= 0 || p.HeightPx <= 0 {
		return nil, fmt.Errorf("gofpdf: bad image size %dx%d", p.WidthPx, p.HeightPx)
	}
	imgHeight := a4Width * float64(p.HeightPx) / float64(p.WidthPx)
	pageHeight := PageHeight(p.WidthPx, p.HeightPx)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(p.Compress)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	if p.Title != "" {
		pdf.SetTitle(p.Title, true)
	}
	pdf.SetCreator("cotizaciones", true)
	if !p.CreatedAt.IsZero() {
		pdf.SetCreationDate(p.CreatedAt)
	}
	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: a4Width, Ht: pageHeight})

	opts := gofpdf.ImageOptions{ImageType: string(p.Type)}
	pdf.RegisterImageOptionsReader("page", opts, bytes.NewReader(p.Image))
	pdf.ImageOptions("page", 0, 0, a4Width, imgHeight, false, opts, 0, "")
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("gofpdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		if g.Log != nil {
			g.Log.Error("quote pdf: output failed", slog.Any("error", err))
		}
		return nil, err
	}
	return buf.Bytes(), nil
}
