// Package raster paints a render.Document onto an RGBA image.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"impresos-uribe/cotizaciones/internal/domain/quote/render"
)

// Assets are the fonts and images a document may reference. Images are
// keyed by Element.Source.
type Assets struct {
	Regular    *opentype.Font
	Bold       *opentype.Font
	Italic     *opentype.Font
	BoldItalic *opentype.Font
	Images     map[string]image.Image
}

func (a *Assets) font(bold, italic bool) *opentype.Font {
	switch {
	case bold && italic && a.BoldItalic != nil:
		return a.BoldItalic
	case bold && a.Bold != nil:
		return a.Bold
	case italic && a.Italic != nil:
		return a.Italic
	}
	return a.Regular
}

var ErrMissingFont = errors.New("raster: no regular font loaded")

type faceKey struct {
	f    *opentype.Font
	size float64
}

type painter struct {
	dst    *image.RGBA
	assets *Assets
	scale  float64
	faces  map[faceKey]font.Face
}

// Draw paints doc at the given scale (1 = one document unit per pixel).
// Images missing from assets are left blank.
func Draw(doc render.Document, assets *Assets, scale float64) (*image.RGBA, error) {
	if assets == nil || assets.Regular == nil {
		return nil, ErrMissingFont
	}
	if scale <= 0 {
		scale = 1
	}
	w := int(math.Ceil(doc.Width * scale))
	h := int(math.Ceil(doc.Height * scale))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("raster: empty document %vx%v", doc.Width, doc.Height)
	}

	p := &painter{
		dst:    image.NewRGBA(image.Rect(0, 0, w, h)),
		assets: assets,
		scale:  scale,
		faces:  map[faceKey]font.Face{},
	}
	defer p.close()

	draw.Draw(p.dst, p.dst.Bounds(), image.White, image.Point{}, draw.Src)

	for _, e := range doc.Elements {
		var err error
		switch e.Kind {
		case render.KindRect:
			p.rect(e)
		case render.KindLine:
			p.line(e)
		case render.KindImage:
			p.image(e)
		case render.KindText:
			err = p.text(e)
		}
		if err != nil {
			return nil, err
		}
	}
	return p.dst, nil
}

func (p *painter) close() {
	for _, f := range p.faces {
		f.Close()
	}
}

func (p *painter) box(x, y, w, h float64) image.Rectangle {
	s := p.scale
	return image.Rect(
		int(math.Round(x*s)), int(math.Round(y*s)),
		int(math.Round((x+w)*s)), int(math.Round((y+h)*s)),
	)
}

func (p *painter) rect(e render.Element) {
	fill := e.Fill
	if fill == "" {
		fill = e.Color
	}
	draw.Draw(p.dst, p.box(e.X, e.Y, e.W, e.H), image.NewUniform(ParseColor(fill)), image.Point{}, draw.Over)
}

func (p *painter) line(e render.Element) {
	r := p.box(e.X, e.Y, e.W, e.H)
	if r.Dy() < 1 {
		r.Max.Y = r.Min.Y + int(math.Max(1, math.Round(p.scale)))
	}
	if r.Dx() < 1 {
		r.Max.X = r.Min.X + int(math.Max(1, math.Round(p.scale)))
	}
	draw.Draw(p.dst, r, image.NewUniform(ParseColor(e.Color)), image.Point{}, draw.Over)
}

// image fits the source inside the element box keeping its aspect ratio.
func (p *painter) image(e render.Element) {
	src, ok := p.assets.Images[e.Source]
	if !ok || src == nil {
		return
	}
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	fit := math.Min(e.W/float64(sb.Dx()), e.H/float64(sb.Dy()))
	w := float64(sb.Dx()) * fit
	h := float64(sb.Dy()) * fit
	x := e.X + (e.W-w)/2
	y := e.Y + (e.H-h)/2
	draw.CatmullRom.Scale(p.dst, p.box(x, y, w, h), src, sb, draw.Over, nil)
}

func (p *painter) face(bold, italic bool, size float64) (font.Face, error) {
	f := p.assets.font(bold, italic)
	key := faceKey{f: f, size: size * p.scale}
	if face, ok := p.faces[key]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    key.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("raster: face %.1fpx: %w", key.size, err)
	}
	p.faces[key] = face
	return face, nil
}

// text draws a single line vertically centred in the element box.
func (p *painter) text(e render.Element) error {
	if strings.TrimSpace(e.Text) == "" {
		return nil
	}
	face, err := p.face(e.Bold, e.Italic, e.Size)
	if err != nil {
		return err
	}
	d := &font.Drawer{Dst: p.dst, Src: image.NewUniform(ParseColor(e.Color)), Face: face}

	r := p.box(e.X, e.Y, e.W, e.H)
	width := d.MeasureString(e.Text)
	var x fixed.Int26_6
	switch e.Align {
	case render.AlignRight:
		x = fixed.I(r.Max.X) - width
	case render.AlignCenter:
		x = fixed.I(r.Min.X) + (fixed.I(r.Dx())-width)/2
	default:
		x = fixed.I(r.Min.X)
	}
	m := face.Metrics()
	baseline := fixed.I(r.Min.Y) + (fixed.I(r.Dy())-(m.Ascent+m.Descent))/2 + m.Ascent
	d.Dot = fixed.Point26_6{X: x, Y: baseline}
	d.DrawString(e.Text)
	return nil
}

// ParseColor reads #rgb or #rrggbb. Anything else is black.
func ParseColor(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.RGBA{A: 0xff}
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
