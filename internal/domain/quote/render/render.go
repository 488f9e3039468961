// Package render lays a quote out as a fixed-width page. The result is
// plain data: the same quote always yields the same Document, and both the
// on-screen preview and the PDF export draw from it.
package render

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"impresos-uribe/cotizaciones/internal/domain/quote"
)

const (
	// Width is an A4 page at 96 dpi.
	Width  = 794
	margin = 48

	LogoSource = "logo"

	descWrap = 58
)

type Kind string

const (
	KindText  Kind = "text"
	KindRect  Kind = "rect"
	KindLine  Kind = "line"
	KindImage Kind = "image"
)

type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Element is one absolutely positioned primitive. For text, (X, Y) is the
// top-left of a box of width W and height H and the text is aligned inside it.
type Element struct {
	Kind   Kind    `json:"kind"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	W      float64 `json:"w"`
	H      float64 `json:"h"`
	Text   string  `json:"text,omitempty"`
	Size   float64 `json:"size,omitempty"`
	Bold   bool    `json:"bold,omitempty"`
	Italic bool    `json:"italic,omitempty"`
	Color  string  `json:"color,omitempty"`
	Fill   string  `json:"fill,omitempty"`
	Align  Align   `json:"align,omitempty"`
	Source string  `json:"source,omitempty"`
}

type Document struct {
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Title    string    `json:"title"`
	Elements []Element `json:"elements"`
}

type Company struct {
	Name        string
	Tagline     string
	ContactName string
	Phone       string
	Email       string
	Slogan      string
	Notes       string
}

var DefaultCompany = Company{
	Name:        "IMPRESOS URIBE",
	Tagline:     "Servicios de Impresión Profesional",
	ContactName: "Francisco Rodríguez Uribe",
	Phone:       "55 3208 5670",
	Email:       "fru_27@hotmail.com",
	Slogan:      "Calidad y Servicio Profesional",
	Notes:       "Esta cotización tiene una vigencia de 15 días hábiles. Quedo a sus órdenes para cualquier duda o comentario, gracias por su confianza.",
}

const (
	PlaceholderClient = "Nombre del Cliente"
	PlaceholderDate   = "---"
	PlaceholderItems  = "Lista de conceptos vacía"
	UnitPriceBadge    = "C/U"
)

const (
	colorBrand  = "#1e40af"
	colorAccent = "#2563eb"
	colorLabel  = "#3b82f6"
	colorInk    = "#1f2937"
	colorText   = "#374151"
	colorMuted  = "#6b7280"
	colorFaint  = "#9ca3af"
	colorRule   = "#e5e7eb"
	colorPanel  = "#f8fafc"
	colorBadge  = "#f3f4f6"
	colorWhite  = "#ffffff"
)

type Renderer struct {
	Company Company
}

func New(c Company) *Renderer { return &Renderer{Company: c} }

// Render lays out q with the default company block.
func Render(q quote.Quote) Document {
	return New(DefaultCompany).Render(q)
}

func (r *Renderer) Render(q quote.Quote) Document {
	p := &page{}
	c := r.Company
	inner := float64(Width - 2*margin)

	// header
	p.add(Element{Kind: KindImage, X: (Width - 256) / 2, Y: 40, W: 256, H: 128, Source: LogoSource})
	p.text(margin, 184, inner, 40, upper(c.Name), 34, true, false, colorBrand, AlignCenter)
	p.text(margin, 228, inner, 16, upper(c.Tagline), 12, false, false, colorMuted, AlignCenter)
	p.add(Element{Kind: KindLine, X: margin, Y: 264, W: inner, Color: colorRule})

	// title and date
	p.text(margin, 284, 420, 52, "COTIZACIÓN", 44, true, false, colorInk, AlignLeft)
	if name := strings.TrimSpace(q.QuoteName); name != "" {
		p.text(margin, 340, 420, 22, name, 16, false, true, colorAccent, AlignLeft)
	}
	date := LongDate(q.Date)
	if date == "" {
		date = PlaceholderDate
	}
	p.text(Width-margin-280, 292, 280, 14, "FECHA DE EMISIÓN", 10, true, false, colorFaint, AlignRight)
	p.text(Width-margin-280, 310, 280, 26, date, 18, true, false, colorText, AlignRight)

	// client and contact
	y := 388.0
	half := (inner - 24) / 2
	client := strings.TrimSpace(q.ClientName)
	if client == "" {
		client = PlaceholderClient
	}
	p.add(Element{Kind: KindRect, X: margin, Y: y, W: half, H: 128, Fill: colorPanel})
	p.text(margin+20, y+20, half-40, 14, "DIRIGIDO A", 10, true, false, colorLabel, AlignLeft)
	clientLines := wrap(upper(client), 24)
	for i, line := range clientLines[:min(len(clientLines), 3)] {
		p.text(margin+20, y+44+float64(i)*26, half-40, 26, line, 20, true, false, colorInk, AlignLeft)
	}
	cx := margin + half + 24
	p.add(Element{Kind: KindRect, X: cx, Y: y, W: half, H: 128, Fill: colorPanel})
	p.text(cx+20, y+20, half-40, 14, "CONTACTO", 10, true, false, colorLabel, AlignLeft)
	p.text(cx+20, y+44, half-40, 22, upper(c.ContactName), 15, true, false, colorInk, AlignLeft)
	p.text(cx+20, y+70, half-40, 18, c.Phone, 12, false, false, colorMuted, AlignLeft)
	p.text(cx+20, y+90, half-40, 18, c.Email, 12, false, false, colorMuted, AlignLeft)

	// table
	y = 548
	p.add(Element{Kind: KindRect, X: margin, Y: y, W: inner, H: 40, Fill: colorBrand})
	p.text(margin, y+13, 64, 14, "NO.", 11, true, false, colorWhite, AlignCenter)
	p.text(margin+80, y+13, 400, 14, "DESCRIPCIÓN DEL SERVICIO", 11, true, false, colorWhite, AlignLeft)
	p.text(Width-margin-16-160, y+13, 160, 14, "PRECIO", 11, true, false, colorWhite, AlignRight)
	y += 40

	if len(q.Items) == 0 {
		p.text(margin, y+32, inner, 18, PlaceholderItems, 13, false, true, colorFaint, AlignCenter)
		y += 80
		p.add(Element{Kind: KindLine, X: margin, Y: y, W: inner, Color: colorRule})
	}
	for i, it := range q.Items {
		lines := wrap(it.Description, descWrap)
		h := max(56, 24+float64(len(lines))*20)
		if it.IsUnitPrice && h < 72 {
			h = 72
		}
		p.text(margin, y+18, 64, 24, fmt.Sprintf("%02d", i+1), 18, true, false, colorFaint, AlignCenter)
		for j, line := range lines {
			p.text(margin+80, y+14+float64(j)*20, 440, 20, line, 13, false, false, colorInk, AlignLeft)
		}
		price := Money(decimal.NewFromFloat(it.Price))
		p.text(Width-margin-16-160, y+16, 160, 22, price, 15, true, false, colorInk, AlignRight)
		if it.IsUnitPrice {
			bx := float64(Width - margin - 16 - 34)
			p.add(Element{Kind: KindRect, X: bx, Y: y + 42, W: 34, H: 16, Fill: colorBadge})
			p.text(bx, y+44, 34, 12, UnitPriceBadge, 9, true, false, colorFaint, AlignCenter)
		}
		y += h
		p.add(Element{Kind: KindLine, X: margin, Y: y, W: inner, Color: colorRule})
	}

	// totals
	y += 28
	tx := float64(Width - margin - 300)
	p.add(Element{Kind: KindRect, X: tx, Y: y, W: 300, H: 64, Fill: colorPanel})
	p.text(tx+20, y+24, 120, 14, "SUBTOTAL", 11, true, false, colorMuted, AlignLeft)
	p.text(tx+100, y+18, 180, 28, Money(q.Total()), 20, true, false, colorInk, AlignRight)
	y += 72
	p.text(tx, y, 300, 14, "* Precios más I.V.A. si requiere factura.", 10, false, true, colorMuted, AlignRight)

	// notes
	y += 40
	p.text(margin, y, inner, 14, "NOTAS", 10, true, false, colorInk, AlignLeft)
	y += 22
	for _, line := range wrap(c.Notes, 96) {
		p.text(margin, y, inner, 18, line, 11, false, false, colorMuted, AlignLeft)
		y += 18
	}

	// footer
	y += 32
	p.add(Element{Kind: KindLine, X: margin, Y: y, W: inner, Color: colorRule})
	y += 20
	p.text(margin, y, inner, 18, upper(c.Name), 13, true, false, colorBrand, AlignCenter)
	y += 22
	p.text(margin, y, inner, 14, c.Slogan, 10, false, false, colorFaint, AlignCenter)
	y += 14 + margin

	title := "COTIZACIÓN"
	if name := strings.TrimSpace(q.QuoteName); name != "" {
		title += " - " + name
	}
	return Document{Width: Width, Height: y, Title: title, Elements: p.elements}
}

type page struct {
	elements []Element
}

func (p *page) add(e Element) { p.elements = append(p.elements, e) }

func (p *page) text(x, y, w, h float64, s string, size float64, bold, italic bool, color string, align Align) {
	p.add(Element{
		Kind: KindText, X: x, Y: y, W: w, H: h,
		Text: s, Size: size, Bold: bold, Italic: italic,
		Color: color, Align: align,
	})
}

// Texts returns the text of every text element, in drawing order.
func (d Document) Texts() []string {
	var out []string
	for _, e := range d.Elements {
		if e.Kind == KindText {
			out = append(out, e.Text)
		}
	}
	return out
}
