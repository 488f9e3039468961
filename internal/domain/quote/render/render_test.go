package render

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impresos-uribe/cotizaciones/internal/domain/quote"
)

func sample() quote.Quote {
	return quote.Quote{
		ID:         "q1",
		QuoteName:  "Volantes Grandes",
		ClientName: "Diana",
		Date:       "2024-05-01",
		Items: []quote.LineItem{
			{ID: "i1", Description: "Flyers", Price: 500},
			{ID: "i2", Description: "Tarjetas de presentación", Price: 1250.5, IsUnitPrice: true},
		},
	}
}

func TestRender_Deterministic(t *testing.T) {
	q := sample()
	assert.Equal(t, Render(q), Render(q))
}

func TestRender_Content(t *testing.T) {
	doc := Render(sample())
	texts := doc.Texts()

	assert.Equal(t, float64(Width), doc.Width)
	assert.Contains(t, texts, "1 DE MAYO DE 2024")
	assert.Contains(t, texts, "DIANA")
	assert.Contains(t, texts, "01")
	assert.Contains(t, texts, "02")
	assert.Contains(t, texts, "$1,750.50")
	assert.NotContains(t, texts, PlaceholderItems)

	badges := 0
	for _, txt := range texts {
		if txt == UnitPriceBadge {
			badges++
		}
	}
	assert.Equal(t, 1, badges)

	var total Element
	for _, e := range doc.Elements {
		if e.Text == "$1,750.50" {
			total = e
		}
	}
	assert.Equal(t, AlignRight, total.Align)
}

func TestRender_EmptyQuote(t *testing.T) {
	doc := Render(quote.Quote{})
	texts := doc.Texts()

	assert.Contains(t, texts, PlaceholderItems)
	assert.Contains(t, texts, strings.ToUpper(PlaceholderClient))
	assert.Contains(t, texts, PlaceholderDate)
	assert.Contains(t, texts, "$0.00")
	assert.NotContains(t, texts, "01")
}

func TestRender_HeightGrowsWithItems(t *testing.T) {
	short := Render(sample())

	q := sample()
	for i := 0; i < 10; i++ {
		q.Items = append(q.Items, quote.LineItem{Description: strings.Repeat("papel couché ", 12), Price: 1})
	}
	long := Render(q)
	assert.Greater(t, long.Height, short.Height)
	assert.Equal(t, short.Width, long.Width)
}

func TestLongDate(t *testing.T) {
	assert.Equal(t, "1 DE MAYO DE 2024", LongDate("2024-05-01"))
	assert.Equal(t, "31 DE DICIEMBRE DE 2023", LongDate("2023-12-31"))
	assert.Equal(t, "", LongDate(""))
	assert.Equal(t, "", LongDate("01/05/2024"))
	assert.Equal(t, "1 may", ShortDate("2024-05-01"))
}

func TestMoney(t *testing.T) {
	tests := map[string]string{
		"0":         "$0.00",
		"350.5":     "$350.50",
		"1234.5":    "$1,234.50",
		"1234567.8": "$1,234,567.80",
		"-12":       "-$12.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, Money(decimal.RequireFromString(in)), in)
	}
}

func TestWrap(t *testing.T) {
	lines := wrap("uno dos tres cuatro", 8)
	assert.Equal(t, []string{"uno dos", "tres", "cuatro"}, lines)

	lines = wrap("abcdefghij", 4)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, lines)

	lines = wrap("a\nb", 10)
	require.Len(t, lines, 2)

	assert.Equal(t, []string{""}, wrap("", 10))
}
