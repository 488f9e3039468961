package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var mexicanSpanish = language.MustParse("es-MX")

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// LongDate formats an ISO date as "1 DE MAYO DE 2024". Empty or invalid
// input yields "".
func LongDate(iso string) string {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return ""
	}
	d, err := time.Parse(time.DateOnly, iso)
	if err != nil {
		return ""
	}
	s := fmt.Sprintf("%d de %s de %d", d.Day(), monthNames[d.Month()-1], d.Year())
	return upper(s)
}

// ShortDate formats an ISO date as "1 may", used by list cards.
func ShortDate(iso string) string {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(iso))
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d %s", d.Day(), monthNames[d.Month()-1][:3])
}

// Money formats an amount as "$1,234.50".
func Money(v decimal.Decimal) string {
	s := v.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if v.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func upper(s string) string {
	return cases.Upper(mexicanSpanish).String(s)
}

// wrap splits text into lines of at most width runes, breaking on spaces
// when possible. Explicit newlines are kept.
func wrap(text string, width int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, w := range words {
			for len([]rune(w)) > width {
				r := []rune(w)
				if line != "" {
					out = append(out, line)
					line = ""
				}
				out = append(out, string(r[:width]))
				w = string(r[width:])
			}
			if w == "" {
				continue
			}
			switch {
			case line == "":
				line = w
			case len([]rune(line))+1+len([]rune(w)) <= width:
				line += " " + w
			default:
				out = append(out, line)
				line = w
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	for len(out) > 1 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}
