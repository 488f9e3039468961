package quote

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultName is stored when a quote is saved without a name.
const DefaultName = "Cotización General"

type Quote struct {
	ID         string     `json:"id" firestore:"id"`
	QuoteName  string     `json:"quoteName" firestore:"quoteName"`
	ClientName string     `json:"clientName" firestore:"clientName" validate:"required"`
	Date       string     `json:"date" firestore:"date" validate:"required,datetime=2006-01-02"`
	Items      []LineItem `json:"items" firestore:"items" validate:"dive"`
	CreatedAt  int64      `json:"createdAt" firestore:"createdAt"`
	UpdatedAt  int64      `json:"updatedAt" firestore:"updatedAt"`
}

type LineItem struct {
	ID          string  `json:"id" firestore:"id"`
	Description string  `json:"description" firestore:"description"`
	Price       float64 `json:"price" firestore:"price" validate:"gte=0"`
	IsUnitPrice bool    `json:"isUnitPrice,omitempty" firestore:"isUnitPrice"`
}

// NewDraft returns an unsaved quote with a fresh id and one empty row.
func NewDraft() Quote {
	return Quote{
		ID:    uuid.NewString(),
		Items: []LineItem{NewItem()},
	}
}

func NewItem() LineItem {
	return LineItem{ID: uuid.NewString()}
}

// Total sums item prices exactly. IsUnitPrice does not change the sum.
func (q Quote) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range q.Items {
		total = total.Add(decimal.NewFromFloat(it.Price))
	}
	return total
}

// Clone returns a copy that shares no item storage with q.
func (q Quote) Clone() Quote {
	out := q
	if q.Items != nil {
		out.Items = make([]LineItem, len(q.Items))
		copy(out.Items, q.Items)
	}
	return out
}

// AddItem appends an empty row.
func (q *Quote) AddItem() LineItem {
	it := NewItem()
	q.Items = append(q.Items, it)
	return it
}

// RemoveItem drops the row with the given id, keeping the order of the rest.
func (q *Quote) RemoveItem(id string) bool {
	for i, it := range q.Items {
		if it.ID == id {
			q.Items = append(q.Items[:i:i], q.Items[i+1:]...)
			return true
		}
	}
	return false
}

// EnsureItemIDs gives every blank or repeated item id a fresh one. The
// first occurrence of an id keeps it.
func (q *Quote) EnsureItemIDs() {
	seen := make(map[string]struct{}, len(q.Items))
	for i := range q.Items {
		if _, dup := seen[q.Items[i].ID]; dup || q.Items[i].ID == "" {
			q.Items[i].ID = uuid.NewString()
		}
		seen[q.Items[i].ID] = struct{}{}
	}
}

// Matches reports whether the client or quote name contains term, ignoring case.
func (q Quote) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(q.ClientName), term) ||
		strings.Contains(strings.ToLower(q.QuoteName), term)
}

// FileName derives the export file name from the quote name, then the client name.
func (q Quote) FileName() string {
	base := dashed(q.QuoteName)
	if base == "" {
		base = dashed(q.ClientName)
	}
	if base == "" {
		return "Cotizacion.pdf"
	}
	return "Cotizacion-" + base + ".pdf"
}

func dashed(s string) string {
	return strings.Join(strings.Fields(s), "-")
}

// SortByUpdated orders quotes most recently touched first. Ties keep their relative order.
func SortByUpdated(quotes []Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].UpdatedAt > quotes[j].UpdatedAt
	})
}

// Stamp prepares q for persistence. prev is the stored copy, nil on first save.
// Only ID and CreatedAt survive from prev; UpdatedAt always moves forward.
func Stamp(q Quote, prev *Quote, now time.Time) Quote {
	out := q.Clone()
	ms := now.UnixMilli()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if strings.TrimSpace(out.QuoteName) == "" {
		out.QuoteName = DefaultName
	}
	if out.Items == nil {
		out.Items = []LineItem{}
	}
	out.EnsureItemIDs()
	if prev == nil {
		out.CreatedAt = ms
		out.UpdatedAt = ms
		return out
	}
	out.ID = prev.ID
	out.CreatedAt = prev.CreatedAt
	if ms <= prev.UpdatedAt {
		ms = prev.UpdatedAt + 1
	}
	out.UpdatedAt = ms
	return out
}

func Find(quotes []Quote, id string) (Quote, bool) {
	for _, q := range quotes {
		if q.ID == id {
			return q, true
		}
	}
	return Quote{}, false
}

func Filter(quotes []Quote, term string) []Quote {
	out := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Matches(term) {
			out = append(out, q)
		}
	}
	return out
}
