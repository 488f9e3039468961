// Package controller owns the application state: the live quote list, the
// draft being edited and the outcome of the last user action.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf"
	"impresos-uribe/cotizaciones/internal/domain/quote/render"
	"impresos-uribe/cotizaciones/internal/infra/notify"
	"impresos-uribe/cotizaciones/internal/platform/logging"
	"impresos-uribe/cotizaciones/internal/platform/metrics"
)

type Phase string

const (
	PhaseLoading      Phase = "loading"
	PhaseAccessDenied Phase = "accessDenied"
	PhaseReady        Phase = "ready"
)

type Mode string

const (
	ModeListing Mode = "listing"
	ModeEditing Mode = "editing"
)

// State is a copy of the controller state; mutating it has no effect.
type State struct {
	Phase       Phase         `json:"phase"`
	Mode        Mode          `json:"mode"`
	Quotes      []quote.Quote `json:"quotes"`
	Draft       *quote.Quote  `json:"draft,omitempty"`
	DraftIsNew  bool          `json:"draftIsNew"`
	Live        bool          `json:"live"`
	Refreshing  bool          `json:"refreshing"`
	Saving      bool          `json:"saving"`
	Sending     bool          `json:"sending"`
	AuthWarning string        `json:"authWarning,omitempty"`
	Alert       *Alert        `json:"alert,omitempty"`
	Version     uint64        `json:"version"`
}

var ErrInvalidState = errors.New("operation not allowed in current state")

type StateError struct {
	Op      string
	Phase   Phase
	Mode    Mode
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed in %s/%s", e.Op, e.Phase, e.Mode)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// Session establishes the anonymous identity used by the store.
type Session interface {
	SignIn(ctx context.Context) error
}

type Deps struct {
	Repo       quote.Repository
	Session    Session
	Renderer   *render.Renderer
	Exporter   pdf.Exporter
	Dispatcher notify.Dispatcher
	Log        *slog.Logger
	Metrics    *metrics.Metrics
}

type Controller struct {
	repo       quote.Repository
	session    Session
	renderer   *render.Renderer
	exporter   pdf.Exporter
	dispatcher notify.Dispatcher
	log        *slog.Logger
	metrics    *metrics.Metrics

	mu        sync.Mutex
	st        State
	delivered bool
	ended     bool
	sub       quote.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
	watchers  map[chan State]struct{}
}

func New(d Deps) *Controller {
	r := d.Renderer
	if r == nil {
		r = render.New(render.DefaultCompany)
	}
	return &Controller{
		repo:       d.Repo,
		session:    d.Session,
		renderer:   r,
		exporter:   d.Exporter,
		dispatcher: d.Dispatcher,
		log:        logging.OrDiscard(d.Log),
		metrics:    d.Metrics,
		st:         State{Phase: PhaseLoading, Mode: ModeListing},
		watchers:   map[chan State]struct{}{},
	}
}

// Start signs in and opens the live subscription. The subscription outlives
// ctx; Stop ends it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	c.st = State{Phase: PhaseLoading, Mode: ModeListing}
	c.delivered = false
	c.ended = false
	c.publishLocked()
	c.mu.Unlock()

	if c.session != nil {
		if err := c.session.SignIn(ctx); err != nil {
			c.log.Warn("controller: anonymous session failed", slog.Any("error", err))
			c.update(func(s *State) { s.AuthWarning = err.Error() })
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := c.repo.Subscribe(runCtx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.ended = true
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.sub, c.cancel, c.done = sub, cancel, done
	c.mu.Unlock()

	go c.drain(sub, done)
	c.log.Info("controller: subscribed")
	return nil
}

func (c *Controller) drain(sub quote.Subscription, done chan struct{}) {
	defer close(done)
	for snap := range sub.Snapshots() {
		c.metrics.ObserveSnapshot(snap.Err)
		if stop := c.apply(snap); stop {
			sub.Close()
		}
	}
	c.mu.Lock()
	if c.sub == sub {
		c.ended = true
		c.st.Live = false
		c.publishLocked()
	}
	c.mu.Unlock()
}

// apply folds one snapshot into the state and reports whether the
// subscription should end.
func (c *Controller) apply(snap quote.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.Err != nil {
		c.log.Error("controller: subscription error", slog.Any("error", snap.Err))
		if quote.IsPermissionDenied(snap.Err) {
			c.failLocked(snap.Err)
			return true
		}
		if !c.delivered {
			c.st.Alert = &Alert{Code: CodeStorage, Message: MsgStorage, Detail: snap.Err.Error()}
			c.publishLocked()
		}
		return false
	}

	c.delivered = true
	c.st.Phase = PhaseReady
	c.st.Live = true
	c.st.Quotes = snap.Quotes
	if c.st.Alert != nil && c.st.Alert.Code == CodeStorage {
		c.st.Alert = nil
	}
	c.publishLocked()
	return false
}

// failLocked handles a startup or subscription failure. Permission errors
// block the whole list.
func (c *Controller) failLocked(err error) {
	if quote.IsPermissionDenied(err) {
		c.st.Phase = PhaseAccessDenied
		c.st.Mode = ModeListing
		c.st.Quotes = nil
		c.st.Draft = nil
		c.st.DraftIsNew = false
		c.st.Live = false
		c.st.Alert = &Alert{Code: CodePermission, Message: MsgAccessDenied, Detail: err.Error()}
	} else {
		a := Describe(err)
		c.st.Alert = &a
	}
	c.publishLocked()
}

// Stop releases the subscription and waits for it to wind down.
func (c *Controller) Stop() {
	c.mu.Lock()
	sub, cancel, done := c.sub, c.cancel, c.done
	c.sub, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if sub == nil {
		return
	}
	cancel()
	sub.Close()
	<-done
}

// Retry restarts the startup sequence after access was denied or the
// subscription died.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	allowed := c.st.Phase == PhaseAccessDenied || c.ended || c.sub == nil
	if !allowed {
		err := c.stateErrLocked("retry", MsgBusy)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.log.Info("controller: retrying startup")
	c.Stop()
	return c.Start(ctx)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Watch delivers the current state and then every change until ctx is done.
// Slow readers only see the latest state.
func (c *Controller) Watch(ctx context.Context) <-chan State {
	ch := make(chan State, 1)
	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.watchers, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

func (c *Controller) Search(term string) []quote.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(quote.Filter(c.st.Quotes, strings.TrimSpace(term)))
}

// Quote returns a quote from the live list, falling back to the store.
func (c *Controller) Quote(ctx context.Context, id string) (quote.Quote, error) {
	c.mu.Lock()
	if c.st.Phase == PhaseAccessDenied {
		err := c.stateErrLocked("get", MsgAccessDenied)
		c.mu.Unlock()
		return quote.Quote{}, err
	}
	q, ok := quote.Find(c.st.Quotes, id)
	c.mu.Unlock()
	if ok {
		return q.Clone(), nil
	}
	return c.repo.Get(ctx, id)
}

func (c *Controller) CreateNew() (quote.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked("create", PhaseReady, ""); err != nil {
		return quote.Quote{}, err
	}
	d := quote.NewDraft()
	c.st.Mode = ModeEditing
	c.st.Draft = &d
	c.st.DraftIsNew = true
	c.st.Alert = nil
	c.publishLocked()
	return d.Clone(), nil
}

func (c *Controller) Edit(id string) (quote.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked("edit", PhaseReady, ""); err != nil {
		return quote.Quote{}, err
	}
	q, ok := quote.Find(c.st.Quotes, id)
	if !ok {
		return quote.Quote{}, fmt.Errorf("edit %s: %w", id, quote.ErrNotFound)
	}
	d := q.Clone()
	c.st.Mode = ModeEditing
	c.st.Draft = &d
	c.st.DraftIsNew = false
	c.st.Alert = nil
	c.publishLocked()
	return d.Clone(), nil
}

// UpdateDraft replaces the editable fields of the draft. Identity and
// timestamps stay as they are.
func (c *Controller) UpdateDraft(q quote.Quote) (quote.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraftLocked("update"); err != nil {
		return quote.Quote{}, err
	}
	d := q.Clone()
	d.ID = c.st.Draft.ID
	d.CreatedAt = c.st.Draft.CreatedAt
	d.UpdatedAt = c.st.Draft.UpdatedAt
	if d.Items == nil {
		d.Items = []quote.LineItem{}
	}
	d.EnsureItemIDs()
	c.st.Draft = &d
	c.publishLocked()
	return d.Clone(), nil
}

func (c *Controller) AddItem() (quote.LineItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraftLocked("add item"); err != nil {
		return quote.LineItem{}, err
	}
	it := c.st.Draft.AddItem()
	c.publishLocked()
	return it, nil
}

func (c *Controller) RemoveItem(itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraftLocked("remove item"); err != nil {
		return err
	}
	if !c.st.Draft.RemoveItem(itemID) {
		return fmt.Errorf("remove item %s: %w", itemID, quote.ErrNotFound)
	}
	c.publishLocked()
	return nil
}

// Cancel drops the draft without saving.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Mode != ModeEditing || c.st.Saving {
		return
	}
	c.st.Mode = ModeListing
	c.st.Draft = nil
	c.st.DraftIsNew = false
	c.publishLocked()
}

// Save validates and persists the draft. On success the controller goes
// back to the list; the list itself changes only when the subscription
// delivers the write.
func (c *Controller) Save(ctx context.Context) (quote.Quote, error) {
	c.mu.Lock()
	if err := c.requireDraftLocked("save"); err != nil {
		c.mu.Unlock()
		return quote.Quote{}, err
	}
	draft := c.st.Draft.Clone()
	if err := ValidateQuote(draft); err != nil {
		a := Describe(err)
		c.st.Alert = &a
		c.publishLocked()
		c.mu.Unlock()
		return quote.Quote{}, err
	}
	c.st.Saving = true
	c.publishLocked()
	c.mu.Unlock()

	saved, err := c.repo.Save(ctx, draft)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Saving = false
	if err != nil {
		c.log.Error("controller: save failed", slog.String("id", draft.ID), slog.Any("error", err))
		a := Describe(err)
		c.st.Alert = &a
		c.publishLocked()
		return quote.Quote{}, err
	}
	c.log.Info("controller: quote saved", slog.String("id", saved.ID), slog.Int64("updated_at", saved.UpdatedAt))
	c.st.Mode = ModeListing
	c.st.Draft = nil
	c.st.DraftIsNew = false
	c.st.Alert = nil
	c.publishLocked()
	return saved, nil
}

func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	if err := c.requireLocked("delete", PhaseReady, ""); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	err := c.repo.Delete(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Error("controller: delete failed", slog.String("id", id), slog.Any("error", err))
		a := Describe(err)
		c.st.Alert = &a
		c.publishLocked()
		return err
	}
	c.st.Alert = nil
	c.publishLocked()
	return nil
}

// Refresh runs a one-shot fetch. While the subscription is live it is the
// only source of list contents and the fetched list is discarded.
func (c *Controller) Refresh(ctx context.Context) ([]quote.Quote, error) {
	c.mu.Lock()
	if c.st.Refreshing {
		out := cloneAll(c.st.Quotes)
		c.mu.Unlock()
		return out, nil
	}
	c.st.Refreshing = true
	c.publishLocked()
	c.mu.Unlock()

	quotes, err := c.repo.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Refreshing = false
	switch {
	case err != nil && quote.IsPermissionDenied(err) && !c.delivered:
		c.failLocked(err)
	case err != nil:
		a := Describe(err)
		c.st.Alert = &a
		c.publishLocked()
	case (!c.delivered || !c.st.Live) && c.st.Phase != PhaseAccessDenied:
		c.st.Phase = PhaseReady
		c.st.Quotes = quotes
		c.publishLocked()
	default:
		c.publishLocked()
	}
	return cloneAll(c.st.Quotes), err
}

func (c *Controller) Preview(q quote.Quote) render.Document {
	return c.renderer.Render(q)
}

// Export renders q and packages it in the given tier.
func (c *Controller) Export(ctx context.Context, q quote.Quote, tier pdf.Tier) (pdf.Result, error) {
	res, err := c.exporter.Export(ctx, c.renderer.Render(q), q, tier)
	if err != nil {
		c.update(func(s *State) {
			a := Describe(err)
			s.Alert = &a
		})
		return pdf.Result{}, err
	}
	return res, nil
}

func DefaultSubject(q quote.Quote) string {
	name := strings.TrimSpace(q.QuoteName)
	if name == "" {
		name = quote.DefaultName
	}
	return "Cotización - " + name
}

// Email exports q in the attachment tier and sends it.
func (c *Controller) Email(ctx context.Context, q quote.Quote, req EmailRequest) error {
	if err := ValidateRecipient(req, c.dispatcher.Channel()); err != nil {
		c.update(func(s *State) {
			a := Describe(err)
			s.Alert = &a
		})
		return err
	}

	c.mu.Lock()
	if c.st.Sending {
		err := c.stateErrLocked("email", MsgBusy)
		c.mu.Unlock()
		return err
	}
	c.st.Sending = true
	c.publishLocked()
	c.mu.Unlock()

	err := c.email(ctx, q, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Sending = false
	if err != nil {
		a := Describe(err)
		c.st.Alert = &a
	} else {
		c.st.Alert = nil
	}
	c.publishLocked()
	return err
}

func (c *Controller) email(ctx context.Context, q quote.Quote, req EmailRequest) error {
	res, err := c.exporter.Export(ctx, c.renderer.Render(q), q, pdf.TierAttachment)
	if err != nil {
		return err
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = DefaultSubject(q)
	}
	body := strings.TrimSpace(req.Message)
	if body == "" {
		body = DefaultEmailBody
	}
	msg := notify.Message{
		Recipient:      strings.TrimSpace(req.To),
		Subject:        subject,
		Body:           body,
		Name:           q.ClientName,
		Title:          q.QuoteName,
		AttachmentName: res.FileName,
		Attachment:     res.Bytes,
	}
	if err := c.dispatcher.Send(ctx, msg); err != nil {
		c.log.Error("controller: email failed",
			slog.String("id", q.ID), slog.String("channel", c.dispatcher.Channel()),
			slog.Int("bytes", res.Size), slog.Any("error", err))
		return err
	}
	c.log.Info("controller: email sent",
		slog.String("id", q.ID), slog.String("channel", c.dispatcher.Channel()), slog.Int("bytes", res.Size))
	return nil
}

func (c *Controller) requireLocked(op string, phase Phase, mode Mode) error {
	if c.st.Phase != phase || (mode != "" && c.st.Mode != mode) {
		msg := MsgNotReady
		if c.st.Phase == PhaseAccessDenied {
			msg = MsgAccessDenied
		}
		return c.stateErrLocked(op, msg)
	}
	if c.st.Saving {
		return c.stateErrLocked(op, MsgBusy)
	}
	return nil
}

func (c *Controller) requireDraftLocked(op string) error {
	if err := c.requireLocked(op, PhaseReady, ModeEditing); err != nil {
		return err
	}
	if c.st.Draft == nil {
		return c.stateErrLocked(op, MsgNotReady)
	}
	return nil
}

func (c *Controller) stateErrLocked(op, msg string) error {
	return &StateError{Op: op, Phase: c.st.Phase, Mode: c.st.Mode, Message: msg}
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.st)
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	c.st.Version++
	s := c.snapshotLocked()
	for ch := range c.watchers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (c *Controller) snapshotLocked() State {
	s := c.st
	if s.Phase == PhaseAccessDenied {
		s.Quotes = nil
	} else {
		s.Quotes = cloneAll(c.st.Quotes)
	}
	if c.st.Draft != nil {
		d := c.st.Draft.Clone()
		s.Draft = &d
	}
	if c.st.Alert != nil {
		a := *c.st.Alert
		s.Alert = &a
	}
	return s
}

func cloneAll(in []quote.Quote) []quote.Quote {
	if in == nil {
		return nil
	}
	out := make([]quote.Quote, len(in))
	for i, q := range in {
		out[i] = q.Clone()
	}
	return out
}
