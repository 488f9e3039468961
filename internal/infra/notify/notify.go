// Package notify delivers exported quotes through an external transport.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"impresos-uribe/cotizaciones/internal/platform/metrics"
)

var (
	// ErrOversize means the transport refused the payload for its size.
	ErrOversize = errors.New("attachment too large for transport")
	// ErrTransport covers every other delivery failure.
	ErrTransport = errors.New("transport failure")
)

// DispatchError carries the transport's raw answer. Kind is ErrOversize or ErrTransport.
type DispatchError struct {
	Channel string
	Status  int
	Body    string
	Kind    error
	Err     error
}

func (e *DispatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Channel, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DispatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Diagnostic is the most useful raw text for the user.
func (e *DispatchError) Diagnostic() string {
	if e.Body != "" {
		return e.Body
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func IsOversize(err error) bool { return errors.Is(err, ErrOversize) }

type Message struct {
	Recipient      string
	Subject        string
	Body           string
	Name           string
	Title          string
	AttachmentName string
	Attachment     []byte
}

type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
	Channel() string
}

// oversizeHints are fragments transports use when rejecting large payloads.
var oversizeHints = []string{"size limit", "too large", "too big"}

// classify turns a non-2xx response into a DispatchError.
func classify(channel string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	body := strings.TrimSpace(string(msg))
	kind := ErrTransport
	if resp.StatusCode == http.StatusRequestEntityTooLarge || mentionsSize(body) {
		kind = ErrOversize
	}
	return &DispatchError{Channel: channel, Status: resp.StatusCode, Body: body, Kind: kind}
}

func mentionsSize(body string) bool {
	lower := strings.ToLower(body)
	for _, h := range oversizeHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func transportErr(channel string, err error) error {
	return &DispatchError{Channel: channel, Kind: ErrTransport, Err: err}
}

type observed struct {
	Dispatcher
	metrics *metrics.Metrics
}

// WithMetrics counts every Send by channel and result.
func WithMetrics(d Dispatcher, m *metrics.Metrics) Dispatcher {
	return &observed{Dispatcher: d, metrics: m}
}

func (o *observed) Send(ctx context.Context, msg Message) error {
	err := o.Dispatcher.Send(ctx, msg)
	o.metrics.ObserveDispatch(o.Channel(), err)
	return err
}
