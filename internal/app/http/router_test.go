package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impresos-uribe/cotizaciones/internal/app/config"
	"impresos-uribe/cotizaciones/internal/app/controller"
	apphttp "impresos-uribe/cotizaciones/internal/app/http"
	"impresos-uribe/cotizaciones/internal/app/http/handlers"
	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf"
	"impresos-uribe/cotizaciones/internal/domain/quote/render"
	"impresos-uribe/cotizaciones/internal/infra/notify"
	"impresos-uribe/cotizaciones/internal/infra/store/changefeed"
	"impresos-uribe/cotizaciones/internal/infra/store/local"
	"impresos-uribe/cotizaciones/internal/platform/metrics"
)

type stubExporter struct{}

func (stubExporter) Export(_ context.Context, _ render.Document, q quote.Quote, tier pdf.Tier) (pdf.Result, error) {
	b := []byte("%PDF-1.3 " + string(tier))
	return pdf.Result{Bytes: b, Size: len(b), FileName: q.FileName(), Tier: tier}, nil
}

type stubDispatcher struct{ err error }

func (stubDispatcher) Channel() string { return "stub" }

func (d stubDispatcher) Send(context.Context, notify.Message) error { return d.err }

type env struct {
	srv  *httptest.Server
	ctrl *controller.Controller
}

func setup(t *testing.T, cfg *config.Config, disp notify.Dispatcher) *env {
	t.Helper()
	kv, err := local.NewFileKV(t.TempDir())
	require.NoError(t, err)
	feed := changefeed.New(nil)
	t.Cleanup(func() { _ = feed.Close() })
	repo := local.New(kv, feed)
	t.Cleanup(func() { _ = repo.Close() })

	ctrl := controller.New(controller.Deps{Repo: repo, Exporter: stubExporter{}, Dispatcher: disp})
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Stop)
	require.Eventually(t, func() bool { return ctrl.State().Phase == controller.PhaseReady }, 2*time.Second, 5*time.Millisecond)

	if cfg == nil {
		cfg = &config.Config{CORSAllowedOrigins: []string{"*"}}
	}
	router := apphttp.NewRouter(cfg, handlers.New(ctrl, nil, nil), metrics.New(), nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &env{srv: srv, ctrl: ctrl}
}

func (e *env) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type listBody struct {
	Quotes []struct {
		ID         string `json:"id"`
		ClientName string `json:"clientName"`
		Total      string `json:"total"`
	} `json:"quotes"`
	Count   int    `json:"count"`
	Summary string `json:"summary"`
}

type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func createQuote(t *testing.T, e *env, client string) quote.Quote {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/draft", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	d := decodeBody[quote.Quote](t, resp)

	d.ClientName = client
	d.Date = "2024-05-01"
	d.Items[0].Description = "Tarjetas"
	d.Items[0].Price = 350.5
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	resp = e.do(t, http.MethodPut, "/v1/draft", string(raw))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/draft/save", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[quote.Quote](t, resp)
}

func TestCreateAndList(t *testing.T) {
	e := setup(t, nil, stubDispatcher{})

	saved := createQuote(t, e, "Diana")
	assert.Equal(t, saved.CreatedAt, saved.UpdatedAt)
	assert.Equal(t, quote.DefaultName, saved.QuoteName)

	var list listBody
	require.Eventually(t, func() bool {
		list = decodeBody[listBody](t, e.do(t, http.MethodGet, "/v1/quotes", ""))
		return list.Count == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "1 documento encontrado", list.Summary)
	assert.Equal(t, "Diana", list.Quotes[0].ClientName)
	assert.Equal(t, "$350.50", list.Quotes[0].Total)

	list = decodeBody[listBody](t, e.do(t, http.MethodGet, "/v1/quotes?q=nadie", ""))
	assert.Equal(t, 0, list.Count)
	assert.Equal(t, "0 documentos encontrados", list.Summary)

	resp := e.do(t, http.MethodGet, "/v1/quotes/"+saved.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/quotes/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeBody[errBody](t, resp).Error)
}

func TestSaveValidation(t *testing.T) {
	e := setup(t, nil, stubDispatcher{})

	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/draft", "").StatusCode)
	resp := e.do(t, http.MethodPost, "/v1/draft/save", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeBody[errBody](t, resp)
	assert.Equal(t, "validation", body.Error)
	assert.Equal(t, controller.MsgClientRequired, body.Message)

	resp = e.do(t, http.MethodPut, "/v1/draft", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/v1/draft/cancel", "").StatusCode)
	resp = e.do(t, http.MethodPost, "/v1/draft/save", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDraftItems(t *testing.T) {
	e := setup(t, nil, stubDispatcher{})
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/v1/draft", "").StatusCode)

	resp := e.do(t, http.MethodPost, "/v1/draft/items", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	it := decodeBody[quote.LineItem](t, resp)
	require.Len(t, e.ctrl.State().Draft.Items, 2)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/draft/items/"+it.ID, "").StatusCode)
	assert.Len(t, e.ctrl.State().Draft.Items, 1)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/v1/draft/items/"+it.ID, "").StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/draft/preview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decodeBody[render.Document](t, resp)
	assert.Equal(t, float64(render.Width), doc.Width)
}

func TestDownloadPDF(t *testing.T) {
	e := setup(t, nil, stubDispatcher{})
	saved := createQuote(t, e, "Diana")

	resp := e.do(t, http.MethodGet, "/v1/quotes/"+saved.ID+"/pdf", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Cotizacion-Cotización-General.pdf"`, resp.Header.Get("Content-Disposition"))

	resp = e.do(t, http.MethodGet, "/v1/quotes/"+saved.ID+"/pdf?tier=huge", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEmail(t *testing.T) {
	oversize := &notify.DispatchError{Channel: "stub", Status: 413, Body: "The size limit of variables is 50Kb", Kind: notify.ErrOversize}
	e := setup(t, nil, stubDispatcher{err: oversize})
	saved := createQuote(t, e, "Diana")

	resp := e.do(t, http.MethodGet, "/v1/quotes/"+saved.ID+"/email", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defaults := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "Cotización - Cotización General", defaults["subject"])

	resp = e.do(t, http.MethodPost, "/v1/quotes/"+saved.ID+"/email", `{"to":"bad"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/quotes/"+saved.ID+"/email", `{"to":"cliente@example.com"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	body := decodeBody[errBody](t, resp)
	assert.Equal(t, "dispatch_oversize", body.Error)
	assert.Equal(t, controller.MsgOversize, body.Message)
}

func TestDelete(t *testing.T) {
	e := setup(t, nil, stubDispatcher{})
	saved := createQuote(t, e, "Diana")

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/quotes/"+saved.ID, "").StatusCode)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/v1/quotes/"+saved.ID, "").StatusCode)
	require.Eventually(t, func() bool { return len(e.ctrl.State().Quotes) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRetryWhileReady(t *testing.T) {
	e := setup(t, nil, stubDispatcher{})
	resp := e.do(t, http.MethodPost, "/v1/retry", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/refresh", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIToken(t *testing.T) {
	e := setup(t, &config.Config{APIToken: "secret", CORSAllowedOrigins: []string{"*"}}, stubDispatcher{})

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/v1/state", "").StatusCode)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "").StatusCode)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/v1/state", nil)
	require.NoError(t, err)
	req.Header.Set("X-Internal-Token", "secret")
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	e := setup(t, nil, stubDispatcher{})
	resp := e.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEvents(t *testing.T) {
	e := setup(t, nil, stubDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.srv.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var data string
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "data: ") {
			data = strings.TrimPrefix(sc.Text(), "data: ")
			break
		}
	}
	var s controller.State
	require.NoError(t, json.Unmarshal([]byte(data), &s))
	assert.Equal(t, controller.PhaseReady, s.Phase)
}

func TestEmail_ThroughTelegram(t *testing.T) {
	chats := make(chan string, 1)
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		chats <- r.FormValue("chat_id")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(tg.Close)

	e := setup(t, nil, notify.NewTelegram(tg.URL, "TOKEN", tg.Client()))
	saved := createQuote(t, e, "Diana")

	resp := e.do(t, http.MethodPost, "/v1/quotes/"+saved.ID+"/email", `{"to":"cliente@example.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, controller.MsgChatIDInvalid, decodeBody[errBody](t, resp).Message)

	resp = e.do(t, http.MethodPost, "/v1/quotes/"+saved.ID+"/email", `{"to":"123456789"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	select {
	case chat := <-chats:
		assert.Equal(t, "123456789", chat)
	case <-time.After(2 * time.Second):
		t.Fatal("telegram was not called")
	}
}
