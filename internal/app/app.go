// Package app wires configuration, storage, export and delivery into the
// controller and serves it over HTTP.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"impresos-uribe/cotizaciones/internal/app/config"
	"impresos-uribe/cotizaciones/internal/app/controller"
	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf"
	"impresos-uribe/cotizaciones/internal/domain/quote/render"
	"impresos-uribe/cotizaciones/internal/infra/assets"
	"impresos-uribe/cotizaciones/internal/infra/auth"
	"impresos-uribe/cotizaciones/internal/infra/db/postgres"
	"impresos-uribe/cotizaciones/internal/infra/notify"
	"impresos-uribe/cotizaciones/internal/infra/store"
	"impresos-uribe/cotizaciones/internal/infra/store/changefeed"
	"impresos-uribe/cotizaciones/internal/infra/store/firestore"
	"impresos-uribe/cotizaciones/internal/infra/store/local"
	"impresos-uribe/cotizaciones/internal/platform/logging"
	"impresos-uribe/cotizaciones/internal/platform/metrics"
)

// Runtime holds the dependencies shared by the server and the CLI commands.
type Runtime struct {
	Cfg        *config.Config
	Log        *slog.Logger
	Metrics    *metrics.Metrics
	Repo       quote.Repository
	Session    *auth.Session
	Assets     *assets.Loader
	Renderer   *render.Renderer
	Exporter   *pdf.Pipeline
	Dispatcher notify.Dispatcher

	closers []func()
}

// NewRuntime opens the configured store and builds the export and delivery
// stack. Close releases everything it opened.
func NewRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	log = logging.OrDiscard(log)
	rt := &Runtime{
		Cfg:     cfg,
		Log:     log,
		Metrics: metrics.New(),
		Renderer: render.New(render.Company{
			Name:        cfg.CompanyName,
			Tagline:     cfg.CompanyTagline,
			ContactName: cfg.CompanyContact,
			Phone:       cfg.CompanyPhone,
			Email:       cfg.CompanyEmail,
			Slogan:      render.DefaultCompany.Slogan,
			Notes:       render.DefaultCompany.Notes,
		}),
	}
	client := &http.Client{Timeout: 30 * time.Second}

	if cfg.StoreBackend == config.BackendFirestore && cfg.AnonymousAuth && cfg.FirebaseAPIKey != "" {
		rt.Session = auth.NewSession(cfg.FirebaseAPIKey, cfg.FirebaseAuthURL, cfg.FirebaseTokenURL, client)
	}

	repo, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Repo = store.Instrument(repo, cfg.StoreBackend, log, rt.Metrics)

	rt.Assets = assets.NewLoader(assets.Config{
		LogoURL:     cfg.LogoURL,
		FontRegular: cfg.FontRegular,
		FontBold:    cfg.FontBold,
		FontItalic:  cfg.FontItalic,
	}, client, log)
	rt.Exporter = pdf.NewPipeline(rt.Assets, cfg.ExportSettleDelay, cfg.AttachmentBudgetBytes, log, rt.Metrics)

	switch cfg.NotifyChannel {
	case config.ChannelTelegram:
		rt.Dispatcher = notify.NewTelegram(cfg.TelegramBaseURL, cfg.TelegramBotToken, client)
	default:
		rt.Dispatcher = notify.NewEmailJS(cfg.EmailJSURL, cfg.EmailJSServiceID, cfg.EmailJSTemplateID,
			cfg.EmailJSPublicKey, cfg.EmailJSPrivateKey, client)
	}
	rt.Dispatcher = notify.WithMetrics(rt.Dispatcher, rt.Metrics)

	log.Info("app: runtime ready",
		slog.String("backend", cfg.StoreBackend),
		slog.String("notify", rt.Dispatcher.Channel()),
		slog.Bool("anonymous_auth", rt.Session != nil))
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) (quote.Repository, error) {
	cfg, log := rt.Cfg, rt.Log
	switch cfg.StoreBackend {
	case config.BackendLocal:
		var kv local.KV
		switch cfg.KVDriver {
		case config.KVRedis:
			r, err := local.NewRedisKV(ctx, cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("redis: %w", err)
			}
			kv = r
		default:
			f, err := local.NewFileKV(cfg.DataDir)
			if err != nil {
				return nil, fmt.Errorf("data dir: %w", err)
			}
			kv = f
		}
		feed := changefeed.New(log)
		s := local.New(kv, feed, local.WithLogger(log))
		rt.onClose(func() { _ = feed.Close() })
		rt.onClose(func() { _ = s.Close() })
		return s, nil

	case config.BackendPostgres:
		if err := postgres.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		feed := changefeed.New(log)
		s := postgres.NewStore(db, feed, postgres.WithLogger(log))
		listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.Listen(listenCtx)
		rt.onClose(db.Close)
		rt.onClose(func() { _ = feed.Close() })
		rt.onClose(s.Wait)
		rt.onClose(cancel)
		return s, nil

	case config.BackendFirestore:
		var ts oauth2.TokenSource
		if rt.Session != nil {
			if err := rt.Session.SignIn(ctx); err != nil {
				// the controller retries sign-in and reports it as a warning
				log.Warn("app: anonymous sign-in failed", slog.Any("error", err))
			}
			ts = rt.Session
		}
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID, ts)
		if err != nil {
			return nil, err
		}
		s := firestore.New(client, cfg.FirestoreCollection, firestore.WithLogger(log))
		rt.onClose(func() { _ = s.Close() })
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// onClose registers fn; Close runs them in reverse order.
func (rt *Runtime) onClose(fn func()) { rt.closers = append(rt.closers, fn) }

func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *Runtime) Controller() *controller.Controller {
	d := controller.Deps{
		Repo:       rt.Repo,
		Renderer:   rt.Renderer,
		Exporter:   rt.Exporter,
		Dispatcher: rt.Dispatcher,
		Log:        rt.Log,
		Metrics:    rt.Metrics,
	}
	if rt.Session != nil {
		d.Session = rt.Session
	}
	return controller.New(d)
}
