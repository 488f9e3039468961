// Package main is the cotizaciones binary: the HTTP service plus a few
// maintenance commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"impresos-uribe/cotizaciones/internal/app"
	"impresos-uribe/cotizaciones/internal/app/config"
	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf"
	"impresos-uribe/cotizaciones/internal/domain/quote/render"
	"impresos-uribe/cotizaciones/internal/infra/db/postgres"
	"impresos-uribe/cotizaciones/internal/platform/logging"
)

// Version is injected via ldflags: -X main.Version=1.0.0
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "cotizaciones",
		Usage:   "quote manager for Impresos Uribe",
		Version: Version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the postgres migrations",
				Action: migrate,
			},
			{
				Name:   "list",
				Usage:  "print stored quotes with their totals",
				Action: list,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "filter by client or quote name"},
				},
			},
			{
				Name:      "export",
				Usage:     "write the PDF of a stored quote",
				ArgsUsage: "<quote-id>",
				Action:    export,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file or directory", Value: "."},
					&cli.StringFlag{Name: "tier", Usage: "download or attachment", Value: string(pdf.TierDownload)},
				},
			},
			{
				Name:      "encode-key",
				Usage:     "print the FIREBASE_API_KEY_ENC value for a key",
				ArgsUsage: "<api-key>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: cotizaciones encode-key <api-key>", 2)
					}
					fmt.Fprintln(c.App.Writer, config.EncodeKey(c.Args().First()))
					return nil
				},
			},
		},
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
		Service: "cotizaciones",
	})
	slog.SetDefault(log)
	return cfg, log, nil
}

func openRuntime(c *cli.Context) (*app.Runtime, error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, err
	}
	return app.NewRuntime(c.Context, cfg, log)
}

func serve(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.Log.Info("starting service", slog.String("version", Version))
	return app.Serve(c.Context, rt)
}

func migrate(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != config.BackendPostgres {
		return cli.Exit("migrate only applies to STORE_BACKEND=postgres", 2)
	}
	if err := postgres.Migrate(c.Context, cfg.DatabaseURL); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func list(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	quotes, err := rt.Repo.List(c.Context)
	if err != nil {
		return err
	}
	quotes = quote.Filter(quotes, c.String("search"))

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLIENTE\tCOTIZACIÓN\tFECHA\tTOTAL")
	for _, q := range quotes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", q.ID, q.ClientName, q.QuoteName, render.ShortDate(q.Date), render.Money(q.Total()))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	noun := "documentos encontrados"
	if len(quotes) == 1 {
		noun = "documento encontrado"
	}
	fmt.Fprintf(c.App.Writer, "%d %s\n", len(quotes), noun)
	return nil
}

func export(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: cotizaciones export [--out path] <quote-id>", 2)
	}
	tier, err := pdf.ParseTier(c.String("tier"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	q, err := rt.Repo.Get(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	res, err := rt.Exporter.Export(c.Context, rt.Renderer.Render(q), q, tier)
	if err != nil {
		return err
	}

	out := c.String("out")
	if st, err := os.Stat(out); err == nil && st.IsDir() {
		out = filepath.Join(out, res.FileName)
	}
	if err := os.WriteFile(out, res.Bytes, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s (%d bytes)\n", out, res.Size)
	return nil
}
