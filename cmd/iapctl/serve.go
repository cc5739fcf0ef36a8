package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/iapkit/pkg/config"
	"github.com/dmitrymomot/iapkit/pkg/httpserver"
	"github.com/dmitrymomot/iapkit/pkg/iap"
	"github.com/dmitrymomot/iapkit/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive webhooks and reconcile entitlements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg appConfig
			if err := config.Load(&cfg); err != nil {
				return err
			}
			var hc httpserver.Config
			if err := config.Load(&hc); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, hc, newLogger(cfg, os.Stdout))
		},
	}
}

func runServe(ctx context.Context, cfg appConfig, hc httpserver.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.ErrorContext(ctx, "shutdown failed", logger.Error(err))
		}
	}()

	srv := httpserver.NewFromConfig(hc, httpserver.WithLogger(log.With(logger.Component("http"))))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, newRouter(a, reg))
	})
	g.Go(func() error {
		a.svc.Start(gctx)
		log.InfoContext(gctx, "reconciler started",
			slog.String("store", a.store.driver),
			slog.Int("entitled", len(a.svc.Entitlements())),
		)
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		logNotifications(gctx, a.svc, log)
		return nil
	})

	return g.Wait()
}

func newRouter(a *app, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.RequestID)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(a.log, a.store.checks...))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/entitlements", entitlementsHandler(a.svc))
	r.Handle(a.cfg.WebhookPath, iap.NewWebhookHandler(a.feed,
		iap.WithWebhookLogger(a.log.With(logger.Component("webhook"))),
	))

	return r
}

func entitlementsHandler(svc iap.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string][]string{"entitled": svc.Entitlements()})
	}
}

func logNotifications(ctx context.Context, svc iap.Service, log *slog.Logger) {
	sub := svc.Subscribe(ctx)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Receive(ctx):
			if !ok {
				return
			}
			n := msg.Data
			attrs := []any{
				logger.ProductID(n.ProductID),
				logger.Entitled(n.Entitled),
				slog.String("source", string(n.Source)),
			}
			if n.Source == iap.FromPurchase || n.Source == iap.FromIntent {
				attrs = append(attrs, logger.PurchaseState(n.PurchaseState.String()))
			}
			if n.Err != nil {
				attrs = append(attrs, logger.Error(n.Err))
			}
			log.InfoContext(ctx, "entitlement changed", attrs...)
		}
	}
}
