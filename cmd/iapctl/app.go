package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/iapkit/pkg/config"
	"github.com/dmitrymomot/iapkit/pkg/iap"
	"github.com/dmitrymomot/iapkit/pkg/logger"
)

// app holds the collaborators shared by serve and checkout.
type app struct {
	cfg     appConfig
	log     *slog.Logger
	store   *storeHandle
	feed    *iap.Feed
	paddle  *iap.Paddle
	svc     iap.Service
	metrics *iap.Metrics
}

// newApp loads configuration, opens the store and assembles the service.
// reg may be nil when metrics are not exported.
func newApp(ctx context.Context, cfg appConfig, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	src := iap.NewYAMLSource(cfg.ProductsPath)
	list, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(iap.ErrFailedToLoadProducts, err)
	}

	var pc iap.PaddleConfig
	if err := config.Load(&pc); err != nil {
		return nil, err
	}
	paddle, err := iap.NewPaddle(pc, iap.WithPaddleProducts(list.Products...))
	if err != nil {
		return nil, err
	}

	verifier, err := newVerifier(paddle)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, log.With(logger.Component("store")))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		feed:   iap.NewFeed(cfg.FeedBuffer),
		paddle: paddle,
	}
	if reg != nil {
		a.metrics = iap.NewMetrics(reg)
	}

	storefront := iap.ComposeStorefront(
		iap.NewStaticCatalog(list.Products...),
		paddle,
		iap.NoRemoteEntitlements{},
		a.feed,
	)

	a.svc, err = iap.NewService(ctx, iap.NewInMemSource(list), storefront, verifier, store,
		iap.WithLogger(log),
		iap.WithMetrics(a.metrics),
		iap.WithEntitlementCacheKey(cfg.CacheKey),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the service, the feed and the store in that order.
func (a *app) Close() error {
	return errors.Join(a.svc.Close(), a.feed.Close(), a.store.Close())
}

// newVerifier routes signed webhook bodies to Paddle and compact JWS tokens
// to the JWS verifier when trust anchors are configured.
func newVerifier(paddle *iap.Paddle) (iap.Verifier, error) {
	jws, err := loadJWSVerifier()
	if err != nil {
		return nil, err
	}
	return iap.VerifierFunc(func(ctx context.Context, p iap.SignedPayload) iap.VerificationOutcome {
		if p.Signature != "" || jws == nil {
			return paddle.Verify(ctx, p)
		}
		return jws.Verify(ctx, p)
	}), nil
}

// loadJWSVerifier returns nil, nil when neither root certificates nor a key set is configured.
func loadJWSVerifier() (*iap.JWSVerifier, error) {
	var jc iap.JWSConfig
	if err := config.Load(&jc); err != nil {
		return nil, err
	}
	if jc.RootCertsPath == "" && jc.KeySetPath == "" {
		return nil, nil
	}
	return iap.NewJWSVerifierFromConfig(jc)
}
