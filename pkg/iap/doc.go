// Package iap reconciles in-app purchase entitlements between a remote
// commerce backend and a local, persisted cache.
//
// The package answers "does the user own this product right now?" for
// non-consumable, non-renewing and auto-renewable products, drives purchases
// through a single-attempt state machine and keeps entitlements current by
// consuming the backend's transaction, subscription status and purchase
// intent streams.
//
// # Architecture
//
//   - Service: the application-facing API (queries, purchases, notifications)
//   - EntitlementCache: product ID to bool map persisted through a Store
//   - Verifier: turns a SignedPayload into a VerificationOutcome
//   - PurchaseOrchestrator: one purchase attempt at a time
//   - UpdateReconciler: three listener loops applying verified updates
//   - IsHighestActive: subscription group precedence, lower level wins
//
// The remote backend is a Storefront, composed of a Catalog, a Purchaser, an
// EntitlementSource and UpdateStreams. ComposeStorefront assembles one from
// independent parts, so a static catalog, the Paddle purchaser and a
// webhook-fed Feed can be combined:
//
//	pdl, err := iap.NewPaddle(cfg, iap.WithPaddleProducts(list.Products...))
//	if err != nil {
//		return err
//	}
//	feed := iap.NewFeed(64)
//	storefront := iap.ComposeStorefront(
//		iap.NewStaticCatalog(list.Products...),
//		pdl,
//		iap.NoRemoteEntitlements{},
//		feed,
//	)
//
//	svc, err := iap.NewService(ctx, iap.NewInMemSource(list), storefront, pdl, store,
//		iap.WithLogger(log),
//		iap.WithMetrics(iap.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//	if err != nil {
//		return err
//	}
//	svc.Start(ctx)
//	defer svc.Close()
//
//	mux.Handle("POST /webhooks/paddle", iap.NewWebhookHandler(feed))
//
// # Verification
//
// Nothing unverified ever changes an entitlement. A failed check is "could
// not confirm", so queries fall back to the cached flag and updates are
// dropped without acknowledging the transaction. JWSVerifier checks App
// Store style ES256 tokens against an x5c chain or a JWKS key set; Paddle
// checks webhook HMAC signatures.
//
// # Subscription groups
//
// Products of one group are tiers of the same subscription. IsSubscribed is
// true only for the highest active tier, so a user upgraded from silver to
// gold is subscribed to gold and not to silver, even while both records are
// active.
//
// # Notifications
//
// Subscribe returns a broadcast.Subscriber that receives a Notification each
// time an entitlement flag flips and after every intent-driven purchase.
// Slow subscribers miss messages rather than block reconciliation.
package iap
