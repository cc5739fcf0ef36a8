package iap

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/iapkit/pkg/broadcast"
	"github.com/dmitrymomot/iapkit/pkg/cache"
	"github.com/dmitrymomot/iapkit/pkg/logger"
)

// Service is the entitlement API exposed to the application layer.
type Service interface {
	// Catalog
	Products(ctx context.Context) ([]Product, error)
	Product(ctx context.Context, productID string) (Product, error)

	// Entitlement queries
	IsPurchased(ctx context.Context, productID string) (bool, error)
	IsSubscribed(ctx context.Context, productID string) (bool, error)
	GroupStatus(ctx context.Context, groupID string) (GroupStatus, error)
	Entitlements() []string

	// Purchases
	Purchase(ctx context.Context, productID string, opts PurchaseOptions) (PurchaseReceipt, error)
	PurchaseState() PurchaseState

	// Notifications and lifecycle
	Subscribe(ctx context.Context) broadcast.Subscriber[Notification]
	Start(ctx context.Context)
	Close() error
}

type service struct {
	list       ProductList
	kinds      map[string]ProductKind
	storefront Storefront
	verifier   Verifier
	products   *cache.LRUCache[string, Product]

	entitlements *EntitlementCache
	orchestrator *PurchaseOrchestrator
	reconciler   *UpdateReconciler
	notifier     *broadcast.MemoryBroadcaster[Notification]

	log             *slog.Logger
	metrics         *Metrics
	now             func() time.Time
	cacheKey        string
	productTTL      time.Duration
	restartDelay    time.Duration
	maxRestartDelay time.Duration
	notifyBuffer    int
}

// NewService loads the product list, restores the entitlement cache from
// store and prepares the orchestrator and reconciler. Call Start to begin
// consuming update streams.
// Panics if a required collaborator is nil.
func NewService(ctx context.Context, src ProductListSource, storefront Storefront, verifier Verifier, store Store, opts ...ServiceOption) (Service, error) {
	if src == nil {
		panic("iap: ProductListSource is required")
	}
	if storefront == nil {
		panic("iap: Storefront is required")
	}
	if verifier == nil {
		panic("iap: Verifier is required")
	}
	if store == nil {
		panic("iap: Store is required")
	}

	list, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadProducts, err)
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}

	s := &service{
		list:            list,
		kinds:           list.Kinds(),
		storefront:      storefront,
		verifier:        verifier,
		log:             logger.Discard(),
		now:             time.Now,
		cacheKey:        DefaultCacheKey,
		productTTL:      time.Hour,
		restartDelay:    time.Second,
		maxRestartDelay: time.Minute,
		notifyBuffer:    32,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.products = cache.NewLRUCache(max(len(s.kinds), 1),
		cache.WithTTL[string, Product](s.productTTL),
		cache.WithClock[string, Product](s.now),
	)
	s.notifier = broadcast.NewMemoryBroadcaster(s.notifyBuffer,
		broadcast.WithDropHandler(func(Notification) { s.metrics.notificationDropped() }),
	)
	s.entitlements = NewEntitlementCache(ctx, store,
		WithCacheKey(s.cacheKey),
		WithCacheLogger(s.log.With(logger.Component("entitlement_cache"))),
	)

	fin := newFinisher(storefront, s.log)
	s.orchestrator = newPurchaseOrchestrator(storefront, verifier, s.entitlements, fin, s.metrics, s.publish, s.now,
		s.log.With(logger.Component("purchase_orchestrator")))
	s.reconciler = &UpdateReconciler{
		streams:         storefront,
		verifier:        verifier,
		cache:           s.entitlements,
		finisher:        fin,
		orchestrator:    s.orchestrator,
		kindOf:          s.kindOf,
		lookup:          s.Product,
		notify:          s.publish,
		metrics:         s.metrics,
		log:             s.log.With(logger.Component("update_reconciler")),
		now:             s.now,
		restartDelay:    s.restartDelay,
		maxRestartDelay: s.maxRestartDelay,
	}

	if _, err := s.fetch(ctx, s.list.IDs()); err != nil {
		s.log.WarnContext(ctx, "failed to prefetch products", logger.Error(err))
	}

	return s, nil
}

func (s *service) kindOf(productID string) (ProductKind, bool) {
	k, ok := s.kinds[productID]
	return k, ok
}

// Products returns every configured product the catalog knows about.
func (s *service) Products(ctx context.Context) ([]Product, error) {
	return s.fetch(ctx, s.list.IDs())
}

// Product resolves a configured product. Unconfigured IDs fail with
// ErrProductNotFound without a catalog call.
func (s *service) Product(ctx context.Context, productID string) (Product, error) {
	if _, ok := s.kinds[productID]; !ok {
		return Product{}, ErrProductNotFound
	}
	products, err := s.fetch(ctx, []string{productID})
	if err != nil {
		return Product{}, err
	}
	if len(products) == 0 {
		return Product{}, ErrProductNotFound
	}
	return products[0], nil
}

// fetch returns the products for ids, in order, serving cached definitions
// and requesting the rest from the catalog in one call. IDs the catalog does
// not return are omitted.
func (s *service) fetch(ctx context.Context, ids []string) ([]Product, error) {
	found := make(map[string]Product, len(ids))
	var missing []string
	for _, id := range ids {
		if p, ok := s.products.Get(id); ok {
			found[id] = p
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		fetched, err := s.storefront.Products(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range fetched {
			kind, ok := s.kinds[p.ID]
			if !ok {
				continue
			}
			// The configured list is authoritative for the kind.
			p.Kind = kind
			s.products.Put(p.ID, p)
			found[p.ID] = p
		}
	}

	out := make([]Product, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// IsPurchased reports whether the user owns a non-consumable or
// non-renewing product. Auto-renewable products are answered by IsSubscribed.
// When the remote entitlement is unavailable or cannot be verified, the
// cached flag is returned.
func (s *service) IsPurchased(ctx context.Context, productID string) (bool, error) {
	product, err := s.Product(ctx, productID)
	if err != nil {
		return false, err
	}

	switch product.Kind {
	case KindConsumable:
		return false, ErrUnsupportedProductKind
	case KindAutoRenewable:
		return s.IsSubscribed(ctx, productID)
	}

	payload, ok, err := s.storefront.CurrentEntitlement(ctx, productID)
	if err != nil {
		if !errors.Is(err, ErrEntitlementSourceUnavailable) {
			s.log.WarnContext(ctx, "entitlement lookup failed, using cached value",
				logger.ProductID(productID), logger.Error(err))
		}
		return s.entitlements.Get(productID), nil
	}
	if !ok {
		return false, nil
	}

	outcome := s.verifier.Verify(ctx, payload)
	if !outcome.Confirmed() {
		s.log.WarnContext(ctx, "current entitlement not verified, using cached value",
			logger.ProductID(productID), logger.Error(outcome.Err))
		return s.entitlements.Get(productID), nil
	}
	tx := outcome.Transaction
	return !tx.IsRevoked() && !tx.IsExpired(s.now()), nil
}

// IsSubscribed reports whether the user holds an active subscription to
// productID and no higher tier of the same group is active.
func (s *service) IsSubscribed(ctx context.Context, productID string) (bool, error) {
	product, err := s.Product(ctx, productID)
	if err != nil {
		return false, err
	}
	if product.Kind != KindAutoRenewable || product.GroupID() == "" {
		return false, ErrUnsupportedProductKind
	}

	group, err := s.GroupStatus(ctx, product.GroupID())
	if err != nil {
		return false, err
	}
	member, ok := group.Member(productID)
	if !ok {
		return false, nil
	}
	return member.Active && IsHighestActive(productID, group), nil
}

// GroupStatus rebuilds the status of a subscription group from the remote
// status list. Only verified entries make a member active. A member whose
// entries all failed verification takes its flag from the entitlement cache
// but stays unverified, so it never outranks another member. When the list
// is unavailable every member is rebuilt from the cache, which only records
// verified facts.
func (s *service) GroupStatus(ctx context.Context, groupID string) (GroupStatus, error) {
	products, err := s.fetch(ctx, s.list.AutoRenewables)
	if err != nil {
		return GroupStatus{}, err
	}

	status := GroupStatus{GroupID: groupID}
	index := make(map[string]int)
	for _, p := range products {
		if p.GroupID() != groupID {
			continue
		}
		index[p.ID] = len(status.Members)
		status.Members = append(status.Members, MemberStatus{
			ProductID: p.ID,
			Level:     p.Subscription.Level,
		})
	}
	if len(status.Members) == 0 {
		return GroupStatus{}, ErrProductNotFound
	}

	statuses, err := s.storefront.SubscriptionStatuses(ctx, groupID)
	if err != nil {
		if !errors.Is(err, ErrEntitlementSourceUnavailable) {
			s.log.WarnContext(ctx, "subscription status lookup failed, using cached values",
				logger.GroupID(groupID), logger.Error(err))
		}
		for i := range status.Members {
			m := &status.Members[i]
			m.Source = SourceCache
			m.Active = s.entitlements.Get(m.ProductID)
			m.Verified = m.Active
		}
		slices.SortFunc(status.Members, func(a, b MemberStatus) int { return a.Level - b.Level })
		return status, nil
	}

	unverified := make(map[int]bool)
	for _, st := range statuses {
		outcome := s.verifier.Verify(ctx, st.Transaction)
		if outcome.Transaction == nil {
			continue
		}
		i, ok := index[outcome.Transaction.ProductID]
		if !ok {
			continue
		}
		if !outcome.Verified {
			unverified[i] = true
			continue
		}
		m := &status.Members[i]
		m.Verified = true
		m.Source = SourceRemote
		m.Active = m.Active || (st.State == RenewalSubscribed && !outcome.Transaction.IsRevoked())
	}

	for i := range status.Members {
		m := &status.Members[i]
		switch {
		case m.Verified:
		case unverified[i]:
			m.Source = SourceCache
			m.Active = s.entitlements.Get(m.ProductID)
		default:
			m.Source = SourceRemote
		}
	}

	slices.SortFunc(status.Members, func(a, b MemberStatus) int { return a.Level - b.Level })
	return status, nil
}

// Entitlements returns the IDs of every product currently flagged as entitled.
func (s *service) Entitlements() []string {
	return s.entitlements.Snapshot()
}

// Purchase resolves productID and runs a purchase attempt.
func (s *service) Purchase(ctx context.Context, productID string, opts PurchaseOptions) (PurchaseReceipt, error) {
	product, err := s.Product(ctx, productID)
	if err != nil {
		return PurchaseReceipt{State: s.orchestrator.State()}, err
	}

	receipt, err := s.orchestrator.Purchase(ctx, product, opts)
	attrs := []any{logger.ProductID(productID), logger.PurchaseState(receipt.State.String())}
	if receipt.Transaction != nil {
		attrs = append(attrs, logger.TransactionID(receipt.Transaction.ID))
	}
	if err != nil {
		s.log.WarnContext(ctx, "purchase failed", append(attrs, logger.Error(err))...)
	} else {
		s.log.InfoContext(ctx, "purchase finished", attrs...)
	}
	return receipt, err
}

func (s *service) PurchaseState() PurchaseState {
	return s.orchestrator.State()
}

// Subscribe returns a subscription to entitlement notifications that ends with ctx.
func (s *service) Subscribe(ctx context.Context) broadcast.Subscriber[Notification] {
	return s.notifier.Subscribe(ctx)
}

// Start begins consuming the update streams.
func (s *service) Start(ctx context.Context) {
	s.reconciler.Start(ctx)
}

// Close stops the update listeners and closes every notification subscriber.
func (s *service) Close() error {
	s.reconciler.Stop()
	return s.notifier.Close()
}

func (s *service) publish(ctx context.Context, n Notification) {
	s.notifier.Broadcast(ctx, broadcast.Message[Notification]{Data: n})
}
