package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/cache"
	"github.com/fjod/go_cart/cartsync/internal/cart"
	"github.com/fjod/go_cart/cartsync/internal/catalog"
	"github.com/fjod/go_cart/cartsync/internal/dedup"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/repository"
	"github.com/fjod/go_cart/cartsync/internal/session"
	"github.com/fjod/go_cart/cartsync/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Identity is who a request comes from. An empty UserID is an anonymous
// visitor; an empty SessionID falls back to one session per user.
type Identity struct {
	SessionID string
	UserID    string
}

func (id Identity) sessionKey() string {
	if id.SessionID != "" {
		return id.SessionID
	}
	return "user:" + id.UserID
}

type Option func(*CartService)

func WithClock(now func() time.Time) Option {
	return func(s *CartService) { s.now = now }
}

// WithCheckoutDedup makes checkouts carrying an id apply at most once.
func WithCheckoutDedup(c dedup.Checker) Option {
	return func(s *CartService) { s.applied = c }
}

type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	sessions *session.Registry
	catalog  catalog.Catalog
	applied  dedup.Checker
	now      func() time.Time
	logger   *zap.Logger
	sfg      singleflight.Group // Prevents cache stampede
	// bumped after every repository write; see load
	writes atomic.Uint64
}

func NewCartService(
	repo repository.CartRepository,
	cache cache.CartCache,
	sessions *session.Registry,
	catalog catalog.Catalog,
	logger *zap.Logger,
	opts ...Option,
) *CartService {
	s := &CartService{
		repo:     repo,
		cache:    cache,
		sessions: sessions,
		catalog:  catalog,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login binds the session to the user and hydrates it from storage,
// replacing whatever the session held before.
func (s *CartService) Login(ctx context.Context, id Identity) ([]domain.LineItem, error) {
	if id.UserID == "" {
		return nil, ErrLoginRequired
	}
	items, err := s.load(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	st, _ := s.sessions.Open(id.sessionKey())
	st.Bind(id.UserID, items)
	s.log(ctx).Info("session hydrated",
		zap.String("user_id", id.UserID), zap.Int("items", len(items)))
	return items, nil
}

// Logout detaches the user. The items stay in the session until the next
// login re-hydrates it.
func (s *CartService) Logout(_ context.Context, id Identity) error {
	if st, ok := s.sessions.Lookup(id.sessionKey()); ok {
		st.Detach()
	}
	return nil
}

func (s *CartService) Cart(ctx context.Context, id Identity) ([]domain.LineItem, error) {
	st, err := s.bound(ctx, id)
	if err != nil {
		return nil, err
	}
	return st.Items(), nil
}

func (s *CartService) AddToCart(ctx context.Context, id Identity, productID string, quantity int) ([]domain.LineItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	st, err := s.bound(ctx, id)
	if err != nil {
		return nil, err
	}
	_, epoch := st.Binding()

	delta, err := s.fetchDelta(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, st, epoch, func(tx *session.Txn) ([]domain.LineItem, error) {
		items := tx.Items()
		have := 0
		if existing, ok := cart.Find(items, delta.Product.ID); ok {
			have = existing.Quantity
		}
		if have+quantity > delta.Product.InStock {
			return nil, fmt.Errorf("%w: %s has %d in stock", ErrOutOfStock, delta.Product.ID, delta.Product.InStock)
		}
		return cart.Merge(items, delta), nil
	})
}

// BuyNow adds the product like AddToCart and returns its resulting line, the
// one the checkout page is opened with.
func (s *CartService) BuyNow(ctx context.Context, id Identity, productID string, quantity int) (domain.LineItem, []domain.LineItem, error) {
	items, err := s.AddToCart(ctx, id, productID, quantity)
	if items == nil {
		return domain.LineItem{}, nil, err
	}
	line, _ := cart.Find(items, productID)
	return line, items, err
}

// ChangeQuantity applies a +/- step to an item already in the cart. The item
// is removed once its quantity reaches zero.
func (s *CartService) ChangeQuantity(ctx context.Context, id Identity, productID string, step int) ([]domain.LineItem, error) {
	if step == 0 {
		return nil, ErrInvalidQuantity
	}
	st, err := s.bound(ctx, id)
	if err != nil {
		return nil, err
	}
	_, epoch := st.Binding()

	return s.mutate(ctx, id, st, epoch, func(tx *session.Txn) ([]domain.LineItem, error) {
		items := tx.Items()
		item, ok := cart.Find(items, productID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, productID)
		}
		if step > 0 && item.Quantity+step > item.Stock.InStock {
			return nil, fmt.Errorf("%w: %s has %d in stock", ErrOutOfStock, productID, item.Stock.InStock)
		}
		return cart.Merge(items, domain.DeltaFromItem(item, step)), nil
	})
}

func (s *CartService) RemoveItems(ctx context.Context, id Identity, productIDs ...string) ([]domain.LineItem, error) {
	st, err := s.bound(ctx, id)
	if err != nil {
		return nil, err
	}
	_, epoch := st.Binding()

	return s.mutate(ctx, id, st, epoch, func(tx *session.Txn) ([]domain.LineItem, error) {
		return cart.Remove(tx.Items(), productIDs...), nil
	})
}

// CompleteCheckout deducts purchased quantities once the order went through.
// A non-empty checkoutID is recorded so the same order arriving from the
// order-placement feed is not deducted twice. Purchases without a product
// or with a non-positive quantity are ignored.
func (s *CartService) CompleteCheckout(ctx context.Context, id Identity, checkoutID string, purchased []domain.Purchase) ([]domain.LineItem, error) {
	purchased = usablePurchases(purchased)
	st, err := s.bound(ctx, id)
	if err != nil {
		return nil, err
	}
	_, epoch := st.Binding()

	first, err := s.firstApply(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if !first {
		return st.Items(), nil
	}

	items, err := s.mutate(ctx, id, st, epoch, func(tx *session.Txn) ([]domain.LineItem, error) {
		if !tx.MarkOrder(checkoutID) {
			return tx.Items(), nil
		}
		return cart.BulkMerge(tx.Items(), purchased), nil
	})
	if items == nil && err != nil {
		s.forgetApply(checkoutID)
	}
	return items, err
}

// ApplyOrder deducts a placed order reported for userID. Live sessions of
// the user are updated and persisted; without one the stored cart is
// updated directly. On error the order is not recorded as applied, so the
// caller can deliver it again; sessions that already took the deduction
// are only persisted again.
func (s *CartService) ApplyOrder(ctx context.Context, userID, checkoutID string, purchased []domain.Purchase) error {
	if userID == "" {
		return ErrLoginRequired
	}
	purchased = usablePurchases(purchased)
	first, err := s.firstApply(ctx, checkoutID)
	if err != nil {
		return err
	}
	if !first {
		s.log(ctx).Debug("checkout already applied", zap.String("checkout_id", checkoutID))
		return nil
	}

	live := false
	var errs []error
	for _, st := range s.sessions.BoundTo(userID) {
		err := st.Do(func(tx *session.Txn) error {
			if tx.UserID() != userID {
				return nil
			}
			live = true
			items := tx.Items()
			if tx.MarkOrder(checkoutID) {
				items = cart.BulkMerge(items, purchased)
				tx.ReplaceAll(items)
			}
			return s.persist(ctx, userID, items)
		})
		if err != nil {
			s.log(ctx).Warn("apply order to session", zap.String("user_id", userID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if live {
		if err := errors.Join(errs...); err != nil {
			s.forgetApply(checkoutID)
			return fmt.Errorf("apply order to sessions: %w", err)
		}
		return nil
	}

	items, err := s.repo.Get(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		s.forgetApply(checkoutID)
		return fmt.Errorf("load cart for order: %w", err)
	}
	if err := s.persist(ctx, userID, cart.BulkMerge(items, purchased)); err != nil {
		s.forgetApply(checkoutID)
		return err
	}
	return nil
}

// BuyAgain re-adds the products of a past order at today's catalog data.
// Products that vanished or ran out are skipped; quantities are capped at
// what is still in stock beyond the cart.
func (s *CartService) BuyAgain(ctx context.Context, id Identity, purchased []domain.Purchase) ([]domain.LineItem, error) {
	st, err := s.bound(ctx, id)
	if err != nil {
		return nil, err
	}
	_, epoch := st.Binding()

	deltas := make([]domain.CartDelta, 0, len(purchased))
	for _, p := range purchased {
		if p.Quantity <= 0 {
			continue
		}
		delta, err := s.fetchDelta(ctx, p.ProductID, p.Quantity)
		if errors.Is(err, catalog.ErrProductNotFound) || errors.Is(err, domain.ErrMissingProductID) {
			s.log(ctx).Warn("buy again skipped product", zap.String("product_id", p.ProductID), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if delta.Product.InStock <= 0 {
			s.log(ctx).Info("buy again skipped sold out product", zap.String("product_id", p.ProductID))
			continue
		}
		deltas = append(deltas, delta)
	}

	return s.mutate(ctx, id, st, epoch, func(tx *session.Txn) ([]domain.LineItem, error) {
		items := tx.Items()
		held := make(map[string]int, len(items))
		for _, item := range items {
			held[item.ProductID] = item.Quantity
		}
		capped := make([]domain.CartDelta, 0, len(deltas))
		for _, d := range deltas {
			room := d.Product.InStock - held[d.Product.ID]
			if room <= 0 {
				s.log(ctx).Info("buy again skipped product at stock limit", zap.String("product_id", d.Product.ID))
				continue
			}
			d.Quantity = min(d.Quantity, room)
			held[d.Product.ID] += d.Quantity
			capped = append(capped, d)
		}
		return cart.MergeAll(items, capped), nil
	})
}

// bound returns the caller's session, bound to the caller's user. A session
// that belongs to nobody or to someone else is re-hydrated first.
func (s *CartService) bound(ctx context.Context, id Identity) (*session.Store, error) {
	if id.UserID == "" {
		return nil, ErrLoginRequired
	}
	st, _ := s.sessions.Open(id.sessionKey())
	if st.UserID() == id.UserID {
		return st, nil
	}

	items, err := s.load(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	_ = st.Do(func(tx *session.Txn) error {
		if tx.UserID() != id.UserID {
			tx.Bind(id.UserID, items)
		}
		return nil
	})
	return st, nil
}

// fetchDelta reads the product from the catalog. A response that arrives
// after the caller went away is discarded; one that outlived the request
// deadline is reported as a timeout.
func (s *CartService) fetchDelta(ctx context.Context, productID string, quantity int) (domain.CartDelta, error) {
	p, err := s.catalog.Product(ctx, productID)
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.Canceled):
		return domain.CartDelta{}, fmt.Errorf("%w: %w", ErrStaleResponse, ctxErr)
	case ctxErr != nil:
		return domain.CartDelta{}, fmt.Errorf("fetch product %s: %w", productID, ctxErr)
	}
	if err != nil {
		return domain.CartDelta{}, fmt.Errorf("fetch product %s: %w", productID, err)
	}
	delta := p.ToDelta(quantity, s.now())
	if err := delta.Validate(); err != nil {
		return domain.CartDelta{}, fmt.Errorf("product %s: %w", productID, err)
	}
	return delta, nil
}

// mutate applies fn to the session's items and persists the result, all
// under the session lock. The session must still be bound to the caller at
// the epoch observed before any fetch, otherwise nothing changes.
//
// If only persisting fails, the new items are returned along with an error
// wrapping ErrNotPersisted.
func (s *CartService) mutate(
	ctx context.Context,
	id Identity,
	st *session.Store,
	epoch uint64,
	fn func(tx *session.Txn) ([]domain.LineItem, error),
) ([]domain.LineItem, error) {
	var next []domain.LineItem
	var persistErr error
	err := st.Do(func(tx *session.Txn) error {
		if tx.UserID() != id.UserID || tx.Epoch() != epoch {
			return ErrStaleResponse
		}
		items, err := fn(tx)
		if err != nil {
			return err
		}
		if items == nil {
			items = []domain.LineItem{}
		}
		tx.ReplaceAll(items)
		next = items
		persistErr = s.persist(ctx, id.UserID, items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, persistErr
}

func (s *CartService) persist(ctx context.Context, userID string, items []domain.LineItem) error {
	if err := s.repo.Put(ctx, userID, items); err != nil {
		s.log(ctx).Error("repo put cart error", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	s.writes.Add(1)
	s.invalidateCache(userID)
	return nil
}

// load reads a user's stored cart through the cache. A user without a
// stored cart has an empty one.
func (s *CartService) load(ctx context.Context, userID string) ([]domain.LineItem, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		items, err := s.cache.Get(ctx, userID)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log(ctx).Warn("cache get error", zap.Error(err))
		}

		before := s.writes.Load()
		items, err = s.repo.Get(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return []domain.LineItem{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load cart: %w", err)
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := s.cache.Set(setCtx, userID, items); err != nil {
			s.log(ctx).Warn("cache set error", zap.String("user_id", userID), zap.Error(err))
		}
		// A write that landed after the read may have invalidated before
		// this Set; drop the possibly older value.
		if s.writes.Load() != before {
			s.invalidateCache(userID)
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.LineItem), nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *CartService) firstApply(ctx context.Context, checkoutID string) (bool, error) {
	if checkoutID == "" || s.applied == nil {
		return true, nil
	}
	first, err := s.applied.FirstSeen(ctx, checkoutID)
	if err != nil {
		return false, fmt.Errorf("check checkout %s: %w", checkoutID, err)
	}
	return first, nil
}

func (s *CartService) forgetApply(checkoutID string) {
	if checkoutID == "" || s.applied == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.applied.Forget(ctx, checkoutID); err != nil {
		s.logger.Warn("forget checkout error", zap.String("checkout_id", checkoutID), zap.Error(err))
	}
}

func usablePurchases(purchased []domain.Purchase) []domain.Purchase {
	out := make([]domain.Purchase, 0, len(purchased))
	for _, p := range purchased {
		if p.ProductID == "" || p.Quantity <= 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *CartService) log(ctx context.Context) *zap.Logger {
	return logger.WithTrace(ctx, s.logger)
}
