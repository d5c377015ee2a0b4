package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/mehmetcc/storefront/internal/api"
	"github.com/mehmetcc/storefront/internal/auth"
	"github.com/mehmetcc/storefront/internal/storage"
	"go.uber.org/zap"
)

type Service interface {
	Load(ctx context.Context) error
	Items() []Item
	TotalItems() int
	TotalPrice() float64
	Add(ctx context.Context, productID string, quantity int) error
	Update(ctx context.Context, item Item) error
	Remove(ctx context.Context, productID string, quantity int) error
	RemoveLocal(ctx context.Context, productID string) error
	Fetch(ctx context.Context) error
	Clear(ctx context.Context) error
	Attach(sub auth.Subscriber) (detach func())
}

// Requester is the backend client; api.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, method, path string, query url.Values, in, out any) error
}

type UserIDSource interface {
	UserID() string
}

type service struct {
	api     Requester
	storage storage.Storage
	users   UserIDSource
	logger  *zap.Logger

	mu    sync.RWMutex
	items []Item
}

func NewService(backend Requester, s storage.Storage, users UserIDSource, logger *zap.Logger) Service {
	return &service{
		api:     backend,
		storage: s,
		users:   users,
		logger:  logger,
	}
}

// Load restores the snapshot saved by a previous run. A corrupt snapshot is
// dropped rather than reported.
func (s *service) Load(ctx context.Context) error {
	raw, ok, err := s.storage.Get(ctx, storage.KeyCart)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Warn("discarding unreadable cart snapshot", zap.Error(err))
		return nil
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	s.logger.Debug("cart loaded", zap.Int("lines", len(items)))
	return nil
}

func (s *service) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *service) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, it := range s.items {
		total += it.Quantity
	}
	return total
}

func (s *service) TotalPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0.0
	for _, it := range s.items {
		total += it.ProductPrice * float64(it.Quantity)
	}
	return total
}

func (s *service) Add(ctx context.Context, productID string, quantity int) error {
	if productID == "" {
		return ErrMissingProduct
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	userID := s.users.UserID()

	var raw json.RawMessage
	err := s.api.Do(ctx, http.MethodPost, api.PathCart, nil, Mutation{
		ProductID: productID,
		UserID:    userID,
		Quantity:  quantity,
	}, &raw)
	if err != nil {
		s.logger.Warn("add to cart failed", zap.String("product_id", productID), zap.Error(err))
		return err
	}
	w, _, err := decodeOne(raw)
	if err != nil {
		s.logger.Debug("unreadable add to cart response", zap.Error(err))
	}

	return s.mutate(ctx, func(items []Item) []Item {
		if i := indexOf(items, productID); i >= 0 {
			items[i].Quantity += quantity
			return items
		}
		it := Item{ProductID: productID, UserID: userID, Quantity: quantity}
		if w != nil {
			it = w.item(userID)
			if it.ProductID == "" {
				it.ProductID = productID
			}
			if it.Quantity == 0 {
				it.Quantity = quantity
			}
		}
		return append(items, it)
	})
}

func (s *service) Update(ctx context.Context, item Item) error {
	if item.ID == "" {
		return ErrMissingItemID
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if item.UserID == "" {
		item.UserID = s.users.UserID()
	}

	err := s.api.Do(ctx, http.MethodPut, api.PathCart, nil, Mutation{
		ID:        item.ID,
		ProductID: item.ProductID,
		UserID:    item.UserID,
		Quantity:  item.Quantity,
	}, nil)
	if err != nil {
		s.logger.Warn("update cart failed", zap.String("item_id", item.ID), zap.Error(err))
		return err
	}

	return s.mutate(ctx, func(items []Item) []Item {
		for i := range items {
			if items[i].ID == item.ID || (items[i].ID == "" && items[i].ProductID == item.ProductID) {
				items[i].Quantity = item.Quantity
				return items
			}
		}
		return append(items, item)
	})
}

// Remove takes quantity units of a product off the cart; zero asks the
// backend to drop the whole line. The backend's answer decides what stays.
func (s *service) Remove(ctx context.Context, productID string, quantity int) error {
	if productID == "" {
		return ErrMissingProduct
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}

	var raw json.RawMessage
	err := s.api.Do(ctx, http.MethodDelete, api.PathCart, nil, Mutation{
		ProductID: productID,
		UserID:    s.users.UserID(),
		Quantity:  quantity,
	}, &raw)
	if err != nil {
		s.logger.Warn("remove from cart failed", zap.String("product_id", productID), zap.Error(err))
		return err
	}

	w, env, err := decodeOne(raw)
	if err != nil {
		return fmt.Errorf("decode remove response: %w", err)
	}
	if env == nil || isJSONNull(env.Data) {
		if env != nil && env.IsSuccess != nil && !*env.IsSuccess {
			s.logger.Warn("backend refused cart removal",
				zap.String("product_id", productID),
				zap.ByteString("error", env.Error))
		}
		return nil
	}

	return s.mutate(ctx, func(items []Item) []Item {
		if w == nil || w.Quantity == nil || *w.Quantity == 0 {
			return slices.DeleteFunc(items, func(it Item) bool { return it.ProductID == productID })
		}
		if i := indexOf(items, productID); i >= 0 {
			items[i].Quantity = *w.Quantity
		}
		return items
	})
}

func (s *service) RemoveLocal(ctx context.Context, productID string) error {
	return s.mutate(ctx, func(items []Item) []Item {
		return slices.DeleteFunc(items, func(it Item) bool { return it.ProductID == productID })
	})
}

// Fetch replaces the snapshot with the backend's view of the user's cart.
func (s *service) Fetch(ctx context.Context) error {
	userID := s.users.UserID()

	var raw json.RawMessage
	if err := s.api.Do(ctx, http.MethodGet, api.PathCart, url.Values{"userId": {userID}}, nil, &raw); err != nil {
		s.logger.Debug("cart fetch failed", zap.Int("status", api.StatusOf(err)), zap.Error(err))
		return err
	}
	wire, err := decodeItems(raw)
	if err != nil {
		return fmt.Errorf("decode cart: %w", err)
	}
	items := make([]Item, 0, len(wire))
	for _, w := range wire {
		items = append(items, w.item(userID))
	}

	return s.mutate(ctx, func([]Item) []Item { return items })
}

func (s *service) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	if err := s.storage.Remove(ctx, storage.KeyCart); err != nil {
		s.logger.Warn("failed to remove cart snapshot", zap.Error(err))
		return err
	}
	return nil
}

// Attach keeps the cart in step with the session: a login pulls the server
// cart, a logout discards the local one.
func (s *service) Attach(sub auth.Subscriber) func() {
	return sub.Subscribe(func(ctx context.Context, e auth.Event) {
		switch e {
		case auth.EventLogin:
			if err := s.Fetch(ctx); err != nil {
				s.logger.Warn("cart sync after login failed", zap.Error(err))
			}
		case auth.EventLogout:
			_ = s.Clear(ctx)
		}
	})
}

func (s *service) mutate(ctx context.Context, fn func([]Item) []Item) error {
	s.mu.Lock()
	s.items = fn(slices.Clone(s.items))
	raw, err := json.Marshal(s.items)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.storage.Set(ctx, storage.KeyCart, string(raw)); err != nil {
		s.logger.Warn("failed to save cart snapshot", zap.Error(err))
		return err
	}
	return nil
}

func indexOf(items []Item, productID string) int {
	return slices.IndexFunc(items, func(it Item) bool { return it.ProductID == productID })
}
