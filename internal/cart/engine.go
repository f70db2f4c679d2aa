package cart

import (
	"context"
	"errors"
	"sync"

	"storefront-client/internal/models"
	"storefront-client/internal/store"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// Engine owns the authoritative local cart. Mutations are serialized by a
// mutex, applied through the reducer, and written through to the store as a
// single JSON blob. Mutations never fail from the caller's point of view:
// a persistence error leaves the in-memory state current and is only logged.
type Engine struct {
	mu     sync.Mutex
	state  models.CartState
	kv     store.KV
	logger *zap.Logger
}

// NewEngine creates the engine and loads prior state from the store. A
// missing or corrupt blob falls back to the empty cart; startup never fails
// on bad persisted state.
func NewEngine(ctx context.Context, kv store.KV) *Engine {
	e := &Engine{
		state:  models.EmptyCart(),
		kv:     kv,
		logger: util.GetLogger(),
	}

	var saved models.CartState
	err := store.GetJSON(ctx, kv, models.KeyCart, &saved)
	switch {
	case err == nil:
		// Recompute totals rather than trusting the persisted derived
		// fields; the item list is the only source of truth.
		e.state = recalculate(saved.Items)
	case errors.Is(err, store.ErrNotFound):
		// First run, nothing persisted yet.
	default:
		e.logger.Warn("Failed to load saved cart, starting empty", zap.Error(err))
	}

	return e
}

// AddItem adds quantity of product, merging with an existing item for the
// same product id. Quantity is expected to be positive; range checks are the
// caller's responsibility.
func (e *Engine) AddItem(ctx context.Context, product models.Product, quantity int) models.CartState {
	util.CartOperationsTotal.WithLabelValues("add").Inc()
	return e.dispatch(ctx, Add{Product: product, Quantity: quantity})
}

// RemoveItem removes the item for productID. No-op if absent.
func (e *Engine) RemoveItem(ctx context.Context, productID int64) models.CartState {
	util.CartOperationsTotal.WithLabelValues("remove").Inc()
	return e.dispatch(ctx, Remove{ProductID: productID})
}

// UpdateQuantity sets the item's quantity to an absolute value. A
// non-positive quantity removes the item; an absent id is a no-op.
func (e *Engine) UpdateQuantity(ctx context.Context, productID int64, quantity int) models.CartState {
	util.CartOperationsTotal.WithLabelValues("update").Inc()
	return e.dispatch(ctx, SetQuantity{ProductID: productID, Quantity: quantity})
}

// ClearCart resets to the empty cart.
func (e *Engine) ClearCart(ctx context.Context) models.CartState {
	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return e.dispatch(ctx, Clear{})
}

// State returns a copy of the current cart state.
func (e *Engine) State() models.CartState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// GetItemQuantity returns the quantity in the cart for a product, 0 if the
// product is not in the cart.
func (e *Engine) GetItemQuantity(productID int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, item := range e.state.Items {
		if item.Product.ID == productID {
			return item.Quantity
		}
	}
	return 0
}

func (e *Engine) dispatch(ctx context.Context, cmd Command) models.CartState {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = Apply(e.state, cmd)

	if err := store.SetJSON(ctx, e.kv, models.KeyCart, e.state); err != nil {
		util.CartPersistFailures.Inc()
		e.logger.Error("Failed to persist cart state", zap.Error(err))
	}

	return e.snapshot()
}

// snapshot copies the state so callers cannot alias the internal item slice.
// Callers must hold e.mu.
func (e *Engine) snapshot() models.CartState {
	items := make([]models.CartItem, len(e.state.Items))
	copy(items, e.state.Items)
	return models.CartState{Items: items, Total: e.state.Total, ItemCount: e.state.ItemCount}
}
