package cart

import (
	"fmt"
	"time"

	"storefront-client/internal/models"
)

// Command is a cart state transition. The reducer folds commands over an
// immutable CartState; derived totals are recomputed from scratch after
// every command so they can never drift from the item list.
type Command interface {
	apply(state models.CartState) models.CartState
}

// Add merges quantity into an existing item for the same product id, or
// appends a new item at the end of the display order.
type Add struct {
	Product  models.Product
	Quantity int
}

// Remove drops the item for a product id. Absent ids are a no-op.
type Remove struct {
	ProductID int64
}

// SetQuantity sets an item's quantity to an absolute value. Non-positive
// values delete the item; absent ids are a no-op.
type SetQuantity struct {
	ProductID int64
	Quantity  int
}

// Clear resets the cart to empty.
type Clear struct{}

// Apply runs one command against state and returns the next state.
func Apply(state models.CartState, cmd Command) models.CartState {
	return cmd.apply(state)
}

func (c Add) apply(state models.CartState) models.CartState {
	items := make([]models.CartItem, len(state.Items))
	copy(items, state.Items)

	merged := false
	for i := range items {
		if items[i].Product.ID == c.Product.ID {
			items[i].Quantity += c.Quantity
			merged = true
			break
		}
	}

	if !merged {
		items = append(items, models.CartItem{
			ID:       fmt.Sprintf("cart_%d_%d", c.Product.ID, time.Now().UnixMilli()),
			Product:  c.Product,
			Quantity: c.Quantity,
		})
	}

	return recalculate(items)
}

func (c Remove) apply(state models.CartState) models.CartState {
	items := make([]models.CartItem, 0, len(state.Items))
	for _, item := range state.Items {
		if item.Product.ID != c.ProductID {
			items = append(items, item)
		}
	}
	return recalculate(items)
}

func (c SetQuantity) apply(state models.CartState) models.CartState {
	if c.Quantity <= 0 {
		return Remove{ProductID: c.ProductID}.apply(state)
	}

	items := make([]models.CartItem, len(state.Items))
	copy(items, state.Items)
	for i := range items {
		if items[i].Product.ID == c.ProductID {
			items[i].Quantity = c.Quantity
		}
	}
	return recalculate(items)
}

func (c Clear) apply(models.CartState) models.CartState {
	return models.EmptyCart()
}

func recalculate(items []models.CartItem) models.CartState {
	var total float64
	var count int
	for _, item := range items {
		total += item.Product.Price * float64(item.Quantity)
		count += item.Quantity
	}
	return models.CartState{Items: items, Total: total, ItemCount: count}
}
