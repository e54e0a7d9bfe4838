package subscription

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Catalog holds the validated product list loaded from a source.
type Catalog struct {
	src      ProductSource
	mu       sync.RWMutex
	products map[string]Product
}

// NewCatalog loads and validates products from src.
// Panics if src is nil.
func NewCatalog(ctx context.Context, src ProductSource) (*Catalog, error) {
	if src == nil {
		panic("subscription: ProductSource is required")
	}
	c := &Catalog{src: src}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the product list. On error the previous list is kept.
func (c *Catalog) Reload(ctx context.Context) error {
	products, err := c.src.Load(ctx)
	if err != nil {
		return errors.Join(ErrFailedToLoadProducts, err)
	}
	if err := validateProducts(products); err != nil {
		return err
	}
	c.mu.Lock()
	c.products = maps.Clone(products)
	c.mu.Unlock()
	return nil
}

// Product returns the product with id.
func (c *Catalog) Product(_ context.Context, id string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

// List returns all products ordered by id.
func (c *Catalog) List() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(c.products))
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.products[id])
	}
	return out
}

func validateProducts(products map[string]Product) error {
	for id, p := range products {
		if p.ID != id {
			return errors.Join(ErrInvalidProductConfiguration,
				fmt.Errorf("product ID mismatch: map key %s != product.ID %s", id, p.ID))
		}
		if err := p.validate(); err != nil {
			return errors.Join(ErrInvalidProductConfiguration, err)
		}
	}
	return nil
}
