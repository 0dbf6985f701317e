package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tkersh/echobase-sub003/internal/order"
	"github.com/tkersh/echobase-sub003/pkg/logger"
)

// ProductSource loads the full product list.
type ProductSource interface {
	ListProducts(ctx context.Context) ([]order.Product, error)
}

// ProductCatalog resolves products by normalized name or by id from a
// TTLCache over ProductSource.
type ProductCatalog struct {
	cache *TTLCache[string, order.Product]
}

// NewProductCatalog builds the catalog cache with the given TTL.
func NewProductCatalog(source ProductSource, ttl time.Duration, log logger.Logger, opts ...CacheOption) *ProductCatalog {
	refresh := func(ctx context.Context) (map[string]order.Product, error) {
		products, err := source.ListProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		m := make(map[string]order.Product, 2*len(products))
		for _, p := range products {
			m[nameKey(p.Name)] = p
			m[idKey(p.ID)] = p
		}
		return m, nil
	}
	return &ProductCatalog{cache: NewTTLCache("products", ttl, refresh, log, opts...)}
}

func nameKey(name string) string { return "name:" + order.NormalizeName(name) }

func idKey(id int64) string { return "id:" + strconv.FormatInt(id, 10) }

// ByName looks a product up by display name, ignoring case and spacing.
func (c *ProductCatalog) ByName(ctx context.Context, name string) (order.Product, bool) {
	return c.cache.Get(ctx, nameKey(name))
}

// ByID looks a product up by id.
func (c *ProductCatalog) ByID(ctx context.Context, id int64) (order.Product, bool) {
	return c.cache.Get(ctx, idKey(id))
}

// Resolve fills a reference's missing id or SKU from the catalog. Fields the
// caller supplied are never overwritten, and an unknown product comes back
// unchanged.
func (c *ProductCatalog) Resolve(ctx context.Context, ref order.ProductRef) order.ProductRef {
	if ref.ID != 0 && ref.SKU != "" {
		return ref
	}

	var (
		p  order.Product
		ok bool
	)
	if ref.ID != 0 {
		p, ok = c.ByID(ctx, ref.ID)
	} else {
		p, ok = c.ByName(ctx, ref.Name)
	}
	if !ok {
		return ref
	}

	if ref.ID == 0 {
		ref.ID = p.ID
	}
	if ref.SKU == "" {
		ref.SKU = p.SKU
	}
	if ref.Name == "" {
		ref.Name = p.Name
	}
	return ref
}
