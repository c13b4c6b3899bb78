// Package cached decorates a store backend with a TTL cache over catalog
// queries. Product details change rarely and stores rate-limit catalog
// lookups, so repeated queries for the same identifiers are answered
// locally until the entry expires. All other operations pass through.
package cached

import (
	"context"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/model"
)

// cache entries are per product id: either the product's details or the
// fact that the store does not know the id.
type entry struct {
	details model.ProductDetails
	missing bool
}

type Backend struct {
	inner iap.Backend
	cache *ttlcache.Cache
}

// NewBackend wraps inner with a catalog cache holding entries for ttl.
func NewBackend(inner iap.Backend, ttl time.Duration) *Backend {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	return &Backend{
		inner: inner,
		cache: cache,
	}
}

func (b *Backend) Initialize(ctx context.Context) error {
	return b.inner.Initialize(ctx)
}

func (b *Backend) IsAvailable(ctx context.Context) (bool, error) {
	return b.inner.IsAvailable(ctx)
}

// QueryProductDetails answers from the cache where possible and forwards
// only the unknown identifiers. The response preserves the requested
// order regardless of which side answered each id.
func (b *Backend) QueryProductDetails(ctx context.Context, productIDs []string) (*model.ProductDetailsResponse, error) {
	resolved := make(map[string]entry, len(productIDs))

	var misses []string
	for _, id := range productIDs {
		if _, ok := resolved[id]; ok {
			continue
		}
		if cachedEntry, ok := b.cache.Get(id); ok {
			resolved[id] = cachedEntry.(entry)
		} else {
			misses = append(misses, id)
			resolved[id] = entry{missing: true} // placeholder until the store answers
		}
	}

	if len(misses) > 0 {
		resp, err := b.inner.QueryProductDetails(ctx, misses)
		if err != nil {
			return nil, err
		}
		// A partial failure is not cacheable: ids the store could not
		// resolve this time may well exist.
		cacheable := resp.Error == nil

		for _, details := range resp.ProductDetails {
			e := entry{details: details}
			resolved[details.ID] = e
			if cacheable {
				b.cache.Set(details.ID, e)
			}
		}
		for _, id := range resp.NotFoundIDs {
			e := entry{missing: true}
			resolved[id] = e
			if cacheable {
				b.cache.Set(id, e)
			}
		}

		if resp.Error != nil {
			return b.merge(productIDs, resolved, resp), nil
		}
	}

	return b.merge(productIDs, resolved, nil), nil
}

func (b *Backend) merge(productIDs []string, resolved map[string]entry, partial *model.ProductDetailsResponse) *model.ProductDetailsResponse {
	var found []model.ProductDetails
	var notFound []string

	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		e := resolved[id]
		if e.missing {
			notFound = append(notFound, id)
		} else {
			found = append(found, e.details)
		}
	}

	merged := model.NewProductDetailsResponse(found, notFound)
	if partial != nil && partial.Error != nil {
		partialErr := partial.Error.Clone()
		merged.Error = &partialErr
	}
	return merged
}

func (b *Backend) BuyNonConsumable(ctx context.Context, param model.PurchaseParam) (bool, error) {
	return b.inner.BuyNonConsumable(ctx, param)
}

func (b *Backend) BuyConsumable(ctx context.Context, param model.PurchaseParam, autoConsume bool) (bool, error) {
	return b.inner.BuyConsumable(ctx, param, autoConsume)
}

func (b *Backend) CompletePurchase(ctx context.Context, purchase model.PurchaseDetails) error {
	return b.inner.CompletePurchase(ctx, purchase)
}

func (b *Backend) RestorePurchases(ctx context.Context, applicationUserName string) error {
	return b.inner.RestorePurchases(ctx, applicationUserName)
}

func (b *Backend) CountryCode(ctx context.Context) (string, error) {
	return b.inner.CountryCode(ctx)
}
