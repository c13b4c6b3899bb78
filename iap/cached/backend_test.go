package cached

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/iap/memory"
	"github.com/moonbird-apps/iap-server/iap/tests"
	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/testutil"
)

const testCatalog = `
products:
  - id: com.moonbird.hints
    title: Hint Pack
    price: "1.99"
    currency: USD
    symbol: "$"
    consumable: true
  - id: com.moonbird.premium
    title: Premium Upgrade
    price: "9.99"
    currency: USD
    symbol: "$"
`

// countingBackend counts catalog queries on their way to the inner
// backend.
type countingBackend struct {
	iap.Backend

	mu      sync.Mutex
	queries [][]string
}

func (c *countingBackend) QueryProductDetails(ctx context.Context, productIDs []string) (*model.ProductDetailsResponse, error) {
	c.mu.Lock()
	c.queries = append(c.queries, productIDs)
	c.mu.Unlock()
	return c.Backend.QueryProductDetails(ctx, productIDs)
}

func (c *countingBackend) queryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

func newCounting(t *testing.T) (*countingBackend, *testutil.RecordingSink) {
	products, _, err := memory.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	sink := testutil.NewRecordingSink()
	inner := memory.NewBackend(zap.NewNop(), iap.PlatformAndroid, sink, memory.WithCatalog(products))
	return &countingBackend{Backend: inner}, sink
}

// The decorator must not change observable backend behavior.
func TestCachedBackend_Conformance(t *testing.T) {
	newSubject := func(t *testing.T) tests.Subject {
		inner, sink := newCounting(t)
		return tests.Subject{
			Backend:         NewBackend(inner, time.Minute),
			Sink:            sink,
			NonConsumableID: "com.moonbird.premium",
			ConsumableID:    "com.moonbird.hints",
			MissingID:       "com.moonbird.nonexistent",
		}
	}
	tests.RunBackendTests(t, newSubject, func() {})
}

func TestCachedBackend_ServesRepeatsFromCache(t *testing.T) {
	inner, _ := newCounting(t)
	backend := NewBackend(inner, time.Minute)
	ctx := context.Background()

	first, err := backend.QueryProductDetails(ctx, []string{"com.moonbird.premium", "com.moonbird.nonexistent"})
	require.NoError(t, err)
	require.Len(t, first.ProductDetails, 1)
	require.Equal(t, []string{"com.moonbird.nonexistent"}, first.NotFoundIDs)
	require.Equal(t, 1, inner.queryCount())

	// Both the hit and the miss are now cached.
	second, err := backend.QueryProductDetails(ctx, []string{"com.moonbird.premium", "com.moonbird.nonexistent"})
	require.NoError(t, err)
	require.Equal(t, first.ProductDetails, second.ProductDetails)
	require.Equal(t, first.NotFoundIDs, second.NotFoundIDs)
	require.Equal(t, 1, inner.queryCount())
}

func TestCachedBackend_ForwardsOnlyMisses(t *testing.T) {
	inner, _ := newCounting(t)
	backend := NewBackend(inner, time.Minute)
	ctx := context.Background()

	_, err := backend.QueryProductDetails(ctx, []string{"com.moonbird.premium"})
	require.NoError(t, err)

	resp, err := backend.QueryProductDetails(ctx, []string{"com.moonbird.premium", "com.moonbird.hints"})
	require.NoError(t, err)
	require.Len(t, resp.ProductDetails, 2)

	// Order follows the request even though one id came from the cache.
	require.Equal(t, "com.moonbird.premium", resp.ProductDetails[0].ID)
	require.Equal(t, "com.moonbird.hints", resp.ProductDetails[1].ID)

	require.Equal(t, 2, inner.queryCount())
	require.Equal(t, []string{"com.moonbird.hints"}, inner.queries[1])
}

func TestCachedBackend_CollapsesDuplicates(t *testing.T) {
	inner, _ := newCounting(t)
	backend := NewBackend(inner, time.Minute)

	resp, err := backend.QueryProductDetails(context.Background(), []string{
		"com.moonbird.premium", "com.moonbird.premium", "com.moonbird.nonexistent",
	})
	require.NoError(t, err)
	require.Len(t, resp.ProductDetails, 1)
	require.Equal(t, []string{"com.moonbird.nonexistent"}, resp.NotFoundIDs)
	require.NoError(t, resp.Validate())
}
