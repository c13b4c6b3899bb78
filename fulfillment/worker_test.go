package fulfillment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/iap/memory"
	"github.com/moonbird-apps/iap-server/model"
	verifymem "github.com/moonbird-apps/iap-server/verify/memory"
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

type deliveryLog struct {
	mu        sync.Mutex
	delivered []model.PurchaseDetails
	fail      bool
}

func (d *deliveryLog) deliver(_ context.Context, purchase model.PurchaseDetails) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail {
		return errors.New("delivery rejected")
	}
	d.delivered = append(d.delivered, purchase)
	return nil
}

func (d *deliveryLog) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

func (d *deliveryLog) waitFor(t *testing.T, n int) []model.PurchaseDetails {
	t.Helper()
	require.Eventually(t, func() bool { return d.count() >= n }, 5*time.Second, 10*time.Millisecond)

	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := make([]model.PurchaseDetails, len(d.delivered))
	copy(snapshot, d.delivered)
	return snapshot
}

func newTestPlugin(t *testing.T, opts ...memory.Option) (*iap.Plugin, *memory.Backend) {
	products, _, err := memory.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	log := zap.NewNop()
	updates := iap.NewUpdates(log, iap.PlatformAndroid)
	backend := memory.NewBackend(
		log,
		iap.PlatformAndroid,
		updates,
		append([]memory.Option{memory.WithCatalog(products)}, opts...)...,
	)
	return iap.NewPlugin(log, iap.PlatformAndroid, backend, updates), backend
}

func buy(t *testing.T, plugin *iap.Plugin, productID string) {
	t.Helper()

	resp, err := plugin.QueryProductDetails(context.Background(), []string{productID})
	require.NoError(t, err)
	require.Len(t, resp.ProductDetails, 1)

	launched, err := plugin.BuyNonConsumable(context.Background(), model.PurchaseParam{
		ProductDetails: resp.ProductDetails[0],
	})
	require.NoError(t, err)
	require.True(t, launched)
}

func TestWorker_FulfillsPurchase(t *testing.T) {
	plugin, _ := newTestPlugin(t)
	log := &deliveryLog{}

	worker := NewWorker(zap.NewNop(), plugin, log.deliver)
	worker.Start()

	buy(t, plugin, "com.moonbird.premium")

	delivered := log.waitFor(t, 1)
	require.Equal(t, "com.moonbird.premium", delivered[0].ProductID)

	// The worker completed the purchase, so completing again is a no-op
	// and a restore redelivers it as restored without refulfilling (the
	// dedupe window still covers the receipt).
	require.NoError(t, plugin.CompletePurchase(context.Background(), delivered[0]))

	require.NoError(t, plugin.RestorePurchases(context.Background(), ""))
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, log.count())
}

func TestWorker_SkipsAutoConsumed(t *testing.T) {
	plugin, _ := newTestPlugin(t)
	log := &deliveryLog{}

	worker := NewWorker(zap.NewNop(), plugin, log.deliver)
	worker.Start()

	resp, err := plugin.QueryProductDetails(context.Background(), []string{"com.moonbird.hints"})
	require.NoError(t, err)

	_, err = plugin.BuyConsumable(context.Background(), model.PurchaseParam{
		ProductDetails: resp.ProductDetails[0],
	}, true)
	require.NoError(t, err)

	// Auto-consumed purchases arrive with nothing pending, so the worker
	// must leave them alone.
	time.Sleep(200 * time.Millisecond)
	require.Zero(t, log.count())
}

func TestWorker_VerifiesBeforeDelivery(t *testing.T) {
	pub, priv, err := verifymem.GenerateKeyPair()
	require.NoError(t, err)

	plugin, _ := newTestPlugin(t, memory.WithSigningKey(priv))
	log := &deliveryLog{}

	worker := NewWorker(zap.NewNop(), plugin, log.deliver, WithVerifier(verifymem.NewVerifier(pub)))
	worker.Start()

	buy(t, plugin, "com.moonbird.premium")
	log.waitFor(t, 1)
}

func TestWorker_DropsUnverifiablePurchases(t *testing.T) {
	// The backend signs with a key the verifier does not trust.
	_, wrongKey, err := verifymem.GenerateKeyPair()
	require.NoError(t, err)
	untrustedPub, _, err := verifymem.GenerateKeyPair()
	require.NoError(t, err)

	plugin, _ := newTestPlugin(t, memory.WithSigningKey(wrongKey))
	log := &deliveryLog{}

	worker := NewWorker(zap.NewNop(), plugin, log.deliver, WithVerifier(verifymem.NewVerifier(untrustedPub)))
	worker.Start()

	buy(t, plugin, "com.moonbird.premium")

	time.Sleep(200 * time.Millisecond)
	require.Zero(t, log.count())
}

func TestWorker_FailedDeliveryLeavesPurchasePending(t *testing.T) {
	plugin, backend := newTestPlugin(t)
	log := &deliveryLog{fail: true}

	worker := NewWorker(zap.NewNop(), plugin, log.deliver)
	worker.Start()

	buy(t, plugin, "com.moonbird.premium")
	time.Sleep(200 * time.Millisecond)
	require.Zero(t, log.count())

	// The purchase was never completed, so a restore still replays it.
	require.NoError(t, backend.RestorePurchases(context.Background(), ""))
}
