// Package memory implements a sandbox store backend. It keeps the whole
// purchase lifecycle in process memory: a catalog loaded from YAML,
// ownership tracking, acknowledgement, restoration, and the asynchronous
// update stream. It exists for local development and tests; no real
// store is involved.
package memory

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/model"
	verifymem "github.com/moonbird-apps/iap-server/verify/memory"
)

const defaultCountry = "US"

type purchaseRecord struct {
	details    model.PurchaseDetails
	userName   string
	consumable bool
	completed  bool
}

// Backend is the sandbox store. All state is guarded by one mutex;
// update delivery happens on its own goroutine, matching how a real
// store reports outside the call cycle.
type Backend struct {
	log      *zap.Logger
	platform iap.Platform
	sink     iap.UpdateSink

	country    string
	signingKey ed25519.PrivateKey

	mu        sync.Mutex
	catalog   map[string]Product
	purchases map[string]*purchaseRecord // by purchase id
	owned     map[string]string          // product id -> purchase id
}

type Option func(*Backend)

// WithCatalog seeds the sandbox catalog.
func WithCatalog(products []Product) Option {
	return func(b *Backend) {
		for _, p := range products {
			b.catalog[p.ID] = p
		}
	}
}

// WithCountry sets the storefront country code. Defaults to "US".
func WithCountry(country string) Option {
	return func(b *Backend) {
		b.country = country
	}
}

// WithSigningKey makes the sandbox issue signed receipts that the memory
// verifier accepts. Without a key, receipts are random opaque blobs.
func WithSigningKey(key ed25519.PrivateKey) Option {
	return func(b *Backend) {
		b.signingKey = key
	}
}

// NewBackend returns a sandbox backend publishing updates into sink. The
// platform determines the source tag stamped on verification data.
func NewBackend(log *zap.Logger, platform iap.Platform, sink iap.UpdateSink, opts ...Option) *Backend {
	b := &Backend{
		log:       log,
		platform:  platform,
		sink:      sink,
		country:   defaultCountry,
		catalog:   make(map[string]Product),
		purchases: make(map[string]*purchaseRecord),
		owned:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Initialize implements iap.Backend. The sandbox has no connection to
// establish, so this only logs; repeated calls are harmless.
func (b *Backend) Initialize(ctx context.Context) error {
	b.log.Debug("Sandbox store initialized", zap.String("platform", string(b.platform)))
	return nil
}

func (b *Backend) IsAvailable(ctx context.Context) (bool, error) {
	return true, nil
}

func (b *Backend) QueryProductDetails(ctx context.Context, productIDs []string) (*model.ProductDetailsResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var found []model.ProductDetails
	var notFound []string
	for _, id := range productIDs {
		product, ok := b.catalog[id]
		if !ok {
			notFound = append(notFound, id)
			continue
		}
		found = append(found, product.Details())
	}
	return model.NewProductDetailsResponse(found, notFound), nil
}

func (b *Backend) BuyNonConsumable(ctx context.Context, param model.PurchaseParam) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	product, ok := b.catalog[param.ProductDetails.ID]
	if !ok {
		return false, iap.NewError(iap.CodePurchase, "unknown product "+param.ProductDetails.ID)
	}
	if product.Consumable {
		return false, iap.NewError(iap.CodePurchase, "product "+product.ID+" is consumable")
	}
	if _, owned := b.owned[product.ID]; owned {
		return false, iap.NewError(iap.CodeItemAlreadyOwned, product.ID)
	}

	record := b.record(product, param.ApplicationUserName, true)
	b.deliver(record.details)
	return true, nil
}

func (b *Backend) BuyConsumable(ctx context.Context, param model.PurchaseParam, autoConsume bool) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	product, ok := b.catalog[param.ProductDetails.ID]
	if !ok {
		return false, iap.NewError(iap.CodePurchase, "unknown product "+param.ProductDetails.ID)
	}
	if !product.Consumable {
		return false, iap.NewError(iap.CodePurchase, "product "+product.ID+" is not consumable")
	}
	if _, owned := b.owned[product.ID]; owned {
		// The previous entitlement was never consumed.
		return false, iap.NewError(iap.CodeItemAlreadyOwned, product.ID)
	}

	record := b.record(product, param.ApplicationUserName, !autoConsume)
	if autoConsume {
		// Consumed on delivery: nothing to complete, nothing owned.
		record.completed = true
		delete(b.owned, product.ID)
	}
	b.deliver(record.details)
	return true, nil
}

// CompletePurchase implements iap.Backend. Completing an already
// completed purchase is a no-op; completing a consumable consumes the
// entitlement so the product becomes purchasable again.
func (b *Backend) CompletePurchase(ctx context.Context, purchase model.PurchaseDetails) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.purchases[purchase.PurchaseID]
	if !ok {
		return iap.NewError(iap.CodeInvalidPurchaseToken, "unknown purchase "+purchase.PurchaseID)
	}
	if record.completed {
		return nil
	}

	record.completed = true
	record.details.PendingCompletePurchase = false
	if record.consumable {
		delete(b.owned, record.details.ProductID)
	}
	return nil
}

// RestorePurchases implements iap.Backend. Owned non-consumables are
// redelivered with restored status and their original purchase ids. When
// the account has nothing to restore, no update is published.
func (b *Backend) RestorePurchases(ctx context.Context, applicationUserName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var restored []model.PurchaseDetails
	for _, purchaseID := range b.owned {
		record := b.purchases[purchaseID]
		if record.consumable {
			continue
		}
		if applicationUserName != "" && record.userName != applicationUserName {
			continue
		}

		replay := record.details.Clone()
		replay.Status = model.StatusRestored
		replay.PendingCompletePurchase = true
		restored = append(restored, replay)
	}

	if len(restored) > 0 {
		go b.sink.OnPurchaseUpdate(restored)
	}
	return nil
}

func (b *Backend) CountryCode(ctx context.Context) (string, error) {
	return b.country, nil
}

// record creates and stores a new purchase for the product. Callers must
// hold the mutex.
func (b *Backend) record(product Product, userName string, pending bool) *purchaseRecord {
	purchaseID := model.MustGeneratePurchaseID()

	serverBlob := model.MustGenerateVerificationBlob()
	if b.signingKey != nil {
		serverBlob = verifymem.GenerateReceipt(b.signingKey, verifymem.ReceiptMessage(product.ID, purchaseID))
	}

	record := &purchaseRecord{
		details: model.PurchaseDetails{
			PurchaseID: purchaseID,
			ProductID:  product.ID,
			VerificationData: model.PurchaseVerificationData{
				LocalVerificationData:  model.MustGenerateVerificationBlob(),
				ServerVerificationData: serverBlob,
				Source:                 b.platform.Source(),
			},
			TransactionDate:         time.Now().UTC().Format(time.RFC3339),
			Status:                  model.StatusPurchased,
			PendingCompletePurchase: pending,
		},
		userName:   userName,
		consumable: product.Consumable,
	}

	b.purchases[purchaseID] = record
	b.owned[product.ID] = purchaseID
	return record
}

// deliver publishes the purchase on a fresh goroutine, so the buy call
// returns before its outcome is observable, as with a real store.
func (b *Backend) deliver(details model.PurchaseDetails) {
	update := details.Clone()
	go b.sink.OnPurchaseUpdate([]model.PurchaseDetails{update})
}
