package iap

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/model"
)

// Plugin is the platform agnostic entry point for in-app purchases. It
// owns exactly one backend, chosen at construction, and presents the same
// eight operations regardless of which store (if any) is behind it.
//
// All methods are safe for concurrent use.
type Plugin struct {
	log      *zap.Logger
	platform Platform
	backend  Backend
	updates  *Updates

	initMu      sync.Mutex
	initialized bool
}

// NewPlugin returns a plugin bound to the given backend. The updates hub
// must be the same one the backend publishes into.
func NewPlugin(log *zap.Logger, platform Platform, backend Backend, updates *Updates) *Plugin {
	return &Plugin{
		log:      log,
		platform: platform,
		backend:  backend,
		updates:  updates,
	}
}

// Platform returns the store platform this process is bound to.
func (p *Plugin) Platform() Platform {
	return p.platform
}

// Updates returns the hub delivering asynchronous purchase updates and
// out-of-band errors.
func (p *Plugin) Updates() *Updates {
	return p.updates
}

// Initialize prepares the backend. The call is idempotent: once a call
// has succeeded, subsequent calls return immediately, and concurrent
// calls wait for the in-flight attempt instead of racing it. A failed
// attempt leaves the plugin uninitialized so the caller can retry.
func (p *Plugin) Initialize(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	if p.initialized {
		return nil
	}

	if err := p.backend.Initialize(ctx); err != nil {
		err = p.classify(err, CodeBillingClientInit)
		p.log.Warn("Failed to initialize purchase backend", zap.Error(err))
		return err
	}

	p.initialized = true
	p.log.Info("Purchase backend initialized", zap.String("platform", string(p.platform)))
	return nil
}

// IsAvailable reports whether the store can currently serve purchases.
func (p *Plugin) IsAvailable(ctx context.Context) (bool, error) {
	available, err := p.backend.IsAvailable(ctx)
	if err != nil {
		err = p.classify(err, CodeInternal)
		p.log.Warn("Failed to check store availability", zap.Error(err))
		return false, err
	}
	return available, nil
}

// QueryProductDetails fetches catalog details for the given product
// identifiers. Duplicate identifiers are collapsed to their first
// occurrence before the backend sees them, so the response accounts for
// every distinct requested identifier exactly once.
func (p *Plugin) QueryProductDetails(ctx context.Context, productIDs []string) (*model.ProductDetailsResponse, error) {
	resp, err := p.backend.QueryProductDetails(ctx, dedupeIDs(productIDs))
	if err != nil {
		err = p.classify(err, CodeProductQuery)
		p.log.Warn("Failed to query product details", zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// BuyNonConsumable launches the purchase flow for a non-consumable
// product. The returned bool only acknowledges the launch; the purchase
// outcome arrives through Updates.
func (p *Plugin) BuyNonConsumable(ctx context.Context, param model.PurchaseParam) (bool, error) {
	if err := param.Validate(); err != nil {
		return false, WrapError(CodePurchase, err, "invalid purchase parameters")
	}

	launched, err := p.backend.BuyNonConsumable(ctx, param)
	if err != nil {
		err = p.classify(err, CodePurchase)
		p.log.Warn(
			"Failed to launch purchase flow",
			zap.String("product_id", param.ProductDetails.ID),
			zap.Error(err),
		)
		return false, err
	}
	return launched, nil
}

// BuyConsumable launches the purchase flow for a consumable product.
func (p *Plugin) BuyConsumable(ctx context.Context, param model.PurchaseParam, autoConsume bool) (bool, error) {
	if err := param.Validate(); err != nil {
		return false, WrapError(CodePurchase, err, "invalid purchase parameters")
	}

	launched, err := p.backend.BuyConsumable(ctx, param, autoConsume)
	if err != nil {
		err = p.classify(err, CodePurchase)
		p.log.Warn(
			"Failed to launch consumable purchase flow",
			zap.String("product_id", param.ProductDetails.ID),
			zap.Bool("auto_consume", autoConsume),
			zap.Error(err),
		)
		return false, err
	}
	return launched, nil
}

// CompletePurchase acknowledges, finishes, or consumes a delivered
// purchase. Stores revoke purchases that are never completed, so callers
// must invoke this for every update with PendingCompletePurchase set
// after delivering the product.
func (p *Plugin) CompletePurchase(ctx context.Context, purchase model.PurchaseDetails) error {
	if err := purchase.Validate(); err != nil {
		return WrapError(CodeConsumption, err, "invalid purchase details")
	}

	if err := p.backend.CompletePurchase(ctx, purchase); err != nil {
		err = p.classify(err, CodeConsumption)
		p.log.Warn(
			"Failed to complete purchase",
			zap.String("purchase_id", purchase.PurchaseID),
			zap.String("product_id", purchase.ProductID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// RestorePurchases replays past purchases through the update stream.
func (p *Plugin) RestorePurchases(ctx context.Context, applicationUserName string) error {
	if err := p.backend.RestorePurchases(ctx, applicationUserName); err != nil {
		err = p.classify(err, CodeRestore)
		p.log.Warn("Failed to restore purchases", zap.Error(err))
		return err
	}
	return nil
}

// CountryCode returns the ISO country code of the user's storefront.
func (p *Plugin) CountryCode(ctx context.Context) (string, error) {
	country, err := p.backend.CountryCode(ctx)
	if err != nil {
		err = p.classify(err, CodeInternal)
		p.log.Warn("Failed to fetch storefront country code", zap.Error(err))
		return "", err
	}
	return country, nil
}

// classify normalizes backend errors into the taxonomy. Errors that are
// already classified pass through untouched so the original code wins.
func (p *Plugin) classify(err error, fallback Code) error {
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return WrapError(fallback, err, "")
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	deduped := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	return deduped
}
