package iap

import (
	"context"

	"github.com/moonbird-apps/iap-server/model"
)

// Platform identifies the store a process is bound to. The binding is
// decided once at startup and never changes for the lifetime of the
// process.
type Platform string

const (
	PlatformAndroid     Platform = "android"
	PlatformIOS         Platform = "ios"
	PlatformUnsupported Platform = "unsupported"
)

// Supported returns whether the platform has a store backend.
func (p Platform) Supported() bool {
	return p == PlatformAndroid || p == PlatformIOS
}

// Source returns the verification data source for purchases made on this
// platform, or empty for unsupported platforms.
func (p Platform) Source() string {
	switch p {
	case PlatformAndroid:
		return model.SourceGoogle
	case PlatformIOS:
		return model.SourceApple
	default:
		return ""
	}
}

// Backend is the store-facing side of the purchase layer. Implementations
// translate these calls into whatever their store understands; callers
// never see store specific types, only the shared model and classified
// errors.
//
// The buy operations return once the store's purchase flow has been
// launched. The outcome of the flow arrives later through the update
// stream, never as the return value.
type Backend interface {
	// Initialize prepares the backend for use. It must be called before
	// any other operation.
	Initialize(ctx context.Context) error

	// IsAvailable reports whether the store can currently serve
	// purchases.
	IsAvailable(ctx context.Context) (bool, error)

	// QueryProductDetails fetches catalog details for the given product
	// identifiers. Every requested identifier is accounted for in the
	// response, either as a product or in the not-found list.
	QueryProductDetails(ctx context.Context, productIDs []string) (*model.ProductDetailsResponse, error)

	// BuyNonConsumable launches the purchase flow for a non-consumable
	// product.
	BuyNonConsumable(ctx context.Context, param model.PurchaseParam) (bool, error)

	// BuyConsumable launches the purchase flow for a consumable product.
	// When autoConsume is set, the purchase is consumed as soon as it
	// completes and no completion call is expected.
	BuyConsumable(ctx context.Context, param model.PurchaseParam, autoConsume bool) (bool, error)

	// CompletePurchase acknowledges, finishes, or consumes a delivered
	// purchase, depending on what the store requires.
	CompletePurchase(ctx context.Context, purchase model.PurchaseDetails) error

	// RestorePurchases replays past purchases through the update stream.
	// The call returns once the restoration has been requested; restored
	// purchases arrive asynchronously.
	RestorePurchases(ctx context.Context, applicationUserName string) error

	// CountryCode returns the ISO country code of the user's storefront.
	CountryCode(ctx context.Context) (string, error)
}

// UpdateSink receives the asynchronous events a backend produces outside
// the request cycle. Implementations must not block for long; backends
// may call these from their transport read loops.
type UpdateSink interface {
	// OnPurchaseUpdate delivers a batch of purchase state transitions in
	// the order the store reported them.
	OnPurchaseUpdate(purchases []model.PurchaseDetails)

	// OnError delivers a billing failure that is not tied to an in-flight
	// call.
	OnError(iapErr model.IAPError)
}
