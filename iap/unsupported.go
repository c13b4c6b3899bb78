package iap

import (
	"context"

	"github.com/moonbird-apps/iap-server/model"
)

// Unsupported is the backend for platforms without a store. Every
// operation fails with ErrPlatformNotSupported, so application code can
// run unchanged on platforms where purchases do not exist.
type Unsupported struct{}

// NewUnsupported returns the no-store backend.
func NewUnsupported() Unsupported {
	return Unsupported{}
}

func (Unsupported) Initialize(ctx context.Context) error {
	return ErrPlatformNotSupported
}

func (Unsupported) IsAvailable(ctx context.Context) (bool, error) {
	return false, ErrPlatformNotSupported
}

func (Unsupported) QueryProductDetails(ctx context.Context, productIDs []string) (*model.ProductDetailsResponse, error) {
	return nil, ErrPlatformNotSupported
}

func (Unsupported) BuyNonConsumable(ctx context.Context, param model.PurchaseParam) (bool, error) {
	return false, ErrPlatformNotSupported
}

func (Unsupported) BuyConsumable(ctx context.Context, param model.PurchaseParam, autoConsume bool) (bool, error) {
	return false, ErrPlatformNotSupported
}

func (Unsupported) CompletePurchase(ctx context.Context, purchase model.PurchaseDetails) error {
	return ErrPlatformNotSupported
}

func (Unsupported) RestorePurchases(ctx context.Context, applicationUserName string) error {
	return ErrPlatformNotSupported
}

func (Unsupported) CountryCode(ctx context.Context) (string, error) {
	return "", ErrPlatformNotSupported
}
