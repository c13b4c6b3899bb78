package testutil

import (
	"fmt"
	"time"

	"github.com/moonbird-apps/iap-server/model"
)

// NewPurchase returns a completable purchase for the given product, with
// generated identifiers and verification blobs.
func NewPurchase(productID, source string) model.PurchaseDetails {
	return model.PurchaseDetails{
		PurchaseID: model.MustGeneratePurchaseID(),
		ProductID:  productID,
		VerificationData: model.PurchaseVerificationData{
			LocalVerificationData:  model.MustGenerateVerificationBlob(),
			ServerVerificationData: model.MustGenerateVerificationBlob(),
			Source:                 source,
		},
		TransactionDate:         time.Now().UTC().Format(time.RFC3339),
		Status:                  model.StatusPurchased,
		PendingCompletePurchase: true,
	}
}

// NewProduct returns catalog details for a product priced in USD.
func NewProduct(id string, rawPrice float64) model.ProductDetails {
	return model.ProductDetails{
		ID:             id,
		Title:          id,
		Description:    "test product",
		Price:          fmt.Sprintf("$%.2f", rawPrice),
		RawPrice:       rawPrice,
		CurrencyCode:   "USD",
		CurrencySymbol: "$",
	}
}
