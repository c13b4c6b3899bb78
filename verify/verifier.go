// Package verify checks purchases against the records of the store that
// issued them. Verification never interprets receipts locally; each
// implementation delegates to its store's own verification service.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/moonbird-apps/iap-server/model"
)

type Verifier interface {
	// VerifyPurchase takes a purchase and determines whether its
	// verification data is valid and covers the purchased product.
	VerifyPurchase(ctx context.Context, purchase model.PurchaseDetails) (bool, error)

	// ReceiptIdentifier returns a stable identifier for the purchase's
	// receipt. This can be used to identify the receipt in the system.
	ReceiptIdentifier(ctx context.Context, purchase model.PurchaseDetails) ([]byte, error)
}

// ReceiptID returns a stable identifier for verification data, usable as
// a deduplication key without consulting a Verifier.
func ReceiptID(data model.PurchaseVerificationData) string {
	hasher := sha256.New()
	hasher.Write([]byte(data.Source))
	hasher.Write([]byte{'|'})
	hasher.Write([]byte(data.ServerVerificationData))
	return hex.EncodeToString(hasher.Sum(nil))
}
