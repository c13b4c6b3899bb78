package apple

import (
	"context"
	"net/http"
	"time"

	"github.com/awa/go-iap/appstore"
	"github.com/pkg/errors"

	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/verify"
)

// Client is the subset of the App Store verification API the verifier
// needs. *appstore.Client satisfies it.
type Client interface {
	Verify(ctx context.Context, reqBody appstore.IAPRequest, result interface{}) error
}

// Verifier checks purchases against Apple's verifyReceipt service. The
// receipt itself is never decoded locally.
type Verifier struct {
	client       Client
	sharedSecret string
	bundleID     string
}

type Option func(*Verifier)

// WithClient replaces the App Store client, mainly for tests.
func WithClient(client Client) Option {
	return func(v *Verifier) {
		v.client = client
	}
}

// NewVerifier creates a Verifier for the app identified by bundleID.
func NewVerifier(sharedSecret, bundleID string, opts ...Option) verify.Verifier {
	v := &Verifier{
		sharedSecret: sharedSecret,
		bundleID:     bundleID,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.client == nil {
		v.client = appstore.NewWithClient(&http.Client{
			Timeout: 10 * time.Second,
		})
	}
	return v
}

func (v *Verifier) VerifyPurchase(ctx context.Context, purchase model.PurchaseDetails) (bool, error) {
	if purchase.VerificationData.Source != model.SourceApple {
		return false, errors.Errorf("purchase source %q is not apple", purchase.VerificationData.Source)
	}

	receipt := purchase.VerificationData.ServerVerificationData
	if receipt == "" {
		return false, nil
	}

	req := appstore.IAPRequest{
		ReceiptData: receipt,
		Password:    v.sharedSecret,
	}
	resp := &appstore.IAPResponse{}
	if err := v.client.Verify(ctx, req, resp); err != nil {
		return false, errors.Wrap(err, "calling verifyReceipt")
	}

	if err := appstore.HandleError(resp.Status); err != nil {
		// A bad status is Apple's verdict on the receipt, not a failure
		// of the verifier.

		return false, nil
	}

	if v.bundleID != "" && resp.Receipt.BundleID != v.bundleID {
		return false, nil
	}

	return v.coversProduct(resp, purchase), nil
}

// coversProduct checks that the receipt contains the transaction the
// purchase claims. When the purchase carries a transaction id, the match
// is exact; otherwise any transaction for the product counts.
func (v *Verifier) coversProduct(resp *appstore.IAPResponse, purchase model.PurchaseDetails) bool {
	transactions := make([]appstore.InApp, 0, len(resp.LatestReceiptInfo)+len(resp.Receipt.InApp))
	transactions = append(transactions, resp.LatestReceiptInfo...)
	transactions = append(transactions, resp.Receipt.InApp...)

	for i := range transactions {
		if transactions[i].ProductID != purchase.ProductID {
			continue
		}
		if purchase.PurchaseID == "" || transactions[i].TransactionID == purchase.PurchaseID {
			return true
		}
	}
	return false
}

func (v *Verifier) ReceiptIdentifier(ctx context.Context, purchase model.PurchaseDetails) ([]byte, error) {
	if purchase.VerificationData.ServerVerificationData == "" {
		return nil, errors.New("purchase has no verification data")
	}
	return []byte(verify.ReceiptID(purchase.VerificationData)), nil
}
