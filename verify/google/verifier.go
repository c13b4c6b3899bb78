// Package google verifies purchases against the Google Play Developer
// API. The purchase token is handed to the purchases.products endpoint
// as-is; its contents are never interpreted locally.
package google

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/verify"
)

// purchaseState 0 means purchased; 1 is canceled, 2 pending.
const statePurchased = 0

// Products is the slice of the Play Developer API the verifier uses.
// *androidpublisher.PurchasesProductsService satisfies it through
// productsService.
type Products interface {
	Get(ctx context.Context, packageName, productID, token string) (*androidpublisher.ProductPurchase, error)
}

type productsService struct {
	svc *androidpublisher.Service
}

func (p productsService) Get(ctx context.Context, packageName, productID, token string) (*androidpublisher.ProductPurchase, error) {
	return p.svc.Purchases.Products.Get(packageName, productID, token).Context(ctx).Do()
}

// Verifier checks purchase tokens with Google Play.
type Verifier struct {
	log         *logrus.Entry
	packageName string
	products    Products

	serviceAccountJSON []byte
	tokenSource        oauth2.TokenSource
}

type Option func(*Verifier)

// WithCredentialsJSON authenticates with the contents of a service
// account key file.
func WithCredentialsJSON(serviceAccountJSON []byte) Option {
	return func(v *Verifier) {
		v.serviceAccountJSON = serviceAccountJSON
	}
}

// WithTokenSource authenticates with a preconfigured token source
// instead of service account JSON.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(v *Verifier) {
		v.tokenSource = ts
	}
}

// WithProducts replaces the Play API client, mainly for tests.
func WithProducts(products Products) Option {
	return func(v *Verifier) {
		v.products = products
	}
}

// WithLogger replaces the default logrus logger.
func WithLogger(log *logrus.Entry) Option {
	return func(v *Verifier) {
		v.log = log
	}
}

// NewVerifier creates a Verifier for the Android app identified by
// packageName. One of WithCredentialsJSON, WithTokenSource, or
// WithProducts must be provided.
func NewVerifier(ctx context.Context, packageName string, opts ...Option) (verify.Verifier, error) {
	v := &Verifier{
		log:         logrus.StandardLogger().WithField("type", "verify/google"),
		packageName: packageName,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.products == nil {
		var clientOpt option.ClientOption
		switch {
		case v.tokenSource != nil:
			clientOpt = option.WithTokenSource(v.tokenSource)
		case len(v.serviceAccountJSON) > 0:
			clientOpt = option.WithCredentialsJSON(v.serviceAccountJSON)
		default:
			return nil, errors.New("missing play credentials")
		}

		svc, err := androidpublisher.NewService(ctx, clientOpt)
		if err != nil {
			return nil, errors.Wrap(err, "creating android publisher client")
		}
		v.products = productsService{svc: svc}
	}
	return v, nil
}

func (v *Verifier) VerifyPurchase(ctx context.Context, purchase model.PurchaseDetails) (bool, error) {
	if purchase.VerificationData.Source != model.SourceGoogle {
		return false, errors.Errorf("purchase source %q is not google", purchase.VerificationData.Source)
	}

	token := purchase.VerificationData.ServerVerificationData
	if token == "" {
		return false, nil
	}

	product, err := v.products.Get(ctx, v.packageName, purchase.ProductID, token)
	if err != nil {
		// A rejected token is Play's verdict on the purchase; anything
		// else is a failure of the verifier.
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
			v.log.WithError(err).WithField("product", purchase.ProductID).
				Debug("play rejected purchase token")
			return false, nil
		}
		return false, errors.Wrap(err, "calling purchases.products.get")
	}

	return product.PurchaseState == statePurchased, nil
}

func (v *Verifier) ReceiptIdentifier(ctx context.Context, purchase model.PurchaseDetails) ([]byte, error) {
	if purchase.VerificationData.ServerVerificationData == "" {
		return nil, errors.New("purchase has no verification data")
	}
	return []byte(verify.ReceiptID(purchase.VerificationData)), nil
}
