package model

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New()

// Validate checks the struct tag rules only. Prefer the typed Validate
// methods, which also enforce the relations between fields.
func Validate(v any) error {
	return validate.Struct(v)
}

func (p ProductDetails) Validate() error {
	return validate.Struct(p)
}

func (d PurchaseVerificationData) Validate() error {
	return validate.Struct(d)
}

func (e IAPError) Validate() error {
	return validate.Struct(e)
}

func (p PurchaseDetails) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}

	if p.Status == StatusError && p.Error == nil {
		return errors.New("purchase with error status is missing error details")
	}
	if p.PendingCompletePurchase && !(p.Status == StatusPurchased || p.Status == StatusRestored) {
		return errors.Errorf("purchase with status %q cannot be pending completion", p.Status)
	}
	return nil
}

func (p PurchaseParam) Validate() error {
	return validate.Struct(p)
}

func (r ProductDetailsResponse) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}

	found := make(map[string]struct{}, len(r.ProductDetails))
	for _, details := range r.ProductDetails {
		found[details.ID] = struct{}{}
	}
	for _, id := range r.NotFoundIDs {
		if _, ok := found[id]; ok {
			return errors.Errorf("product %q listed as both found and not found", id)
		}
	}
	return nil
}
