package model

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Decode helpers for payloads received from a native collaborator. Each
// one unmarshals and then validates, so callers only ever see values that
// satisfy the model invariants.

func DecodeProductDetailsResponse(data []byte) (*ProductDetailsResponse, error) {
	var resp ProductDetailsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "unmarshalling product details response")
	}
	if resp.ProductDetails == nil {
		resp.ProductDetails = []ProductDetails{}
	}
	if resp.NotFoundIDs == nil {
		resp.NotFoundIDs = []string{}
	}
	if err := resp.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid product details response")
	}
	return &resp, nil
}

func DecodePurchaseDetails(data []byte) (*PurchaseDetails, error) {
	var purchase PurchaseDetails
	if err := json.Unmarshal(data, &purchase); err != nil {
		return nil, errors.Wrap(err, "unmarshalling purchase details")
	}
	if err := purchase.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid purchase details")
	}
	return &purchase, nil
}

func DecodePurchaseDetailsList(data []byte) ([]PurchaseDetails, error) {
	var purchases []PurchaseDetails
	if err := json.Unmarshal(data, &purchases); err != nil {
		return nil, errors.Wrap(err, "unmarshalling purchase details list")
	}
	for i, purchase := range purchases {
		if err := purchase.Validate(); err != nil {
			return nil, errors.Wrapf(err, "invalid purchase details at index %d", i)
		}
	}
	return purchases, nil
}

func DecodeIAPError(data []byte) (*IAPError, error) {
	var iapErr IAPError
	if err := json.Unmarshal(data, &iapErr); err != nil {
		return nil, errors.Wrap(err, "unmarshalling error event")
	}
	if err := iapErr.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid error event")
	}
	return &iapErr, nil
}
