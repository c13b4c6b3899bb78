package model

// Wire types shared by the purchase plugin and its native store
// collaborators. Every field crosses the process boundary as camelCase
// JSON, so the json tags here are the contract and must not drift.

// Source identifies which store produced a piece of verification data.
const (
	SourceApple  = "apple"
	SourceGoogle = "google"
)

// PurchaseStatus is the lifecycle state of a purchase as reported by the
// underlying store.
type PurchaseStatus string

const (
	StatusPending   PurchaseStatus = "pending"
	StatusPurchased PurchaseStatus = "purchased"
	StatusError     PurchaseStatus = "error"
	StatusRestored  PurchaseStatus = "restored"
	StatusCanceled  PurchaseStatus = "canceled"
)

// Terminal returns whether the status is a final state. Pending purchases
// are expected to be followed by another update for the same transaction.
func (s PurchaseStatus) Terminal() bool {
	return s != StatusPending
}

// ProductDetails describes a single purchasable product as returned by a
// store catalog query.
type ProductDetails struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Price is the fully localized display string (e.g. "$4.99"), while
	// RawPrice carries the numeric amount in the unit of CurrencyCode.
	Price          string  `json:"price"`
	RawPrice       float64 `json:"rawPrice" validate:"gte=0"`
	CurrencyCode   string  `json:"currencyCode" validate:"omitempty,iso4217"`
	CurrencySymbol string  `json:"currencySymbol"`
}

// PurchaseVerificationData carries the opaque proofs of purchase issued by
// a store. The blobs are never interpreted locally; they exist to be
// handed to the store's own verification service.
type PurchaseVerificationData struct {
	LocalVerificationData  string `json:"localVerificationData"`
	ServerVerificationData string `json:"serverVerificationData"`
	Source                 string `json:"source" validate:"oneof=apple google"`
}

// IAPError is the wire form of a billing failure. Code is one of the
// canonical taxonomy codes, Message is human readable, and Details holds
// optional structured context such as a raw store response code.
type IAPError struct {
	Code    string         `json:"code" validate:"required"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Clone returns a deep copy.
func (e IAPError) Clone() IAPError {
	cloned := e
	if e.Details != nil {
		cloned.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			cloned.Details[k] = v
		}
	}
	return cloned
}

// PurchaseDetails describes one purchase transaction, either as the result
// of a buy flow, a restoration, or an unsolicited store update.
type PurchaseDetails struct {
	// PurchaseID is the store's transaction identifier. It can be empty
	// for purchases that never reached the store (e.g. synthesized error
	// updates).
	PurchaseID string `json:"purchaseId,omitempty"`
	ProductID  string `json:"productId" validate:"required"`

	VerificationData PurchaseVerificationData `json:"verificationData"`

	// TransactionDate is an ISO 8601 timestamp, empty when the store did
	// not report one.
	TransactionDate string         `json:"transactionDate,omitempty"`
	Status          PurchaseStatus `json:"status" validate:"oneof=pending purchased error restored canceled"`
	Error           *IAPError      `json:"error,omitempty"`

	// PendingCompletePurchase is set while the transaction still needs to
	// be acknowledged or finished via a complete purchase call.
	PendingCompletePurchase bool `json:"pendingCompletePurchase"`
}

// Clone returns a deep copy.
func (p PurchaseDetails) Clone() PurchaseDetails {
	cloned := p
	if p.Error != nil {
		clonedErr := p.Error.Clone()
		cloned.Error = &clonedErr
	}
	return cloned
}

// PurchaseParam is the input to a buy operation.
type PurchaseParam struct {
	ProductDetails ProductDetails `json:"productDetails"`

	// ApplicationUserName is an optional opaque account identifier the
	// store attaches to the transaction.
	ApplicationUserName string `json:"applicationUserName,omitempty"`
}

// ProductDetailsResponse is the result of a catalog query. Every requested
// product identifier lands either in ProductDetails or in NotFoundIDs,
// never in both. Error is only set for partial failures where the backend
// still produced a usable split.
type ProductDetailsResponse struct {
	ProductDetails []ProductDetails `json:"productDetails" validate:"omitempty,dive"`
	NotFoundIDs    []string         `json:"notFoundIds"`
	Error          *IAPError        `json:"error,omitempty"`
}

// NewProductDetailsResponse builds a response with the nil slices
// normalized so the result always encodes as JSON arrays.
func NewProductDetailsResponse(found []ProductDetails, notFound []string) *ProductDetailsResponse {
	if found == nil {
		found = []ProductDetails{}
	}
	if notFound == nil {
		notFound = []string{}
	}
	return &ProductDetailsResponse{
		ProductDetails: found,
		NotFoundIDs:    notFound,
	}
}

// Clone returns a deep copy.
func (r ProductDetailsResponse) Clone() ProductDetailsResponse {
	cloned := r
	cloned.ProductDetails = make([]ProductDetails, len(r.ProductDetails))
	copy(cloned.ProductDetails, r.ProductDetails)
	cloned.NotFoundIDs = make([]string, len(r.NotFoundIDs))
	copy(cloned.NotFoundIDs, r.NotFoundIDs)
	if r.Error != nil {
		clonedErr := r.Error.Clone()
		cloned.Error = &clonedErr
	}
	return cloned
}
