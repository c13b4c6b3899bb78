package memory

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"

	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/verify"
)

// Verifier checks an ed25519 signature on sandbox receipts. The receipt
// format is base64(signature)|productID:purchaseID, as issued by the
// sandbox store backend.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier creates a Verifier trusting receipts signed by the private
// counterpart of pubKey.
func NewVerifier(pubKey ed25519.PublicKey) verify.Verifier {
	return &Verifier{publicKey: pubKey}
}

func (m *Verifier) VerifyPurchase(ctx context.Context, purchase model.PurchaseDetails) (bool, error) {
	signature, message, err := parseReceipt(purchase.VerificationData.ServerVerificationData)
	if err != nil {
		// A malformed receipt is an invalid one, not a failure of the
		// verifier itself.

		return false, nil
	}

	if !ed25519.Verify(m.publicKey, message, signature) {
		return false, nil
	}

	// The receipt must cover the product the purchase claims.
	if !strings.HasPrefix(string(message), purchase.ProductID+":") {
		return false, nil
	}

	return true, nil
}

func (m *Verifier) ReceiptIdentifier(ctx context.Context, purchase model.PurchaseDetails) ([]byte, error) {
	signature, _, err := parseReceipt(purchase.VerificationData.ServerVerificationData)
	if err != nil {
		return nil, err
	}

	return signature, nil
}

// GenerateKeyPair returns a fresh signing key pair for a sandbox store.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// ReceiptMessage is the canonical payload a sandbox receipt signs.
func ReceiptMessage(productID, purchaseID string) string {
	return productID + ":" + purchaseID
}

// GenerateReceipt signs message with the sandbox owner key, producing a
// receipt this verifier accepts.
func GenerateReceipt(owner ed25519.PrivateKey, message string) string {
	signature := ed25519.Sign(owner, []byte(message))
	return base64.StdEncoding.EncodeToString(signature) + "|" + message
}

func parseReceipt(receipt string) (signature []byte, message []byte, err error) {
	parts := strings.SplitN(receipt, "|", 2)
	if len(parts) != 2 {
		return nil, nil, errors.Errorf("invalid receipt format: %s", receipt)
	}

	signature, err = base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, errors.Wrap(err, "decoding signature")
	}

	message = []byte(parts[1])
	return signature, message, nil
}
