package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moonbird-apps/iap-server/model"
)

// RecordingSink is an update sink that captures everything published to
// it. It is safe for concurrent use and meant for assertions on the
// asynchronous purchase stream.
type RecordingSink struct {
	mu        sync.Mutex
	purchases [][]model.PurchaseDetails
	errors    []model.IAPError
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) OnPurchaseUpdate(purchases []model.PurchaseDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]model.PurchaseDetails, len(purchases))
	for i, purchase := range purchases {
		batch[i] = purchase.Clone()
	}
	s.purchases = append(s.purchases, batch)
}

func (s *RecordingSink) OnError(iapErr model.IAPError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors = append(s.errors, iapErr.Clone())
}

// Purchases returns a snapshot of the recorded purchase batches.
func (s *RecordingSink) Purchases() [][]model.PurchaseDetails {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([][]model.PurchaseDetails, len(s.purchases))
	copy(snapshot, s.purchases)
	return snapshot
}

// Errors returns a snapshot of the recorded error events.
func (s *RecordingSink) Errors() []model.IAPError {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]model.IAPError, len(s.errors))
	copy(snapshot, s.errors)
	return snapshot
}

// WaitForPurchases blocks until at least n purchase batches have been
// recorded and returns them.
func (s *RecordingSink) WaitForPurchases(t *testing.T, n int) [][]model.PurchaseDetails {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(s.Purchases()) >= n
	}, 5*time.Second, 10*time.Millisecond, "expected %d purchase batches", n)
	return s.Purchases()
}

// WaitForErrors blocks until at least n error events have been recorded
// and returns them.
func (s *RecordingSink) WaitForErrors(t *testing.T, n int) []model.IAPError {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(s.Errors()) >= n
	}, 5*time.Second, 10*time.Millisecond, "expected %d error events", n)
	return s.Errors()
}

// ExpectNoActivity asserts that no purchase batches or error events
// arrive within the given window.
func (s *RecordingSink) ExpectNoActivity(t *testing.T, window time.Duration) {
	t.Helper()

	time.Sleep(window)
	require.Empty(t, s.Purchases())
	require.Empty(t, s.Errors())
}
