package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tokens the mock gateway treats specially.
const (
	MockDeclineToken = "tok_chargeDeclined"
	MockErrorToken   = "tok_gatewayError"
)

// MockGateway accepts every charge except the special tokens above. It is
// used when STRIPE_MOCK_MODE is set and in tests.
type MockGateway struct {
	mu      sync.Mutex
	Charges []ChargeRequest
	Refunds []RefundRequest

	// RefundErr, when set, fails every refund.
	RefundErr error

	byKey map[string]ChargeResult
}

func NewMockGateway() *MockGateway {
	return &MockGateway{byKey: make(map[string]ChargeResult)}
}

func (m *MockGateway) CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res, ok := m.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return res, nil
	}

	switch req.Token {
	case MockDeclineToken:
		return ChargeResult{}, &CardError{Reason: "Your card was declined.", Code: "card_declined"}
	case MockErrorToken:
		return ChargeResult{}, fmt.Errorf("mock gateway: connection reset")
	}

	m.Charges = append(m.Charges, req)
	res := ChargeResult{ID: "ch_" + uuid.NewString(), CreatedAt: time.Now().UTC()}
	if req.IdempotencyKey != "" {
		m.byKey[req.IdempotencyKey] = res
	}
	return res, nil
}

func (m *MockGateway) CreateRefund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RefundErr != nil {
		return RefundResult{}, m.RefundErr
	}
	m.Refunds = append(m.Refunds, req)
	return RefundResult{ID: "re_" + uuid.NewString(), CreatedAt: time.Now().UTC()}, nil
}

// ChargeCount is the number of distinct charges taken.
func (m *MockGateway) ChargeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Charges)
}

// RefundedRequests returns a copy of the refunds made so far.
func (m *MockGateway) RefundedRequests() []RefundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RefundRequest(nil), m.Refunds...)
}
