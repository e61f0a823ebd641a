package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrGatewayUnavailable marks a transport failure. The charge outcome is unknown and the
// intent must stay confirmable.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ChargeRequest asks the gateway to collect Amount. Repeating a request with the same
// IdempotencyKey returns the original result without charging twice.
type ChargeRequest struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	PaymentToken   string
}

// ChargeResult is the gateway verdict.
type ChargeResult struct {
	Reference     string
	Approved      bool
	DeclineReason string
}

// Gateway collects money for payment intents.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Mock tokens understood by MockGateway.
const (
	TokenApprove     = "tok_approve"
	TokenDecline     = "tok_decline"
	TokenUnavailable = "tok_unavailable"
)

// MockGateway is an in-memory gateway that approves any token except the decline and
// unavailable sentinels. Results are memoised per idempotency key.
type MockGateway struct {
	mu      sync.Mutex
	results map[string]ChargeResult
	charges int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{results: map[string]ChargeResult{}}
}

func (g *MockGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return ChargeResult{}, fmt.Errorf("idempotency key required")
	}
	if req.PaymentToken == TokenUnavailable {
		return ChargeResult{}, ErrGatewayUnavailable
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prior, ok := g.results[req.IdempotencyKey]; ok {
		return prior, nil
	}

	result := ChargeResult{Reference: "ch_" + uuid.NewString()}
	switch {
	case req.PaymentToken == TokenDecline:
		result.DeclineReason = "card_declined"
	case req.Amount.IsNegative():
		result.DeclineReason = "invalid_amount"
	default:
		result.Approved = true
		g.charges++
	}
	g.results[req.IdempotencyKey] = result
	return result, nil
}

// Charges reports how many approvals were actually collected.
func (g *MockGateway) Charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}
